// Package requisition holds the requisition workflow engine: the ledger of
// transitions, the quantity reconciler and the fulfillment binder. Nothing in
// this package performs I/O.
package requisition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/office-requisition/internal/domain/entity"
	"github.com/garyjia/office-requisition/internal/domain/workflow"
)

// CreateParams are the caller-supplied fields of a new requisition.
type CreateParams struct {
	ItemID             string
	RequestingOfficeID string
	ParentOfficeID     string
	Quantity           int
	Remarks            string
}

// FulfillResult is a fulfilled snapshot plus the movements the step produced.
type FulfillResult struct {
	Requisition *entity.Requisition
	Movements   []*entity.Movement
}

// Ledger applies requisition transitions to snapshots. Every method validates
// fully before building the result and never modifies its input.
type Ledger struct {
	now func() time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a ledger using the UTC wall clock unless overridden
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create builds a new PENDING requisition.
func (l *Ledger) Create(p CreateParams, actor string) (*entity.Requisition, error) {
	switch {
	case strings.TrimSpace(p.ItemID) == "":
		return nil, fmt.Errorf("%w: item is required", ErrInvalidInput)
	case strings.TrimSpace(p.RequestingOfficeID) == "" || strings.TrimSpace(p.ParentOfficeID) == "":
		return nil, fmt.Errorf("%w: requesting and parent office are required", ErrInvalidInput)
	case p.RequestingOfficeID == p.ParentOfficeID:
		return nil, fmt.Errorf("%w: cannot request items from your own office", ErrInvalidInput)
	case p.Quantity <= 0:
		return nil, fmt.Errorf("%w: requested quantity must be positive, got %d", ErrInvalidInput, p.Quantity)
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	now := l.now()
	return &entity.Requisition{
		ItemID:             p.ItemID,
		RequestingOfficeID: p.RequestingOfficeID,
		ParentOfficeID:     p.ParentOfficeID,
		RequestedQuantity:  p.Quantity,
		Status:             workflow.StatePending,
		BoundInstances:     []string{},
		RequestRemarks:     p.Remarks,
		RequestedBy:        actor,
		RequestedAt:        now,
		UpdatedAt:          now,
	}, nil
}

// Approve grants approvedQuantity of a PENDING requisition.
func (l *Ledger) Approve(r *entity.Requisition, approvedQuantity int, remarks, actor string) (*entity.Requisition, error) {
	next, err := transition(context.Background(), r, workflow.TriggerApprove)
	if err != nil {
		return nil, err
	}
	if err := ValidateApproval(r.RequestedQuantity, approvedQuantity); err != nil {
		return nil, err
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	now := l.now()
	out := r.Clone()
	out.Status = next
	out.ApprovedQuantity = &approvedQuantity
	zero := 0
	out.FulfilledQuantity = &zero
	out.ApprovalRemarks = remarks
	out.ApprovedBy = actor
	out.ApprovedAt = &now
	out.UpdatedAt = now
	return out, nil
}

// Reject closes a PENDING requisition.
func (l *Ledger) Reject(r *entity.Requisition, reason, actor string) (*entity.Requisition, error) {
	next, err := transition(context.Background(), r, workflow.TriggerReject)
	if err != nil {
		return nil, err
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	now := l.now()
	out := r.Clone()
	out.Status = next
	out.RejectionReason = reason
	out.RejectedBy = actor
	out.RejectedAt = &now
	out.UpdatedAt = now
	return out, nil
}

// Fulfill binds instanceIDs as one fulfillment step of quantity units.
func (l *Ledger) Fulfill(r *entity.Requisition, quantity int, instanceIDs []string, actor string) (*FulfillResult, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil requisition", ErrInvalidInput)
	}
	outstanding := OutstandingQuantity(r.Approved(), r.Fulfilled())
	newTotal := r.Fulfilled() + quantity
	complete := newTotal == r.Approved()

	next, err := transition(workflow.WithFulfillmentComplete(context.Background(), complete), r, workflow.TriggerFulfill)
	if err != nil {
		return nil, err
	}
	if err := checkReplay(r, instanceIDs); err != nil {
		return nil, err
	}
	if err := ValidateFulfillmentStep(outstanding, quantity); err != nil {
		return nil, err
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	now := l.now()
	step := r.FulfillmentSteps + 1
	binding, err := Bind(r, instanceIDs, quantity, step, actor, now)
	if err != nil {
		return nil, err
	}

	out := r.Clone()
	out.Status = next
	out.FulfilledQuantity = &newTotal
	out.BoundInstances = append(out.BoundInstances, binding.Instances...)
	out.FulfillmentSteps = step
	if next == workflow.StateFulfilled {
		out.FulfilledBy = actor
		out.FulfilledAt = &now
	}
	out.UpdatedAt = now

	return &FulfillResult{Requisition: out, Movements: binding.Movements}, nil
}

// ConfirmReceipt closes a FULFILLED requisition on behalf of the requesting office.
func (l *Ledger) ConfirmReceipt(r *entity.Requisition, remarks, actor string) (*entity.Requisition, error) {
	next, err := transition(context.Background(), r, workflow.TriggerConfirm)
	if err != nil {
		return nil, err
	}
	if r.Fulfilled() != r.Approved() {
		return nil, fmt.Errorf("%w: fulfilled %d of %d approved", ErrInvalidState, r.Fulfilled(), r.Approved())
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	now := l.now()
	out := r.Clone()
	out.Status = next
	out.ConfirmationRemarks = remarks
	out.ConfirmedBy = actor
	out.ConfirmedAt = &now
	out.UpdatedAt = now
	return out, nil
}

// Cancel withdraws an APPROVED or PARTIALLY_FULFILLED requisition. Pending
// requisitions are rejected instead.
func (l *Ledger) Cancel(r *entity.Requisition, reason, actor string) (*entity.Requisition, error) {
	next, err := transition(context.Background(), r, workflow.TriggerCancel)
	if err != nil {
		return nil, err
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	now := l.now()
	out := r.Clone()
	out.Status = next
	out.CancellationReason = reason
	out.CancelledBy = actor
	out.CancelledAt = &now
	out.UpdatedAt = now
	return out, nil
}

// transition resolves the target state of trigger from r's status.
func transition(ctx context.Context, r *entity.Requisition, trigger workflow.Trigger) (workflow.State, error) {
	if r == nil {
		return "", fmt.Errorf("%w: nil requisition", ErrInvalidInput)
	}
	if !r.Status.IsValid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidState, r.Status)
	}

	next, err := workflow.BuildRequisitionStateMachine(r.Status).Peek(ctx, trigger)
	if err != nil {
		if errors.Is(err, workflow.ErrInvalidTransition) || errors.Is(err, workflow.ErrGuardFailed) {
			return "", fmt.Errorf("%w: cannot %s requisition %d in status %s", ErrInvalidState, strings.ToLower(trigger.String()), r.ID, r.Status)
		}
		return "", err
	}
	return next, nil
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	return nil
}
