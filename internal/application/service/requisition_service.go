package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/office-requisition/internal/application/dispatcher"
	"github.com/garyjia/office-requisition/internal/application/port"
	"github.com/garyjia/office-requisition/internal/domain/entity"
	"github.com/garyjia/office-requisition/internal/domain/event"
	"github.com/garyjia/office-requisition/internal/domain/requisition"
	"github.com/garyjia/office-requisition/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// RequisitionService runs requisition transitions against persistent storage.
// Each transition is one read-modify-write in a single transaction; stale
// writes fail with requisition.ErrConcurrentModification and are not retried.
type RequisitionService interface {
	Create(ctx context.Context, params requisition.CreateParams, actor string) (*entity.Requisition, error)
	Approve(ctx context.Context, id int64, approvedQuantity int, remarks, actor string) (*entity.Requisition, error)
	Reject(ctx context.Context, id int64, reason, actor string) (*entity.Requisition, error)
	Fulfill(ctx context.Context, id int64, quantity int, instanceIDs []string, actor string) (*requisition.FulfillResult, error)
	ConfirmReceipt(ctx context.Context, id int64, remarks, actor string) (*entity.Requisition, error)
	Cancel(ctx context.Context, id int64, reason, actor string) (*entity.Requisition, error)

	Get(ctx context.Context, id int64) (*entity.Requisition, error)
	List(ctx context.Context, filter entity.RequisitionFilter) ([]*entity.Requisition, int64, error)
	Incoming(ctx context.Context, parentOfficeID string, limit, offset int) ([]*entity.Requisition, int64, error)
	History(ctx context.Context, id int64) ([]*entity.RequisitionHistory, error)
	Movements(ctx context.Context, id int64) ([]*entity.Movement, error)
}

type requisitionServiceImpl struct {
	ledger       *requisition.Ledger
	repo         port.RequisitionRepository
	historyRepo  port.HistoryRepository
	movementRepo port.MovementRepository
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	logger       Logger
}

// NewRequisitionService creates a new RequisitionService. disp may be nil.
func NewRequisitionService(
	ledger *requisition.Ledger,
	repo port.RequisitionRepository,
	historyRepo port.HistoryRepository,
	movementRepo port.MovementRepository,
	txManager port.TransactionManager,
	disp dispatcher.Dispatcher,
	logger Logger,
) RequisitionService {
	return &requisitionServiceImpl{
		ledger:       ledger,
		repo:         repo,
		historyRepo:  historyRepo,
		movementRepo: movementRepo,
		txManager:    txManager,
		dispatcher:   disp,
		logger:       logger,
	}
}

// Create stores a new PENDING requisition
func (s *requisitionServiceImpl) Create(ctx context.Context, params requisition.CreateParams, actor string) (*entity.Requisition, error) {
	r, err := s.ledger.Create(params, actor)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, r); err != nil {
			return fmt.Errorf("create requisition: %w", err)
		}

		return s.recordHistory(txCtx, r, entity.ActionCreate, "", r.RequestedQuantity, r.RequestRemarks, actor)
	})
	if err != nil {
		s.logger.Error("Failed to create requisition", "error", err, "item_id", params.ItemID, "actor", actor)
		return nil, err
	}

	s.logger.Info("Requisition created",
		"requisition_id", r.ID,
		"item_id", r.ItemID,
		"requesting_office_id", r.RequestingOfficeID,
		"parent_office_id", r.ParentOfficeID,
		"quantity", r.RequestedQuantity,
	)
	s.publish(ctx, event.TypeRequisitionCreated, r, "", r.RequestedQuantity, r.RequestRemarks, actor)
	return r, nil
}

// Approve grants approvedQuantity of a pending requisition
func (s *requisitionServiceImpl) Approve(ctx context.Context, id int64, approvedQuantity int, remarks, actor string) (*entity.Requisition, error) {
	res, err := s.transition(ctx, id, entity.ActionApprove, approvedQuantity, remarks, actor,
		func(r *entity.Requisition) (*requisition.FulfillResult, error) {
			next, err := s.ledger.Approve(r, approvedQuantity, remarks, actor)
			return wrap(next), err
		})
	if err != nil {
		return nil, err
	}
	return res.Requisition, nil
}

// Reject closes a pending requisition
func (s *requisitionServiceImpl) Reject(ctx context.Context, id int64, reason, actor string) (*entity.Requisition, error) {
	res, err := s.transition(ctx, id, entity.ActionReject, 0, reason, actor,
		func(r *entity.Requisition) (*requisition.FulfillResult, error) {
			next, err := s.ledger.Reject(r, reason, actor)
			return wrap(next), err
		})
	if err != nil {
		return nil, err
	}
	return res.Requisition, nil
}

// Fulfill binds instanceIDs as one fulfillment step and records their movements as pending
func (s *requisitionServiceImpl) Fulfill(ctx context.Context, id int64, quantity int, instanceIDs []string, actor string) (*requisition.FulfillResult, error) {
	return s.transition(ctx, id, entity.ActionFulfill, quantity, strings.Join(instanceIDs, ","), actor,
		func(r *entity.Requisition) (*requisition.FulfillResult, error) {
			return s.ledger.Fulfill(r, quantity, instanceIDs, actor)
		})
}

// ConfirmReceipt closes a fulfilled requisition
func (s *requisitionServiceImpl) ConfirmReceipt(ctx context.Context, id int64, remarks, actor string) (*entity.Requisition, error) {
	res, err := s.transition(ctx, id, entity.ActionConfirm, 0, remarks, actor,
		func(r *entity.Requisition) (*requisition.FulfillResult, error) {
			next, err := s.ledger.ConfirmReceipt(r, remarks, actor)
			return wrap(next), err
		})
	if err != nil {
		return nil, err
	}
	return res.Requisition, nil
}

// Cancel withdraws an approved or partially fulfilled requisition
func (s *requisitionServiceImpl) Cancel(ctx context.Context, id int64, reason, actor string) (*entity.Requisition, error) {
	res, err := s.transition(ctx, id, entity.ActionCancel, 0, reason, actor,
		func(r *entity.Requisition) (*requisition.FulfillResult, error) {
			next, err := s.ledger.Cancel(r, reason, actor)
			return wrap(next), err
		})
	if err != nil {
		return nil, err
	}
	return res.Requisition, nil
}

type applyFunc func(r *entity.Requisition) (*requisition.FulfillResult, error)

// transition loads the requisition, applies one ledger operation and saves the
// result conditioned on the version read.
func (s *requisitionServiceImpl) transition(ctx context.Context, id int64, action string, quantity int, remarks, actor string, apply applyFunc) (*requisition.FulfillResult, error) {
	var (
		res  *requisition.FulfillResult
		from workflow.State
	)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.repo.Load(txCtx, id)
		if err != nil {
			return err
		}
		from = current.Status

		res, err = apply(current)
		if err != nil {
			return err
		}
		next := res.Requisition

		if err := s.repo.Save(txCtx, current.Version, next); err != nil {
			return err
		}

		if len(res.Movements) > 0 {
			added := next.BoundInstances[len(current.BoundInstances):]
			if err := s.repo.BindInstances(txCtx, id, next.FulfillmentSteps, added); err != nil {
				return err
			}
			if err := s.movementRepo.CreateBatch(txCtx, res.Movements); err != nil {
				return fmt.Errorf("record movements: %w", err)
			}
		}

		return s.recordHistory(txCtx, next, action, from, quantity, remarks, actor)
	})
	if err != nil {
		s.logger.Error("Requisition transition failed",
			"requisition_id", id,
			"action", action,
			"actor", actor,
			"error", err,
		)
		return nil, fmt.Errorf("%s requisition %d: %w", strings.ToLower(action), id, err)
	}

	r := res.Requisition
	s.logger.Info("Requisition transitioned",
		"requisition_id", id,
		"action", action,
		"from_status", from,
		"to_status", r.Status,
		"version", r.Version,
		"movements", len(res.Movements),
	)
	s.publish(ctx, eventTypeFor(action), r, from, quantity, remarks, actor)
	return res, nil
}

func (s *requisitionServiceImpl) recordHistory(ctx context.Context, r *entity.Requisition, action string, from workflow.State, quantity int, remarks, actor string) error {
	h := &entity.RequisitionHistory{
		RequisitionID: r.ID,
		Action:        action,
		FromStatus:    from.String(),
		ToStatus:      r.Status.String(),
		Actor:         actor,
		Quantity:      quantity,
		Remarks:       remarks,
		CreatedAt:     r.UpdatedAt,
	}
	if err := s.historyRepo.Create(ctx, h); err != nil {
		return fmt.Errorf("create history: %w", err)
	}
	return nil
}

// publish fans the committed transition out to subscribers without blocking the caller
func (s *requisitionServiceImpl) publish(ctx context.Context, t event.Type, r *entity.Requisition, from workflow.State, quantity int, remarks, actor string) {
	if s.dispatcher == nil {
		return
	}

	evt := event.NewEventWithCorrelation(t, r.ID, map[string]interface{}{
		event.KeyStatus:           r.Status.String(),
		event.KeyFromStatus:       from.String(),
		event.KeyActor:            actor,
		event.KeyItemID:           r.ItemID,
		event.KeyRequestingOffice: r.RequestingOfficeID,
		event.KeyParentOffice:     r.ParentOfficeID,
		event.KeyQuantity:         quantity,
		event.KeyRemarks:          remarks,
	}, event.CorrelationIDFrom(ctx))

	s.dispatcher.DispatchAsync(ctx, evt)
}

// Get retrieves a requisition by ID
func (s *requisitionServiceImpl) Get(ctx context.Context, id int64) (*entity.Requisition, error) {
	r, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get requisition %d: %w", id, err)
	}
	return r, nil
}

// List returns a page of requisitions matching filter and the total match count
func (s *requisitionServiceImpl) List(ctx context.Context, filter entity.RequisitionFilter) ([]*entity.Requisition, int64, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", requisition.ErrInvalidInput, filter.Status)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, 0, fmt.Errorf("%w: limit and offset must not be negative", requisition.ErrInvalidInput)
	}
	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list requisitions", "error", err)
		return nil, 0, fmt.Errorf("list requisitions: %w", err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count requisitions: %w", err)
	}
	return items, total, nil
}

// Incoming lists pending requisitions addressed to a parent office
func (s *requisitionServiceImpl) Incoming(ctx context.Context, parentOfficeID string, limit, offset int) ([]*entity.Requisition, int64, error) {
	if strings.TrimSpace(parentOfficeID) == "" {
		return nil, 0, fmt.Errorf("%w: office is required", requisition.ErrInvalidInput)
	}
	return s.List(ctx, entity.RequisitionFilter{
		ParentOfficeID: parentOfficeID,
		Status:         workflow.StatePending,
		Limit:          limit,
		Offset:         offset,
	})
}

// History returns the audit trail of a requisition, oldest first
func (s *requisitionServiceImpl) History(ctx context.Context, id int64) ([]*entity.RequisitionHistory, error) {
	if _, err := s.repo.Load(ctx, id); err != nil {
		return nil, fmt.Errorf("get requisition %d: %w", id, err)
	}
	return s.historyRepo.GetByRequisitionID(ctx, id)
}

// Movements returns the movement records of a requisition, in step order
func (s *requisitionServiceImpl) Movements(ctx context.Context, id int64) ([]*entity.Movement, error) {
	if _, err := s.repo.Load(ctx, id); err != nil {
		return nil, fmt.Errorf("get requisition %d: %w", id, err)
	}
	return s.movementRepo.GetByRequisitionID(ctx, id)
}

func wrap(r *entity.Requisition) *requisition.FulfillResult {
	if r == nil {
		return nil
	}
	return &requisition.FulfillResult{Requisition: r}
}

func eventTypeFor(action string) event.Type {
	switch action {
	case entity.ActionApprove:
		return event.TypeRequisitionApproved
	case entity.ActionReject:
		return event.TypeRequisitionRejected
	case entity.ActionFulfill:
		return event.TypeRequisitionFulfilled
	case entity.ActionConfirm:
		return event.TypeRequisitionConfirmed
	case entity.ActionCancel:
		return event.TypeRequisitionCancelled
	default:
		return event.TypeRequisitionCreated
	}
}
