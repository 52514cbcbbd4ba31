package entity

import (
	"time"

	"github.com/garyjia/office-requisition/internal/domain/workflow"
)

// Requisition is a request by one office to receive a quantity of an item
// from its parent office.
type Requisition struct {
	ID                 int64          `json:"id"`
	ItemID             string         `json:"item_id"`
	RequestingOfficeID string         `json:"requesting_office_id"`
	ParentOfficeID     string         `json:"parent_office_id"`
	RequestedQuantity  int            `json:"requested_quantity"`
	ApprovedQuantity   *int           `json:"approved_quantity,omitempty"`
	FulfilledQuantity  *int           `json:"fulfilled_quantity,omitempty"`
	Status             workflow.State `json:"status"`
	BoundInstances     []string       `json:"bound_instances"`
	FulfillmentSteps   int            `json:"fulfillment_steps"`

	RequestRemarks      string `json:"request_remarks,omitempty"`
	ApprovalRemarks     string `json:"approval_remarks,omitempty"`
	RejectionReason     string `json:"rejection_reason,omitempty"`
	ConfirmationRemarks string `json:"confirmation_remarks,omitempty"`
	CancellationReason  string `json:"cancellation_reason,omitempty"`

	RequestedBy string `json:"requested_by"`
	ApprovedBy  string `json:"approved_by,omitempty"`
	RejectedBy  string `json:"rejected_by,omitempty"`
	FulfilledBy string `json:"fulfilled_by,omitempty"`
	ConfirmedBy string `json:"confirmed_by,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`

	RequestedAt time.Time  `json:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Approved returns the approved quantity, or 0 when the requisition was never approved.
func (r *Requisition) Approved() int {
	if r.ApprovedQuantity == nil {
		return 0
	}
	return *r.ApprovedQuantity
}

// Fulfilled returns the cumulative fulfilled quantity, or 0 when undefined.
func (r *Requisition) Fulfilled() int {
	if r.FulfilledQuantity == nil {
		return 0
	}
	return *r.FulfilledQuantity
}

// HasInstance reports whether instanceID is already bound to the requisition.
func (r *Requisition) HasInstance(instanceID string) bool {
	for _, id := range r.BoundInstances {
		if id == instanceID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so a transition can be prepared without touching the original.
func (r *Requisition) Clone() *Requisition {
	if r == nil {
		return nil
	}
	c := *r
	c.ApprovedQuantity = cloneInt(r.ApprovedQuantity)
	c.FulfilledQuantity = cloneInt(r.FulfilledQuantity)
	c.ApprovedAt = cloneTime(r.ApprovedAt)
	c.RejectedAt = cloneTime(r.RejectedAt)
	c.FulfilledAt = cloneTime(r.FulfilledAt)
	c.ConfirmedAt = cloneTime(r.ConfirmedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	if r.BoundInstances != nil {
		c.BoundInstances = append(make([]string, 0, len(r.BoundInstances)), r.BoundInstances...)
	}
	return &c
}

// RequisitionFilter narrows requisition list queries. Zero values are ignored.
type RequisitionFilter struct {
	RequestingOfficeID string
	ParentOfficeID     string
	Status             workflow.State
	RequestedBy        string
	Limit              int
	Offset             int
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
