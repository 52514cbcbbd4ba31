package entity

import "time"

// History actions
const (
	ActionCreate  = "CREATE"
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
	ActionFulfill = "FULFILL"
	ActionConfirm = "CONFIRM"
	ActionCancel  = "CANCEL"
)

// RequisitionHistory is the audit trail of a requisition
type RequisitionHistory struct {
	ID            int64     `json:"id"`
	RequisitionID int64     `json:"requisition_id"`
	Action        string    `json:"action"`
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	Actor         string    `json:"actor"`
	Quantity      int       `json:"quantity"`
	Remarks       string    `json:"remarks"`
	CreatedAt     time.Time `json:"created_at"`
}
