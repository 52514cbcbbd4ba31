package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequisitionCreated   Type = "requisition.created"
	TypeRequisitionApproved  Type = "requisition.approved"
	TypeRequisitionRejected  Type = "requisition.rejected"
	TypeRequisitionFulfilled Type = "requisition.fulfilled"
	TypeRequisitionConfirmed Type = "requisition.confirmed"
	TypeRequisitionCancelled Type = "requisition.cancelled"
	TypeMovementApplied      Type = "movement.applied"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequisitionCreated,
		TypeRequisitionApproved,
		TypeRequisitionRejected,
		TypeRequisitionFulfilled,
		TypeRequisitionConfirmed,
		TypeRequisitionCancelled,
		TypeMovementApplied:
		return true
	default:
		return false
	}
}
