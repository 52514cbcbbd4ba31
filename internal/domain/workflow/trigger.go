package workflow

// Trigger is a requisition transition request
type Trigger string

const (
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
	TriggerFulfill Trigger = "FULFILL"
	TriggerConfirm Trigger = "CONFIRM"
	TriggerCancel  Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
