package workflow

import (
	"context"
	"sync"
)

type fulfillmentKey struct{}

// WithFulfillmentComplete records on ctx whether the pending fulfillment step
// brings the cumulative fulfilled quantity up to the approved quantity.
func WithFulfillmentComplete(ctx context.Context, complete bool) context.Context {
	return context.WithValue(ctx, fulfillmentKey{}, complete)
}

func fulfillmentComplete(ctx context.Context) bool {
	complete, _ := ctx.Value(fulfillmentKey{}).(bool)
	return complete
}

func fulfillmentIncomplete(ctx context.Context) bool {
	return !fulfillmentComplete(ctx)
}

// requisitionBuilder is built on first use. Configure validates states
// against package maps, so it cannot run during variable initialization.
var requisitionBuilder = sync.OnceValue(newRequisitionBuilder)

func newRequisitionBuilder() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected)

	for _, s := range []State{StateApproved, StatePartiallyFulfilled} {
		b.Configure(s).
			PermitIf(TriggerFulfill, StateFulfilled, fulfillmentComplete).
			PermitIf(TriggerFulfill, StatePartiallyFulfilled, fulfillmentIncomplete).
			Permit(TriggerCancel, StateCancelled)
	}

	b.Configure(StateFulfilled).
		Permit(TriggerConfirm, StateConfirmed)

	return b
}

// BuildRequisitionStateMachine returns a requisition lifecycle machine positioned at initial.
//
//	PENDING -> APPROVED | REJECTED
//	APPROVED, PARTIALLY_FULFILLED -> PARTIALLY_FULFILLED | FULFILLED (FULFILL), CANCELLED
//	FULFILLED -> CONFIRMED
func BuildRequisitionStateMachine(initial State) StateMachine {
	return requisitionBuilder().Build(initial)
}
