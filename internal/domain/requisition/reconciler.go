package requisition

import (
	"fmt"

	"github.com/garyjia/office-requisition/internal/domain/workflow"
)

// ValidateApproval checks a proposed approved quantity against the requested one.
// Approving zero is allowed and yields an approved-but-empty grant.
func ValidateApproval(requested, proposed int) error {
	if proposed < 0 || proposed > requested {
		return fmt.Errorf("%w: approved quantity %d must be between 0 and %d", ErrInvalidInput, proposed, requested)
	}
	return nil
}

// OutstandingQuantity is the approved quantity not yet fulfilled.
func OutstandingQuantity(approved, fulfilledSoFar int) int {
	return approved - fulfilledSoFar
}

// ValidateFulfillmentStep checks one step's quantity against what is still outstanding.
func ValidateFulfillmentStep(outstanding, step int) error {
	if step <= 0 {
		return fmt.Errorf("%w: fulfillment quantity must be positive, got %d", ErrInvalidInput, step)
	}
	if step > outstanding {
		return fmt.Errorf("%w: fulfillment quantity %d exceeds outstanding %d", ErrInvalidInput, step, outstanding)
	}
	return nil
}

// NextStatusAfterFulfillment returns FULFILLED once the running total reaches the approved quantity.
func NextStatusAfterFulfillment(approved, newTotal int) workflow.State {
	if newTotal == approved {
		return workflow.StateFulfilled
	}
	return workflow.StatePartiallyFulfilled
}
