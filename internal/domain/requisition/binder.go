package requisition

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/office-requisition/internal/domain/entity"
)

// Binding is the outcome of a validated fulfillment step.
type Binding struct {
	Instances []string
	Movements []*entity.Movement
}

// Bind validates instance ids for one fulfillment step of r and describes the
// movements they imply. It never mutates r or inventory state.
func Bind(r *entity.Requisition, instanceIDs []string, expectedCount, step int, actor string, now time.Time) (*Binding, error) {
	if err := checkReplay(r, instanceIDs); err != nil {
		return nil, err
	}
	if len(instanceIDs) != expectedCount {
		return nil, fmt.Errorf("%w: got %d instance ids for a step of %d", ErrInvalidInput, len(instanceIDs), expectedCount)
	}

	seen := make(map[string]bool, len(instanceIDs))
	binding := &Binding{
		Instances: make([]string, 0, len(instanceIDs)),
		Movements: make([]*entity.Movement, 0, len(instanceIDs)),
	}
	for _, raw := range instanceIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, fmt.Errorf("%w: blank instance id", ErrInvalidInput)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: instance %s listed twice", ErrInvalidInput, id)
		}
		seen[id] = true

		binding.Instances = append(binding.Instances, id)
		binding.Movements = append(binding.Movements, &entity.Movement{
			InstanceID:    id,
			FromOfficeID:  r.ParentOfficeID,
			ToOfficeID:    r.RequestingOfficeID,
			RequisitionID: r.ID,
			Step:          step,
			Actor:         actor,
			Timestamp:     now,
		})
	}

	return binding, nil
}

// checkReplay rejects ids that an earlier step already bound.
func checkReplay(r *entity.Requisition, instanceIDs []string) error {
	var dup []string
	for _, raw := range instanceIDs {
		if id := strings.TrimSpace(raw); id != "" && r.HasInstance(id) {
			dup = append(dup, id)
		}
	}
	if len(dup) > 0 {
		return fmt.Errorf("%w: instances already bound to requisition %d: %s", ErrDuplicateOperation, r.ID, strings.Join(dup, ", "))
	}
	return nil
}
