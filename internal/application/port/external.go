package port

import (
	"context"

	"github.com/garyjia/office-requisition/internal/domain/entity"
)

// InventoryOwnership re-homes inventory instances according to movement records.
type InventoryOwnership interface {
	// Apply makes m.ToOfficeID the owner of m.InstanceID. Applying the same
	// movement twice has no further effect.
	Apply(ctx context.Context, m *entity.Movement) error

	// Owner returns the current owner of an instance, or requisition.ErrInstanceNotFound.
	Owner(ctx context.Context, instanceID string) (*entity.InstanceOwnership, error)
}

// MessageSender delivers plain-text notifications to an office contact
type MessageSender interface {
	SendMessage(ctx context.Context, receiverID string, content string) error
}
