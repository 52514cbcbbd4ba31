package port

import (
	"context"
	"time"

	"github.com/garyjia/office-requisition/internal/domain/entity"
)

// RequisitionRepository persists requisitions under optimistic concurrency.
type RequisitionRepository interface {
	// Create stores a new requisition and assigns its ID. Version starts at 1.
	Create(ctx context.Context, r *entity.Requisition) error

	// Load returns the requisition with its bound instances, or requisition.ErrNotFound.
	Load(ctx context.Context, id int64) (*entity.Requisition, error)

	// Save writes r if the stored version still equals expectedVersion and bumps
	// r.Version. Fails with requisition.ErrConcurrentModification on a stale version.
	Save(ctx context.Context, expectedVersion int64, r *entity.Requisition) error

	// BindInstances appends bound instance ids in order. A repeated id fails
	// with requisition.ErrDuplicateOperation.
	BindInstances(ctx context.Context, requisitionID int64, step int, instanceIDs []string) error

	List(ctx context.Context, filter entity.RequisitionFilter) ([]*entity.Requisition, error)
	Count(ctx context.Context, filter entity.RequisitionFilter) (int64, error)
}

// HistoryRepository stores the requisition audit trail
type HistoryRepository interface {
	Create(ctx context.Context, h *entity.RequisitionHistory) error
	GetByRequisitionID(ctx context.Context, requisitionID int64) ([]*entity.RequisitionHistory, error)
}

// MovementRepository stores movement records produced by fulfillment steps
type MovementRepository interface {
	CreateBatch(ctx context.Context, movements []*entity.Movement) error
	GetByRequisitionID(ctx context.Context, requisitionID int64) ([]*entity.Movement, error)
	GetUnapplied(ctx context.Context, limit int) ([]*entity.Movement, error)
	MarkApplied(ctx context.Context, id int64, at time.Time) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
