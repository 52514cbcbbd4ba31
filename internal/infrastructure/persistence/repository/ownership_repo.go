package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/office-requisition/internal/application/port"
	"github.com/garyjia/office-requisition/internal/domain/entity"
	"github.com/garyjia/office-requisition/internal/domain/requisition"
	"github.com/garyjia/office-requisition/internal/infrastructure/persistence/sqlite"
)

// OwnershipRepository is the SQLite implementation of port.InventoryOwnership
type OwnershipRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOwnershipRepository creates a new ownership repository
func NewOwnershipRepository(db *sql.DB, logger *zap.Logger) port.InventoryOwnership {
	return &OwnershipRepository{
		db:     db,
		logger: logger,
	}
}

// Apply moves m.InstanceID to m.ToOfficeID. A movement older than the
// current ownership record is ignored so replays cannot roll ownership back.
func (r *OwnershipRepository) Apply(ctx context.Context, m *entity.Movement) error {
	query := `
		INSERT INTO instance_ownership (instance_id, office_id, requisition_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			office_id = excluded.office_id,
			requisition_id = excluded.requisition_id,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= instance_ownership.updated_at
	`

	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		m.InstanceID,
		m.ToOfficeID,
		m.RequisitionID,
		m.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to apply movement",
			zap.Int64("movement_id", m.ID),
			zap.String("instance_id", m.InstanceID),
			zap.Error(err))
		return fmt.Errorf("failed to apply movement: %w", sqlite.TranslateError(err))
	}
	return nil
}

// Owner returns the current owner of instanceID
func (r *OwnershipRepository) Owner(ctx context.Context, instanceID string) (*entity.InstanceOwnership, error) {
	query := `
		SELECT instance_id, office_id, requisition_id, updated_at
		FROM instance_ownership
		WHERE instance_id = ?
	`

	var o entity.InstanceOwnership
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, instanceID).Scan(
		&o.InstanceID,
		&o.OfficeID,
		&o.RequisitionID,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", requisition.ErrInstanceNotFound, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner: %w", sqlite.TranslateError(err))
	}
	return &o, nil
}

var _ port.InventoryOwnership = (*OwnershipRepository)(nil)
