package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/office-requisition/internal/application/port"
	"github.com/garyjia/office-requisition/internal/domain/entity"
	"github.com/garyjia/office-requisition/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, h *entity.RequisitionHistory) error {
	query := `
		INSERT INTO requisition_history (
			requisition_id, action, from_status, to_status,
			actor, quantity, remarks, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		h.RequisitionID,
		h.Action,
		h.FromStatus,
		h.ToStatus,
		h.Actor,
		h.Quantity,
		h.Remarks,
		h.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.Error(err))
		return fmt.Errorf("failed to create history: %w", sqlite.TranslateError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	h.ID = id
	return nil
}

// GetByRequisitionID retrieves all history records for a requisition, oldest first
func (r *HistoryRepository) GetByRequisitionID(ctx context.Context, requisitionID int64) ([]*entity.RequisitionHistory, error) {
	query := `
		SELECT id, requisition_id, action, from_status, to_status,
			actor, quantity, remarks, created_at
		FROM requisition_history
		WHERE requisition_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, requisitionID)
	if err != nil {
		r.logger.Error("Failed to get history by requisition ID", zap.Int64("requisition_id", requisitionID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	records := make([]*entity.RequisitionHistory, 0)
	for rows.Next() {
		var h entity.RequisitionHistory
		err := rows.Scan(
			&h.ID,
			&h.RequisitionID,
			&h.Action,
			&h.FromStatus,
			&h.ToStatus,
			&h.Actor,
			&h.Quantity,
			&h.Remarks,
			&h.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		records = append(records, &h)
	}

	return records, rows.Err()
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
