package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/garyjia/office-requisition/internal/application/port"
	"github.com/garyjia/office-requisition/internal/domain/entity"
	"github.com/garyjia/office-requisition/internal/domain/requisition"
	"github.com/garyjia/office-requisition/internal/infrastructure/persistence/sqlite"
)

var movementColumns = []string{
	"id", "instance_id", "from_office_id", "to_office_id",
	"requisition_id", "step", "actor", "timestamp", "applied_at",
}

// MovementRepository implements port.MovementRepository
type MovementRepository struct {
	db     *sql.DB
	logger *zap.Logger
	psql   sq.StatementBuilderType
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *sql.DB, logger *zap.Logger) port.MovementRepository {
	return &MovementRepository{
		db:     db,
		logger: logger,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// CreateBatch inserts movements and sets their IDs
func (r *MovementRepository) CreateBatch(ctx context.Context, movements []*entity.Movement) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)
	query := `
		INSERT INTO movements (
			instance_id, from_office_id, to_office_id,
			requisition_id, step, actor, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	for _, m := range movements {
		result, err := exec.ExecContext(ctx, query,
			m.InstanceID,
			m.FromOfficeID,
			m.ToOfficeID,
			m.RequisitionID,
			m.Step,
			m.Actor,
			m.Timestamp,
		)
		if err != nil {
			if sqlite.IsUniqueViolation(err) {
				return fmt.Errorf("movement for instance %s already recorded: %w", m.InstanceID, requisition.ErrDuplicateOperation)
			}
			r.logger.Error("Failed to create movement",
				zap.Int64("requisition_id", m.RequisitionID),
				zap.String("instance_id", m.InstanceID),
				zap.Error(err))
			return fmt.Errorf("failed to create movement: %w", sqlite.TranslateError(err))
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		m.ID = id
	}
	return nil
}

// GetByRequisitionID retrieves the movements of a requisition in step order
func (r *MovementRepository) GetByRequisitionID(ctx context.Context, requisitionID int64) ([]*entity.Movement, error) {
	return r.query(ctx, r.psql.Select(movementColumns...).
		From("movements").
		Where(sq.Eq{"requisition_id": requisitionID}).
		OrderBy("step", "id"))
}

// GetUnapplied returns up to limit movements the ownership store has not seen yet, oldest first
func (r *MovementRepository) GetUnapplied(ctx context.Context, limit int) ([]*entity.Movement, error) {
	b := r.psql.Select(movementColumns...).
		From("movements").
		Where(sq.Eq{"applied_at": nil}).
		OrderBy("id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.query(ctx, b)
}

// MarkApplied stamps a movement as applied. Already applied movements keep their first stamp.
func (r *MovementRepository) MarkApplied(ctx context.Context, id int64, at time.Time) error {
	query, args, err := r.psql.Update("movements").
		Set("applied_at", at).
		Where(sq.Eq{"id": id, "applied_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	if _, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to mark movement applied", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark movement applied: %w", sqlite.TranslateError(err))
	}
	return nil
}

func (r *MovementRepository) query(ctx context.Context, b sq.SelectBuilder) ([]*entity.Movement, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query movements", zap.Error(err))
		return nil, fmt.Errorf("failed to query movements: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	movements := make([]*entity.Movement, 0)
	for rows.Next() {
		var m entity.Movement
		var appliedAt sql.NullTime
		err := rows.Scan(
			&m.ID,
			&m.InstanceID,
			&m.FromOfficeID,
			&m.ToOfficeID,
			&m.RequisitionID,
			&m.Step,
			&m.Actor,
			&m.Timestamp,
			&appliedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		m.AppliedAt = timePtr(appliedAt)
		movements = append(movements, &m)
	}
	return movements, rows.Err()
}

var _ port.MovementRepository = (*MovementRepository)(nil)
