package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/garyjia/office-requisition/internal/application/port"
	"github.com/garyjia/office-requisition/internal/domain/entity"
	"github.com/garyjia/office-requisition/internal/domain/requisition"
	"github.com/garyjia/office-requisition/internal/domain/workflow"
	"github.com/garyjia/office-requisition/internal/infrastructure/persistence/sqlite"
)

var requisitionColumns = []string{
	"id", "item_id", "requesting_office_id", "parent_office_id",
	"requested_quantity", "approved_quantity", "fulfilled_quantity", "status", "fulfillment_steps",
	"request_remarks", "approval_remarks", "rejection_reason", "confirmation_remarks", "cancellation_reason",
	"requested_by", "approved_by", "rejected_by", "fulfilled_by", "confirmed_by", "cancelled_by",
	"requested_at", "approved_at", "rejected_at", "fulfilled_at", "confirmed_at", "cancelled_at",
	"version", "updated_at",
}

// RequisitionRepository implements port.RequisitionRepository
type RequisitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
	psql   sq.StatementBuilderType
}

// NewRequisitionRepository creates a new requisition repository
func NewRequisitionRepository(db *sql.DB, logger *zap.Logger) port.RequisitionRepository {
	return &RequisitionRepository{
		db:     db,
		logger: logger,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Create inserts r and sets its ID. The stored version starts at 1.
func (r *RequisitionRepository) Create(ctx context.Context, req *entity.Requisition) error {
	query, args, err := r.psql.Insert("requisitions").
		Columns(requisitionColumns[1:]...).
		Values(append(mutableValues(req), int64(1), req.UpdatedAt)...).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to create requisition", zap.Error(err))
		return fmt.Errorf("failed to create requisition: %w", sqlite.TranslateError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	req.Version = 1
	return nil
}

// Load retrieves a requisition and its bound instances
func (r *RequisitionRepository) Load(ctx context.Context, id int64) (*entity.Requisition, error) {
	query, args, err := r.psql.Select(requisitionColumns...).
		From("requisitions").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	exec := sqlite.ExecutorFrom(ctx, r.db)
	req, err := scanRequisition(exec.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("requisition %d: %w", id, requisition.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to load requisition", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to load requisition: %w", sqlite.TranslateError(err))
	}

	if err := r.attachInstances(ctx, exec, []*entity.Requisition{req}); err != nil {
		return nil, err
	}
	return req, nil
}

// Save writes req only if the stored version equals expectedVersion.
func (r *RequisitionRepository) Save(ctx context.Context, expectedVersion int64, req *entity.Requisition) error {
	values := mutableValues(req)
	set := make(map[string]interface{}, len(values)+2)
	for i, col := range requisitionColumns[1 : len(requisitionColumns)-2] {
		set[col] = values[i]
	}
	set["version"] = sq.Expr("version + 1")
	set["updated_at"] = req.UpdatedAt

	query, args, err := r.psql.Update("requisitions").
		SetMap(set).
		Where(sq.Eq{"id": req.ID, "version": expectedVersion}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	exec := sqlite.ExecutorFrom(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to save requisition", zap.Int64("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to save requisition: %w", sqlite.TranslateError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		err := exec.QueryRowContext(ctx, "SELECT 1 FROM requisitions WHERE id = ?", req.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("requisition %d: %w", req.ID, requisition.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check requisition: %w", sqlite.TranslateError(err))
		}
		r.logger.Info("Stale requisition write rejected",
			zap.Int64("id", req.ID), zap.Int64("expected_version", expectedVersion))
		return fmt.Errorf("requisition %d at version %d: %w", req.ID, expectedVersion, requisition.ErrConcurrentModification)
	}

	req.Version = expectedVersion + 1
	return nil
}

// BindInstances appends instanceIDs after the already bound ones
func (r *RequisitionRepository) BindInstances(ctx context.Context, requisitionID int64, step int, instanceIDs []string) error {
	if len(instanceIDs) == 0 {
		return nil
	}
	exec := sqlite.ExecutorFrom(ctx, r.db)

	var next int
	err := exec.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM requisition_instances WHERE requisition_id = ?",
		requisitionID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to read instance sequence: %w", sqlite.TranslateError(err))
	}

	insert := r.psql.Insert("requisition_instances").Columns("requisition_id", "instance_id", "step", "seq")
	for i, id := range instanceIDs {
		insert = insert.Values(requisitionID, id, step, next+i+1)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("instance already bound to requisition %d: %w", requisitionID, requisition.ErrDuplicateOperation)
		}
		r.logger.Error("Failed to bind instances", zap.Int64("requisition_id", requisitionID), zap.Error(err))
		return fmt.Errorf("failed to bind instances: %w", sqlite.TranslateError(err))
	}
	return nil
}

// List returns requisitions matching filter, newest first
func (r *RequisitionRepository) List(ctx context.Context, filter entity.RequisitionFilter) ([]*entity.Requisition, error) {
	builder := applyFilter(r.psql.Select(requisitionColumns...).From("requisitions"), filter).
		OrderBy("requested_at DESC", "id DESC")
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	exec := sqlite.ExecutorFrom(ctx, r.db)
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requisitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list requisitions: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	items := make([]*entity.Requisition, 0)
	for rows.Next() {
		req, err := scanRequisition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan requisition: %w", err)
		}
		items = append(items, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requisitions: %w", err)
	}
	rows.Close()

	if err := r.attachInstances(ctx, exec, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Count returns the number of requisitions matching filter, ignoring paging
func (r *RequisitionRepository) Count(ctx context.Context, filter entity.RequisitionFilter) (int64, error) {
	query, args, err := applyFilter(r.psql.Select("COUNT(*)").From("requisitions"), filter).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count: %w", err)
	}

	var n int64
	if err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count requisitions: %w", sqlite.TranslateError(err))
	}
	return n, nil
}

// attachInstances fills BoundInstances for items with one query
func (r *RequisitionRepository) attachInstances(ctx context.Context, exec sqlite.Executor, items []*entity.Requisition) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[int64]*entity.Requisition, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		item.BoundInstances = []string{}
		byID[item.ID] = item
		ids = append(ids, item.ID)
	}

	query, args, err := r.psql.Select("requisition_id", "instance_id").
		From("requisition_instances").
		Where(sq.Eq{"requisition_id": ids}).
		OrderBy("requisition_id", "seq").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build instance query: %w", err)
	}

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load bound instances: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var reqID int64
		var instanceID string
		if err := rows.Scan(&reqID, &instanceID); err != nil {
			return fmt.Errorf("failed to scan bound instance: %w", err)
		}
		if item, ok := byID[reqID]; ok {
			item.BoundInstances = append(item.BoundInstances, instanceID)
		}
	}
	return rows.Err()
}

func applyFilter(b sq.SelectBuilder, f entity.RequisitionFilter) sq.SelectBuilder {
	if f.RequestingOfficeID != "" {
		b = b.Where(sq.Eq{"requesting_office_id": f.RequestingOfficeID})
	}
	if f.ParentOfficeID != "" {
		b = b.Where(sq.Eq{"parent_office_id": f.ParentOfficeID})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status.String()})
	}
	if f.RequestedBy != "" {
		b = b.Where(sq.Eq{"requested_by": f.RequestedBy})
	}
	return b
}

// mutableValues lists req's columns between id and version, in requisitionColumns order
func mutableValues(req *entity.Requisition) []interface{} {
	return []interface{}{
		req.ItemID, req.RequestingOfficeID, req.ParentOfficeID,
		req.RequestedQuantity, nullInt(req.ApprovedQuantity), nullInt(req.FulfilledQuantity),
		req.Status.String(), req.FulfillmentSteps,
		req.RequestRemarks, req.ApprovalRemarks, req.RejectionReason, req.ConfirmationRemarks, req.CancellationReason,
		req.RequestedBy, req.ApprovedBy, req.RejectedBy, req.FulfilledBy, req.ConfirmedBy, req.CancelledBy,
		req.RequestedAt, nullTime(req.ApprovedAt), nullTime(req.RejectedAt),
		nullTime(req.FulfilledAt), nullTime(req.ConfirmedAt), nullTime(req.CancelledAt),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequisition(row rowScanner) (*entity.Requisition, error) {
	var (
		req                       entity.Requisition
		status                    string
		approvedQty, fulfilledQty sql.NullInt64
		approvedAt, rejectedAt    sql.NullTime
		fulfilledAt, confirmedAt  sql.NullTime
		cancelledAt               sql.NullTime
	)

	err := row.Scan(
		&req.ID, &req.ItemID, &req.RequestingOfficeID, &req.ParentOfficeID,
		&req.RequestedQuantity, &approvedQty, &fulfilledQty, &status, &req.FulfillmentSteps,
		&req.RequestRemarks, &req.ApprovalRemarks, &req.RejectionReason, &req.ConfirmationRemarks, &req.CancellationReason,
		&req.RequestedBy, &req.ApprovedBy, &req.RejectedBy, &req.FulfilledBy, &req.ConfirmedBy, &req.CancelledBy,
		&req.RequestedAt, &approvedAt, &rejectedAt, &fulfilledAt, &confirmedAt, &cancelledAt,
		&req.Version, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = workflow.State(status)
	req.ApprovedQuantity = intPtr(approvedQty)
	req.FulfilledQuantity = intPtr(fulfilledQty)
	req.ApprovedAt = timePtr(approvedAt)
	req.RejectedAt = timePtr(rejectedAt)
	req.FulfilledAt = timePtr(fulfilledAt)
	req.ConfirmedAt = timePtr(confirmedAt)
	req.CancelledAt = timePtr(cancelledAt)
	return &req, nil
}

var _ port.RequisitionRepository = (*RequisitionRepository)(nil)
