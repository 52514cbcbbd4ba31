package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/office-requisition/internal/domain/entity"
	"github.com/garyjia/office-requisition/internal/domain/requisition"
	"github.com/garyjia/office-requisition/internal/domain/workflow"
	"github.com/garyjia/office-requisition/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/office-requisition/migrations"
	"github.com/garyjia/office-requisition/pkg/database"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "test.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, zap.NewNop()).RunMigrations(migrations.FS))
	return db.DB
}

func newPending(item string) *entity.Requisition {
	return &entity.Requisition{
		ItemID:             item,
		RequestingOfficeID: "office-cs",
		ParentOfficeID:     "office-science",
		RequestedQuantity:  10,
		Status:             workflow.StatePending,
		BoundInstances:     []string{},
		RequestRemarks:     "lab restock",
		RequestedBy:        "alice",
		RequestedAt:        baseTime,
		UpdatedAt:          baseTime,
	}
}

func intp(v int) *int { return &v }

func TestRequisitionRepository_CreateAndLoad(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequisitionRepository(db, zap.NewNop())
	ctx := context.Background()

	r := newPending("item-1")
	require.NoError(t, repo.Create(ctx, r))
	assert.NotZero(t, r.ID)
	assert.Equal(t, int64(1), r.Version)

	got, err := repo.Load(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "item-1", got.ItemID)
	assert.Equal(t, workflow.StatePending, got.Status)
	assert.Nil(t, got.ApprovedQuantity)
	assert.Nil(t, got.FulfilledQuantity)
	assert.Nil(t, got.ApprovedAt)
	assert.Empty(t, got.BoundInstances)
	assert.NotNil(t, got.BoundInstances)
	assert.True(t, got.RequestedAt.Equal(baseTime))
	assert.Equal(t, int64(1), got.Version)
}

func TestRequisitionRepository_LoadNotFound(t *testing.T) {
	repo := NewRequisitionRepository(setupTestDB(t), zap.NewNop())

	_, err := repo.Load(context.Background(), 999)
	assert.ErrorIs(t, err, requisition.ErrNotFound)
}

func TestRequisitionRepository_SaveVersionCheck(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequisitionRepository(db, zap.NewNop())
	ctx := context.Background()

	r := newPending("item-1")
	require.NoError(t, repo.Create(ctx, r))

	approvedAt := baseTime.Add(time.Hour)
	next := r.Clone()
	next.Status = workflow.StateApproved
	next.ApprovedQuantity = intp(6)
	next.ApprovedBy = "bob"
	next.ApprovedAt = &approvedAt
	next.UpdatedAt = approvedAt

	require.NoError(t, repo.Save(ctx, 1, next))
	assert.Equal(t, int64(2), next.Version)

	got, err := repo.Load(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, got.Status)
	require.NotNil(t, got.ApprovedQuantity)
	assert.Equal(t, 6, *got.ApprovedQuantity)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(approvedAt))
	assert.Equal(t, int64(2), got.Version)

	t.Run("stale version is rejected and row untouched", func(t *testing.T) {
		stale := r.Clone()
		stale.Status = workflow.StateRejected
		err := repo.Save(ctx, 1, stale)
		assert.ErrorIs(t, err, requisition.ErrConcurrentModification)
		assert.True(t, requisition.IsRetryable(err))

		after, err := repo.Load(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.StateApproved, after.Status)
		assert.Equal(t, int64(2), after.Version)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		ghost := r.Clone()
		ghost.ID = 12345
		assert.ErrorIs(t, repo.Save(ctx, 1, ghost), requisition.ErrNotFound)
	})
}

func TestRequisitionRepository_ConcurrentSaves(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequisitionRepository(db, zap.NewNop())
	ctx := context.Background()

	r := newPending("item-1")
	require.NoError(t, repo.Create(ctx, r))

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := r.Clone()
			next.Status = workflow.StateApproved
			next.ApprovedQuantity = intp(5)
			results <- repo.Save(ctx, 1, next)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, requisition.ErrConcurrentModification), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
}

func TestRequisitionRepository_BindInstances(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequisitionRepository(db, zap.NewNop())
	ctx := context.Background()

	r := newPending("item-1")
	require.NoError(t, repo.Create(ctx, r))

	require.NoError(t, repo.BindInstances(ctx, r.ID, 1, []string{"i-3", "i-1"}))
	require.NoError(t, repo.BindInstances(ctx, r.ID, 2, []string{"i-2"}))
	require.NoError(t, repo.BindInstances(ctx, r.ID, 3, nil))

	got, err := repo.Load(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"i-3", "i-1", "i-2"}, got.BoundInstances)

	err = repo.BindInstances(ctx, r.ID, 3, []string{"i-4", "i-1"})
	assert.ErrorIs(t, err, requisition.ErrDuplicateOperation)

	got, err = repo.Load(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"i-3", "i-1", "i-2"}, got.BoundInstances, "failed batch must not bind partially")
}

func TestRequisitionRepository_ListAndCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequisitionRepository(db, zap.NewNop())
	ctx := context.Background()

	for i, item := range []string{"item-a", "item-b", "item-c"} {
		r := newPending(item)
		r.RequestedAt = baseTime.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, r))
	}
	other := newPending("item-d")
	other.RequestingOfficeID = "office-math"
	other.Status = workflow.StateApproved
	require.NoError(t, repo.Create(ctx, other))
	require.NoError(t, repo.BindInstances(ctx, other.ID, 1, []string{"x-1"}))

	tests := []struct {
		name      string
		filter    entity.RequisitionFilter
		wantItems []string
		wantTotal int64
	}{
		{
			name:      "pending for parent, newest first",
			filter:    entity.RequisitionFilter{ParentOfficeID: "office-science", Status: workflow.StatePending},
			wantItems: []string{"item-c", "item-b", "item-a"},
			wantTotal: 3,
		},
		{
			name:      "paged",
			filter:    entity.RequisitionFilter{ParentOfficeID: "office-science", Status: workflow.StatePending, Limit: 1, Offset: 1},
			wantItems: []string{"item-b"},
			wantTotal: 3,
		},
		{
			name:      "by requesting office",
			filter:    entity.RequisitionFilter{RequestingOfficeID: "office-math"},
			wantItems: []string{"item-d"},
			wantTotal: 1,
		},
		{
			name:      "no match",
			filter:    entity.RequisitionFilter{RequestedBy: "nobody"},
			wantItems: []string{},
			wantTotal: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			names := make([]string, 0, len(items))
			for _, it := range items {
				names = append(names, it.ItemID)
			}
			assert.Equal(t, tt.wantItems, names)

			total, err := repo.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
		})
	}

	items, err := repo.List(ctx, entity.RequisitionFilter{RequestingOfficeID: "office-math"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"x-1"}, items[0].BoundInstances)
}

func TestTransaction_RollbackUndoesAllWrites(t *testing.T) {
	db := setupTestDB(t)
	tm := sqlite.NewDB(db, zap.NewNop())
	repo := NewRequisitionRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())
	ctx := context.Background()

	r := newPending("item-1")
	require.NoError(t, repo.Create(ctx, r))

	boom := errors.New("boom")
	err := tm.WithTransaction(ctx, func(txCtx context.Context) error {
		next := r.Clone()
		next.Status = workflow.StateRejected
		if err := repo.Save(txCtx, r.Version, next); err != nil {
			return err
		}
		if err := history.Create(txCtx, &entity.RequisitionHistory{
			RequisitionID: r.ID, Action: entity.ActionReject, ToStatus: "REJECTED", Actor: "bob", CreatedAt: baseTime,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.Load(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePending, got.Status)
	assert.Equal(t, int64(1), got.Version)

	records, err := history.GetByRequisitionID(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHistoryRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequisitionRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())
	ctx := context.Background()

	r := newPending("item-1")
	require.NoError(t, repo.Create(ctx, r))

	entries := []*entity.RequisitionHistory{
		{RequisitionID: r.ID, Action: entity.ActionCreate, ToStatus: "PENDING", Actor: "alice", Quantity: 10, CreatedAt: baseTime},
		{RequisitionID: r.ID, Action: entity.ActionApprove, FromStatus: "PENDING", ToStatus: "APPROVED", Actor: "bob", Quantity: 6, Remarks: "budget", CreatedAt: baseTime.Add(time.Hour)},
	}
	for _, h := range entries {
		require.NoError(t, history.Create(ctx, h))
		assert.NotZero(t, h.ID)
	}

	got, err := history.GetByRequisitionID(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, entity.ActionCreate, got[0].Action)
	assert.Equal(t, entity.ActionApprove, got[1].Action)
	assert.Equal(t, "budget", got[1].Remarks)
	assert.Equal(t, 6, got[1].Quantity)
}

func TestMovementRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequisitionRepository(db, zap.NewNop())
	movements := NewMovementRepository(db, zap.NewNop())
	ctx := context.Background()

	r := newPending("item-1")
	require.NoError(t, repo.Create(ctx, r))

	batch := []*entity.Movement{
		{InstanceID: "i-1", FromOfficeID: "office-science", ToOfficeID: "office-cs", RequisitionID: r.ID, Step: 1, Actor: "carol", Timestamp: baseTime},
		{InstanceID: "i-2", FromOfficeID: "office-science", ToOfficeID: "office-cs", RequisitionID: r.ID, Step: 1, Actor: "carol", Timestamp: baseTime},
	}
	require.NoError(t, movements.CreateBatch(ctx, batch))
	assert.NotZero(t, batch[0].ID)
	assert.NotZero(t, batch[1].ID)

	err := movements.CreateBatch(ctx, []*entity.Movement{
		{InstanceID: "i-1", FromOfficeID: "office-science", ToOfficeID: "office-cs", RequisitionID: r.ID, Step: 2, Actor: "carol", Timestamp: baseTime},
	})
	assert.ErrorIs(t, err, requisition.ErrDuplicateOperation)

	pending, err := movements.GetUnapplied(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "i-1", pending[0].InstanceID)

	appliedAt := baseTime.Add(time.Minute)
	require.NoError(t, movements.MarkApplied(ctx, batch[0].ID, appliedAt))
	require.NoError(t, movements.MarkApplied(ctx, batch[0].ID, appliedAt.Add(time.Hour)))

	pending, err = movements.GetUnapplied(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "i-2", pending[0].InstanceID)

	all, err := movements.GetByRequisitionID(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].AppliedAt)
	assert.True(t, all[0].AppliedAt.Equal(appliedAt), "first stamp wins")
	assert.Nil(t, all[1].AppliedAt)
}

func TestOwnershipRepository(t *testing.T) {
	ownership := NewOwnershipRepository(setupTestDB(t), zap.NewNop())
	ctx := context.Background()

	_, err := ownership.Owner(ctx, "i-1")
	assert.ErrorIs(t, err, requisition.ErrInstanceNotFound)
	assert.ErrorIs(t, err, requisition.ErrNotFound)
	assert.EqualError(t, err, "instance not found: i-1")

	first := &entity.Movement{InstanceID: "i-1", ToOfficeID: "office-cs", RequisitionID: 1, Timestamp: baseTime}
	later := &entity.Movement{InstanceID: "i-1", ToOfficeID: "office-math", RequisitionID: 2, Timestamp: baseTime.Add(time.Hour)}

	require.NoError(t, ownership.Apply(ctx, first))
	require.NoError(t, ownership.Apply(ctx, later))
	require.NoError(t, ownership.Apply(ctx, first))

	got, err := ownership.Owner(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, "office-math", got.OfficeID)
	assert.Equal(t, int64(2), got.RequisitionID)
}
