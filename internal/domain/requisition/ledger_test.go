package requisition

import (
	"fmt"
	"testing"
	"time"

	"github.com/garyjia/office-requisition/internal/domain/entity"
	"github.com/garyjia/office-requisition/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 9, 2, 10, 30, 0, 0, time.UTC)

func newTestLedger() *Ledger {
	return NewLedger(WithClock(func() time.Time { return fixedNow }))
}

func newPending(t *testing.T, l *Ledger, qty int) *entity.Requisition {
	t.Helper()
	r, err := l.Create(CreateParams{
		ItemID:             "item-projector",
		RequestingOfficeID: "office-cs",
		ParentOfficeID:     "office-central",
		Quantity:           qty,
		Remarks:            "lecture halls",
	}, "alice")
	require.NoError(t, err)
	r.ID = 1
	r.Version = 1
	return r
}

func ids(from, to int) []string {
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("i%d", i))
	}
	return out
}

// checkInvariants asserts the record-level rules that hold after any transition.
func checkInvariants(t *testing.T, r *entity.Requisition) {
	t.Helper()
	assert.NotEqual(t, r.RequestingOfficeID, r.ParentOfficeID)
	if r.Status.IsGranted() {
		require.NotNil(t, r.ApprovedQuantity)
		require.NotNil(t, r.FulfilledQuantity)
	}
	if r.Status == workflow.StatePending || r.Status == workflow.StateRejected {
		assert.Nil(t, r.ApprovedQuantity)
		assert.Nil(t, r.FulfilledQuantity)
	}
	if r.FulfilledQuantity != nil {
		assert.LessOrEqual(t, r.Fulfilled(), r.Approved())
		assert.Len(t, r.BoundInstances, r.Fulfilled())
	}
	if r.Status == workflow.StateFulfilled || r.Status == workflow.StateConfirmed {
		assert.Equal(t, r.Approved(), r.Fulfilled())
	}
}

func TestLedger_Create(t *testing.T) {
	l := newTestLedger()
	r := newPending(t, l, 10)

	assert.Equal(t, workflow.StatePending, r.Status)
	assert.Nil(t, r.ApprovedQuantity)
	assert.Nil(t, r.FulfilledQuantity)
	assert.Empty(t, r.BoundInstances)
	assert.Equal(t, "alice", r.RequestedBy)
	assert.Equal(t, fixedNow, r.RequestedAt)
	assert.Equal(t, "lecture halls", r.RequestRemarks)
	checkInvariants(t, r)
}

func TestLedger_CreateInvalid(t *testing.T) {
	valid := CreateParams{ItemID: "item", RequestingOfficeID: "a", ParentOfficeID: "b", Quantity: 1}

	tests := []struct {
		name   string
		mutate func(p *CreateParams)
		actor  string
	}{
		{"zero quantity", func(p *CreateParams) { p.Quantity = 0 }, "alice"},
		{"negative quantity", func(p *CreateParams) { p.Quantity = -3 }, "alice"},
		{"own office", func(p *CreateParams) { p.ParentOfficeID = p.RequestingOfficeID }, "alice"},
		{"missing item", func(p *CreateParams) { p.ItemID = "" }, "alice"},
		{"missing office", func(p *CreateParams) { p.ParentOfficeID = "" }, "alice"},
		{"missing actor", func(p *CreateParams) {}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			r, err := newTestLedger().Create(p, tt.actor)
			assert.Nil(t, r)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestLedger_Approve(t *testing.T) {
	l := newTestLedger()

	for _, q := range []int{0, 1, 7, 10} {
		t.Run(fmt.Sprintf("approve %d", q), func(t *testing.T) {
			r := newPending(t, l, 10)
			out, err := l.Approve(r, q, "ok", "bob")
			require.NoError(t, err)

			assert.Equal(t, workflow.StateApproved, out.Status)
			assert.Equal(t, q, *out.ApprovedQuantity)
			assert.Equal(t, 0, *out.FulfilledQuantity)
			assert.Equal(t, "bob", out.ApprovedBy)
			assert.Equal(t, fixedNow, *out.ApprovedAt)
			checkInvariants(t, out)

			assert.Equal(t, workflow.StatePending, r.Status, "input must not be mutated")
			assert.Nil(t, r.ApprovedQuantity)
		})
	}
}

func TestLedger_ApproveOutOfBounds(t *testing.T) {
	l := newTestLedger()

	for _, q := range []int{-1, 11} {
		r := newPending(t, l, 10)
		out, err := l.Approve(r, q, "", "bob")
		assert.Nil(t, out)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, workflow.StatePending, r.Status)
	}
}

func TestLedger_RejectOnlyFromPending(t *testing.T) {
	l := newTestLedger()
	r := newPending(t, l, 5)

	rejected, err := l.Reject(r, "no stock", "bob")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateRejected, rejected.Status)
	assert.Equal(t, "no stock", rejected.RejectionReason)
	assert.Equal(t, "bob", rejected.RejectedBy)
	checkInvariants(t, rejected)

	approved, err := l.Approve(newPending(t, l, 5), 5, "", "bob")
	require.NoError(t, err)
	partial, err := l.Fulfill(approved, 2, ids(1, 2), "carol")
	require.NoError(t, err)
	full, err := l.Fulfill(partial.Requisition, 3, ids(3, 5), "carol")
	require.NoError(t, err)

	for _, s := range []*entity.Requisition{rejected, approved, partial.Requisition, full.Requisition} {
		_, err := l.Reject(s, "late", "bob")
		assert.ErrorIs(t, err, ErrInvalidState, "reject from %s", s.Status)
	}
}

func TestLedger_FulfillReachesFulfilled(t *testing.T) {
	l := newTestLedger()
	r, err := l.Approve(newPending(t, l, 12), 10, "", "bob")
	require.NoError(t, err)

	steps := []int{3, 3, 3, 1}
	next := 1
	for i, q := range steps {
		res, err := l.Fulfill(r, q, ids(next, next+q-1), "carol")
		require.NoError(t, err)
		next += q
		r = res.Requisition

		if i < len(steps)-1 {
			assert.Equal(t, workflow.StatePartiallyFulfilled, r.Status)
			assert.Nil(t, r.FulfilledAt)
		} else {
			assert.Equal(t, workflow.StateFulfilled, r.Status)
			assert.Equal(t, "carol", r.FulfilledBy)
			require.NotNil(t, r.FulfilledAt)
		}
		assert.Equal(t, i+1, r.FulfillmentSteps)
		assert.Len(t, res.Movements, q)
		checkInvariants(t, r)
	}
}

func TestLedger_FulfillBeyondOutstanding(t *testing.T) {
	l := newTestLedger()
	r, err := l.Approve(newPending(t, l, 10), 7, "", "bob")
	require.NoError(t, err)

	res, err := l.Fulfill(r, 8, ids(1, 8), "carol")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, r.Fulfilled())
	assert.Empty(t, r.BoundInstances)
	assert.Equal(t, workflow.StateApproved, r.Status)
}

func TestLedger_FulfillInvalid(t *testing.T) {
	l := newTestLedger()
	approved, err := l.Approve(newPending(t, l, 10), 5, "", "bob")
	require.NoError(t, err)
	partial, err := l.Fulfill(approved, 2, ids(1, 2), "carol")
	require.NoError(t, err)

	tests := []struct {
		name     string
		r        *entity.Requisition
		quantity int
		ids      []string
		wantErr  error
	}{
		{"zero quantity", approved, 0, nil, ErrInvalidInput},
		{"count mismatch", approved, 2, ids(1, 3), ErrInvalidInput},
		{"duplicate in batch", approved, 2, []string{"x", "x"}, ErrInvalidInput},
		{"replay of bound instance", partial.Requisition, 2, ids(1, 2), ErrDuplicateOperation},
		{"partially replayed", partial.Requisition, 2, []string{"i2", "i9"}, ErrDuplicateOperation},
		{"pending", newPending(t, l, 3), 1, ids(1, 1), ErrInvalidState},
		{"missing actor", approved, 1, ids(1, 1), ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.r.Clone()
			actor := "carol"
			if tt.name == "missing actor" {
				actor = ""
			}
			res, err := l.Fulfill(tt.r, tt.quantity, tt.ids, actor)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, tt.r)
		})
	}
}

func TestLedger_ZeroGrantCanOnlyBeCancelled(t *testing.T) {
	l := newTestLedger()
	r, err := l.Approve(newPending(t, l, 4), 0, "nothing to spare", "bob")
	require.NoError(t, err)

	_, err = l.Fulfill(r, 1, ids(1, 1), "carol")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.ConfirmReceipt(r, "", "alice")
	assert.ErrorIs(t, err, ErrInvalidState)

	cancelled, err := l.Cancel(r, "empty grant", "bob")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCancelled, cancelled.Status)
}

func TestLedger_ConfirmRequiresFulfilled(t *testing.T) {
	l := newTestLedger()
	pending := newPending(t, l, 4)
	approved, err := l.Approve(pending, 4, "", "bob")
	require.NoError(t, err)
	partial, err := l.Fulfill(approved, 1, ids(1, 1), "carol")
	require.NoError(t, err)

	for _, r := range []*entity.Requisition{pending, approved, partial.Requisition} {
		_, err := l.ConfirmReceipt(r, "", "alice")
		assert.ErrorIs(t, err, ErrInvalidState, "confirm from %s", r.Status)
	}
}

func TestLedger_CancelNotFromPending(t *testing.T) {
	l := newTestLedger()

	_, err := l.Cancel(newPending(t, l, 2), "changed mind", "alice")
	assert.ErrorIs(t, err, ErrInvalidState)

	approved, err := l.Approve(newPending(t, l, 2), 2, "", "bob")
	require.NoError(t, err)
	partial, err := l.Fulfill(approved, 1, ids(1, 1), "carol")
	require.NoError(t, err)

	cancelled, err := l.Cancel(partial.Requisition, "budget cut", "bob")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCancelled, cancelled.Status)
	assert.Equal(t, "budget cut", cancelled.CancellationReason)
	assert.Equal(t, []string{"i1"}, cancelled.BoundInstances)
}

func TestLedger_CancelKeepsAuditQuantities(t *testing.T) {
	l := newTestLedger()
	approved, err := l.Approve(newPending(t, l, 5), 4, "", "bob")
	require.NoError(t, err)
	partial, err := l.Fulfill(approved, 2, ids(1, 2), "carol")
	require.NoError(t, err)
	before := partial.Requisition.Clone()

	cancelled, err := l.Cancel(partial.Requisition, "budget cut", "bob")
	require.NoError(t, err)

	assert.Equal(t, workflow.StateCancelled, cancelled.Status)
	require.NotNil(t, cancelled.ApprovedQuantity)
	require.NotNil(t, cancelled.FulfilledQuantity)
	assert.Equal(t, 4, *cancelled.ApprovedQuantity)
	assert.Equal(t, 2, *cancelled.FulfilledQuantity)
	assert.Equal(t, []string{"i1", "i2"}, cancelled.BoundInstances)
	assert.Equal(t, before.FulfillmentSteps, cancelled.FulfillmentSteps)
	assert.Equal(t, "bob", cancelled.CancelledBy)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, fixedNow, *cancelled.CancelledAt)
	checkInvariants(t, cancelled)

	assert.Equal(t, before, partial.Requisition, "cancel must not mutate its input")
}

func TestLedger_TerminalStatesRejectEverything(t *testing.T) {
	l := newTestLedger()

	rejected, err := l.Reject(newPending(t, l, 3), "", "bob")
	require.NoError(t, err)

	approved, err := l.Approve(newPending(t, l, 3), 3, "", "bob")
	require.NoError(t, err)
	cancelled, err := l.Cancel(approved, "", "bob")
	require.NoError(t, err)

	fulfilled, err := l.Fulfill(approved, 3, ids(1, 3), "carol")
	require.NoError(t, err)
	confirmed, err := l.ConfirmReceipt(fulfilled.Requisition, "", "alice")
	require.NoError(t, err)

	for _, r := range []*entity.Requisition{rejected, cancelled, confirmed} {
		before := r.Clone()

		_, err := l.Approve(r, 1, "", "bob")
		assert.ErrorIs(t, err, ErrInvalidState)
		_, err = l.Reject(r, "", "bob")
		assert.ErrorIs(t, err, ErrInvalidState)
		_, err = l.Fulfill(r, 1, []string{"z1"}, "carol")
		assert.ErrorIs(t, err, ErrInvalidState)
		_, err = l.ConfirmReceipt(r, "", "alice")
		assert.ErrorIs(t, err, ErrInvalidState)
		_, err = l.Cancel(r, "", "bob")
		assert.ErrorIs(t, err, ErrInvalidState)

		assert.Equal(t, before, r, "%s must not change", r.Status)
	}
}

func TestLedger_WalkThrough(t *testing.T) {
	l := newTestLedger()
	r := newPending(t, l, 10)

	r, err := l.Approve(r, 7, "seven available", "bob")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, r.Status)
	assert.Equal(t, 7, r.Approved())

	res, err := l.Fulfill(r, 4, ids(1, 4), "carol")
	require.NoError(t, err)
	r = res.Requisition
	assert.Equal(t, workflow.StatePartiallyFulfilled, r.Status)
	assert.Equal(t, 4, r.Fulfilled())

	res, err = l.Fulfill(r, 3, ids(5, 7), "carol")
	require.NoError(t, err)
	r = res.Requisition
	assert.Equal(t, workflow.StateFulfilled, r.Status)
	assert.Equal(t, 7, r.Fulfilled())
	assert.Equal(t, ids(1, 7), r.BoundInstances)

	_, err = l.Fulfill(r, 1, []string{"i3"}, "carol")
	assert.ErrorIs(t, err, ErrInvalidState)

	r, err = l.ConfirmReceipt(r, "all received", "alice")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateConfirmed, r.Status)
	assert.Equal(t, "alice", r.ConfirmedBy)
	checkInvariants(t, r)
}

func TestLedger_ReplayDetectedBeforeQuantity(t *testing.T) {
	l := newTestLedger()
	r, err := l.Approve(newPending(t, l, 10), 7, "", "bob")
	require.NoError(t, err)
	res, err := l.Fulfill(r, 4, ids(1, 4), "carol")
	require.NoError(t, err)

	// same request resubmitted: 4 > outstanding 3, but it is a replay
	_, err = l.Fulfill(res.Requisition, 4, ids(1, 4), "carol")
	assert.ErrorIs(t, err, ErrDuplicateOperation)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("save: %w", ErrConcurrentModification)))
	assert.False(t, IsRetryable(ErrInvalidState))
}
