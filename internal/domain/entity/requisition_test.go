package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequisition_CloneIsDeep(t *testing.T) {
	approved, fulfilled := 5, 2
	at := time.Now()
	r := &Requisition{
		ID:                7,
		ApprovedQuantity:  &approved,
		FulfilledQuantity: &fulfilled,
		BoundInstances:    []string{"a", "b"},
		ApprovedAt:        &at,
	}

	c := r.Clone()
	assert.Equal(t, r, c)

	*c.FulfilledQuantity = 3
	c.BoundInstances[0] = "z"
	*c.ApprovedAt = at.Add(time.Hour)

	assert.Equal(t, 2, r.Fulfilled())
	assert.Equal(t, "a", r.BoundInstances[0])
	assert.Equal(t, at, *r.ApprovedAt)
}

func TestRequisition_QuantityAccessors(t *testing.T) {
	r := &Requisition{}
	assert.Equal(t, 0, r.Approved())
	assert.Equal(t, 0, r.Fulfilled())
	assert.False(t, r.HasInstance("a"))

	var nilReq *Requisition
	assert.Nil(t, nilReq.Clone())
}
