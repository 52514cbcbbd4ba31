package entity

import "time"

// Movement describes one inventory instance leaving the parent office for the
// requesting office as part of a fulfillment step.
type Movement struct {
	ID            int64      `json:"id"`
	InstanceID    string     `json:"instance_id"`
	FromOfficeID  string     `json:"from_office_id"`
	ToOfficeID    string     `json:"to_office_id"`
	RequisitionID int64      `json:"requisition_id"`
	Step          int        `json:"step"`
	Actor         string     `json:"actor"`
	Timestamp     time.Time  `json:"timestamp"`
	AppliedAt     *time.Time `json:"applied_at,omitempty"`
}

// InstanceOwnership records which office currently owns an inventory instance.
type InstanceOwnership struct {
	InstanceID    string    `json:"instance_id"`
	OfficeID      string    `json:"office_id"`
	RequisitionID int64     `json:"requisition_id"`
	UpdatedAt     time.Time `json:"updated_at"`
}
