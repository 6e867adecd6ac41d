package models

import "time"

// StatusLogEntry is one row of the append-only audit trail attached to an
// application. Exactly one entry is written per accepted status change;
// note-only updates do not produce entries.
type StatusLogEntry struct {
	ID            string            `db:"id" json:"id"`
	ApplicationID string            `db:"application_id" json:"application_id"`
	FromStatus    ApplicationStatus `db:"from_status" json:"from_status"`
	ToStatus      ApplicationStatus `db:"to_status" json:"to_status"`
	ChangedBy     *string           `db:"changed_by" json:"changed_by,omitempty"`
	Note          string            `db:"note" json:"note"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}
