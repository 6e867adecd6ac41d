package models

import "time"

// ApplicationStatus represents the moderated lifecycle of a tour application.
type ApplicationStatus string

// Possible application statuses.
const (
	ApplicationStatusNew       ApplicationStatus = "NEW"
	ApplicationStatusContacted ApplicationStatus = "CONTACTED"
	ApplicationStatusConfirmed ApplicationStatus = "CONFIRMED"
	ApplicationStatusDeclined  ApplicationStatus = "DECLINED"
)

// legalTransitions is the closed set of permitted status edges. DECLINED is
// terminal and a confirmed seat can only be given up by declining.
var legalTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationStatusNew:       {ApplicationStatusContacted, ApplicationStatusConfirmed, ApplicationStatusDeclined},
	ApplicationStatusContacted: {ApplicationStatusConfirmed, ApplicationStatusDeclined},
	ApplicationStatusConfirmed: {ApplicationStatusDeclined},
	ApplicationStatusDeclined:  {},
}

// Valid reports whether the status is one of the known values.
func (s ApplicationStatus) Valid() bool {
	_, ok := legalTransitions[s]
	return ok
}

// Active reports whether the status holds or competes for a seat. Active
// applications are the ones the calendar-day conflict guard counts.
func (s ApplicationStatus) Active() bool {
	switch s {
	case ApplicationStatusNew, ApplicationStatusContacted, ApplicationStatusConfirmed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the edge s -> to is permitted.
func (s ApplicationStatus) CanTransitionTo(to ApplicationStatus) bool {
	for _, next := range legalTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ActiveApplicationStatuses lists the statuses counted by the conflict guard.
var ActiveApplicationStatuses = []ApplicationStatus{
	ApplicationStatusNew,
	ApplicationStatusContacted,
	ApplicationStatusConfirmed,
}

// Application is a student's request to join a tour. Rows are never deleted;
// state only moves forward through status transitions.
type Application struct {
	ID               string            `db:"id" json:"id"`
	TourID           string            `db:"tour_id" json:"tour_id"`
	StudentID        *string           `db:"student_id" json:"student_id,omitempty"`
	ApplicantName    string            `db:"applicant_name" json:"applicant_name"`
	ApplicantContact string            `db:"applicant_contact" json:"applicant_contact"`
	Status           ApplicationStatus `db:"status" json:"status"`
	ApplicantNote    string            `db:"applicant_note" json:"applicant_note"`
	ManagerNote      string            `db:"manager_note" json:"manager_note"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	ContactedAt      *time.Time        `db:"contacted_at" json:"contacted_at,omitempty"`
	DecidedAt        *time.Time        `db:"decided_at" json:"decided_at,omitempty"`
}

// ApplicationDetail enriches Application with tour and student context.
type ApplicationDetail struct {
	Application
	TourTitle   string    `db:"tour_title" json:"tour_title"`
	TourDate    time.Time `db:"tour_date" json:"tour_date"`
	StudentName *string   `db:"student_name" json:"student_name,omitempty"`
}

// ApplicationFilter provides filters for listing applications.
type ApplicationFilter struct {
	Status    ApplicationStatus
	TourID    string
	StudentID string
	DateFrom  *time.Time
	DateTo    *time.Time
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
