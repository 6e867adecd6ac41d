package models

import "time"

// EnrollmentStatus represents the lifecycle of a derived enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. COMPLETED is reached autonomously once the
// tour date passes and is never reversed.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment is the derived record of a student's confirmed participation in
// a tour. It exists only as a projection of application state: confirming an
// application upserts it to ENROLLED, declining a confirmed application moves
// it to CANCELLED. Uniqueness on (student, tour) is enforced by the store.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	TourID    string           `db:"tour_id" json:"tour_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with tour context.
type EnrollmentDetail struct {
	Enrollment
	TourTitle string    `db:"tour_title" json:"tour_title"`
	TourDate  time.Time `db:"tour_date" json:"tour_date"`
}
