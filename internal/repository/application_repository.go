package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tourdesk/booking-api/internal/models"
)

// ApplicationRepository owns the application entity, its status log and the
// capacity-guarded write paths. Everything touching the confirmed-seat count
// runs inside a single transaction anchored on a row lock of the tour, so two
// racing requests can never both take the last seat. No in-process locking is
// used; the service is deployed as multiple stateless instances.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `id, tour_id, student_id, applicant_name, applicant_contact, status,
applicant_note, manager_note, created_at, contacted_at, decided_at`

// lockedTour is the authoritative tour snapshot read under FOR UPDATE.
type lockedTour struct {
	ID        string    `db:"id"`
	TourDate  time.Time `db:"tour_date"`
	Capacity  int       `db:"capacity"`
	Published bool      `db:"published"`
}

// Create inserts a new application in status NEW after verifying, under the
// tour row lock, that the tour is bookable, the student has no other active
// application on the same calendar day, and confirmed seats remain below
// capacity. On any guard failure nothing is written.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	tour, err := lockTour(ctx, tx, app.TourID)
	if err != nil {
		return err
	}
	if !tour.Published {
		return ErrTourNotPublished
	}

	if app.StudentID != nil {
		conflict, cErr := activeApplicationOnDay(ctx, tx, *app.StudentID, tour.TourDate, "")
		if cErr != nil {
			return cErr
		}
		if conflict {
			return ErrDateConflict
		}
	}

	confirmed, err := countConfirmed(ctx, tx, tour.ID, "")
	if err != nil {
		return err
	}
	if confirmed >= tour.Capacity {
		return ErrCapacityExceeded
	}

	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	app.Status = models.ApplicationStatusNew

	const insertQuery = `INSERT INTO applications (id, tour_id, student_id, applicant_name, applicant_contact,
status, applicant_note, manager_note, created_at)
VALUES (:id, :tour_id, :student_id, :applicant_name, :applicant_contact, :status, :applicant_note, :manager_note, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, app); err != nil {
		return fmt.Errorf("insert application: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit submit transaction: %w", err)
	}
	return nil
}

// TransitionParams describes a requested status change or note update.
type TransitionParams struct {
	ApplicationID string
	ToStatus      models.ApplicationStatus
	ChangedBy     *string
	Note          string
}

// TransitionResult reports the outcome of a transition attempt.
type TransitionResult struct {
	Application models.Application
	FromStatus  models.ApplicationStatus
	// Changed is false when the request was a same-status note update, which
	// writes no status log entry and has no enrollment side effect.
	Changed bool
}

// Transition applies a status change atomically: the application row is
// locked, the edge is checked against the transition table, capacity is
// re-verified under the tour row lock when entering CONFIRMED, and the status
// update, log append and enrollment projection commit as one unit. A request
// to the current status is treated as a note-only update.
func (r *ApplicationRepository) Transition(ctx context.Context, params TransitionParams) (result *TransitionResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var app models.Application
	lockQuery := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 FOR UPDATE`, applicationColumns)
	if err = tx.GetContext(ctx, &app, lockQuery, params.ApplicationID); err != nil {
		return nil, err
	}

	from := app.Status
	now := time.Now().UTC()

	if params.ToStatus == from {
		if params.Note != "" {
			const noteQuery = `UPDATE applications SET manager_note = $2 WHERE id = $1`
			if _, err = tx.ExecContext(ctx, noteQuery, app.ID, params.Note); err != nil {
				return nil, fmt.Errorf("update manager note: %w", err)
			}
			app.ManagerNote = params.Note
		}
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit note update: %w", err)
		}
		return &TransitionResult{Application: app, FromStatus: from, Changed: false}, nil
	}

	if !from.CanTransitionTo(params.ToStatus) {
		return nil, ErrIllegalTransition
	}

	if params.ToStatus == models.ApplicationStatusConfirmed {
		tour, tErr := lockTour(ctx, tx, app.TourID)
		if tErr != nil {
			return nil, tErr
		}
		confirmed, cErr := countConfirmed(ctx, tx, tour.ID, app.ID)
		if cErr != nil {
			return nil, cErr
		}
		if confirmed >= tour.Capacity {
			return nil, ErrCapacityExceeded
		}
	}

	// contacted_at and decided_at are first-entry timestamps; COALESCE keeps
	// the original value on repeated entries into the deciding states.
	var contactedAt, decidedAt *time.Time
	if params.ToStatus == models.ApplicationStatusContacted {
		contactedAt = &now
	}
	if params.ToStatus == models.ApplicationStatusConfirmed || params.ToStatus == models.ApplicationStatusDeclined {
		decidedAt = &now
	}

	const updateQuery = `UPDATE applications
SET status = $2,
    manager_note = CASE WHEN $3 <> '' THEN $3 ELSE manager_note END,
    contacted_at = COALESCE(contacted_at, $4),
    decided_at = COALESCE(decided_at, $5)
WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, app.ID, params.ToStatus, params.Note, contactedAt, decidedAt); err != nil {
		return nil, fmt.Errorf("update application status: %w", err)
	}

	const logQuery = `INSERT INTO application_status_log (id, application_id, from_status, to_status, changed_by, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.ExecContext(ctx, logQuery, uuid.NewString(), app.ID, from, params.ToStatus, params.ChangedBy, params.Note, now); err != nil {
		return nil, fmt.Errorf("append status log: %w", err)
	}

	if app.StudentID != nil {
		if err = projectEnrollment(ctx, tx, *app.StudentID, app.TourID, from, params.ToStatus, now); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	app.Status = params.ToStatus
	if params.Note != "" {
		app.ManagerNote = params.Note
	}
	if app.ContactedAt == nil && contactedAt != nil {
		app.ContactedAt = contactedAt
	}
	if app.DecidedAt == nil && decidedAt != nil {
		app.DecidedAt = decidedAt
	}
	return &TransitionResult{Application: app, FromStatus: from, Changed: true}, nil
}

// lockTour takes the row lock that serialises all seat-count changes for a
// tour and returns the authoritative capacity snapshot.
func lockTour(ctx context.Context, tx *sqlx.Tx, tourID string) (*lockedTour, error) {
	const query = `SELECT id, tour_date, capacity, published FROM tours WHERE id = $1 FOR UPDATE`
	var tour lockedTour
	if err := tx.GetContext(ctx, &tour, query, tourID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTourNotFound
		}
		return nil, fmt.Errorf("lock tour row: %w", err)
	}
	return &tour, nil
}

// activeApplicationOnDay checks the calendar-day conflict guard: whole-day
// granularity, across all tours sharing the date.
func activeApplicationOnDay(ctx context.Context, tx *sqlx.Tx, studentID string, day time.Time, excludeID string) (bool, error) {
	query := `SELECT 1 FROM applications a
JOIN tours t ON t.id = a.tour_id
WHERE a.student_id = $1 AND t.tour_date = $2 AND a.status IN ($3, $4, $5)`
	args := []interface{}{studentID, day,
		models.ApplicationStatusNew, models.ApplicationStatusContacted, models.ApplicationStatusConfirmed}
	if excludeID != "" {
		query += fmt.Sprintf(" AND a.id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"

	var exists int
	if err := tx.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check date conflict: %w", err)
	}
	return true, nil
}

// countConfirmed counts the applications holding a confirmed seat for a tour,
// optionally excluding one application (the one being transitioned).
func countConfirmed(ctx context.Context, tx *sqlx.Tx, tourID, excludeID string) (int, error) {
	query := `SELECT COUNT(*) FROM applications WHERE tour_id = $1 AND status = $2`
	args := []interface{}{tourID, models.ApplicationStatusConfirmed}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	var count int
	if err := tx.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count confirmed applications: %w", err)
	}
	return count, nil
}

// projectEnrollment keeps the derived enrollment row consistent with the
// transition that is committing. Entering CONFIRMED upserts to ENROLLED,
// reviving a CANCELLED row instead of duplicating it; completed tours are
// never reopened. Leaving CONFIRMED for DECLINED cancels an ENROLLED row.
func projectEnrollment(ctx context.Context, tx *sqlx.Tx, studentID, tourID string, from, to models.ApplicationStatus, now time.Time) error {
	switch {
	case to == models.ApplicationStatusConfirmed:
		const upsertQuery = `INSERT INTO enrollments (id, student_id, tour_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (student_id, tour_id)
DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
WHERE enrollments.status <> 'COMPLETED'`
		if _, err := tx.ExecContext(ctx, upsertQuery, uuid.NewString(), studentID, tourID, models.EnrollmentStatusEnrolled, now); err != nil {
			return fmt.Errorf("upsert enrollment: %w", err)
		}
	case from == models.ApplicationStatusConfirmed && to == models.ApplicationStatusDeclined:
		const cancelQuery = `UPDATE enrollments SET status = $3, updated_at = $4
WHERE student_id = $1 AND tour_id = $2 AND status = $5`
		if _, err := tx.ExecContext(ctx, cancelQuery, studentID, tourID, models.EnrollmentStatusCancelled, now, models.EnrollmentStatusEnrolled); err != nil {
			return fmt.Errorf("cancel enrollment: %w", err)
		}
	}
	return nil
}

// CountConfirmed returns the current confirmed-seat count outside any
// transaction. Callers must not use the value to authorise a write; the
// transactional paths re-count under the tour lock.
func (r *ApplicationRepository) CountConfirmed(ctx context.Context, tourID string) (int, error) {
	const query = `SELECT COUNT(*) FROM applications WHERE tour_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, tourID, models.ApplicationStatusConfirmed); err != nil {
		return 0, fmt.Errorf("count confirmed applications: %w", err)
	}
	return count, nil
}

// FindByID returns an application by its ID.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

const applicationDetailQuery = `SELECT a.id, a.tour_id, a.student_id, a.applicant_name, a.applicant_contact,
a.status, a.applicant_note, a.manager_note, a.created_at, a.contacted_at, a.decided_at,
t.title AS tour_title, t.tour_date AS tour_date, s.full_name AS student_name
FROM applications a
JOIN tours t ON t.id = a.tour_id
LEFT JOIN students s ON s.id = a.student_id`

// FindDetailByID returns an application with tour and student context.
func (r *ApplicationRepository) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	query := applicationDetailQuery + ` WHERE a.id = $1`
	var detail models.ApplicationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns applications filtered by the provided criteria.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if filter.TourID != "" {
		args = append(args, filter.TourID)
		conditions = append(conditions, fmt.Sprintf("a.tour_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("t.tour_date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("t.tour_date <= $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		idx := len(args)
		conditions = append(conditions, fmt.Sprintf("(a.applicant_name ILIKE $%d OR a.applicant_note ILIKE $%d OR s.full_name ILIKE $%d)", idx, idx, idx))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":     "a.created_at",
		"tour_date":      "t.tour_date",
		"status":         "a.status",
		"applicant_name": "a.applicant_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "a.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT %d OFFSET %d", applicationDetailQuery, clause, orderBy, order, size, offset)

	var applications []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &applications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM applications a
JOIN tours t ON t.id = a.tour_id
LEFT JOIN students s ON s.id = a.student_id%s`, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return applications, total, nil
}

// ListByStudent returns all applications submitted by a student, newest first.
func (r *ApplicationRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ApplicationDetail, error) {
	query := applicationDetailQuery + ` WHERE a.student_id = $1 ORDER BY a.created_at DESC`
	var applications []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &applications, query, studentID); err != nil {
		return nil, fmt.Errorf("list student applications: %w", err)
	}
	return applications, nil
}

// StatusLog returns the audit trail for an application in commit order.
func (r *ApplicationRepository) StatusLog(ctx context.Context, applicationID string) ([]models.StatusLogEntry, error) {
	const query = `SELECT id, application_id, from_status, to_status, changed_by, note, created_at
FROM application_status_log WHERE application_id = $1 ORDER BY created_at ASC, id ASC`
	var entries []models.StatusLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, applicationID); err != nil {
		return nil, fmt.Errorf("list status log: %w", err)
	}
	return entries, nil
}
