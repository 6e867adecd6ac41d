package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourdesk/booking-api/internal/models"
)

func TestEnrollmentRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "tour_id", "status", "created_at", "updated_at",
		"tour_title", "tour_date"}).
		AddRow("enr-1", "student-1", "tour-1", "ENROLLED", time.Now().UTC(), time.Now().UTC(), "Harbour Walk", tourDate).
		AddRow("enr-2", "student-1", "tour-2", "COMPLETED", time.Now().UTC(), time.Now().UTC(), "Old Town", tourDate.AddDate(0, -1, 0))

	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments e")).
		WithArgs("student-1").
		WillReturnRows(rows)

	enrollments, err := repo.ListByStudent(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollments[0].Status)
	assert.Equal(t, "Old Town", enrollments[1].TourTitle)
}

func TestEnrollmentRepositoryReconcileCompleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments e")).
		WithArgs("student-1", "COMPLETED", sqlmock.AnyArg(), "ENROLLED").
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.ReconcileCompleted(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
}

func TestEnrollmentRepositoryReconcileCompletedNothingToAge(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments e")).
		WithArgs("student-1", "COMPLETED", sqlmock.AnyArg(), "ENROLLED").
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := repo.ReconcileCompleted(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestEnrollmentRepositoryFindByStudentAndTourNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE student_id = $1 AND tour_id = $2")).
		WithArgs("student-1", "tour-9").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByStudentAndTour(context.Background(), "student-1", "tour-9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
