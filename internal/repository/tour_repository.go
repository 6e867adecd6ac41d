package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tourdesk/booking-api/internal/models"
)

// TourRepository is the read-only registry of tour identity, date and seat
// capacity. Tour content editing belongs to the console subsystem and never
// goes through here.
type TourRepository struct {
	db *sqlx.DB
}

// NewTourRepository constructs the repository.
func NewTourRepository(db *sqlx.DB) *TourRepository {
	return &TourRepository{db: db}
}

const tourColumns = `id, title, tour_date, capacity, published, created_at, updated_at`

// FindByID returns a tour by its ID regardless of publication state.
func (r *TourRepository) FindByID(ctx context.Context, id string) (*models.Tour, error) {
	query := fmt.Sprintf(`SELECT %s FROM tours WHERE id = $1`, tourColumns)
	var tour models.Tour
	if err := r.db.GetContext(ctx, &tour, query, id); err != nil {
		return nil, err
	}
	return &tour, nil
}

// FindBookableByID returns a tour only when it is published.
func (r *TourRepository) FindBookableByID(ctx context.Context, id string) (*models.Tour, error) {
	query := fmt.Sprintf(`SELECT %s FROM tours WHERE id = $1 AND published = TRUE`, tourColumns)
	var tour models.Tour
	if err := r.db.GetContext(ctx, &tour, query, id); err != nil {
		return nil, err
	}
	return &tour, nil
}

// List returns tours matching the filter ordered by date.
func (r *TourRepository) List(ctx context.Context, filter models.TourFilter) ([]models.Tour, int, error) {
	conditions := "WHERE 1=1"
	var args []interface{}

	if filter.PublishedOnly {
		conditions += " AND published = TRUE"
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions += fmt.Sprintf(" AND tour_date >= $%d", len(args))
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

	query := fmt.Sprintf(`SELECT %s FROM tours %s ORDER BY tour_date ASC LIMIT %d OFFSET %d`,
		tourColumns, conditions, size, offset)

	var tours []models.Tour
	if err := r.db.SelectContext(ctx, &tours, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tours: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM tours %s", conditions)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tours: %w", err)
	}
	return tours, total, nil
}

// ListUpcomingPublished returns published tours dated on or after the given day.
func (r *TourRepository) ListUpcomingPublished(ctx context.Context, from time.Time, horizon time.Duration) ([]models.Tour, error) {
	query := fmt.Sprintf(`SELECT %s FROM tours WHERE published = TRUE AND tour_date >= $1 AND tour_date <= $2 ORDER BY tour_date ASC`, tourColumns)
	var tours []models.Tour
	if err := r.db.SelectContext(ctx, &tours, query, from, from.Add(horizon)); err != nil {
		return nil, fmt.Errorf("list upcoming tours: %w", err)
	}
	return tours, nil
}
