package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tourdesk/booking-api/internal/models"
	"github.com/tourdesk/booking-api/pkg/config"
	appErrors "github.com/tourdesk/booking-api/pkg/errors"
)

type tourRepository interface {
	FindByID(ctx context.Context, id string) (*models.Tour, error)
	ListUpcomingPublished(ctx context.Context, from time.Time, horizon time.Duration) ([]models.Tour, error)
}

type confirmedCounter interface {
	CountConfirmed(ctx context.Context, tourID string) (int, error)
}

type occupancyCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TourService exposes the tour registry read surface and the occupancy
// summary. Occupancy is cached briefly in Redis and invalidated whenever a
// transition changes a tour's confirmed-seat count; the cached value is a
// display hint only, never an authorisation input.
type TourService struct {
	repo    tourRepository
	counter confirmedCounter
	cache   occupancyCache
	cfg     config.BookingConfig
	logger  *zap.Logger
	metrics *MetricsService
}

// NewTourService constructs TourService.
func NewTourService(repo tourRepository, counter confirmedCounter, cache occupancyCache, cfg config.BookingConfig, logger *zap.Logger, metrics *MetricsService) *TourService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TourService{repo: repo, counter: counter, cache: cache, cfg: cfg, logger: logger, metrics: metrics}
}

// ListUpcoming returns published tours from today onward.
func (s *TourService) ListUpcoming(ctx context.Context) ([]models.Tour, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	tours, err := s.repo.ListUpcomingPublished(ctx, today, s.cfg.ListingHorizon)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tours")
	}
	return tours, nil
}

// Get returns a tour by ID.
func (s *TourService) Get(ctx context.Context, id string) (*models.Tour, error) {
	tour, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tour not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tour")
	}
	return tour, nil
}

// GetOccupancy returns the confirmed-seat count against capacity, serving
// from cache when possible.
func (s *TourService) GetOccupancy(ctx context.Context, tourID string) (*models.TourOccupancy, error) {
	key := occupancyCacheKey(tourID)
	if s.cache != nil {
		var cached models.TourOccupancy
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("occupancy cache read failed", zap.String("tour_id", tourID), zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	tour, err := s.repo.FindByID(ctx, tourID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tour not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tour")
	}

	confirmed, err := s.counter.CountConfirmed(ctx, tourID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count confirmed applications")
	}

	occupancy := &models.TourOccupancy{
		TourID:         tourID,
		ConfirmedCount: confirmed,
		Capacity:       tour.Capacity,
		IsFull:         confirmed >= tour.Capacity,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, occupancy, s.cfg.OccupancyCacheTTL); err != nil {
			s.logger.Warn("occupancy cache write failed", zap.String("tour_id", tourID), zap.Error(err))
		}
	}
	return occupancy, nil
}

// InvalidateOccupancy drops the cached occupancy after a seat-count change.
func (s *TourService) InvalidateOccupancy(ctx context.Context, tourID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, occupancyCacheKey(tourID)); err != nil {
		s.logger.Warn("occupancy cache invalidation failed", zap.String("tour_id", tourID), zap.Error(err))
	}
}

func occupancyCacheKey(tourID string) string {
	return fmt.Sprintf("occupancy:%s", tourID)
}
