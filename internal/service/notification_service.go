package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tourdesk/booking-api/internal/models"
	"github.com/tourdesk/booking-api/pkg/config"
	"github.com/tourdesk/booking-api/pkg/jobs"
)

const jobTypeStatusChange = "status_change"

// NotificationService delivers status-change notifications to an external
// webhook through the in-memory job queue. Delivery is strictly best effort:
// enqueueing happens after the transition committed, failures are logged and
// retried by the queue, and nothing ever propagates back to the caller.
type NotificationService struct {
	queue      *jobs.Queue
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
	metrics    *MetricsService
}

// NewNotificationService constructs the dispatcher and its queue.
func NewNotificationService(cfg config.NotificationsConfig, logger *zap.Logger, metrics *MetricsService) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
		metrics:    metrics,
	}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyStatusChange enqueues a notification. Errors are logged, never
// returned: a committed transition must not be failed by its notification.
func (s *NotificationService) NotifyStatusChange(notification models.StatusChangeNotification) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeStatusChange,
		Payload: notification,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.metrics.RecordNotificationFailure()
		s.logger.Warn("failed to enqueue status notification",
			zap.String("application_id", notification.ApplicationID),
			zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.StatusChangeNotification)
	if !ok {
		s.logger.Error("unexpected notification payload type", zap.String("job_id", job.ID))
		return nil
	}

	if s.webhookURL == "" {
		s.logger.Info("status change notification (no webhook configured)",
			zap.String("application_id", notification.ApplicationID),
			zap.String("tour", notification.TourLabel),
			zap.String("new_status", string(notification.NewStatus)))
		return nil
	}

	body, err := json.Marshal(notification)
	if err != nil {
		s.logger.Error("failed to marshal notification", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		s.metrics.RecordNotificationFailure()
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.RecordNotificationFailure()
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.metrics.RecordNotificationFailure()
		return fmt.Errorf("notification webhook responded %d", resp.StatusCode)
	}
	return nil
}
