package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourdesk/booking-api/internal/models"
	"github.com/tourdesk/booking-api/pkg/config"
)

func TestNotificationServiceDeliversWebhook(t *testing.T) {
	received := make(chan models.StatusChangeNotification, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var payload models.StatusChangeNotification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	svc := NewNotificationService(config.NotificationsConfig{
		WebhookURL:     server.URL,
		RequestTimeout: 2 * time.Second,
		Workers:        1,
		MaxRetries:     1,
		RetryDelay:     10 * time.Millisecond,
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.NotifyStatusChange(models.StatusChangeNotification{
		ApplicationID:  "app-1",
		StudentContact: "sari@example.com",
		TourLabel:      "Harbour Walk",
		NewStatus:      models.ApplicationStatusConfirmed,
	})

	select {
	case payload := <-received:
		assert.Equal(t, "app-1", payload.ApplicationID)
		assert.Equal(t, models.ApplicationStatusConfirmed, payload.NewStatus)
	case <-time.After(3 * time.Second):
		t.Fatal("notification was not delivered")
	}
}

func TestNotificationServiceRetriesFailedDelivery(t *testing.T) {
	attempts := make(chan int, 4)
	var count int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		attempts <- count
		if count == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewNotificationService(config.NotificationsConfig{
		WebhookURL:     server.URL,
		RequestTimeout: 2 * time.Second,
		Workers:        1,
		MaxRetries:     2,
		RetryDelay:     10 * time.Millisecond,
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.NotifyStatusChange(models.StatusChangeNotification{ApplicationID: "app-1"})

	deadline := time.After(3 * time.Second)
	for seen := 0; seen < 2; {
		select {
		case <-attempts:
			seen++
		case <-deadline:
			t.Fatalf("expected a retry after the first failure, saw %d attempts", seen)
		}
	}
}
