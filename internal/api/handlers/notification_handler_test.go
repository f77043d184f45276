package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ============ NotificationHandler Tests ============

func TestNotificationHandler_GetNotifications(t *testing.T) {
	t.Run("returns empty list when no events", func(t *testing.T) {
		mockSvc := NewMockNotificationService()
		handler := NewNotificationHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
		w := httptest.NewRecorder()

		handler.GetNotifications(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response GetNotificationsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 0 || response.Notifications == nil {
			t.Errorf("expected empty non-nil list, got %+v", response)
		}
	})

	t.Run("returns existing events", func(t *testing.T) {
		mockSvc := NewMockNotificationService()
		handler := NewNotificationHandler(mockSvc)

		mockSvc.AddNotification("STOP_LOSS", "error", "BTC/USDT", "stop hit")
		mockSvc.AddNotification("MARGIN_CALL", "warn", "ETH/USDT", "margin low")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
		w := httptest.NewRecorder()

		handler.GetNotifications(w, req)

		var response GetNotificationsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 2 {
			t.Errorf("expected total 2, got %d", response.Total)
		}
		if response.Notifications[0].Timestamp != "2024-01-01T00:00:01Z" {
			t.Errorf("unexpected timestamp format %q", response.Notifications[0].Timestamp)
		}
		if response.Notifications[1].Symbol != "ETH/USDT" {
			t.Errorf("expected symbol ETH/USDT, got %q", response.Notifications[1].Symbol)
		}
	})

	t.Run("passes filters to service", func(t *testing.T) {
		mockSvc := NewMockNotificationService()
		handler := NewNotificationHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/events?type=stop_loss,%20margin_call&type=error&symbol=BTC/USDT&limit=50", nil)
		w := httptest.NewRecorder()

		handler.GetNotifications(w, req)

		if len(mockSvc.lastTypes) != 3 {
			t.Errorf("expected 3 types, got %v", mockSvc.lastTypes)
		}
		if mockSvc.lastSymbol != "BTC/USDT" {
			t.Errorf("expected symbol BTC/USDT, got %q", mockSvc.lastSymbol)
		}
		if mockSvc.lastLimit != 50 {
			t.Errorf("expected limit 50, got %d", mockSvc.lastLimit)
		}
	})

	t.Run("invalid limit falls back to service default", func(t *testing.T) {
		mockSvc := NewMockNotificationService()
		handler := NewNotificationHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/events?limit=abc", nil)
		w := httptest.NewRecorder()

		handler.GetNotifications(w, req)

		if mockSvc.lastLimit != 0 {
			t.Errorf("expected limit 0, got %d", mockSvc.lastLimit)
		}
	})

	t.Run("returns 500 on service error", func(t *testing.T) {
		mockSvc := NewMockNotificationService()
		mockSvc.err = errors.New("database error")
		handler := NewNotificationHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
		w := httptest.NewRecorder()

		handler.GetNotifications(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
		var resp ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Code != CodeInternal {
			t.Errorf("unexpected error body %+v (%v)", resp, err)
		}
	})
}
