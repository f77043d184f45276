package handlers

import (
	"net/http"
	"time"

	"cryptotrader/internal/service"
)

// NotificationHandler отдает журнал событий риск-контроля
//
// Endpoints:
// - GET /api/v1/events - последние события
// - GET /api/v1/events?type=stop_loss,margin_call - фильтр по типам
// - GET /api/v1/events?symbol=BTC/USDT&limit=50 - по символу
type NotificationHandler struct {
	notificationService service.NotificationServiceInterface
}

// NewNotificationHandler создает новый NotificationHandler с внедрением зависимости
func NewNotificationHandler(notificationService service.NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// GetNotificationsResponse представляет ответ списка уведомлений
type GetNotificationsResponse struct {
	Notifications []NotificationDTO `json:"notifications"`
	Total         int               `json:"total"`
}

// NotificationDTO представляет уведомление в API
type NotificationDTO struct {
	ID        int                    `json:"id"`
	Timestamp string                 `json:"timestamp"`
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity"`
	Symbol    string                 `json:"symbol,omitempty"`
	Message   string                 `json:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// GetNotifications возвращает события с фильтрацией
//
// GET /api/v1/events
//
// Query параметры:
// - type (string): типы через запятую (margin_call, auto_liquidate, stop_loss, leverage, error)
// - symbol (string): только события символа, имеет приоритет над type
// - limit (int): количество записей (по умолчанию 100, максимум 500)
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	types := queryList(r, "type")
	symbol := r.URL.Query().Get("symbol")
	limit := queryInt(r, "limit", 0)

	notifications, err := h.notificationService.GetNotifications(symbol, types, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, CodeInternal, "failed to get events: "+err.Error())
		return
	}

	dtos := make([]NotificationDTO, 0, len(notifications))
	for _, n := range notifications {
		dtos = append(dtos, NotificationDTO{
			ID:        n.ID,
			Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
			Type:      n.Type,
			Severity:  n.Severity,
			Symbol:    n.Symbol,
			Message:   n.Message,
			Meta:      n.Meta,
		})
	}

	respondWithJSON(w, http.StatusOK, GetNotificationsResponse{
		Notifications: dtos,
		Total:         len(dtos),
	})
}
