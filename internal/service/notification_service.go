package service

import (
	"strings"
	"time"

	"cryptotrader/internal/models"
)

// Лимиты выборки уведомлений
const (
	DefaultNotificationLimit = 100
	MaxNotificationLimit     = 500
)

// NotificationService предоставляет чтение и очистку журнала уведомлений
//
// Запись выполняет notify.Dispatcher; сервис обслуживает API.
type NotificationService struct {
	notificationRepo NotificationRepositoryInterface
	now              func() time.Time
}

// NewNotificationService создает новый экземпляр NotificationService
func NewNotificationService(repo NotificationRepositoryInterface) *NotificationService {
	return &NotificationService{notificationRepo: repo, now: time.Now}
}

// GetNotifications возвращает уведомления, новые сверху
//
// Фильтр по символу имеет приоритет над фильтром по типам. Неизвестные
// типы отбрасываются; если не осталось ни одного, возвращаются все.
func (s *NotificationService) GetNotifications(symbol string, types []string, limit int) ([]*models.Notification, error) {
	limit = clampLimit(limit, DefaultNotificationLimit, MaxNotificationLimit)

	if symbol = strings.TrimSpace(symbol); symbol != "" {
		return s.notificationRepo.GetBySymbol(symbol, limit)
	}

	normalized := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if isValidNotificationType(t) {
			normalized = append(normalized, t)
		}
	}
	if len(normalized) > 0 {
		return s.notificationRepo.GetByTypes(normalized, limit)
	}
	return s.notificationRepo.GetRecent(limit)
}

// CleanupOlderThan удаляет уведомления старше retention
func (s *NotificationService) CleanupOlderThan(retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	return s.notificationRepo.DeleteOlderThan(s.now().Add(-retention))
}

var validNotificationTypes = map[string]bool{
	models.NotificationTypeMarginCall:    true,
	models.NotificationTypeAutoLiquidate: true,
	models.NotificationTypeStopLoss:      true,
	models.NotificationTypeLeverage:      true,
	models.NotificationTypeError:         true,
}

func isValidNotificationType(t string) bool {
	return validNotificationTypes[t]
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
