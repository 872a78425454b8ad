package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents       = "grocery.order.events"
	TopicDeadLetterQueue   = "grocery.dlq" // Dead Letter Queue для сообщений, исчерпавших попытки
	TopicUserNotifications = "grocery.notifications.user"
	TopicPublicTracking    = "grocery.tracking.public"
	TopicDeliveryPartner   = "grocery.delivery.partner"
)

// Kafka headers
const (
	HeaderEventType   = "x-event-type"
	HeaderAggregateID = "x-aggregate-id"
	HeaderChannel     = "x-notification-channel"
)

// OutboxEnvelope — формат сообщения, публикуемого из transactional outbox.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NotificationEvent представляет уведомление о заказе в Kafka.
type NotificationEvent struct {
	Kind        string         `json:"kind"`
	Channel     string         `json:"channel"`
	OrderID     string         `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	UserID      string         `json:"user_id,omitempty"`
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// NewNotificationEvent создаёт событие из уведомления.
// Публичный трекинг не раскрывает пользователя.
func NewNotificationEvent(n domain.Notification) *NotificationEvent {
	event := &NotificationEvent{
		Kind:        string(n.Kind),
		Channel:     string(n.Channel),
		OrderID:     n.OrderID,
		OrderNumber: n.OrderNumber,
		UserID:      n.UserID,
		Status:      string(n.Status),
		Message:     n.Message,
		Data:        n.Data,
		OccurredAt:  n.OccurredAt,
	}
	if n.Channel == domain.ChannelPublicTracking {
		event.UserID = ""
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return event
}

// TopicForChannel возвращает топик канала уведомлений.
func TopicForChannel(channel domain.NotificationChannel) (string, bool) {
	switch channel {
	case domain.ChannelUser:
		return TopicUserNotifications, true
	case domain.ChannelPublicTracking:
		return TopicPublicTracking, true
	case domain.ChannelDeliveryPartner:
		return TopicDeliveryPartner, true
	default:
		return "", false
	}
}

// NotificationKey — ключ партиционирования: события одного заказа идут в одну партицию.
func NotificationKey(n domain.Notification) string {
	if n.OrderNumber != "" {
		return n.OrderNumber
	}
	return n.OrderID
}
