package notification

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// NotificationPublisher публикует уведомление во внешний брокер.
type NotificationPublisher interface {
	PublishNotification(n domain.Notification) error
}

// KafkaDeliverer отправляет уведомления в Kafka, топик выбирается по каналу.
type KafkaDeliverer struct {
	publisher NotificationPublisher
}

// NewKafkaDeliverer создаёт deliverer поверх producer.
func NewKafkaDeliverer(publisher NotificationPublisher) *KafkaDeliverer {
	return &KafkaDeliverer{publisher: publisher}
}

func (d *KafkaDeliverer) Name() string { return "kafka" }

func (d *KafkaDeliverer) Deliver(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.publisher.PublishNotification(n)
}

// LogDeliverer пишет уведомления в лог; используется при локальной разработке.
type LogDeliverer struct {
	logger *log.Entry
}

// NewLogDeliverer создаёт deliverer с логгером.
func NewLogDeliverer(logger *log.Entry) *LogDeliverer {
	if logger == nil {
		logger = log.WithField("component", "notification-log")
	}
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Name() string { return "log" }

func (d *LogDeliverer) Deliver(_ context.Context, n domain.Notification) error {
	d.logger.WithFields(log.Fields{
		"order_id":     n.OrderID,
		"order_number": n.OrderNumber,
		"user_id":      n.UserID,
		"channel":      n.Channel,
		"status":       n.Status,
	}).Info(Subject(n))
	return nil
}

// Subject — заголовок уведомления в стиле почтовых писем.
func Subject(n domain.Notification) string {
	number := "#" + n.OrderNumber
	switch n.Kind {
	case domain.NotificationOrderPlaced:
		return "Order Confirmation - " + number
	case domain.NotificationStatusChanged:
		if n.Status == domain.OrderStatusDelivered {
			return "Order Delivered - " + number
		}
		return "Order Status Update - " + number
	case domain.NotificationCancelled:
		return "Order Cancelled - " + number
	case domain.NotificationPaymentConfirmed:
		return "Payment Received - " + number
	case domain.NotificationDeliveryUpdate:
		return "Delivery Update - " + number
	case domain.NotificationPreparationUpdate:
		return "Preparation Update - " + number
	case domain.NotificationDelayNotice:
		return "Delivery Delayed - " + number
	default:
		return "Order Update - " + number
	}
}
