package domain

import "time"

// NotificationKind — тип уведомления о жизненном цикле заказа.
type NotificationKind string

const (
	NotificationOrderPlaced       NotificationKind = "ORDER_PLACED"
	NotificationStatusChanged     NotificationKind = "STATUS_CHANGED"
	NotificationCancelled         NotificationKind = "CANCELLED"
	NotificationPaymentConfirmed  NotificationKind = "PAYMENT_CONFIRMED"
	NotificationDeliveryUpdate    NotificationKind = "DELIVERY_UPDATE"
	NotificationPreparationUpdate NotificationKind = "PREPARATION_UPDATE"
	NotificationDelayNotice       NotificationKind = "DELAY_NOTICE"
)

// NotificationChannel — адресат уведомления.
type NotificationChannel string

const (
	// ChannelUser — личный канал владельца заказа.
	ChannelUser NotificationChannel = "user"
	// ChannelPublicTracking — публичный трекинг по номеру заказа.
	ChannelPublicTracking NotificationChannel = "tracking"
	// ChannelDeliveryPartner — канал курьерской службы.
	ChannelDeliveryPartner NotificationChannel = "delivery-partner"
)

// Notification — сообщение для NotificationSink.
type Notification struct {
	Kind        NotificationKind
	Channel     NotificationChannel
	OrderID     string
	OrderNumber string
	UserID      string
	Status      OrderStatus
	Message     string
	Data        map[string]any
	OccurredAt  time.Time
}
