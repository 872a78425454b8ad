package domain

import "time"

// Типы событий таймлайна.
const (
	TimelineOrderPlaced     = "ORDER_PLACED"
	TimelineStatusChanged   = "STATUS_CHANGED"
	TimelinePaymentRecorded = "PAYMENT_RECORDED"
	TimelineDelayReported   = "DELAY_REPORTED"
	TimelineLocationUpdate  = "LOCATION_UPDATE"
	TimelinePartnerAssigned = "PARTNER_ASSIGNED"
	TimelineOrderRated      = "ORDER_RATED"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID     string
	Type        string
	Status      OrderStatus
	Description string
	Location    string
	Reason      string
	Occurred    time.Time
}

// TrackingEvent — элемент публичного журнала отслеживания.
type TrackingEvent struct {
	Type        string
	Status      OrderStatus
	Description string
	Location    string
	Occurred    time.Time
}

// IsTracking сообщает, попадает ли событие в журнал отслеживания:
// "заказ оформлен", смены статуса и обновления локации.
func (e TimelineEvent) IsTracking() bool {
	switch e.Type {
	case TimelineOrderPlaced, TimelineStatusChanged, TimelineLocationUpdate:
		return true
	default:
		return false
	}
}
