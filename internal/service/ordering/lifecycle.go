package ordering

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// CancelOrder отменяет заказ владельца в статусе PENDING или CONFIRMED и возвращает остатки.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID, reason string) (OrderView, error) {
	defer s.observe(opCancelOrder, time.Now())

	if userID == "" {
		return OrderView{}, domain.ErrUnauthorized
	}
	reason = strings.TrimSpace(reason)

	var from domain.OrderStatus
	order, err := s.mutate(ctx, orderID, func(order *domain.Order, m *mutation) error {
		if order.UserID != userID {
			return domain.ErrUnauthorized
		}
		if !order.CanBeCancelled() {
			return fmt.Errorf("%w: order in status %s cannot be cancelled", domain.ErrInvalidTransition, order.Status)
		}
		from = order.Status
		s.applyCancellation(order, m, reason)
		return nil
	})
	if err != nil {
		return OrderView{}, err
	}

	s.metrics.RecordOrderCancelled()
	s.metrics.RecordTransition(string(from), string(order.Status))
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  userID,
		"reason":   reason,
	}).Info("order cancelled")

	return s.view(ctx, order)
}

// applyCancellation переводит заказ в CANCELLED. Оплаченный заказ получает REFUND_DUE:
// возврат подразумевается, но не автоматизирован.
func (s *Service) applyCancellation(order *domain.Order, m *mutation, reason string) {
	now := s.now()
	from := order.Status

	order.Status = domain.OrderStatusCancelled
	order.CancellationReason = reason
	order.CancelledAt = &now
	if order.PaymentStatus == domain.PaymentStatusPaid {
		order.PaymentStatus = domain.PaymentStatusRefundDue
	}

	m.release = stockRequests(*order)
	m.recordTimeline(statusChangedEvent(order, reason, now))
	m.emit(EventOrderCancelled, func(p *orderEventPayload) {
		p.PreviousStatus = from
		p.Reason = reason
	})
	m.notifyAll(
		s.notification(domain.NotificationCancelled, domain.ChannelUser, order,
			"Your order "+order.OrderNumber+" has been cancelled", map[string]any{"reason": reason}),
		s.notification(domain.NotificationStatusChanged, domain.ChannelPublicTracking, order,
			order.Status.Description(), nil),
	)
}

// UpdateStatus — административный переход статуса по правилам машины состояний.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, newStatus domain.OrderStatus) (OrderView, error) {
	defer s.observe(opUpdateStatus, time.Now())

	if !newStatus.Valid() {
		return OrderView{}, domain.InvalidArgument("unknown order status %q", newStatus)
	}

	var from domain.OrderStatus
	order, err := s.mutate(ctx, orderID, func(order *domain.Order, m *mutation) error {
		if !order.CanTransition(newStatus) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, newStatus)
		}
		from = order.Status

		if newStatus == domain.OrderStatusCancelled {
			s.applyCancellation(order, m, "cancelled by store")
			return nil
		}

		now := s.now()
		order.Status = newStatus
		switch newStatus {
		case domain.OrderStatusOutForDelivery:
			eta := now.Add(outForDeliveryWindow)
			order.EstimatedDeliveryAt = &eta
		case domain.OrderStatusDelivered:
			order.ActualDeliveryAt = &now
		case domain.OrderStatusRefunded:
			if order.PaymentStatus == domain.PaymentStatusPaid {
				order.PaymentStatus = domain.PaymentStatusRefundDue
			}
		}

		m.recordTimeline(statusChangedEvent(order, "", now))
		m.emit(EventOrderStatusChanged, func(p *orderEventPayload) {
			p.PreviousStatus = from
		})

		data := map[string]any{"previous_status": string(from)}
		if order.EstimatedDeliveryAt != nil {
			data["estimated_delivery_at"] = order.EstimatedDeliveryAt.Format(time.RFC3339)
		}
		m.notifyAll(
			s.notification(domain.NotificationStatusChanged, domain.ChannelUser, order, newStatus.Description(), data),
			s.notification(domain.NotificationStatusChanged, domain.ChannelPublicTracking, order, newStatus.Description(), nil),
		)
		if newStatus == domain.OrderStatusOutForDelivery {
			m.notifyAll(s.notification(domain.NotificationDeliveryUpdate, domain.ChannelDeliveryPartner, order,
				"Order "+order.OrderNumber+" is ready for delivery",
				map[string]any{"delivery_address": order.DeliveryAddress, "instructions": order.DeliveryInstructions},
			))
		}
		return nil
	})
	if err != nil {
		return OrderView{}, err
	}

	if newStatus == domain.OrderStatusCancelled {
		s.metrics.RecordOrderCancelled()
	}
	s.metrics.RecordTransition(string(from), string(newStatus))
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     from,
		"to":       newStatus,
	}).Debug("order status updated")

	return s.view(ctx, order)
}

// RateOrder сохраняет оценку доставленного заказа. Оценить можно один раз.
func (s *Service) RateOrder(ctx context.Context, orderID, userID string, rating int, feedback string) (OrderView, error) {
	defer s.observe(opRateOrder, time.Now())

	if rating < 1 || rating > 5 {
		return OrderView{}, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, domain.ErrRatingInvalid)
	}
	if userID == "" {
		return OrderView{}, domain.ErrUnauthorized
	}

	order, err := s.mutate(ctx, orderID, func(order *domain.Order, m *mutation) error {
		if order.UserID != userID {
			return domain.ErrUnauthorized
		}
		if !order.CanBeRated() {
			return fmt.Errorf("%w: only delivered orders can be rated once", domain.ErrInvalidTransition)
		}
		order.Rating = rating
		order.Feedback = strings.TrimSpace(feedback)

		m.recordTimeline(domain.TimelineEvent{
			OrderID:     order.ID,
			Type:        domain.TimelineOrderRated,
			Status:      order.Status,
			Description: fmt.Sprintf("Order rated %d/5", rating),
			Occurred:    s.now(),
		})
		m.emit(EventOrderRated, func(p *orderEventPayload) {
			p.Rating = rating
		})
		return nil
	})
	if err != nil {
		return OrderView{}, err
	}
	return s.view(ctx, order)
}

// AssignDeliveryPartner назначает курьера незавершённому заказу.
func (s *Service) AssignDeliveryPartner(ctx context.Context, orderID, name, phone string) (OrderView, error) {
	defer s.observe(opAssignPartner, time.Now())

	name = strings.TrimSpace(name)
	if name == "" {
		return OrderView{}, domain.InvalidArgument("delivery partner name is required")
	}

	order, err := s.mutate(ctx, orderID, func(order *domain.Order, m *mutation) error {
		if order.IsTerminal() {
			return fmt.Errorf("%w: order in status %s", domain.ErrInvalidTransition, order.Status)
		}
		order.DeliveryPartnerName = name
		order.DeliveryPartnerPhone = strings.TrimSpace(phone)

		m.recordTimeline(domain.TimelineEvent{
			OrderID:     order.ID,
			Type:        domain.TimelinePartnerAssigned,
			Status:      order.Status,
			Description: "Delivery partner " + name + " assigned",
			Occurred:    s.now(),
		})
		m.notifyAll(s.notification(domain.NotificationDeliveryUpdate, domain.ChannelDeliveryPartner, order,
			"Order "+order.OrderNumber+" assigned to "+name,
			map[string]any{"partner_name": name, "partner_phone": order.DeliveryPartnerPhone, "delivery_address": order.DeliveryAddress},
		))
		return nil
	})
	if err != nil {
		return OrderView{}, err
	}
	return s.view(ctx, order)
}

// ReportPreparation сообщает о ходе сборки заказа в статусе PREPARING.
// Заказ не меняется, уведомление уходит владельцу.
func (s *Service) ReportPreparation(ctx context.Context, orderID, message string, progress int) error {
	defer s.observe(opReportPreparation, time.Now())

	if progress < 0 || progress > 100 {
		return domain.InvalidArgument("preparation progress must be between 0 and 100")
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderStatusPreparing {
		return fmt.Errorf("%w: order in status %s is not being prepared", domain.ErrInvalidTransition, order.Status)
	}

	if message = strings.TrimSpace(message); message == "" {
		message = order.Status.Description()
	}
	s.notifier.Notify(s.notification(domain.NotificationPreparationUpdate, domain.ChannelUser, &order, message,
		map[string]any{"progress": progress}))
	return nil
}

// ReportDelay сдвигает ожидаемое время доставки и уведомляет покупателя и публичный трекинг.
func (s *Service) ReportDelay(ctx context.Context, orderID, reason string, delayMinutes int) (OrderView, error) {
	defer s.observe(opReportDelay, time.Now())

	if delayMinutes <= 0 {
		return OrderView{}, domain.InvalidArgument("delay must be a positive number of minutes")
	}
	reason = strings.TrimSpace(reason)

	order, err := s.mutate(ctx, orderID, func(order *domain.Order, m *mutation) error {
		if order.IsTerminal() {
			return fmt.Errorf("%w: order in status %s", domain.ErrInvalidTransition, order.Status)
		}
		now := s.now()
		base := now
		if order.EstimatedDeliveryAt != nil && order.EstimatedDeliveryAt.After(now) {
			base = *order.EstimatedDeliveryAt
		}
		eta := base.Add(time.Duration(delayMinutes) * time.Minute)
		order.EstimatedDeliveryAt = &eta

		m.recordTimeline(domain.TimelineEvent{
			OrderID:     order.ID,
			Type:        domain.TimelineDelayReported,
			Status:      order.Status,
			Description: fmt.Sprintf("Delivery delayed by %d minutes", delayMinutes),
			Reason:      reason,
			Occurred:    now,
		})
		m.emit(EventOrderDelayReported, func(p *orderEventPayload) {
			p.Reason = reason
		})

		data := map[string]any{
			"delay_minutes":         delayMinutes,
			"estimated_delivery_at": eta.Format(time.RFC3339),
		}
		m.notifyAll(
			s.notification(domain.NotificationDelayNotice, domain.ChannelUser, order, reason, data),
			s.notification(domain.NotificationDelayNotice, domain.ChannelPublicTracking, order, reason, data),
		)
		return nil
	})
	if err != nil {
		return OrderView{}, err
	}
	return s.view(ctx, order)
}

// ReportLocation добавляет точку маршрута для заказа в статусе OUT_FOR_DELIVERY.
// Сам заказ не меняется, поэтому версия не растёт.
func (s *Service) ReportLocation(ctx context.Context, orderID, location string) error {
	defer s.observe(opReportLocation, time.Now())

	location = strings.TrimSpace(location)
	if location == "" {
		return domain.InvalidArgument("location is required")
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderStatusOutForDelivery {
		return fmt.Errorf("%w: order in status %s is not out for delivery", domain.ErrInvalidTransition, order.Status)
	}

	m := &mutation{}
	m.recordTimeline(domain.TimelineEvent{
		OrderID:     order.ID,
		Type:        domain.TimelineLocationUpdate,
		Status:      order.Status,
		Description: "Location updated",
		Location:    location,
		Occurred:    s.now(),
	})
	m.notifyAll(s.notification(domain.NotificationDeliveryUpdate, domain.ChannelPublicTracking, &order,
		"Order is at "+location, map[string]any{"location": location}))

	if err := s.transactor.WithinTx(ctx, func(txCtx context.Context) error {
		return s.writeEffects(txCtx, order, m)
	}); err != nil {
		return err
	}
	s.afterCommit(m)
	return nil
}
