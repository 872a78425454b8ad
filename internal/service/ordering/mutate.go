package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/inventory"
)

// keyedMutex выдаёт отдельный мьютекс на каждый ключ и удаляет его, когда ключ никто не держит.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock блокирует ключ и возвращает функцию разблокировки.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// mutation собирает побочные эффекты одного изменения заказа.
// Всё, кроме уведомлений, записывается в той же транзакции, что и заказ.
type mutation struct {
	timeline []domain.TimelineEvent
	events   []pendingEvent
	release  []domain.StockRequest
	notify   []domain.Notification
	// skip — fn решила, что менять нечего; заказ не сохраняется.
	skip bool
}

type pendingEvent struct {
	eventType string
	adjust    func(p *orderEventPayload)
}

// orderEventPayload — содержимое доменного события в outbox.
type orderEventPayload struct {
	OrderID        string               `json:"order_id"`
	OrderNumber    string               `json:"order_number"`
	UserID         string               `json:"user_id"`
	Status         domain.OrderStatus   `json:"status"`
	PreviousStatus domain.OrderStatus   `json:"previous_status,omitempty"`
	PaymentStatus  domain.PaymentStatus `json:"payment_status"`
	TransactionID  string               `json:"transaction_id,omitempty"`
	Total          string               `json:"total"`
	Reason         string               `json:"reason,omitempty"`
	Rating         int                  `json:"rating,omitempty"`
	OccurredAt     time.Time            `json:"occurred_at"`
}

func (m *mutation) recordTimeline(event domain.TimelineEvent) {
	m.timeline = append(m.timeline, event)
}

// emit добавляет доменное событие; payload строится из итогового состояния заказа.
func (m *mutation) emit(eventType string, adjust func(p *orderEventPayload)) {
	m.events = append(m.events, pendingEvent{eventType: eventType, adjust: adjust})
}

func (m *mutation) notifyAll(notifications ...domain.Notification) {
	m.notify = append(m.notify, notifications...)
}

// mutate — единственный путь изменения существующего заказа:
// блокировка по orderID, загрузка, fn, пересчёт суммы, проверка инвариантов и сохранение в транзакции.
// Конфликт версий (другой инстанс сервиса) приводит к перечитыванию и повтору с backoff.
func (s *Service) mutate(ctx context.Context, orderID string, fn func(order *domain.Order, m *mutation) error) (domain.Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}

		m := &mutation{}
		if err := fn(&order, m); err != nil {
			return domain.Order{}, err
		}
		if m.skip {
			return order, nil
		}

		order.UpdatedAt = s.now()
		order.Recalculate()
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return domain.Order{}, fmt.Errorf("order %s violates invariants: %w", order.ID, errors.Join(errs...))
		}

		err = s.transactor.WithinTx(ctx, func(txCtx context.Context) error {
			return s.persist(txCtx, order, m)
		})
		if err == nil {
			order.Version++
			s.afterCommit(m)
			return order, nil
		}

		if !domain.IsVersionConflict(err) || attempt == maxSaveAttempts-1 {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"attempt":  attempt + 1,
			}).Error("failed to persist order")
			return domain.Order{}, err
		}

		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt + 1,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		// Exponential backoff
		delay := baseConflictRetryDelay * time.Duration(1<<uint(attempt))
		if err := sleepContext(ctx, delay); err != nil {
			return domain.Order{}, err
		}
	}

	return domain.Order{}, domain.ErrOrderVersionConflict
}

// persist записывает заказ и его побочные эффекты. Вызывается внутри WithinTx.
func (s *Service) persist(ctx context.Context, order domain.Order, m *mutation) error {
	if err := s.orders.Save(ctx, order); err != nil {
		return err
	}
	if len(m.release) > 0 {
		if err := s.ledger.ReleaseAll(ctx, inventory.Reservation{Lines: m.release}); err != nil {
			return fmt.Errorf("release stock: %w", err)
		}
	}
	return s.writeEffects(ctx, order, m)
}

func (s *Service) writeEffects(ctx context.Context, order domain.Order, m *mutation) error {
	for _, event := range m.timeline {
		if err := s.timeline.Append(ctx, event); err != nil {
			return fmt.Errorf("append timeline: %w", err)
		}
	}
	for _, event := range m.events {
		payload := newEventPayload(order)
		if event.adjust != nil {
			event.adjust(&payload)
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", event.eventType, err)
		}
		if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: aggregateTypeOrder,
			AggregateID:   order.ID,
			EventType:     event.eventType,
			Payload:       data,
		}); err != nil {
			return fmt.Errorf("enqueue %s event: %w", event.eventType, err)
		}
	}
	return nil
}

// afterCommit отправляет уведомления и обновляет метрики; ошибки доставки сюда не доходят.
func (s *Service) afterCommit(m *mutation) {
	for range m.timeline {
		s.metrics.RecordTimelineEvent()
	}
	for range m.events {
		s.metrics.RecordOutboxEvent()
	}
	for _, n := range m.notify {
		s.notifier.Notify(n)
	}
}

func newEventPayload(order domain.Order) orderEventPayload {
	return orderEventPayload{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TransactionID: order.PaymentTransactionID,
		Total:         order.TotalAmount.StringFixed(2),
		OccurredAt:    order.UpdatedAt,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func stockRequests(order domain.Order) []domain.StockRequest {
	requests := make([]domain.StockRequest, 0, len(order.Lines))
	for _, line := range order.Lines {
		requests = append(requests, domain.StockRequest{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
		})
	}
	return requests
}

func statusChangedEvent(order *domain.Order, reason string, occurred time.Time) domain.TimelineEvent {
	return domain.TimelineEvent{
		OrderID:     order.ID,
		Type:        domain.TimelineStatusChanged,
		Status:      order.Status,
		Description: order.Status.Description(),
		Reason:      reason,
		Occurred:    occurred,
	}
}

func (s *Service) notification(kind domain.NotificationKind, channel domain.NotificationChannel, order *domain.Order, message string, data map[string]any) domain.Notification {
	return domain.Notification{
		Kind:        kind,
		Channel:     channel,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.Status,
		Message:     message,
		Data:        data,
		OccurredAt:  s.now(),
	}
}
