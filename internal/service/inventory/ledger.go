package inventory

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/metrics"
)

// Mode определяет поведение ReserveAll при отказе на одной из позиций.
type Mode string

const (
	// ModeAtomic — уже зарезервированные позиции освобождаются в обратном порядке.
	ModeAtomic Mode = "atomic"
	// ModePartial — предыдущие резервы остаются списанными.
	ModePartial Mode = "partial"
)

// ParseMode разбирает режим резервирования; пустая строка означает atomic.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "", ModeAtomic:
		return ModeAtomic, nil
	case ModePartial:
		return ModePartial, nil
	default:
		return "", fmt.Errorf("unknown reservation mode %q", raw)
	}
}

// Reservation — позиции, по которым остаток действительно списан.
type Reservation struct {
	Lines []domain.StockRequest
}

// PartialReservationError возвращается в режиме partial: часть позиций уже списана.
type PartialReservationError struct {
	Reserved []domain.StockRequest
	Err      error
}

func (e *PartialReservationError) Error() string {
	return fmt.Sprintf("partial reservation: %d line(s) reserved before failure: %v", len(e.Reserved), e.Err)
}

func (e *PartialReservationError) Unwrap() error {
	return e.Err
}

// Options задаёт параметры Ledger.
type Options struct {
	Logger              *log.Entry
	Metrics             *metrics.OrderMetrics
	Mode                Mode
	RestoreAvailability bool
}

// Option настраивает Ledger.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики отказов и компенсаций.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithMode задаёт режим ReserveAll.
func WithMode(mode Mode) Option {
	return func(opts *Options) {
		opts.Mode = mode
	}
}

// WithRestoreAvailability управляет подъёмом флага доступности при возврате остатка.
func WithRestoreAvailability(restore bool) Option {
	return func(opts *Options) {
		opts.RestoreAvailability = restore
	}
}

// Ledger — единственная точка изменения остатков для ядра заказов.
// Атомарность check-and-decrement по одному товару обеспечивает StockStore.
type Ledger struct {
	store               domain.StockStore
	logger              *log.Entry
	metrics             *metrics.OrderMetrics
	mode                Mode
	restoreAvailability bool
}

// NewLedger создаёт ledger поверх хранилища остатков.
func NewLedger(store domain.StockStore, options ...Option) *Ledger {
	opts := Options{
		Mode:                ModeAtomic,
		RestoreAvailability: true,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "inventory-ledger")
	}
	if opts.Mode == "" {
		opts.Mode = ModeAtomic
	}

	return &Ledger{
		store:               store,
		logger:              logger,
		metrics:             opts.Metrics,
		mode:                opts.Mode,
		restoreAvailability: opts.RestoreAvailability,
	}
}

// Mode возвращает текущий режим резервирования.
func (l *Ledger) Mode() Mode {
	return l.mode
}

// Reserve списывает qty единиц товара или возвращает *OutOfStockError.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int) (domain.StockLevel, error) {
	if qty <= 0 {
		return domain.StockLevel{}, domain.InvalidArgument("quantity must be positive, got %d", qty)
	}

	level, err := l.store.Reserve(ctx, productID, qty)
	if err != nil {
		if errors.Is(err, domain.ErrOutOfStock) {
			l.metrics.RecordReservationFailure()
			l.logger.WithError(err).WithField("product_id", productID).Warn("stock reservation rejected")
		}
		return domain.StockLevel{}, err
	}

	l.logger.WithFields(log.Fields{
		"product_id": productID,
		"quantity":   qty,
		"stock":      level.Stock,
	}).Debug("stock reserved")
	return level, nil
}

// Release возвращает qty единиц товара.
func (l *Ledger) Release(ctx context.Context, productID string, qty int) (domain.StockLevel, error) {
	if qty <= 0 {
		return domain.StockLevel{}, domain.InvalidArgument("quantity must be positive, got %d", qty)
	}

	level, err := l.store.Release(ctx, productID, qty, l.restoreAvailability)
	if err != nil {
		return domain.StockLevel{}, err
	}

	l.logger.WithFields(log.Fields{
		"product_id": productID,
		"quantity":   qty,
		"stock":      level.Stock,
	}).Debug("stock released")
	return level, nil
}

// ReserveAll резервирует позиции по порядку.
// В режиме atomic при первом отказе уже списанное возвращается, и Reservation пуст.
// В режиме partial возвращается списанная часть и *PartialReservationError.
func (l *Ledger) ReserveAll(ctx context.Context, requests []domain.StockRequest) (Reservation, error) {
	reserved := make([]domain.StockRequest, 0, len(requests))

	for _, req := range requests {
		if _, err := l.Reserve(ctx, req.ProductID, req.Quantity); err != nil {
			err = withProductName(err, req.ProductName)
			if l.mode == ModePartial {
				if len(reserved) == 0 {
					return Reservation{}, err
				}
				return Reservation{Lines: reserved}, &PartialReservationError{Reserved: reserved, Err: err}
			}
			l.compensate(ctx, reserved)
			return Reservation{}, err
		}
		reserved = append(reserved, req)
	}

	return Reservation{Lines: reserved}, nil
}

// ReleaseAll возвращает все позиции резерва. Товар, исчезнувший из каталога, пропускается.
func (l *Ledger) ReleaseAll(ctx context.Context, reservation Reservation) error {
	var errs []error
	for _, line := range reservation.Lines {
		if _, err := l.Release(ctx, line.ProductID, line.Quantity); err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				l.logger.WithField("product_id", line.ProductID).Warn("product vanished before stock release, skipping")
				continue
			}
			errs = append(errs, fmt.Errorf("release %s: %w", line.ProductID, err))
		}
	}
	return errors.Join(errs...)
}

// compensate освобождает позиции в обратном порядке.
func (l *Ledger) compensate(ctx context.Context, reserved []domain.StockRequest) {
	for i := len(reserved) - 1; i >= 0; i-- {
		line := reserved[i]
		if _, err := l.Release(ctx, line.ProductID, line.Quantity); err != nil {
			l.logger.WithError(err).WithField("product_id", line.ProductID).Error("failed to compensate stock reservation")
			continue
		}
		l.metrics.RecordCompensation()
	}
}

// withProductName дополняет OutOfStockError названием товара из запроса.
func withProductName(err error, name string) error {
	var oos *domain.OutOfStockError
	if name != "" && errors.As(err, &oos) && oos.ProductName == "" {
		oos.ProductName = name
	}
	return err
}
