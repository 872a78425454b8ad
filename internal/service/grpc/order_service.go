package grpcsvc

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/ordering"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/payment"
)

// UserIDHeader — metadata с идентификатором вызывающего пользователя.
const UserIDHeader = "x-user-id"

// OrderService реализует gRPC API поверх оркестратора заказов.
type OrderService struct {
	orders   *ordering.Service
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry

	idempotencyTTL time.Duration
	clock          func() time.Time
}

var _ OrderServiceServer = (*OrderService)(nil)

// Option настраивает OrderService.
type Option func(*OrderService)

// WithIdempotencyTTL задаёт время жизни ключа идемпотентности.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(s *OrderService) {
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithClock подменяет источник времени для TTL ключей.
func WithClock(clock func() time.Time) Option {
	return func(s *OrderService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewOrderService конструирует сервис с зависимостями.
// idemRepo может быть nil, тогда запросы не дедуплицируются.
func NewOrderService(
	orders *ordering.Service,
	idemRepo domain.IdempotencyRepository,
	logger *log.Entry,
	options ...Option,
) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "grpc-order-service")
	}
	s := &OrderService{
		orders:         orders,
		idemRepo:       idemRepo,
		logger:         logger,
		idempotencyTTL: defaultIdempotencyTTL,
		clock:          time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateOrder оформляет заказ вызывающего пользователя.
func (s *OrderService) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	return s.withIdempotency(ctx, MethodCreateOrder, userID, req, func(ctx context.Context) (*structpb.Struct, error) {
		in, err := decodeCreateOrder(userID, newRequest(req))
		if err != nil {
			return nil, s.fail(MethodCreateOrder, err)
		}
		view, err := s.orders.CreateOrder(ctx, in)
		if err != nil {
			return nil, s.fail(MethodCreateOrder, err)
		}
		return encodeOrder(view), nil
	})
}

// GetOrder возвращает заказ его владельцу.
func (s *OrderService) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	orderID, err := newRequest(req).required("order_id")
	if err != nil {
		return nil, s.fail(MethodGetOrder, err)
	}
	view, err := s.orders.GetOrder(ctx, orderID, userID)
	if err != nil {
		return nil, s.fail(MethodGetOrder, err)
	}
	return encodeOrder(view), nil
}

// TrackOrder — публичное отслеживание без проверки владельца.
func (s *OrderService) TrackOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	orderID, err := newRequest(req).required("order_id")
	if err != nil {
		return nil, s.fail(MethodTrackOrder, err)
	}
	view, err := s.orders.GetOrder(ctx, orderID, "")
	if err != nil {
		return nil, s.fail(MethodTrackOrder, err)
	}
	return encodeOrder(view), nil
}

// ListOrders возвращает страницу заказов вызывающего пользователя.
func (s *OrderService) ListOrders(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := newRequest(req).listOptions()
	if err != nil {
		return nil, s.fail(MethodListOrders, err)
	}
	page, err := s.orders.ListOrders(ctx, userID, opts)
	if err != nil {
		return nil, s.fail(MethodListOrders, err)
	}
	return encodePage(page), nil
}

// CancelOrder отменяет заказ владельца и возвращает остатки на склад.
func (s *OrderService) CancelOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	return s.withIdempotency(ctx, MethodCancelOrder, userID, req, func(ctx context.Context) (*structpb.Struct, error) {
		r := newRequest(req)
		orderID, err := r.required("order_id")
		if err != nil {
			return nil, s.fail(MethodCancelOrder, err)
		}
		view, err := s.orders.CancelOrder(ctx, orderID, userID, r.str("reason"))
		if err != nil {
			return nil, s.fail(MethodCancelOrder, err)
		}
		return encodeOrder(view), nil
	})
}

// UpdateOrderStatus — административная смена статуса.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	orderID, err := r.required("order_id")
	if err != nil {
		return nil, s.fail(MethodUpdateOrderStatus, err)
	}
	next, err := domain.ParseOrderStatus(r.str("status"))
	if err != nil {
		return nil, s.fail(MethodUpdateOrderStatus, err)
	}
	view, err := s.orders.UpdateStatus(ctx, orderID, next)
	if err != nil {
		return nil, s.fail(MethodUpdateOrderStatus, err)
	}
	return encodeOrder(view), nil
}

// ProcessPayment оплачивает заказ и возвращает квитанцию.
func (s *OrderService) ProcessPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	return s.withIdempotency(ctx, MethodProcessPayment, userID, req, func(ctx context.Context) (*structpb.Struct, error) {
		r := newRequest(req)
		orderID, err := r.required("order_id")
		if err != nil {
			return nil, s.fail(MethodProcessPayment, err)
		}
		instrument, err := decodeInstrument(r)
		if err != nil {
			return nil, s.fail(MethodProcessPayment, err)
		}
		outcome, err := s.orders.ProcessPayment(ctx, orderID, userID, instrument)
		if err != nil {
			return nil, s.fail(MethodProcessPayment, err)
		}
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			"order": structpb.NewStructValue(encodeOrder(outcome.Order)),
			"bill":  structpb.NewStructValue(encodeBill(outcome.Bill)),
		}}, nil
	})
}

// GetDigitalBill возвращает квитанцию оплаченного заказа.
func (s *OrderService) GetDigitalBill(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	orderID, err := newRequest(req).required("order_id")
	if err != nil {
		return nil, s.fail(MethodGetDigitalBill, err)
	}
	bill, err := s.orders.GetDigitalBill(ctx, orderID, userID)
	if err != nil {
		return nil, s.fail(MethodGetDigitalBill, err)
	}
	return encodeBill(bill), nil
}

// RateOrder сохраняет оценку доставленного заказа.
func (s *OrderService) RateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	r := newRequest(req)
	orderID, err := r.required("order_id")
	if err != nil {
		return nil, s.fail(MethodRateOrder, err)
	}
	rating, err := r.integer("rating")
	if err != nil {
		return nil, s.fail(MethodRateOrder, err)
	}
	view, err := s.orders.RateOrder(ctx, orderID, userID, rating, r.str("feedback"))
	if err != nil {
		return nil, s.fail(MethodRateOrder, err)
	}
	return encodeOrder(view), nil
}

// AssignDeliveryPartner закрепляет курьера за заказом.
func (s *OrderService) AssignDeliveryPartner(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	orderID, err := r.required("order_id")
	if err != nil {
		return nil, s.fail(MethodAssignDeliveryPartner, err)
	}
	view, err := s.orders.AssignDeliveryPartner(ctx, orderID, r.str("name"), r.str("phone"))
	if err != nil {
		return nil, s.fail(MethodAssignDeliveryPartner, err)
	}
	return encodeOrder(view), nil
}

// ReportPreparation передаёт клиенту прогресс сборки.
func (s *OrderService) ReportPreparation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	orderID, err := r.required("order_id")
	if err != nil {
		return nil, s.fail(MethodReportPreparation, err)
	}
	progress, err := r.integer("progress")
	if err != nil {
		return nil, s.fail(MethodReportPreparation, err)
	}
	if err := s.orders.ReportPreparation(ctx, orderID, r.str("message"), progress); err != nil {
		return nil, s.fail(MethodReportPreparation, err)
	}
	return accepted(orderID), nil
}

// ReportDelay сдвигает ожидаемое время доставки.
func (s *OrderService) ReportDelay(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	orderID, err := r.required("order_id")
	if err != nil {
		return nil, s.fail(MethodReportDelay, err)
	}
	minutes, err := r.integer("delay_minutes")
	if err != nil {
		return nil, s.fail(MethodReportDelay, err)
	}
	view, err := s.orders.ReportDelay(ctx, orderID, r.str("reason"), minutes)
	if err != nil {
		return nil, s.fail(MethodReportDelay, err)
	}
	return encodeOrder(view), nil
}

// ReportLocation добавляет точку маршрута в журнал отслеживания.
func (s *OrderService) ReportLocation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	orderID, err := r.required("order_id")
	if err != nil {
		return nil, s.fail(MethodReportLocation, err)
	}
	if err := s.orders.ReportLocation(ctx, orderID, r.str("location")); err != nil {
		return nil, s.fail(MethodReportLocation, err)
	}
	return accepted(orderID), nil
}

// ListOrdersByStatus — административная очередь заказов.
func (s *OrderService) ListOrdersByStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(req)
	st, err := domain.ParseOrderStatus(r.str("status"))
	if err != nil {
		return nil, s.fail(MethodListOrdersByStatus, err)
	}
	opts, err := r.listOptions()
	if err != nil {
		return nil, s.fail(MethodListOrdersByStatus, err)
	}
	page, err := s.orders.ListByStatus(ctx, st, opts)
	if err != nil {
		return nil, s.fail(MethodListOrdersByStatus, err)
	}
	return encodePage(page), nil
}

// ValidateCard проверяет формат карты без списания.
func (s *OrderService) ValidateCard(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	check := payment.ValidateCard(decodeCard(newRequest(req).object("card")))
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"valid":     structpb.NewBoolValue(check.Valid),
		"card_type": structpb.NewStringValue(check.CardType),
		"message":   structpb.NewStringValue(check.Message),
	}}, nil
}

// VerifyUpi проверяет формат UPI идентификатора.
func (s *OrderService) VerifyUpi(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	valid, message := true, "UPI ID is valid"
	if err := payment.VerifyUPI(newRequest(req).str("upi_id")); err != nil {
		valid, message = false, err.Error()
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"valid":   structpb.NewBoolValue(valid),
		"message": structpb.NewStringValue(message),
	}}, nil
}

func (s *OrderService) fail(method string, err error) error {
	return toStatus(s.logger, method, err)
}

func accepted(orderID string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"order_id": structpb.NewStringValue(orderID),
		"accepted": structpb.NewBoolValue(true),
	}}
}

// callerID читает x-user-id из входящих metadata.
func callerID(ctx context.Context) (string, error) {
	if id := metadataValue(ctx, UserIDHeader); id != "" {
		return id, nil
	}
	return "", status.Error(codes.Unauthenticated, UserIDHeader+" metadata is required")
}

func metadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
