package grpcsvc

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/ordering"
)

// request — типизированный доступ к полям входящего Struct.
// Поле неверного типа читается как отсутствующее.
type request struct {
	fields map[string]*structpb.Value
}

func newRequest(in *structpb.Struct) request {
	return request{fields: in.GetFields()}
}

func (r request) str(key string) string {
	if v, ok := r.fields[key].GetKind().(*structpb.Value_StringValue); ok {
		return strings.TrimSpace(v.StringValue)
	}
	return ""
}

func (r request) required(key string) (string, error) {
	value := r.str(key)
	if value == "" {
		return "", domain.InvalidArgument("%s is required", key)
	}
	return value, nil
}

func (r request) integer(key string) (int, error) {
	value, ok := r.fields[key]
	if !ok {
		return 0, nil
	}
	number, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, domain.InvalidArgument("%s must be a number", key)
	}
	if number.NumberValue != math.Trunc(number.NumberValue) || math.Abs(number.NumberValue) > math.MaxInt32 {
		return 0, domain.InvalidArgument("%s must be an integer", key)
	}
	return int(number.NumberValue), nil
}

func (r request) object(key string) request {
	if v, ok := r.fields[key].GetKind().(*structpb.Value_StructValue); ok {
		return newRequest(v.StructValue)
	}
	return request{}
}

func (r request) list(key string) []*structpb.Value {
	if v, ok := r.fields[key].GetKind().(*structpb.Value_ListValue); ok {
		return v.ListValue.GetValues()
	}
	return nil
}

func (r request) listOptions() (ordering.ListOptions, error) {
	page, err := r.integer("page")
	if err != nil {
		return ordering.ListOptions{}, err
	}
	size, err := r.integer("size")
	if err != nil {
		return ordering.ListOptions{}, err
	}
	return ordering.ListOptions{
		Page:          page,
		Size:          size,
		SortField:     r.str("sort_by"),
		SortDirection: r.str("sort_direction"),
	}, nil
}

func decodeCreateOrder(userID string, r request) (ordering.CreateOrderInput, error) {
	items := r.list("items")
	lines := make([]ordering.LineInput, 0, len(items))
	for i, item := range items {
		fields, ok := item.GetKind().(*structpb.Value_StructValue)
		if !ok {
			return ordering.CreateOrderInput{}, domain.InvalidArgument("items[%d] must be an object", i)
		}
		line := newRequest(fields.StructValue)
		qty, err := line.integer("quantity")
		if err != nil {
			return ordering.CreateOrderInput{}, err
		}
		lines = append(lines, ordering.LineInput{ProductID: line.str("product_id"), Quantity: qty})
	}

	return ordering.CreateOrderInput{
		UserID:               userID,
		Lines:                lines,
		DeliveryAddress:      r.str("delivery_address"),
		DeliveryInstructions: r.str("delivery_instructions"),
		PaymentMethod:        r.str("payment_method"),
	}, nil
}

func decodeCard(r request) domain.CardDetails {
	return domain.CardDetails{
		Number:      r.str("number"),
		ExpiryMonth: r.str("expiry_month"),
		ExpiryYear:  r.str("expiry_year"),
		CVV:         r.str("cvv"),
		HolderName:  r.str("holder_name"),
	}
}

func decodeInstrument(r request) (domain.PaymentInstrument, error) {
	method, err := domain.ParsePaymentMethod(r.str("payment_method"))
	if err != nil {
		return nil, err
	}
	switch method {
	case domain.PaymentMethodCard:
		return decodeCard(r.object("card")), nil
	case domain.PaymentMethodUPI:
		return domain.UPIDetails{ID: r.str("upi_id")}, nil
	default:
		return domain.CashOnDelivery{}, nil
	}
}

func money(d decimal.Decimal) *structpb.Value {
	return structpb.NewStringValue(d.StringFixed(2))
}

func timestamp(t time.Time) *structpb.Value {
	return structpb.NewStringValue(t.UTC().Format(time.RFC3339))
}

func setTime(fields map[string]*structpb.Value, key string, t *time.Time) {
	if t != nil {
		fields[key] = timestamp(*t)
	}
}

func object(fields map[string]*structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func encodeOrder(view ordering.OrderView) *structpb.Struct {
	items := make([]*structpb.Value, 0, len(view.Lines))
	for _, line := range view.Lines {
		items = append(items, object(map[string]*structpb.Value{
			"product_id":   structpb.NewStringValue(line.ProductID),
			"product_name": structpb.NewStringValue(line.ProductName),
			"image_url":    structpb.NewStringValue(line.ImageURL),
			"unit":         structpb.NewStringValue(line.Unit),
			"quantity":     structpb.NewNumberValue(float64(line.Quantity)),
			"price":        money(line.Price),
			"discount":     money(line.Discount),
			"subtotal":     money(line.Subtotal),
		}))
	}

	fields := map[string]*structpb.Value{
		"id":                     structpb.NewStringValue(view.ID),
		"order_number":           structpb.NewStringValue(view.OrderNumber),
		"user_id":                structpb.NewStringValue(view.UserID),
		"items":                  structpb.NewListValue(&structpb.ListValue{Values: items}),
		"subtotal":               money(view.Subtotal),
		"delivery_charge":        money(view.DeliveryCharge),
		"tax":                    money(view.Tax),
		"total":                  money(view.Total),
		"status":                 structpb.NewStringValue(string(view.Status)),
		"status_description":     structpb.NewStringValue(view.StatusDescription),
		"progress":               structpb.NewNumberValue(float64(view.Progress)),
		"delivery_address":       structpb.NewStringValue(view.DeliveryAddress),
		"delivery_instructions":  structpb.NewStringValue(view.DeliveryInstructions),
		"payment_method":         structpb.NewStringValue(string(view.PaymentMethod)),
		"payment_status":         structpb.NewStringValue(string(view.PaymentStatus)),
		"payment_transaction_id": structpb.NewStringValue(view.PaymentTransactionID),
		"created_at":             timestamp(view.CreatedAt),
		"updated_at":             timestamp(view.UpdatedAt),
		"customer": object(map[string]*structpb.Value{
			"id":    structpb.NewStringValue(view.Customer.ID),
			"name":  structpb.NewStringValue(view.Customer.Name),
			"email": structpb.NewStringValue(view.Customer.Email),
			"phone": structpb.NewStringValue(view.Customer.Phone),
		}),
		"cancellation_reason": structpb.NewStringValue(view.CancellationReason),
		"rating":              structpb.NewNumberValue(float64(view.Rating)),
		"feedback":            structpb.NewStringValue(view.Feedback),
		"version":             structpb.NewNumberValue(float64(view.Version)),
	}
	setTime(fields, "paid_at", view.PaidAt)
	setTime(fields, "estimated_delivery_at", view.EstimatedDeliveryAt)
	setTime(fields, "actual_delivery_at", view.ActualDeliveryAt)
	setTime(fields, "cancelled_at", view.CancelledAt)

	if view.DeliveryPartnerName != "" {
		fields["delivery_partner"] = object(map[string]*structpb.Value{
			"name":  structpb.NewStringValue(view.DeliveryPartnerName),
			"phone": structpb.NewStringValue(view.DeliveryPartnerPhone),
		})
	}

	if view.Tracking != nil {
		tracking := make([]*structpb.Value, 0, len(view.Tracking))
		for _, event := range view.Tracking {
			tracking = append(tracking, object(map[string]*structpb.Value{
				"type":        structpb.NewStringValue(event.Type),
				"status":      structpb.NewStringValue(string(event.Status)),
				"description": structpb.NewStringValue(event.Description),
				"location":    structpb.NewStringValue(event.Location),
				"occurred_at": timestamp(event.Occurred),
			}))
		}
		fields["tracking"] = structpb.NewListValue(&structpb.ListValue{Values: tracking})
	}

	return &structpb.Struct{Fields: fields}
}

func encodePage(page ordering.OrderPage) *structpb.Struct {
	items := make([]*structpb.Value, 0, len(page.Items))
	for _, view := range page.Items {
		items = append(items, structpb.NewStructValue(encodeOrder(view)))
	}

	totalPages := 0
	if page.Size > 0 {
		totalPages = (page.Total + page.Size - 1) / page.Size
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"items":       structpb.NewListValue(&structpb.ListValue{Values: items}),
		"page":        structpb.NewNumberValue(float64(page.Page)),
		"size":        structpb.NewNumberValue(float64(page.Size)),
		"total":       structpb.NewNumberValue(float64(page.Total)),
		"total_pages": structpb.NewNumberValue(float64(totalPages)),
	}}
}

func encodeBill(bill domain.DigitalBill) *structpb.Struct {
	items := make([]*structpb.Value, 0, len(bill.Items))
	for _, item := range bill.Items {
		items = append(items, object(map[string]*structpb.Value{
			"name":     structpb.NewStringValue(item.Name),
			"quantity": structpb.NewNumberValue(float64(item.Quantity)),
			"price":    money(item.Price),
			"discount": money(item.Discount),
			"subtotal": money(item.Subtotal),
		}))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"bill_number":      structpb.NewStringValue(bill.BillNumber),
		"order_number":     structpb.NewStringValue(bill.OrderNumber),
		"issued_at":        timestamp(bill.IssuedAt),
		"payment_method":   structpb.NewStringValue(string(bill.PaymentMethod)),
		"transaction_id":   structpb.NewStringValue(bill.TransactionID),
		"customer_name":    structpb.NewStringValue(bill.CustomerName),
		"customer_email":   structpb.NewStringValue(bill.CustomerEmail),
		"delivery_address": structpb.NewStringValue(bill.DeliveryAddress),
		"items":            structpb.NewListValue(&structpb.ListValue{Values: items}),
		"subtotal":         money(bill.Subtotal),
		"delivery_charge":  money(bill.DeliveryCharge),
		"tax":              money(bill.Tax),
		"total":            money(bill.Total),
		"signature":        structpb.NewStringValue(bill.Signature),
	}}
}
