package grpcsvc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	grpcsvc "github.com/vladislavdragonenkov/grocery-oms/internal/service/grpc"
)

func TestCreateOrder_RequiresCaller(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.Call(context.Background(), grpcsvc.MethodCreateOrder, map[string]any{
		"items":            []any{item("milk", 1)},
		"delivery_address": "12 Market Street",
		"payment_method":   "cod",
	})
	requireCode(t, err, codes.Unauthenticated)
}

func TestCreateAndGetOrder(t *testing.T) {
	env := newTestEnv(t)

	created := env.placeOrder(t, item("milk", 2))
	assert.Equal(t, "PENDING", created["status"])
	assert.Equal(t, "120.00", created["subtotal"])
	assert.Equal(t, "40.00", created["delivery_charge"])
	assert.Equal(t, "6.00", created["tax"])
	assert.Equal(t, "166.00", created["total"])
	assert.Equal(t, float64(0), created["version"])
	assert.Equal(t, 18, env.stock(t, "milk"))

	items, ok := created["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	line := items[0].(map[string]any)
	assert.Equal(t, "Milk", line["product_name"])
	assert.Equal(t, "60.00", line["price"])

	orderID := created["id"].(string)
	got := env.call(t, owner(), grpcsvc.MethodGetOrder, map[string]any{"order_id": orderID})
	assert.Equal(t, created["order_number"], got["order_number"])
	tracking, ok := got["tracking"].([]any)
	require.True(t, ok)
	assert.Len(t, tracking, 1)

	_, err := env.client.Call(grpcsvc.AsUser(context.Background(), strangerID), grpcsvc.MethodGetOrder, map[string]any{"order_id": orderID})
	requireCode(t, err, codes.PermissionDenied)

	public := env.call(t, context.Background(), grpcsvc.MethodTrackOrder, map[string]any{"order_id": orderID})
	assert.Equal(t, orderID, public["id"])

	_, err = env.client.Call(owner(), grpcsvc.MethodGetOrder, map[string]any{"order_id": "missing"})
	requireCode(t, err, codes.NotFound)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		fields map[string]any
		want   codes.Code
	}{
		{
			name:   "out of stock",
			fields: map[string]any{"items": []any{item("bread", 6)}, "delivery_address": "x", "payment_method": "cod"},
			want:   codes.FailedPrecondition,
		},
		{
			name:   "unknown product",
			fields: map[string]any{"items": []any{item("caviar", 1)}, "delivery_address": "x", "payment_method": "cod"},
			want:   codes.NotFound,
		},
		{
			name:   "no items",
			fields: map[string]any{"delivery_address": "x", "payment_method": "cod"},
			want:   codes.InvalidArgument,
		},
		{
			name:   "fractional quantity",
			fields: map[string]any{"items": []any{map[string]any{"product_id": "milk", "quantity": 1.5}}, "delivery_address": "x", "payment_method": "cod"},
			want:   codes.InvalidArgument,
		},
		{
			name:   "unsupported method",
			fields: map[string]any{"items": []any{item("milk", 1)}, "delivery_address": "x", "payment_method": "bitcoin"},
			want:   codes.InvalidArgument,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.client.Call(owner(), grpcsvc.MethodCreateOrder, tc.fields)
			requireCode(t, err, tc.want)
		})
	}

	assert.Equal(t, 5, env.stock(t, "bread"))
	assert.Equal(t, 20, env.stock(t, "milk"))
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	fields := map[string]any{
		"items":            []any{item("milk", 3)},
		"delivery_address": "12 Market Street",
		"payment_method":   "cod",
	}
	ctx := grpcsvc.WithIdempotencyKey(owner(), "create-1")

	first := env.call(t, ctx, grpcsvc.MethodCreateOrder, fields)
	second := env.call(t, ctx, grpcsvc.MethodCreateOrder, fields)

	assert.Equal(t, first["id"], second["id"])
	assert.Equal(t, first["total"], second["total"])
	assert.Equal(t, 17, env.stock(t, "milk"))

	fields["items"] = []any{item("milk", 4)}
	_, err := env.client.Call(ctx, grpcsvc.MethodCreateOrder, fields)
	requireCode(t, err, codes.AlreadyExists)

	// Тот же ключ другого пользователя не пересекается с первым.
	other := grpcsvc.WithIdempotencyKey(grpcsvc.AsUser(context.Background(), strangerID), "create-1")
	third := env.call(t, other, grpcsvc.MethodCreateOrder, fields)
	assert.NotEqual(t, first["id"], third["id"])
	assert.Equal(t, 13, env.stock(t, "milk"))
}

func TestCreateOrder_WithoutKeyIsNotDeduplicated(t *testing.T) {
	env := newTestEnv(t)

	first := env.placeOrder(t, item("bread", 1))
	second := env.placeOrder(t, item("bread", 1))

	assert.NotEqual(t, first["id"], second["id"])
	assert.Equal(t, 3, env.stock(t, "bread"))
}

func TestCancelOrder_ReplaysFailure(t *testing.T) {
	env := newTestEnv(t)
	created := env.placeOrder(t, item("bread", 2))
	orderID := created["id"].(string)

	env.call(t, context.Background(), grpcsvc.MethodUpdateOrderStatus, map[string]any{"order_id": orderID, "status": "CONFIRMED"})
	env.call(t, context.Background(), grpcsvc.MethodUpdateOrderStatus, map[string]any{"order_id": orderID, "status": "PREPARING"})

	ctx := grpcsvc.WithIdempotencyKey(owner(), "cancel-1")
	request := map[string]any{"order_id": orderID, "reason": "changed my mind"}

	_, err := env.client.Call(ctx, grpcsvc.MethodCancelOrder, request)
	requireCode(t, err, codes.FailedPrecondition)

	_, err = env.client.Call(ctx, grpcsvc.MethodCancelOrder, request)
	requireCode(t, err, codes.FailedPrecondition)
	assert.Equal(t, 3, env.stock(t, "bread"))
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	env := newTestEnv(t)
	created := env.placeOrder(t, item("bread", 5))
	assert.Equal(t, 0, env.stock(t, "bread"))

	cancelled := env.call(t, owner(), grpcsvc.MethodCancelOrder, map[string]any{
		"order_id": created["id"],
		"reason":   "ordered by mistake",
	})

	assert.Equal(t, "CANCELLED", cancelled["status"])
	assert.Equal(t, "ordered by mistake", cancelled["cancellation_reason"])
	assert.NotEmpty(t, cancelled["cancelled_at"])
	assert.Equal(t, 5, env.stock(t, "bread"))

	_, err := env.client.Call(grpcsvc.AsUser(context.Background(), strangerID), grpcsvc.MethodCancelOrder, map[string]any{"order_id": created["id"]})
	requireCode(t, err, codes.PermissionDenied)
}

func TestProcessPayment_CardAndBill(t *testing.T) {
	env := newTestEnv(t)
	created := env.placeOrder(t, item("milk", 2))
	orderID := created["id"].(string)

	_, err := env.client.Call(owner(), grpcsvc.MethodGetDigitalBill, map[string]any{"order_id": orderID})
	requireCode(t, err, codes.FailedPrecondition)

	bad := card()
	bad["cvv"] = "12"
	_, err = env.client.Call(owner(), grpcsvc.MethodProcessPayment, map[string]any{
		"order_id":       orderID,
		"payment_method": "CARD",
		"card":           bad,
	})
	requireCode(t, err, codes.InvalidArgument)
	assert.Equal(t, 0, env.gateway.count())

	paid := env.call(t, owner(), grpcsvc.MethodProcessPayment, map[string]any{
		"order_id":       orderID,
		"payment_method": "CARD",
		"card":           card(),
	})

	order := paid["order"].(map[string]any)
	bill := paid["bill"].(map[string]any)
	assert.Equal(t, "PAID", order["payment_status"])
	assert.Equal(t, "TXN-OK000001", order["payment_transaction_id"])
	assert.NotEmpty(t, order["paid_at"])
	assert.Equal(t, "166.00", bill["total"])
	assert.Equal(t, "TXN-OK000001", bill["transaction_id"])

	again := env.call(t, owner(), grpcsvc.MethodGetDigitalBill, map[string]any{"order_id": orderID})
	assert.Equal(t, bill["bill_number"], again["bill_number"])
	assert.Equal(t, bill["signature"], again["signature"])

	_, err = env.client.Call(owner(), grpcsvc.MethodProcessPayment, map[string]any{
		"order_id":       orderID,
		"payment_method": "UPI",
		"upi_id":         "owner@okbank",
	})
	requireCode(t, err, codes.FailedPrecondition)
	assert.Equal(t, 1, env.gateway.count())
}

func TestProcessPayment_IdempotentReplayDoesNotChargeTwice(t *testing.T) {
	env := newTestEnv(t)
	created := env.placeOrder(t, item("milk", 1))
	ctx := grpcsvc.WithIdempotencyKey(owner(), "pay-1")
	request := map[string]any{
		"order_id":       created["id"],
		"payment_method": "upi",
		"upi_id":         "owner@okbank",
	}

	first := env.call(t, ctx, grpcsvc.MethodProcessPayment, request)
	second := env.call(t, ctx, grpcsvc.MethodProcessPayment, request)

	assert.Equal(t, first["bill"].(map[string]any)["bill_number"], second["bill"].(map[string]any)["bill_number"])
	assert.Equal(t, 1, env.gateway.count())
}

func TestUpdateOrderStatus_Validation(t *testing.T) {
	env := newTestEnv(t)
	created := env.placeOrder(t, item("milk", 1))

	_, err := env.client.Call(context.Background(), grpcsvc.MethodUpdateOrderStatus, map[string]any{
		"order_id": created["id"],
		"status":   "DELIVERED",
	})
	requireCode(t, err, codes.FailedPrecondition)

	_, err = env.client.Call(context.Background(), grpcsvc.MethodUpdateOrderStatus, map[string]any{
		"order_id": created["id"],
		"status":   "SHIPPED",
	})
	requireCode(t, err, codes.InvalidArgument)

	_, err = env.client.Call(context.Background(), grpcsvc.MethodUpdateOrderStatus, map[string]any{"status": "CONFIRMED"})
	requireCode(t, err, codes.InvalidArgument)
}

func TestDeliveryFlow(t *testing.T) {
	env := newTestEnv(t)
	created := env.placeOrder(t, item("milk", 10))
	orderID := created["id"].(string)
	admin := context.Background()
	update := func(status string) map[string]any {
		return env.call(t, admin, grpcsvc.MethodUpdateOrderStatus, map[string]any{"order_id": orderID, "status": status})
	}

	update("CONFIRMED")
	preparing := update("PREPARING")
	assert.Equal(t, float64(50), preparing["progress"])
	assert.NotEmpty(t, preparing["estimated_delivery_at"])

	ack := env.call(t, admin, grpcsvc.MethodReportPreparation, map[string]any{
		"order_id": orderID,
		"message":  "packing",
		"progress": 60,
	})
	assert.Equal(t, true, ack["accepted"])

	_, err := env.client.Call(admin, grpcsvc.MethodReportLocation, map[string]any{"order_id": orderID, "location": "Depot"})
	requireCode(t, err, codes.FailedPrecondition)

	assigned := env.call(t, admin, grpcsvc.MethodAssignDeliveryPartner, map[string]any{
		"order_id": orderID,
		"name":     "Ravi",
		"phone":    "+9100",
	})
	partner := assigned["delivery_partner"].(map[string]any)
	assert.Equal(t, "Ravi", partner["name"])

	update("OUT_FOR_DELIVERY")
	env.call(t, admin, grpcsvc.MethodReportLocation, map[string]any{"order_id": orderID, "location": "Main Street"})

	delayed := env.call(t, admin, grpcsvc.MethodReportDelay, map[string]any{
		"order_id":      orderID,
		"reason":        "traffic",
		"delay_minutes": 15,
	})
	assert.NotEqual(t, preparing["estimated_delivery_at"], delayed["estimated_delivery_at"])

	delivered := update("DELIVERED")
	assert.Equal(t, float64(100), delivered["progress"])
	assert.NotEmpty(t, delivered["actual_delivery_at"])

	_, err = env.client.Call(owner(), grpcsvc.MethodRateOrder, map[string]any{"order_id": orderID, "rating": 6})
	requireCode(t, err, codes.InvalidArgument)

	rated := env.call(t, owner(), grpcsvc.MethodRateOrder, map[string]any{
		"order_id": orderID,
		"rating":   5,
		"feedback": "fast",
	})
	assert.Equal(t, float64(5), rated["rating"])

	tracked := env.call(t, context.Background(), grpcsvc.MethodTrackOrder, map[string]any{"order_id": orderID})
	tracking := tracked["tracking"].([]any)
	// Оформление, четыре смены статуса и одна точка маршрута.
	require.Len(t, tracking, 6)
	assert.Equal(t, "Main Street", tracking[4].(map[string]any)["location"])
}

func TestListOrders_Paging(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.placeOrder(t, item("milk", 1))
	}

	page := env.call(t, owner(), grpcsvc.MethodListOrders, map[string]any{"page": 0, "size": 2})
	assert.Len(t, page["items"], 2)
	assert.Equal(t, float64(3), page["total"])
	assert.Equal(t, float64(2), page["total_pages"])

	last := env.call(t, owner(), grpcsvc.MethodListOrders, map[string]any{"page": 1, "size": 2})
	assert.Len(t, last["items"], 1)

	empty := env.call(t, grpcsvc.AsUser(context.Background(), strangerID), grpcsvc.MethodListOrders, nil)
	assert.Equal(t, float64(0), empty["total"])
	assert.Equal(t, float64(10), empty["size"])

	_, err := env.client.Call(owner(), grpcsvc.MethodListOrders, map[string]any{"sort_by": "weight"})
	requireCode(t, err, codes.InvalidArgument)

	_, err = env.client.Call(grpcsvc.AsUser(context.Background(), "ghost"), grpcsvc.MethodListOrders, nil)
	requireCode(t, err, codes.NotFound)
}

func TestListOrdersByStatus(t *testing.T) {
	env := newTestEnv(t)
	first := env.placeOrder(t, item("milk", 1))
	env.placeOrder(t, item("milk", 1))
	env.call(t, context.Background(), grpcsvc.MethodUpdateOrderStatus, map[string]any{"order_id": first["id"], "status": "CONFIRMED"})

	confirmed := env.call(t, context.Background(), grpcsvc.MethodListOrdersByStatus, map[string]any{"status": "CONFIRMED"})
	items := confirmed["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, first["id"], items[0].(map[string]any)["id"])

	_, err := env.client.Call(context.Background(), grpcsvc.MethodListOrdersByStatus, map[string]any{"status": "LOST"})
	requireCode(t, err, codes.InvalidArgument)
}

func TestValidateCardAndVerifyUpi(t *testing.T) {
	env := newTestEnv(t)

	valid := env.call(t, context.Background(), grpcsvc.MethodValidateCard, map[string]any{"card": card()})
	assert.Equal(t, true, valid["valid"])
	assert.Equal(t, "Visa", valid["card_type"])

	bad := card()
	bad["number"] = "1234"
	invalid := env.call(t, context.Background(), grpcsvc.MethodValidateCard, map[string]any{"card": bad})
	assert.Equal(t, false, invalid["valid"])

	upi := env.call(t, context.Background(), grpcsvc.MethodVerifyUpi, map[string]any{"upi_id": "owner@okbank"})
	assert.Equal(t, true, upi["valid"])

	badUpi := env.call(t, context.Background(), grpcsvc.MethodVerifyUpi, map[string]any{"upi_id": "owner"})
	assert.Equal(t, false, badUpi["valid"])
	assert.NotEmpty(t, badUpi["message"])
}

func TestRateLimiterInterceptor_StrictTier(t *testing.T) {
	limiter := grpcsvc.NewRateLimiter(grpcsvc.RateLimitConfig{StrictRPS: 0.001, StrictBurst: 1}, loggerForTests())
	env := newTestEnv(t, grpc.ChainUnaryInterceptor(limiter.UnaryInterceptor()))
	ctx := owner()

	env.call(t, ctx, grpcsvc.MethodVerifyUpi, map[string]any{"upi_id": "owner@okbank"})
	_, err := env.client.Call(ctx, grpcsvc.MethodVerifyUpi, map[string]any{"upi_id": "owner@okbank"})
	requireCode(t, err, codes.ResourceExhausted)

	// Общий уровень не задет строгим.
	env.placeOrder(t, item("milk", 1))

	// Бакет другого пользователя независим.
	env.call(t, grpcsvc.AsUser(context.Background(), strangerID), grpcsvc.MethodVerifyUpi, map[string]any{"upi_id": "owner@okbank"})
}
