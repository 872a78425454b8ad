package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

const orderColumns = `
	id, order_number, user_id, delivery_address, delivery_instructions,
	payment_method, payment_status, payment_transaction_id, paid_at,
	status, delivery_charge, tax_amount, total_amount,
	estimated_delivery_at, actual_delivery_at,
	rating, feedback, cancellation_reason, cancelled_at,
	delivery_partner_name, delivery_partner_phone,
	version, created_at, updated_at`

// sortColumns — белый список колонок для ORDER BY.
var sortColumns = map[domain.OrderSortField]string{
	domain.SortByCreatedAt:   "created_at",
	domain.SortByTotalAmount: "total_amount",
	domain.SortByStatus:      "status",
	domain.SortByOrderNumber: "order_number",
}

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	return r.store.WithinTx(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		exec := r.store.executor(ctx)

		_, err := exec.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		`,
			order.ID, order.OrderNumber, order.UserID, order.DeliveryAddress, order.DeliveryInstructions,
			string(order.PaymentMethod), string(order.PaymentStatus), order.PaymentTransactionID, nullTime(order.PaidAt),
			string(order.Status), order.DeliveryCharge, order.TaxAmount, order.TotalAmount,
			nullTime(order.EstimatedDeliveryAt), nullTime(order.ActualDeliveryAt),
			order.Rating, order.Feedback, order.CancellationReason, nullTime(order.CancelledAt),
			order.DeliveryPartnerName, order.DeliveryPartnerPhone,
			order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("order %s already exists: %w", order.ID, domain.ErrOrderVersionConflict)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for i, line := range order.Lines {
			if _, err := exec.ExecContext(ctx, `
				INSERT INTO order_lines (
					id, order_id, position, product_id, product_name, unit, image_url,
					quantity, price_at_time, discount_at_time
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			`,
				line.ID, order.ID, i, line.ProductID, line.ProductName, line.Unit, line.ImageURL,
				line.Quantity, line.PriceAtTime, line.DiscountAtTime,
			); err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.store.executor(ctx).QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines
	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, q domain.ListQuery) (domain.OrderPage, error) {
	return r.list(ctx, "user_id = $1", userID, q)
}

func (r *orderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus, q domain.ListQuery) (domain.OrderPage, error) {
	return r.list(ctx, "status = $1", string(status), q)
}

// list выбирает страницу заказов по одному условию. where содержит только константный SQL.
func (r *orderRepository) list(ctx context.Context, where string, arg any, q domain.ListQuery) (domain.OrderPage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	exec := r.store.executor(ctx)

	page := domain.OrderPage{Page: q.Page, Size: q.Size, Orders: make([]domain.Order, 0)}
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, arg).Scan(&page.Total); err != nil {
		return domain.OrderPage{}, fmt.Errorf("count orders: %w", err)
	}
	if page.Total == 0 {
		return page, nil
	}

	column, ok := sortColumns[q.SortField]
	if !ok {
		column = sortColumns[domain.SortByCreatedAt]
	}
	direction := "ASC"
	if q.Desc {
		direction = "DESC"
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+where+`
		ORDER BY `+column+` `+direction+`, id `+direction+`
		LIMIT $2 OFFSET $3
	`, arg, q.Size, q.Offset())
	if err != nil {
		return domain.OrderPage{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.OrderPage{}, fmt.Errorf("scan order row: %w", err)
		}
		page.Orders = append(page.Orders, order)
	}
	if err := rows.Err(); err != nil {
		return domain.OrderPage{}, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	for i := range page.Orders {
		lines, err := r.loadLines(ctx, page.Orders[i].ID)
		if err != nil {
			return domain.OrderPage{}, err
		}
		page.Orders[i].Lines = lines
	}
	return page, nil
}

// Save обновляет заказ при совпадении версии. Позиции после создания не меняются
// и здесь не перезаписываются.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	exec := r.store.executor(ctx)

	res, err := exec.ExecContext(ctx, `
		UPDATE orders
		SET delivery_address = $1,
		    delivery_instructions = $2,
		    payment_method = $3,
		    payment_status = $4,
		    payment_transaction_id = $5,
		    paid_at = $6,
		    status = $7,
		    delivery_charge = $8,
		    tax_amount = $9,
		    total_amount = $10,
		    estimated_delivery_at = $11,
		    actual_delivery_at = $12,
		    rating = $13,
		    feedback = $14,
		    cancellation_reason = $15,
		    cancelled_at = $16,
		    delivery_partner_name = $17,
		    delivery_partner_phone = $18,
		    version = version + 1,
		    updated_at = $19
		WHERE id = $20
		  AND version = $21
	`,
		order.DeliveryAddress,
		order.DeliveryInstructions,
		string(order.PaymentMethod),
		string(order.PaymentStatus),
		order.PaymentTransactionID,
		nullTime(order.PaidAt),
		string(order.Status),
		order.DeliveryCharge,
		order.TaxAmount,
		order.TotalAmount,
		nullTime(order.EstimatedDeliveryAt),
		nullTime(order.ActualDeliveryAt),
		order.Rating,
		order.Feedback,
		order.CancellationReason,
		nullTime(order.CancelledAt),
		order.DeliveryPartnerName,
		order.DeliveryPartnerPhone,
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, exec, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.store.executor(ctx).QueryContext(ctx, `
		SELECT id, product_id, product_name, unit, image_url, quantity, price_at_time, discount_at_time
		FROM order_lines
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(
			&line.ID, &line.ProductID, &line.ProductName, &line.Unit, &line.ImageURL,
			&line.Quantity, &line.PriceAtTime, &line.DiscountAtTime,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}

	return lines, nil
}

func (r *orderRepository) orderExists(ctx context.Context, exec executor, orderID string) (bool, error) {
	var id string
	err := exec.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                          domain.Order
		method, paymentStatus, status  string
		paidAt, eta, actual, cancelled sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.DeliveryAddress, &order.DeliveryInstructions,
		&method, &paymentStatus, &order.PaymentTransactionID, &paidAt,
		&status, &order.DeliveryCharge, &order.TaxAmount, &order.TotalAmount,
		&eta, &actual,
		&order.Rating, &order.Feedback, &order.CancellationReason, &cancelled,
		&order.DeliveryPartnerName, &order.DeliveryPartnerPhone,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.PaymentMethod = domain.PaymentMethod(method)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	order.Status = domain.OrderStatus(status)
	order.PaidAt = timePtr(paidAt)
	order.EstimatedDeliveryAt = timePtr(eta)
	order.ActualDeliveryAt = timePtr(actual)
	order.CancelledAt = timePtr(cancelled)
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
