package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hezron-sketch/cafe-backend/internal/domain"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const orderColumns = `
	id, owner_id, items, subtotal, delivery_fee, discount, total_amount,
	promo_code, service_type, delivery_address, payment_method, mpesa_phone,
	checkout_request_id, merchant_request_id, status, payment_status,
	transaction_id, payment_result_code, payment_result_desc, refund_required,
	reconciliation_note, assigned_to, rating, review, idempotency_key,
	version, created_at, updated_at`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("items serialization error: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("order creation error: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
	`

	_, err = tx.ExecContext(ctx, query,
		order.ID,
		order.OwnerID,
		itemsJSON,
		order.Subtotal,
		order.DeliveryFee,
		order.Discount,
		order.TotalAmount,
		order.PromoCode,
		order.ServiceType,
		order.DeliveryAddress,
		order.PaymentMethod,
		order.MpesaPhone,
		nullString(order.CheckoutRequestID),
		order.MerchantRequestID,
		order.Status,
		order.PaymentStatus,
		order.TransactionID,
		nullInt(order.PaymentResultCode),
		order.PaymentResultDesc,
		order.RefundRequired,
		order.ReconciliationNote,
		order.AssignedTo,
		nullRating(order.Rating),
		order.Review,
		nullString(order.IdempotencyKey),
		order.Version,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ConflictError("order already exists for this idempotency key")
		}
		return fmt.Errorf("order creation error: %w", err)
	}

	if err := insertChanges(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("order creation commit error: %w", err)
	}
	order.Changes = nil
	return nil
}

// UpdateOrder writes every mutable column only if the stored version still
// matches order.Version. A stale write yields a domain conflict error.
func (r *OrderRepository) UpdateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("order update error: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE orders
		SET checkout_request_id = $3, merchant_request_id = $4, status = $5,
			payment_status = $6, transaction_id = $7, payment_result_code = $8,
			payment_result_desc = $9, refund_required = $10, reconciliation_note = $11,
			assigned_to = $12, rating = $13, review = $14, updated_at = $15,
			version = version + 1
		WHERE id = $1 AND version = $2
	`

	result, err := tx.ExecContext(ctx, query,
		order.ID,
		order.Version,
		nullString(order.CheckoutRequestID),
		order.MerchantRequestID,
		order.Status,
		order.PaymentStatus,
		order.TransactionID,
		nullInt(order.PaymentResultCode),
		order.PaymentResultDesc,
		order.RefundRequired,
		order.ReconciliationNote,
		order.AssignedTo,
		nullRating(order.Rating),
		order.Review,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ConflictError("checkout request already linked to another order")
		}
		return fmt.Errorf("order update error: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("order existence check error: %w", err)
		}
		if !exists {
			return domain.NotFoundError("order not found: %s", order.ID)
		}
		return domain.ConflictError("order %s was modified concurrently, reload and retry", order.ID)
	}

	if err := insertChanges(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("order update commit error: %w", err)
	}

	order.Version++
	order.Changes = nil
	return nil
}

func (r *OrderRepository) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("order not found: %s", orderID)
		}
		return nil, fmt.Errorf("order receive error: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) GetOrderByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE checkout_request_id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, checkoutRequestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("no order for checkout request %s", checkoutRequestID)
		}
		return nil, fmt.Errorf("order receive error: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) GetOrderByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE owner_id = $1 AND idempotency_key = $2`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, ownerID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("no order for idempotency key")
		}
		return nil, fmt.Errorf("order receive error: %w", err)
	}
	return order, nil
}

// GetOrdersByOwnerID returns one page of the owner's orders, newest first,
// along with the owner's total order count.
func (r *OrderRepository) GetOrdersByOwnerID(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Order, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("orders count error: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	orders, err := r.queryOrders(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// GetOrdersByStatus returns the staff queue for one status, oldest first.
func (r *OrderRepository) GetOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE status = $1
		ORDER BY created_at ASC`

	return r.queryOrders(ctx, query, status)
}

func (r *OrderRepository) GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]domain.StatusChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT from_status, to_status, actor, note, changed_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("status history retrieval error: %w", err)
	}
	defer rows.Close()

	var history []domain.StatusChange
	for rows.Next() {
		var change domain.StatusChange
		if err := rows.Scan(&change.From, &change.To, &change.Actor, &change.Note, &change.At); err != nil {
			return nil, fmt.Errorf("status history scan error: %w", err)
		}
		history = append(history, change)
	}
	return history, rows.Err()
}

func (r *OrderRepository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("orders retrieval error: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("order scan error: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var itemsJSON []byte
	var checkoutID, idempotencyKey sql.NullString
	var resultCode, rating sql.NullInt64

	err := row.Scan(
		&order.ID,
		&order.OwnerID,
		&itemsJSON,
		&order.Subtotal,
		&order.DeliveryFee,
		&order.Discount,
		&order.TotalAmount,
		&order.PromoCode,
		&order.ServiceType,
		&order.DeliveryAddress,
		&order.PaymentMethod,
		&order.MpesaPhone,
		&checkoutID,
		&order.MerchantRequestID,
		&order.Status,
		&order.PaymentStatus,
		&order.TransactionID,
		&resultCode,
		&order.PaymentResultDesc,
		&order.RefundRequired,
		&order.ReconciliationNote,
		&order.AssignedTo,
		&rating,
		&order.Review,
		&idempotencyKey,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("items deserialization error: %w", err)
	}

	order.CheckoutRequestID = checkoutID.String
	order.IdempotencyKey = idempotencyKey.String
	if resultCode.Valid {
		code := int(resultCode.Int64)
		order.PaymentResultCode = &code
	}
	if rating.Valid {
		order.Rating = int(rating.Int64)
	}

	return order, nil
}

func insertChanges(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	for _, change := range order.Changes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_status_history (order_id, from_status, to_status, actor, note, changed_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID, change.From, change.To, change.Actor, change.Note, change.At)
		if err != nil {
			return fmt.Errorf("status history insert error: %w", err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullRating(rating int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(rating), Valid: rating > 0}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
