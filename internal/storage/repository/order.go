package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/kirillm/volume-bot/internal/domain"
)

const orderColumns = `id, order_id, COALESCE(client_order_id, ''), exchange, symbol, side, type,
	quantity, price, COALESCE(time_in_force, ''), status, is_bot_order, no_cancel, created_at, updated_at`

// OrderRepository реализует работу с ордерами
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый репозиторий для ордеров
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Save сохраняет ордер, принятый биржей
func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.UpdatedAt = order.CreatedAt

	query := `
		INSERT INTO orders (order_id, client_order_id, exchange, symbol, side, type, quantity, price,
		                    time_in_force, status, is_bot_order, no_cancel, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		order.OrderID,
		nullString(order.ClientOrderID),
		order.Exchange,
		order.Symbol,
		order.Side,
		order.Type,
		order.Quantity,
		decimal.NullDecimal{Decimal: order.Price, Valid: !order.Price.IsZero()},
		nullString(order.TimeInForce),
		order.Status,
		order.IsBotOrder,
		order.NoCancel,
		order.CreatedAt,
	).Scan(&order.ID)
}

// GetByOrderID получает ордер по идентификатору биржи
func (r *OrderRepository) GetByOrderID(ctx context.Context, exchange, orderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE exchange = $1 AND order_id = $2`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, exchange, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// FindByOrderIDs получает ордера по списку идентификаторов биржи
func (r *OrderRepository) FindByOrderIDs(ctx context.Context, exchange string, orderIDs []string) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE exchange = $1 AND order_id = ANY($2) ORDER BY id`
	return r.queryOrders(ctx, query, exchange, pq.Array(orderIDs))
}

// FindByStatus получает ордера пары в заданных статусах
func (r *OrderRepository) FindByStatus(ctx context.Context, pair domain.Pair, statuses []string) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE exchange = $1 AND symbol = $2 AND status = ANY($3) ORDER BY id`
	return r.queryOrders(ctx, query, pair.Exchange, pair.Symbol, pq.Array(statuses))
}

// UpdateStatus обновляет статус ордера
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatusBatch переводит ордера в статус, возвращает число измененных строк
func (r *OrderRepository) UpdateStatusBatch(ctx context.Context, exchange string, orderIDs []string, status string) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	query := `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE exchange = $3 AND order_id = ANY($4) AND status <> $1
	`
	res, err := r.db.ExecContext(ctx, query, status, time.Now(), exchange, pq.Array(orderIDs))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order domain.Order
		price decimal.NullDecimal
	)
	err := row.Scan(
		&order.ID,
		&order.OrderID,
		&order.ClientOrderID,
		&order.Exchange,
		&order.Symbol,
		&order.Side,
		&order.Type,
		&order.Quantity,
		&price,
		&order.TimeInForce,
		&order.Status,
		&order.IsBotOrder,
		&order.NoCancel,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		order.Price = price.Decimal
	}
	return &order, nil
}

// queryOrders выполняет запрос и возвращает список ордеров
func (r *OrderRepository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}

	return orders, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
