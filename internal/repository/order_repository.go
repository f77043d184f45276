package repository

import (
	"database/sql"
	"errors"
	"time"

	"cryptotrader/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository - журнал ордеров закрытия, выставленных риск-контролем
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, external_id, exchange, symbol, side, amount, filled_amount, avg_price, fee,
		reduce_only, reason, status, error_message, created_at`

// Create создает запись об ордере
func (r *OrderRepository) Create(order *models.OrderRecord) error {
	query := `
		INSERT INTO orders (external_id, exchange, symbol, side, amount, filled_amount, avg_price, fee,
			reduce_only, reason, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	return r.db.QueryRow(
		query,
		order.ExternalID,
		order.Exchange,
		order.Symbol,
		order.Side,
		order.Amount,
		order.FilledAmount,
		order.AvgPrice,
		order.Fee,
		order.ReduceOnly,
		order.Reason,
		order.Status,
		order.ErrorMessage,
		order.CreatedAt,
	).Scan(&order.ID)
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id int) (*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// GetRecent возвращает последние N ордеров
func (r *OrderRepository) GetRecent(limit int) ([]*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1`
	return r.query(query, limit)
}

// GetBySymbol возвращает ордера по символу
func (r *OrderRepository) GetBySymbol(symbol string, limit int) ([]*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE symbol = $1 ORDER BY created_at DESC LIMIT $2`
	return r.query(query, symbol, limit)
}

// CountFailedSince возвращает число неудачных закрытий с момента since
func (r *OrderRepository) CountFailedSince(since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM orders WHERE status = $1 AND created_at >= $2`,
		models.OrderStatusFailed, since).Scan(&n)
	return n, err
}

func (r *OrderRepository) query(query string, args ...interface{}) ([]*models.OrderRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.OrderRecord
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func scanOrder(s rowScanner) (*models.OrderRecord, error) {
	order := &models.OrderRecord{}
	err := s.Scan(
		&order.ID,
		&order.ExternalID,
		&order.Exchange,
		&order.Symbol,
		&order.Side,
		&order.Amount,
		&order.FilledAmount,
		&order.AvgPrice,
		&order.Fee,
		&order.ReduceOnly,
		&order.Reason,
		&order.Status,
		&order.ErrorMessage,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}
