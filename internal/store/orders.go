package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bakery-orders/internal/models"
)

// CreateOrderTx persists an order and its price-frozen items in one
// transaction. The order id and created_at are filled in on success.
func (s *Store) CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (user_id, payment_method, items_price, shipping_price, tax_price,
			total_price, shipping_address, is_paid, paid_at, expected_delivery_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err = tx.GetContext(ctx, order, query,
		order.UserID, order.PaymentMethod, order.ItemsPrice, order.ShippingPrice,
		order.TaxPrice, order.TotalPrice, order.ShippingAddress, order.IsPaid,
		order.PaidAt, order.ExpectedDeliveryDate)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, name, slug, category, image,
			color, size, unit_price, discounted_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.GetContext(ctx, &items[i].ID, itemQuery,
			items[i].OrderID, items[i].ProductID, items[i].Name, items[i].Slug,
			items[i].Category, items[i].Image, items[i].Color, items[i].Size,
			items[i].UnitPrice, items[i].DiscountedPrice, items[i].Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	order.Items = items
	return nil
}

// GetOrderByID retrieves an order without its items
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// MarkOrderPaid performs the exactly-once paid transition as a database
// compare-and-set. Returns false when the order was already paid, so
// concurrent duplicate deliveries race for a single winning row.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID int64, paidAt time.Time, result models.PaymentResult) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET is_paid = TRUE, paid_at = $1, payment_result = $2
		 WHERE id = $3 AND is_paid = FALSE`,
		paidAt, result, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// MarkOrderDelivered flips the delivery flag, independent of payment state
func (s *Store) MarkOrderDelivered(ctx context.Context, orderID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET is_delivered = TRUE, delivered_at = NOW() WHERE id = $1", orderID)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	return nil
}

// MarkOrderViewed marks an order as seen on the admin dashboard
func (s *Store) MarkOrderViewed(ctx context.Context, orderID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET viewed = TRUE WHERE id = $1", orderID)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	return nil
}

// AdminOrderQuery describes the admin dashboard's filter/sort/paginate view
type AdminOrderQuery struct {
	Page     int
	PageSize int
	OrderID  int64 // 0 means no filter
	SortBy   string
	SortDir  string
}

// OrderStats summarizes the order book for the admin dashboard
type OrderStats struct {
	TotalOrders  int64   `db:"total_orders" json:"totalOrders"`
	PaidOrders   int64   `db:"paid_orders" json:"paidOrders"`
	UnpaidOrders int64   `db:"unpaid_orders" json:"unpaidOrders"`
	Unviewed     int64   `db:"unviewed" json:"unviewed"`
	RevenueToday float64 `db:"revenue_today" json:"revenueToday"`
}

var adminSortColumns = map[string]string{
	"createdAt":  "created_at",
	"totalPrice": "total_price",
	"isPaid":     "is_paid",
	"id":         "id",
}

// ListOrders runs the admin order query and reports the page count
func (s *Store) ListOrders(ctx context.Context, q AdminOrderQuery) ([]models.Order, int, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}

	sortCol, ok := adminSortColumns[q.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	sortDir := "DESC"
	if q.SortDir == "asc" {
		sortDir = "ASC"
	}

	where := ""
	args := []interface{}{}
	if q.OrderID > 0 {
		where = "WHERE id = $1"
		args = append(args, q.OrderID)
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM orders %s", where)
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	offset := (q.Page - 1) * q.PageSize
	listQuery := fmt.Sprintf(
		"SELECT * FROM orders %s ORDER BY %s %s LIMIT %d OFFSET %d",
		where, sortCol, sortDir, q.PageSize, offset)

	var orders []models.Order
	if err := s.db.SelectContext(ctx, &orders, listQuery, args...); err != nil {
		return nil, 0, err
	}

	totalPages := int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	return orders, totalPages, nil
}

// GetOrderStats computes dashboard aggregates in one round trip
func (s *Store) GetOrderStats(ctx context.Context) (*OrderStats, error) {
	var stats OrderStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total_orders,
			COUNT(*) FILTER (WHERE is_paid) AS paid_orders,
			COUNT(*) FILTER (WHERE NOT is_paid) AS unpaid_orders,
			COUNT(*) FILTER (WHERE NOT viewed) AS unviewed,
			COALESCE(SUM(total_price) FILTER (WHERE is_paid AND paid_at >= CURRENT_DATE), 0) AS revenue_today
		FROM orders`)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
