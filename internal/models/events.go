package models

import "time"

// Event types
const (
	EventTypeOrderCreated = "ORDER_CREATED"
	EventTypeOrderPaid    = "ORDER_PAID"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is committed
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       int64   `json:"order_id"`
	UserID        int64   `json:"user_id"`
	PaymentMethod string  `json:"payment_method"`
	TotalPrice    float64 `json:"total_price"`
	ItemCount     int     `json:"item_count"`
}

// OrderPaidEvent published after the exactly-once paid transition. The
// receipt worker consumes it to send the purchase-receipt email.
type OrderPaidEvent struct {
	BaseEvent
	OrderID      int64           `json:"order_id"`
	UserID       int64           `json:"user_id"`
	PayerEmail   string          `json:"payer_email"`
	PricePaid    string          `json:"price_paid"`
	ProviderTxID string          `json:"provider_tx_id"`
	Items        []OrderItemData `json:"items"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}
