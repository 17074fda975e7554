package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bakery-orders/internal/cart"
	"bakery-orders/internal/models"
	"bakery-orders/internal/store"
	"bakery-orders/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the order persistence surface the assembler needs
type OrderStore interface {
	CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	MarkOrderDelivered(ctx context.Context, orderID int64) error
	MarkOrderViewed(ctx context.Context, orderID int64) error
	ListOrders(ctx context.Context, q store.AdminOrderQuery) ([]models.Order, int, error)
	GetOrderStats(ctx context.Context) (*store.OrderStats, error)
}

// SettingsStore serves the store configuration (opening hours, delivery
// options, tax rate)
type SettingsStore interface {
	GetSetting(ctx context.Context) (*models.Setting, error)
}

// EventPublisher publishes domain events
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
}

// OrderService is the order assembler: it gates checkout server-side and
// commits the immutable order aggregate.
type OrderService struct {
	orders    OrderStore
	settings  SettingsStore
	catalog   Catalog
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(orders OrderStore, settings SettingsStore, catalog Catalog, publisher EventPublisher) *OrderService {
	return &OrderService{
		orders:    orders,
		settings:  settings,
		catalog:   catalog,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// CreateOrderRequest carries the client's cart and checkout choices. Claimed
// totals are verified, never trusted.
type CreateOrderRequest struct {
	Items             []models.CartLineItem  `json:"items" binding:"required,min=1"`
	ItemsPrice        float64                `json:"itemsPrice"`
	ShippingAddress   models.ShippingAddress `json:"shippingAddress" binding:"required"`
	DeliveryDateIndex int                    `json:"deliveryDateIndex"`
	PaymentMethod     string                 `json:"paymentMethod" binding:"required"`
}

// CreateOrderData is the success payload of order creation
type CreateOrderData struct {
	OrderID int64 `json:"orderId"`
}

// CreateOrderResponse distinguishes client-correctable validation failures
// (Success=false, err=nil) from retryable system failures (err != nil).
type CreateOrderResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    *CreateOrderData `json:"data,omitempty"`
}

var validPaymentMethods = map[string]bool{
	models.PaymentMethodStripe:         true,
	models.PaymentMethodFreeOrder:      true,
	models.PaymentMethodCashOnDelivery: true,
}

// CreateOrder re-runs the full cart validation and opening-hours gate, then
// freezes a deep copy of the line items into an order inside one transaction.
// The cart itself stays client-side; for paid methods the client keeps it
// until payment confirmation so a dropped connection cannot lose it.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if !validPaymentMethods[req.PaymentMethod] {
		return &CreateOrderResponse{Message: fmt.Sprintf("Unsupported payment method: %s", req.PaymentMethod)}, nil
	}

	setting, err := s.settings.GetSetting(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	now := s.now()

	hours := cart.IsWithinOpeningHours(setting.OpeningHours, now)
	if !hours.IsOpen {
		util.OrdersFailedTotal.WithLabelValues("closed_hours").Inc()
		return &CreateOrderResponse{Message: hours.Message}, nil
	}

	if req.DeliveryDateIndex < 0 || req.DeliveryDateIndex >= len(setting.DeliveryDates) {
		return &CreateOrderResponse{Message: "Please choose a valid delivery date."}, nil
	}
	option := setting.DeliveryDates[req.DeliveryDateIndex]

	proposed := &models.Cart{
		Items:      req.Items,
		ItemsPrice: req.ItemsPrice,
	}

	catalog, err := s.catalog.Products(ctx, productIDs(req.Items))
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	validation := cart.Validate(proposed, catalog)
	if !validation.IsValid {
		util.OrdersFailedTotal.WithLabelValues("invalid_cart").Inc()
		messages := append([]string{}, validation.Errors...)
		messages = append(messages, validation.Warnings...)
		return &CreateOrderResponse{Message: strings.Join(messages, " ")}, nil
	}

	// Totals come from the frozen items, not the client's line prices, so the
	// persisted order always agrees with its own item rows
	items := freezeItems(req.Items, catalog)
	totals := cart.ComputeOrderTotals(items, &option, setting.TaxRate)

	ready := cart.IsReadyForCheckout(&models.Cart{
		Items:      req.Items,
		ItemsPrice: totals.ItemsPrice,
		TotalPrice: totals.TotalPrice,
	})
	if !ready {
		util.OrdersFailedTotal.WithLabelValues("not_ready").Inc()
		return &CreateOrderResponse{Message: "Your cart is not ready for checkout."}, nil
	}

	if req.PaymentMethod == models.PaymentMethodFreeOrder && totals.TotalPrice > 0 {
		return &CreateOrderResponse{Message: "Free Order is only available for zero-total carts."}, nil
	}

	order := &models.Order{
		UserID:               userID,
		PaymentMethod:        req.PaymentMethod,
		ItemsPrice:           totals.ItemsPrice,
		ShippingPrice:        totals.ShippingPrice,
		TaxPrice:             totals.TaxPrice,
		TotalPrice:           totals.TotalPrice,
		ShippingAddress:      req.ShippingAddress,
		ExpectedDeliveryDate: now.AddDate(0, 0, option.DaysToDeliver),
	}

	// Free orders bypass the payment provider entirely
	if req.PaymentMethod == models.PaymentMethodFreeOrder {
		order.IsPaid = true
		order.PaidAt = &now
	}

	if err := s.orders.CreateOrderTx(ctx, order, items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("payment_method", req.PaymentMethod),
		zap.Float64("total_price", order.TotalPrice))

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: now,
		},
		OrderID:       order.ID,
		UserID:        userID,
		PaymentMethod: req.PaymentMethod,
		TotalPrice:    order.TotalPrice,
		ItemCount:     len(items),
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &CreateOrderResponse{
		Success: true,
		Message: "Order placed successfully.",
		Data:    &CreateOrderData{OrderID: order.ID},
	}, nil
}

// freezeItems deep-copies cart line items into order items with prices taken
// from the live catalog, so subsequent catalog edits never touch the order
func freezeItems(items []models.CartLineItem, catalog map[int64]*models.Product) []models.OrderItem {
	frozen := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		product := catalog[item.ProductID]

		var discounted *float64
		if product.DiscountedPrice != nil {
			d := *product.DiscountedPrice
			discounted = &d
		}

		frozen = append(frozen, models.OrderItem{
			ProductID:       item.ProductID,
			Name:            product.Name,
			Slug:            product.Slug,
			Category:        product.Category,
			Image:           product.Image,
			Color:           item.Color,
			Size:            item.Size,
			UnitPrice:       product.Price,
			DiscountedPrice: discounted,
			Quantity:        item.Quantity,
		})
	}
	return frozen
}

func productIDs(items []models.CartLineItem) []int64 {
	seen := make(map[int64]bool, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

// RefreshCart runs the drift refresher against the live catalog: a pull-model
// reconciliation pass triggered when the cart UI is reopened
func (s *OrderService) RefreshCart(ctx context.Context, c *models.Cart) (*cart.RefreshResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.RefreshCart")
	defer span.End()

	setting, err := s.settings.GetSetting(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	catalog, err := s.catalog.Products(ctx, productIDs(c.Items))
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	var option *models.DeliveryDate
	if c.DeliveryDateIndex != nil && *c.DeliveryDateIndex >= 0 && *c.DeliveryDateIndex < len(setting.DeliveryDates) {
		option = &setting.DeliveryDates[*c.DeliveryDateIndex]
	}

	result := cart.Refresh(c, catalog, option, setting.TaxRate)
	if len(result.PriceChanges) > 0 {
		util.CartRefreshChangesTotal.WithLabelValues("price").Add(float64(len(result.PriceChanges)))
	}
	if len(result.Warnings) > 0 {
		util.CartRefreshChangesTotal.WithLabelValues("stock").Add(float64(len(result.Warnings)))
	}
	return &result, nil
}

// ValidateCart runs the advisory validation used by the cart UI
func (s *OrderService) ValidateCart(ctx context.Context, c *models.Cart) (*cart.ValidationResult, error) {
	catalog, err := s.catalog.Products(ctx, productIDs(c.Items))
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	result := cart.Validate(c, catalog)
	return &result, nil
}

// GetOrder retrieves an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.orders.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	order.Items = items
	return order, nil
}

// GetOrderStatus retrieves an order without items, for the checkout poll
func (s *OrderService) GetOrderStatus(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.orders.GetOrderByID(ctx, orderID)
}

// GetMyOrders lists a user's orders, newest first
func (s *OrderService) GetMyOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.orders.GetOrdersByUserID(ctx, userID)
}

// AdminSnapshot is one admin dashboard refresh: the current page of orders
// plus aggregate stats
type AdminSnapshot struct {
	Orders     []models.Order    `json:"orders"`
	TotalPages int               `json:"totalPages"`
	Stats      *store.OrderStats `json:"stats"`
	Timestamp  time.Time         `json:"timestamp"`
}

// AdminOrders runs the admin order query and stats in one snapshot
func (s *OrderService) AdminOrders(ctx context.Context, q store.AdminOrderQuery) (*AdminSnapshot, error) {
	orders, totalPages, err := s.orders.ListOrders(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	stats, err := s.orders.GetOrderStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load order stats: %w", err)
	}

	return &AdminSnapshot{
		Orders:     orders,
		TotalPages: totalPages,
		Stats:      stats,
		Timestamp:  s.now(),
	}, nil
}

// MarkDelivered flips the delivery flag, independent of payment state
func (s *OrderService) MarkDelivered(ctx context.Context, orderID int64) error {
	return s.orders.MarkOrderDelivered(ctx, orderID)
}

// MarkViewed marks an order as seen on the admin dashboard
func (s *OrderService) MarkViewed(ctx context.Context, orderID int64) error {
	return s.orders.MarkOrderViewed(ctx, orderID)
}
