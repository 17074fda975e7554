package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"bakery-orders/internal/models"
	"bakery-orders/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrMissingOrderID marks a structurally broken event: the provider sent a
// payment notification without our order id in its metadata. This indicates
// a provider/config mismatch, not a business condition.
var ErrMissingOrderID = errors.New("event metadata missing order id")

// Provider event kinds that can carry the same underlying charge
const (
	EventKindCheckoutCompleted = "checkout.session.completed"
	EventKindChargeSucceeded   = "charge.succeeded"
)

// PaymentConfirmed is the normalized form both provider event kinds map into
// before any business logic runs
type PaymentConfirmed struct {
	OrderID         int64
	AmountCents     int64
	PayerEmail      string
	ProviderEventID string
	Status          string
}

// ReconcilerStore is the persistence surface of the reconciliation handler
type ReconcilerStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	MarkOrderPaid(ctx context.Context, orderID int64, paidAt time.Time, result models.PaymentResult) (bool, error)
	DecrementVariantStock(ctx context.Context, productID int64, color, size string, quantity int) error
}

// ProductCache lets the reconciler drop stale catalog snapshots after a
// stock decrement and track duplicate event deliveries
type ProductCache interface {
	InvalidateProduct(ctx context.Context, productID int64) error
	MarkWebhookSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}

// PaymentReconciler consumes asynchronous provider notifications and applies
// the mark-paid + decrement-stock + receipt transition exactly once per
// order. Idempotency rides on the persisted is_paid flag, so concurrent
// deliveries across server instances are safe.
type PaymentReconciler struct {
	store     ReconcilerStore
	cache     ProductCache
	publisher EventPublisher
	secret    string
	tolerance time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentReconciler creates a new payment reconciliation handler. cache
// may be nil.
func NewPaymentReconciler(store ReconcilerStore, cache ProductCache, publisher EventPublisher, secret string, tolerance time.Duration) *PaymentReconciler {
	return &PaymentReconciler{
		store:     store,
		cache:     cache,
		publisher: publisher,
		secret:    secret,
		tolerance: tolerance,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// HandleEvent processes one raw webhook delivery. Returned errors classify
// at the boundary: signature errors and ErrMissingOrderID are client errors
// (the provider retries), store.ErrOrderNotFound is an integrity problem,
// anything else is a transient failure. A duplicate delivery returns nil.
func (r *PaymentReconciler) HandleEvent(ctx context.Context, payload []byte, sigHeader string) error {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.HandleEvent")
	defer span.End()

	if err := VerifyWebhookSignature(r.secret, payload, sigHeader, r.now(), r.tolerance); err != nil {
		util.WebhookEventsTotal.WithLabelValues("rejected_signature").Inc()
		return err
	}

	confirmed, err := NormalizeEvent(payload)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("rejected_malformed").Inc()
		return err
	}
	if confirmed == nil {
		// Event kind we don't care about; acknowledge so the provider
		// stops retrying.
		util.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		return nil
	}

	if r.cache != nil {
		if first, err := r.cache.MarkWebhookSeen(ctx, confirmed.ProviderEventID, 24*time.Hour); err == nil && !first {
			util.DuplicateWebhooksTotal.Inc()
		}
	}

	order, err := r.store.GetOrderByID(ctx, confirmed.OrderID)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("rejected_unknown_order").Inc()
		return err
	}

	// Idempotency gate: the same charge can arrive as two event kinds and
	// each kind can be redelivered. Only the first observer transitions.
	if order.IsPaid {
		util.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		r.logger.Info("Order already paid, webhook is a no-op",
			zap.Int64("order_id", order.ID),
			zap.String("provider_event_id", confirmed.ProviderEventID))
		return nil
	}

	pricePaid := formatCents(confirmed.AmountCents)

	// The amount actually charged comes from the event, not the order. A
	// mismatch against the order total is surfaced but does not block the
	// transition.
	if math.Abs(float64(confirmed.AmountCents)/100-order.TotalPrice) > 0.01 {
		util.PaymentAmountMismatchTotal.Inc()
		r.logger.Warn("Provider-reported amount differs from order total",
			zap.Int64("order_id", order.ID),
			zap.String("price_paid", pricePaid),
			zap.Float64("order_total", order.TotalPrice))
	}

	paidAt := r.now()
	result := models.PaymentResult{
		ID:           confirmed.ProviderEventID,
		Status:       confirmed.Status,
		EmailAddress: confirmed.PayerEmail,
		PricePaid:    pricePaid,
	}

	won, err := r.store.MarkOrderPaid(ctx, order.ID, paidAt, result)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	if !won {
		// A concurrent delivery won the compare-and-set
		util.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	util.OrdersPaidTotal.Inc()
	util.WebhookEventsTotal.WithLabelValues("processed").Inc()
	r.logger.Info("Order marked paid",
		zap.Int64("order_id", order.ID),
		zap.String("provider_event_id", confirmed.ProviderEventID),
		zap.String("price_paid", pricePaid))

	r.decrementStock(ctx, order.ID)
	r.publishPaid(ctx, order, confirmed, paidAt)

	return nil
}

// decrementStock is the single authoritative stock-mutation point in the
// system. Payment has already committed when it runs, so a failure here is
// an operational alert, never a rollback: overselling is recoverable, an
// unhonored charge is not.
func (r *PaymentReconciler) decrementStock(ctx context.Context, orderID int64) {
	items, err := r.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		util.StockDecrementFailuresTotal.Inc()
		r.logger.Error("Failed to load order items for stock decrement",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return
	}

	for _, item := range items {
		if err := r.store.DecrementVariantStock(ctx, item.ProductID, item.Color, item.Size, item.Quantity); err != nil {
			util.StockDecrementFailuresTotal.Inc()
			r.logger.Error("Stock decrement failed after payment, needs manual correction",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", item.ProductID),
				zap.String("color", item.Color),
				zap.String("size", item.Size),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
			continue
		}

		if r.cache != nil {
			if err := r.cache.InvalidateProduct(ctx, item.ProductID); err != nil {
				r.logger.Warn("Failed to invalidate cached product",
					zap.Int64("product_id", item.ProductID),
					zap.Error(err))
			}
		}
	}
}

func (r *PaymentReconciler) publishPaid(ctx context.Context, order *models.Order, confirmed *PaymentConfirmed, paidAt time.Time) {
	items, err := r.store.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		r.logger.Error("Failed to load order items for paid event", zap.Error(err))
		items = nil
	}

	eventItems := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		eventItems = append(eventItems, models.OrderItemData{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.EffectivePrice(),
		})
	}

	event := &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaid,
			Timestamp: paidAt,
		},
		OrderID:      order.ID,
		UserID:       order.UserID,
		PayerEmail:   confirmed.PayerEmail,
		PricePaid:    formatCents(confirmed.AmountCents),
		ProviderTxID: confirmed.ProviderEventID,
		Items:        eventItems,
	}

	if err := r.publisher.PublishOrderPaid(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}
}

type providerEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSessionObject struct {
	AmountTotal     int64 `json:"amount_total"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

type chargeObject struct {
	Amount         int64 `json:"amount"`
	BillingDetails struct {
		Email string `json:"email"`
	} `json:"billing_details"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// NormalizeEvent maps both provider event kinds into the one internal
// PaymentConfirmed shape. Returns (nil, nil) for kinds this handler does not
// process.
func NormalizeEvent(payload []byte) (*PaymentConfirmed, error) {
	var event providerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	var (
		amount   int64
		email    string
		status   string
		metadata map[string]string
	)

	switch event.Type {
	case EventKindCheckoutCompleted:
		var obj checkoutSessionObject
		if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		amount, email, status, metadata = obj.AmountTotal, obj.CustomerDetails.Email, obj.PaymentStatus, obj.Metadata

	case EventKindChargeSucceeded:
		var obj chargeObject
		if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode charge: %w", err)
		}
		amount, email, status, metadata = obj.Amount, obj.BillingDetails.Email, obj.Status, obj.Metadata

	default:
		return nil, nil
	}

	rawOrderID, ok := metadata["orderId"]
	if !ok || rawOrderID == "" {
		return nil, ErrMissingOrderID
	}
	orderID, err := strconv.ParseInt(rawOrderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid order id", ErrMissingOrderID, rawOrderID)
	}

	return &PaymentConfirmed{
		OrderID:         orderID,
		AmountCents:     amount,
		PayerEmail:      email,
		ProviderEventID: event.ID,
		Status:          normalizeStatus(status),
	}, nil
}

func normalizeStatus(status string) string {
	switch status {
	case "paid", "succeeded", "COMPLETED":
		return "COMPLETED"
	default:
		return status
	}
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
