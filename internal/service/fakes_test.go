package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bakery-orders/internal/models"
	"bakery-orders/internal/store"
)

// In-memory fakes shared by the service tests. The order store mirrors the
// SQL store's contract, including the compare-and-set on MarkOrderPaid.

type fakeOrderStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*models.Order
	items  map[int64][]models.OrderItem
	stock  map[string]int

	createErr      error
	decrementCalls int
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders: make(map[int64]*models.Order),
		items:  make(map[int64][]models.OrderItem),
		stock:  make(map[string]int),
	}
}

func stockKey(productID int64, color, size string) string {
	return fmt.Sprintf("%d/%s/%s", productID, color, size)
}

func (f *fakeOrderStore) setStock(productID int64, color, size string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[stockKey(productID, color, size)] = count
}

func (f *fakeOrderStore) stockOf(productID int64, color, size string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[stockKey(productID, color, size)]
}

func (f *fakeOrderStore) addOrder(order *models.Order, items []models.OrderItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order.ID == 0 {
		f.nextID++
		order.ID = f.nextID
	}
	f.orders[order.ID] = order
	f.items[order.ID] = items
}

func (f *fakeOrderStore) CreateOrderTx(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order.ID = f.nextID
	order.CreatedAt = time.Now()
	for i := range items {
		items[i].OrderID = order.ID
		items[i].ID = int64(i + 1)
	}
	stored := *order
	f.orders[order.ID] = &stored
	f.items[order.ID] = items
	order.Items = items
	return nil
}

func (f *fakeOrderStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", store.ErrOrderNotFound, id)
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[orderID], nil
}

func (f *fakeOrderStore) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			result = append(result, *order)
		}
	}
	return result, nil
}

func (f *fakeOrderStore) MarkOrderDelivered(ctx context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %d", store.ErrOrderNotFound, orderID)
	}
	now := time.Now()
	order.IsDelivered = true
	order.DeliveredAt = &now
	return nil
}

func (f *fakeOrderStore) MarkOrderViewed(ctx context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %d", store.ErrOrderNotFound, orderID)
	}
	order.Viewed = true
	return nil
}

func (f *fakeOrderStore) ListOrders(ctx context.Context, q store.AdminOrderQuery) ([]models.Order, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.Order
	for _, order := range f.orders {
		result = append(result, *order)
	}
	return result, 1, nil
}

func (f *fakeOrderStore) GetOrderStats(ctx context.Context) (*store.OrderStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &store.OrderStats{}
	for _, order := range f.orders {
		stats.TotalOrders++
		if order.IsPaid {
			stats.PaidOrders++
		} else {
			stats.UnpaidOrders++
		}
		if !order.Viewed {
			stats.Unviewed++
		}
	}
	return stats, nil
}

func (f *fakeOrderStore) MarkOrderPaid(ctx context.Context, orderID int64, paidAt time.Time, result models.PaymentResult) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok || order.IsPaid {
		return false, nil
	}
	order.IsPaid = true
	order.PaidAt = &paidAt
	order.PaymentResult = &result
	return true, nil
}

func (f *fakeOrderStore) DecrementVariantStock(ctx context.Context, productID int64, color, size string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decrementCalls++
	key := stockKey(productID, color, size)
	current, ok := f.stock[key]
	if !ok || current < quantity {
		return fmt.Errorf("%w: product %d (%s/%s)", store.ErrInsufficientStock, productID, color, size)
	}
	f.stock[key] = current - quantity
	return nil
}

type fakeSettings struct {
	setting *models.Setting
	err     error
}

func (f *fakeSettings) GetSetting(ctx context.Context) (*models.Setting, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.setting, nil
}

type fakeCatalog struct {
	products map[int64]*models.Product
	err      error
}

func (f *fakeCatalog) Products(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	result := make(map[int64]*models.Product, len(ids))
	for _, id := range ids {
		if product, ok := f.products[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	created []*models.OrderCreatedEvent
	paid    []*models.OrderPaidEvent
	err     error
}

func (f *fakePublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, event)
	return nil
}

func (f *fakePublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.paid = append(f.paid, event)
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	seen        map[string]bool
	invalidated []int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{seen: make(map[string]bool)}
}

func (f *fakeCache) InvalidateProduct(ctx context.Context, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, productID)
	return nil
}

func (f *fakeCache) MarkWebhookSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}
