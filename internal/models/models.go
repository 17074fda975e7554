package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Payment methods accepted at checkout
const (
	PaymentMethodStripe         = "Stripe"
	PaymentMethodFreeOrder      = "Free Order"
	PaymentMethodCashOnDelivery = "Cash On Delivery"
)

// Product represents a catalog product
type Product struct {
	ID              int64     `db:"id" json:"id"`
	Slug            string    `db:"slug" json:"slug"`
	Name            string    `db:"name" json:"name"`
	Category        string    `db:"category" json:"category"`
	Image           string    `db:"image" json:"image"`
	Price           float64   `db:"price" json:"price"`
	DiscountedPrice *float64  `db:"discounted_price" json:"discountedPrice,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`

	Variants []ProductVariant `db:"-" json:"variants"`
}

// EffectivePrice returns the discounted price when one is set
func (p *Product) EffectivePrice() float64 {
	if p.DiscountedPrice != nil {
		return *p.DiscountedPrice
	}
	return p.Price
}

// Variant finds the variant matching a (color, size) pair
func (p *Product) Variant(color, size string) (*ProductVariant, bool) {
	for i := range p.Variants {
		if p.Variants[i].Color == color && p.Variants[i].Size == size {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// ProductVariant is the per-(color, size) stock counter embedded in a product.
// CountInStock is decremented only by the payment reconciler, post-payment.
type ProductVariant struct {
	ID           int64  `db:"id" json:"-"`
	ProductID    int64  `db:"product_id" json:"-"`
	Color        string `db:"color" json:"color"`
	Size         string `db:"size" json:"size"`
	CountInStock int    `db:"count_in_stock" json:"countInStock"`
}

// CartLineItem is a client-held cart entry. VariantSnapshot is a cache of
// stock at add-time and is always revalidated against the live catalog.
type CartLineItem struct {
	ClientID        string           `json:"clientId"`
	ProductID       int64            `json:"productId"`
	Name            string           `json:"name"`
	Slug            string           `json:"slug"`
	Category        string           `json:"category"`
	UnitPrice       float64          `json:"unitPrice"`
	DiscountedPrice *float64         `json:"discountedPrice,omitempty"`
	DiscountPercent *float64         `json:"discountPercent,omitempty"`
	Quantity        int              `json:"quantity"`
	Image           string           `json:"image"`
	Color           string           `json:"color"`
	Size            string           `json:"size"`
	VariantSnapshot []ProductVariant `json:"variantSnapshot,omitempty"`
}

// EffectivePrice returns the discounted price when one is set
func (li *CartLineItem) EffectivePrice() float64 {
	if li.DiscountedPrice != nil {
		return *li.DiscountedPrice
	}
	return li.UnitPrice
}

// Cart is client-owned state. Derived totals are recomputed server-side and
// never trusted as submitted.
type Cart struct {
	Items             []CartLineItem   `json:"items"`
	ItemsPrice        float64          `json:"itemsPrice"`
	ShippingPrice     float64          `json:"shippingPrice"`
	TaxPrice          float64          `json:"taxPrice"`
	TotalPrice        float64          `json:"totalPrice"`
	ShippingAddress   *ShippingAddress `json:"shippingAddress,omitempty"`
	DeliveryDateIndex *int             `json:"deliveryDateIndex,omitempty"`
}

// ShippingAddress is stored on the order as a JSONB document
type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *ShippingAddress) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for shipping address: %T", src)
	}
	return json.Unmarshal(b, a)
}

// PaymentResult records what the provider reported for the winning
// payment-confirmed event. ID is the provider event id and doubles as the
// idempotency witness.
type PaymentResult struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	EmailAddress string `json:"email_address"`
	PricePaid    string `json:"pricePaid"`
}

func (r PaymentResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *PaymentResult) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for payment result: %T", src)
	}
	return json.Unmarshal(b, r)
}

// Order is the server-owned aggregate. Items are a price-frozen copy of the
// cart at creation; catalog edits after placement never touch them. Once
// IsPaid flips to true it is never reset.
type Order struct {
	ID                   int64            `db:"id" json:"_id"`
	UserID               int64            `db:"user_id" json:"user"`
	PaymentMethod        string           `db:"payment_method" json:"paymentMethod"`
	ItemsPrice           float64          `db:"items_price" json:"itemsPrice"`
	ShippingPrice        float64          `db:"shipping_price" json:"shippingPrice"`
	TaxPrice             float64          `db:"tax_price" json:"taxPrice"`
	TotalPrice           float64          `db:"total_price" json:"totalPrice"`
	ShippingAddress      ShippingAddress  `db:"shipping_address" json:"shippingAddress"`
	IsPaid               bool             `db:"is_paid" json:"isPaid"`
	PaidAt               *time.Time       `db:"paid_at" json:"paidAt,omitempty"`
	PaymentResult        *PaymentResult   `db:"payment_result" json:"paymentResult,omitempty"`
	IsDelivered          bool             `db:"is_delivered" json:"isDelivered"`
	DeliveredAt          *time.Time       `db:"delivered_at" json:"deliveredAt,omitempty"`
	Viewed               bool             `db:"viewed" json:"viewed"`
	ExpectedDeliveryDate time.Time        `db:"expected_delivery_date" json:"expectedDeliveryDate"`
	CreatedAt            time.Time        `db:"created_at" json:"createdAt"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem is a deep, price-frozen copy of a cart line item
type OrderItem struct {
	ID              int64    `db:"id" json:"-"`
	OrderID         int64    `db:"order_id" json:"-"`
	ProductID       int64    `db:"product_id" json:"productId"`
	Name            string   `db:"name" json:"name"`
	Slug            string   `db:"slug" json:"slug"`
	Category        string   `db:"category" json:"category"`
	Image           string   `db:"image" json:"image"`
	Color           string   `db:"color" json:"color"`
	Size            string   `db:"size" json:"size"`
	UnitPrice       float64  `db:"unit_price" json:"unitPrice"`
	DiscountedPrice *float64 `db:"discounted_price" json:"discountedPrice,omitempty"`
	Quantity        int      `db:"quantity" json:"quantity"`
}

// EffectivePrice returns the discounted price when one is set
func (oi *OrderItem) EffectivePrice() float64 {
	if oi.DiscountedPrice != nil {
		return *oi.DiscountedPrice
	}
	return oi.UnitPrice
}

// DayHours is one weekday's opening window. Closed overrides Open/Close.
type DayHours struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed"`
}

// DeliveryDate is one selectable delivery option
type DeliveryDate struct {
	Name                 string  `json:"name"`
	DaysToDeliver        int     `json:"daysToDeliver"`
	ShippingPrice        float64 `json:"shippingPrice"`
	FreeShippingMinPrice float64 `json:"freeShippingMinPrice"`
}

// Setting is the single-row store configuration document
type Setting struct {
	OpeningHours  map[string]DayHours `json:"openingHours"`
	DeliveryDates []DeliveryDate      `json:"deliveryDates"`
	TaxRate       float64             `json:"taxRate"`
}

func (s Setting) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *Setting) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type for setting: %T", src)
	}
	return json.Unmarshal(b, s)
}
