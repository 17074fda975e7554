package cart

import (
	"bakery-orders/internal/models"
)

// Totals are the derived money fields of a cart or order
type Totals struct {
	ItemsPrice    float64 `json:"itemsPrice"`
	ShippingPrice float64 `json:"shippingPrice"`
	TaxPrice      float64 `json:"taxPrice"`
	TotalPrice    float64 `json:"totalPrice"`
}

// ComputeTotals recomputes all derived money fields from the line items.
// Shipping comes from the chosen delivery option and is waived above its
// free-shipping threshold. Totals are always derived, never hand-edited.
func ComputeTotals(items []models.CartLineItem, option *models.DeliveryDate, taxRate float64) Totals {
	var itemsPrice float64
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		itemsPrice += item.EffectivePrice() * float64(item.Quantity)
	}
	return totalsFrom(itemsPrice, option, taxRate)
}

// ComputeOrderTotals derives the money fields from price-frozen order items,
// so a persisted order is always consistent with its own item rows
func ComputeOrderTotals(items []models.OrderItem, option *models.DeliveryDate, taxRate float64) Totals {
	var itemsPrice float64
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		itemsPrice += item.EffectivePrice() * float64(item.Quantity)
	}
	return totalsFrom(itemsPrice, option, taxRate)
}

func totalsFrom(itemsPrice float64, option *models.DeliveryDate, taxRate float64) Totals {
	itemsPrice = round2(itemsPrice)

	var shipping float64
	if option != nil {
		shipping = option.ShippingPrice
		if option.FreeShippingMinPrice > 0 && itemsPrice >= option.FreeShippingMinPrice {
			shipping = 0
		}
	}

	tax := round2(itemsPrice * taxRate)

	return Totals{
		ItemsPrice:    itemsPrice,
		ShippingPrice: shipping,
		TaxPrice:      tax,
		TotalPrice:    round2(itemsPrice + shipping + tax),
	}
}
