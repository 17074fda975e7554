package cart

import (
	"fmt"
	"math"

	"bakery-orders/internal/models"
)

// Price change directions
const (
	ChangeIncrease = "increase"
	ChangeDecrease = "decrease"
)

// PriceChange records one line item whose stored price drifted from catalog
type PriceChange struct {
	ClientID    string  `json:"clientId"`
	Name        string  `json:"name"`
	OldPrice    float64 `json:"oldPrice"`
	NewPrice    float64 `json:"newPrice"`
	PriceChange float64 `json:"priceChange"`
	ChangeType  string  `json:"changeType"`
}

// RefreshResult is the outcome of one reconciliation pass over a cart
type RefreshResult struct {
	HasChanges   bool          `json:"hasChanges"`
	PriceChanges []PriceChange `json:"priceChanges"`
	Warnings     []string      `json:"warnings"`
	UpdatedCart  models.Cart   `json:"updatedCart"`
}

// Refresh reconciles a reopened cart against the live catalog: stale prices
// are rewritten (never silently kept), quantities above live stock are
// clamped down rather than rejected, and vanished variants are dropped with a
// warning. The pass is idempotent; concurrent refreshes converge on the same
// cart.
func Refresh(c *models.Cart, catalog map[int64]*models.Product, option *models.DeliveryDate, taxRate float64) RefreshResult {
	result := RefreshResult{}

	updated := make([]models.CartLineItem, 0, len(c.Items))
	for _, item := range c.Items {
		product, ok := catalog[item.ProductID]
		if !ok {
			result.HasChanges = true
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s was removed from your cart: no longer available", item.Name))
			continue
		}

		variant, ok := product.Variant(item.Color, item.Size)
		if !ok {
			result.HasChanges = true
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s (%s/%s) was removed from your cart: variant no longer offered",
					item.Name, item.Color, item.Size))
			continue
		}

		oldPrice := item.EffectivePrice()
		newPrice := product.EffectivePrice()
		if math.Abs(newPrice-oldPrice) > PriceEpsilon {
			changeType := ChangeIncrease
			if newPrice < oldPrice {
				changeType = ChangeDecrease
			}
			result.PriceChanges = append(result.PriceChanges, PriceChange{
				ClientID:    item.ClientID,
				Name:        item.Name,
				OldPrice:    oldPrice,
				NewPrice:    newPrice,
				PriceChange: round2(newPrice - oldPrice),
				ChangeType:  changeType,
			})
			result.HasChanges = true
		}

		item.UnitPrice = product.Price
		item.DiscountedPrice = product.DiscountedPrice
		if product.DiscountedPrice != nil && product.Price > 0 {
			pct := round2((1 - *product.DiscountedPrice/product.Price) * 100)
			item.DiscountPercent = &pct
		} else {
			item.DiscountPercent = nil
		}
		item.VariantSnapshot = product.Variants

		if item.Quantity > variant.CountInStock {
			result.HasChanges = true
			if variant.CountInStock == 0 {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s (%s/%s) was removed from your cart: out of stock",
						item.Name, item.Color, item.Size))
				continue
			}
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s (%s/%s): quantity reduced from %d to %d (stock changed)",
					item.Name, item.Color, item.Size, item.Quantity, variant.CountInStock))
			item.Quantity = variant.CountInStock
		}

		updated = append(updated, item)
	}

	totals := ComputeTotals(updated, option, taxRate)

	result.UpdatedCart = models.Cart{
		Items:             updated,
		ItemsPrice:        totals.ItemsPrice,
		ShippingPrice:     totals.ShippingPrice,
		TaxPrice:          totals.TaxPrice,
		TotalPrice:        totals.TotalPrice,
		ShippingAddress:   c.ShippingAddress,
		DeliveryDateIndex: c.DeliveryDateIndex,
	}
	return result
}
