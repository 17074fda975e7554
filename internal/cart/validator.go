// Package cart holds the pure cart-consistency logic: validation against the
// live catalog, checkout readiness, opening-hours gating, derived totals, and
// the stock/price drift refresher. Nothing in this package mutates stock.
package cart

import (
	"fmt"
	"math"

	"bakery-orders/internal/models"
)

// PriceEpsilon bounds acceptable rounding drift when comparing money values
const PriceEpsilon = 0.01

// ValidationResult reports everything wrong with a proposed cart
type ValidationResult struct {
	IsValid      bool                  `json:"isValid"`
	Errors       []string              `json:"errors"`
	Warnings     []string              `json:"warnings"`
	InvalidItems []models.CartLineItem `json:"invalidItems"`
}

// Validate checks a proposed cart's line items against the current catalog.
// Prices are recomputed from the catalog, never taken from the client, so a
// tampered claimed total or per-line price surfaces as a hard error.
func Validate(c *models.Cart, catalog map[int64]*models.Product) ValidationResult {
	result := ValidationResult{IsValid: true}

	var recomputedItemsPrice float64

	for _, item := range c.Items {
		if item.Quantity < 0 {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: quantity must not be negative", item.Name))
			result.InvalidItems = append(result.InvalidItems, item)
			continue
		}
		if item.Quantity == 0 {
			// Equivalent to removal, contributes nothing
			continue
		}

		product, ok := catalog[item.ProductID]
		if !ok {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s is no longer available", item.Name))
			result.InvalidItems = append(result.InvalidItems, item)
			continue
		}

		variant, ok := product.Variant(item.Color, item.Size)
		if !ok {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s (%s/%s) is no longer offered in this variant", item.Name, item.Color, item.Size))
			result.InvalidItems = append(result.InvalidItems, item)
			continue
		}

		if item.Quantity > variant.CountInStock {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s (%s/%s): only %d in stock, %d more requested than available",
					item.Name, item.Color, item.Size, variant.CountInStock, item.Quantity-variant.CountInStock))
			result.InvalidItems = append(result.InvalidItems, item)
			continue
		}

		livePrice := product.EffectivePrice()
		if math.Abs(item.EffectivePrice()-livePrice) > PriceEpsilon {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: price is %.2f, not %.2f", item.Name, livePrice, item.EffectivePrice()))
			result.InvalidItems = append(result.InvalidItems, item)
			continue
		}

		recomputedItemsPrice += livePrice * float64(item.Quantity)
	}

	recomputedItemsPrice = round2(recomputedItemsPrice)
	if len(result.Errors) == 0 && math.Abs(recomputedItemsPrice-c.ItemsPrice) > PriceEpsilon {
		result.Errors = append(result.Errors,
			fmt.Sprintf("cart total mismatch: expected %.2f, got %.2f", recomputedItemsPrice, c.ItemsPrice))
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// IsReadyForCheckout is the advisory UI gate: non-empty cart, positive
// quantities, totals populated. The authoritative gate re-runs Validate
// server-side in the order assembler.
func IsReadyForCheckout(c *models.Cart) bool {
	if c == nil || len(c.Items) == 0 {
		return false
	}

	allFree := true
	for _, item := range c.Items {
		if item.Quantity <= 0 {
			return false
		}
		if item.EffectivePrice() > 0 {
			allFree = false
		}
	}

	if !allFree && c.TotalPrice <= 0 {
		return false
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
