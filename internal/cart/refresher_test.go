package cart

import (
	"testing"

	"bakery-orders/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshNoDrift(t *testing.T) {
	c := &models.Cart{
		Items:      []models.CartLineItem{lineItem(2)},
		ItemsPrice: 200,
	}

	result := Refresh(c, catalogWith(croissant(5)), nil, 0)

	assert.False(t, result.HasChanges)
	assert.Empty(t, result.PriceChanges)
	assert.Empty(t, result.Warnings)
	require.Len(t, result.UpdatedCart.Items, 1)
	assert.Equal(t, 2, result.UpdatedCart.Items[0].Quantity)
	assert.Equal(t, 200.0, result.UpdatedCart.ItemsPrice)
}

func TestRefreshClampsQuantityToStock(t *testing.T) {
	c := &models.Cart{
		Items:      []models.CartLineItem{lineItem(5)},
		ItemsPrice: 500,
	}

	result := Refresh(c, catalogWith(croissant(2)), nil, 0)

	assert.True(t, result.HasChanges)
	require.Len(t, result.UpdatedCart.Items, 1)
	assert.Equal(t, 2, result.UpdatedCart.Items[0].Quantity)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "reduced from 5 to 2")
	assert.Equal(t, 200.0, result.UpdatedCart.ItemsPrice)
}

func TestRefreshDropsOutOfStockItem(t *testing.T) {
	c := &models.Cart{
		Items:      []models.CartLineItem{lineItem(2)},
		ItemsPrice: 200,
	}

	result := Refresh(c, catalogWith(croissant(0)), nil, 0)

	assert.True(t, result.HasChanges)
	assert.Empty(t, result.UpdatedCart.Items)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "out of stock")
	assert.Equal(t, 0.0, result.UpdatedCart.TotalPrice)
}

func TestRefreshRecordsPriceIncrease(t *testing.T) {
	product := croissant(5)
	product.Price = 120

	c := &models.Cart{
		Items:      []models.CartLineItem{lineItem(2)},
		ItemsPrice: 200,
	}

	result := Refresh(c, catalogWith(product), nil, 0)

	assert.True(t, result.HasChanges)
	require.Len(t, result.PriceChanges, 1)
	change := result.PriceChanges[0]
	assert.Equal(t, "li-1", change.ClientID)
	assert.Equal(t, 100.0, change.OldPrice)
	assert.Equal(t, 120.0, change.NewPrice)
	assert.Equal(t, 20.0, change.PriceChange)
	assert.Equal(t, ChangeIncrease, change.ChangeType)
	assert.Equal(t, 120.0, result.UpdatedCart.Items[0].UnitPrice)
	assert.Equal(t, 240.0, result.UpdatedCart.ItemsPrice)
}

func TestRefreshRecordsPriceDecrease(t *testing.T) {
	product := croissant(5)
	discounted := 75.0
	product.DiscountedPrice = &discounted

	c := &models.Cart{
		Items:      []models.CartLineItem{lineItem(2)},
		ItemsPrice: 200,
	}

	result := Refresh(c, catalogWith(product), nil, 0)

	require.Len(t, result.PriceChanges, 1)
	assert.Equal(t, ChangeDecrease, result.PriceChanges[0].ChangeType)
	assert.Equal(t, -25.0, result.PriceChanges[0].PriceChange)
	require.NotNil(t, result.UpdatedCart.Items[0].DiscountedPrice)
	assert.Equal(t, 75.0, *result.UpdatedCart.Items[0].DiscountedPrice)
	require.NotNil(t, result.UpdatedCart.Items[0].DiscountPercent)
	assert.Equal(t, 25.0, *result.UpdatedCart.Items[0].DiscountPercent)
}

func TestRefreshDropsVanishedVariant(t *testing.T) {
	item := lineItem(1)
	item.Color = "chocolate"
	c := &models.Cart{
		Items:      []models.CartLineItem{item},
		ItemsPrice: 100,
	}

	result := Refresh(c, catalogWith(croissant(5)), nil, 0)

	assert.True(t, result.HasChanges)
	assert.Empty(t, result.UpdatedCart.Items)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "variant no longer offered")
}

func TestRefreshIsIdempotent(t *testing.T) {
	product := croissant(2)
	product.Price = 120

	c := &models.Cart{
		Items:      []models.CartLineItem{lineItem(5)},
		ItemsPrice: 500,
	}

	first := Refresh(c, catalogWith(product), nil, 0)
	assert.True(t, first.HasChanges)

	second := Refresh(&first.UpdatedCart, catalogWith(product), nil, 0)
	assert.False(t, second.HasChanges)
	assert.Empty(t, second.PriceChanges)
	assert.Empty(t, second.Warnings)
	assert.Equal(t, first.UpdatedCart, second.UpdatedCart)
}

func TestRefreshRecomputesShippingAndTax(t *testing.T) {
	option := &models.DeliveryDate{
		Name:                 "Standard",
		DaysToDeliver:        2,
		ShippingPrice:        4.9,
		FreeShippingMinPrice: 100,
	}

	c := &models.Cart{
		Items:      []models.CartLineItem{lineItem(2)},
		ItemsPrice: 200,
	}

	result := Refresh(c, catalogWith(croissant(5)), option, 0.1)

	assert.Equal(t, 200.0, result.UpdatedCart.ItemsPrice)
	assert.Equal(t, 0.0, result.UpdatedCart.ShippingPrice)
	assert.Equal(t, 20.0, result.UpdatedCart.TaxPrice)
	assert.Equal(t, 220.0, result.UpdatedCart.TotalPrice)
}
