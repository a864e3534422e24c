package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/storefront-backend/internal/models"
)

func pricingSettings() *StoreSettings {
	return &StoreSettings{
		Currency:              "USD",
		TaxRate:               dec("10"),
		FlatShippingRate:      dec("5"),
		FreeShippingThreshold: dec("100"),
	}
}

func discountOf(typ models.DiscountType, value string) models.Discount {
	d := models.Discount{Name: string(typ) + " " + value, Type: typ, Value: dec(value), IsActive: true, IsAutomatic: true}
	d.ID = uuid.New()
	return d
}

func sampleLines(categoryID *uuid.UUID) []PricingLine {
	return []PricingLine{
		{ProductID: uuid.New(), CategoryID: categoryID, UnitPrice: dec("20"), Quantity: 2},
		{ProductID: uuid.New(), UnitPrice: dec("15"), Quantity: 1},
	}
}

func assertBalanced(t *testing.T, totals Totals) {
	t.Helper()
	expected := totals.Subtotal.Add(totals.TaxTotal).Add(totals.ShippingTotal).Sub(totals.DiscountTotal)
	assert.True(t, expected.Equal(totals.Total), "total %s != %s", totals.Total, expected)
}

func TestComputeTotalsPicksLargestDiscount(t *testing.T) {
	candidates := []models.Discount{
		discountOf(models.DiscountTypePercentage, "10"),
		discountOf(models.DiscountTypeFixedAmount, "8"),
		discountOf(models.DiscountTypeFreeShipping, "0"),
	}

	totals := ComputeTotals(sampleLines(nil), candidates, pricingSettings(), time.Now())

	require.NotNil(t, totals.Discount)
	assert.Equal(t, candidates[1].ID, totals.Discount.ID)
	assert.Equal(t, "55.00", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "8.00", totals.DiscountTotal.StringFixed(2))
	assert.Equal(t, "4.70", totals.TaxTotal.StringFixed(2))
	assert.Equal(t, "5.00", totals.ShippingTotal.StringFixed(2))
	assert.Equal(t, "56.70", totals.Total.StringFixed(2))
	assert.Equal(t, 3, totals.ItemCount)
	assertBalanced(t, totals)
}

func TestComputeTotalsTieKeepsFirstCandidate(t *testing.T) {
	candidates := []models.Discount{
		discountOf(models.DiscountTypeFixedAmount, "5"),
		discountOf(models.DiscountTypeFreeShipping, "0"),
	}

	totals := ComputeTotals(sampleLines(nil), candidates, pricingSettings(), time.Now())

	require.NotNil(t, totals.Discount)
	assert.Equal(t, candidates[0].ID, totals.Discount.ID)
	assert.Equal(t, "5.00", totals.TaxTotal.StringFixed(2))
	assert.Equal(t, "60.00", totals.Total.StringFixed(2))
}

func TestComputeTotalsFreeShippingDoesNotReduceTaxBase(t *testing.T) {
	candidates := []models.Discount{discountOf(models.DiscountTypeFreeShipping, "0")}

	totals := ComputeTotals(sampleLines(nil), candidates, pricingSettings(), time.Now())

	require.NotNil(t, totals.Discount)
	assert.Equal(t, "5.00", totals.DiscountTotal.StringFixed(2))
	assert.Equal(t, "5.50", totals.TaxTotal.StringFixed(2))
	assert.Equal(t, "60.50", totals.Total.StringFixed(2))
	assertBalanced(t, totals)
}

func TestComputeTotalsSkipsIneligibleDiscounts(t *testing.T) {
	now := time.Now()
	minimum := discountOf(models.DiscountTypeFixedAmount, "30")
	minimum.MinSubtotal = dec("60")

	exhausted := discountOf(models.DiscountTypeFixedAmount, "20")
	exhausted.UsageLimit = pointer(3)
	exhausted.UsageCount = 3

	future := discountOf(models.DiscountTypeFixedAmount, "25")
	future.StartsAt = pointer(now.Add(time.Hour))

	expired := discountOf(models.DiscountTypeFixedAmount, "25")
	expired.EndsAt = pointer(now)

	inactive := discountOf(models.DiscountTypeFixedAmount, "40")
	inactive.IsActive = false

	totals := ComputeTotals(sampleLines(nil), []models.Discount{minimum, exhausted, future, expired, inactive}, pricingSettings(), now)

	assert.Nil(t, totals.Discount)
	assert.True(t, totals.DiscountTotal.IsZero())
	assert.Equal(t, "65.50", totals.Total.StringFixed(2))
}

func TestComputeTotalsCategoryScope(t *testing.T) {
	category := uuid.New()
	scoped := discountOf(models.DiscountTypePercentage, "50")
	scoped.AppliesTo = models.DiscountScopeCategories
	scoped.Categories = []models.Category{{BaseModel: models.BaseModel{ID: category}}}

	totals := ComputeTotals(sampleLines(&category), []models.Discount{scoped}, pricingSettings(), time.Now())

	require.NotNil(t, totals.Discount)
	assert.Equal(t, "20.00", totals.DiscountTotal.StringFixed(2))
	assertBalanced(t, totals)

	other := uuid.New()
	totals = ComputeTotals(sampleLines(&other), []models.Discount{scoped}, pricingSettings(), time.Now())
	assert.Nil(t, totals.Discount)
}

func TestComputeTotalsFixedAmountCappedAtSubtotal(t *testing.T) {
	totals := ComputeTotals(sampleLines(nil), []models.Discount{discountOf(models.DiscountTypeFixedAmount, "100")}, pricingSettings(), time.Now())

	assert.Equal(t, "55.00", totals.DiscountTotal.StringFixed(2))
	assert.True(t, totals.TaxTotal.IsZero())
	assert.Equal(t, "5.00", totals.Total.StringFixed(2))
	assertBalanced(t, totals)
}

func TestShipping(t *testing.T) {
	settings := pricingSettings()
	lines := sampleLines(nil)

	assert.True(t, Shipping(nil, dec("0"), settings).IsZero())
	assert.Equal(t, "5.00", Shipping(lines, dec("99.99"), settings).StringFixed(2))
	assert.True(t, Shipping(lines, dec("100"), settings).IsZero())

	settings.FreeShippingThreshold = dec("0")
	assert.Equal(t, "5.00", Shipping(lines, dec("1000"), settings).StringFixed(2))
}

func TestFreeShippingIneligibleWhenShippingAlreadyFree(t *testing.T) {
	lines := []PricingLine{{ProductID: uuid.New(), UnitPrice: dec("120"), Quantity: 1}}
	totals := ComputeTotals(lines, []models.Discount{discountOf(models.DiscountTypeFreeShipping, "0")}, pricingSettings(), time.Now())

	assert.Nil(t, totals.Discount)
	assert.True(t, totals.ShippingTotal.IsZero())
	assert.Equal(t, "132.00", totals.Total.StringFixed(2))
}
