// internal/services/pricing.go
package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

// PricingLine is the part of a cart or order line that pricing needs.
type PricingLine struct {
	ProductID  uuid.UUID
	CategoryID *uuid.UUID
	UnitPrice  decimal.Decimal
	Quantity   int
}

func (l PricingLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type AppliedDiscount struct {
	ID     uuid.UUID           `json:"id"`
	Name   string              `json:"name"`
	Code   *string             `json:"code,omitempty"`
	Type   models.DiscountType `json:"type"`
	Amount decimal.Decimal     `json:"amount"`
}

// Totals always satisfies Total = Subtotal + TaxTotal + ShippingTotal - DiscountTotal.
type Totals struct {
	Subtotal      decimal.Decimal  `json:"subtotal"`
	DiscountTotal decimal.Decimal  `json:"discount_total"`
	TaxTotal      decimal.Decimal  `json:"tax_total"`
	ShippingTotal decimal.Decimal  `json:"shipping_total"`
	Total         decimal.Decimal  `json:"total"`
	ItemCount     int              `json:"item_count"`
	Discount      *AppliedDiscount `json:"discount,omitempty"`

	discount *models.Discount
}

// AppliedDiscountModel returns the discount chosen by ComputeTotals, if any.
func (t *Totals) AppliedDiscountModel() *models.Discount {
	return t.discount
}

func Subtotal(lines []PricingLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return utils.RoundMoney(sum)
}

// Shipping is free for an empty cart or once the subtotal reaches the
// threshold. A zero threshold disables free shipping.
func Shipping(lines []PricingLine, subtotal decimal.Decimal, settings *StoreSettings) decimal.Decimal {
	if len(lines) == 0 {
		return decimal.Zero
	}
	if settings.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(settings.FreeShippingThreshold) {
		return decimal.Zero
	}
	return utils.RoundMoney(settings.FlatShippingRate)
}

// QualifyingSubtotal sums the lines inside the discount's scope.
func QualifyingSubtotal(d *models.Discount, lines []PricingLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if d.Covers(l.ProductID, l.CategoryID) {
			sum = sum.Add(l.Total())
		}
	}
	return sum
}

// DiscountAmount is what d takes off this cart, ignoring eligibility.
func DiscountAmount(d *models.Discount, lines []PricingLine, shipping decimal.Decimal) decimal.Decimal {
	switch d.Type {
	case models.DiscountTypePercentage:
		return utils.Percent(QualifyingSubtotal(d, lines), d.Value)
	case models.DiscountTypeFixedAmount:
		return utils.RoundMoney(decimal.Min(d.Value, QualifyingSubtotal(d, lines)))
	case models.DiscountTypeFreeShipping:
		return shipping
	default:
		return decimal.Zero
	}
}

// IsEligible checks activity, window, usage, minimum subtotal and that the
// discount would actually reduce something.
func IsEligible(d *models.Discount, lines []PricingLine, subtotal, shipping decimal.Decimal, now time.Time) bool {
	if !d.IsActive || !d.InWindow(now) || d.UsageExhausted() {
		return false
	}
	if subtotal.LessThan(d.MinSubtotal) {
		return false
	}
	if d.Type == models.DiscountTypeFreeShipping {
		return shipping.IsPositive()
	}
	return QualifyingSubtotal(d, lines).IsPositive()
}

// SelectDiscount scans candidates once and keeps the largest eligible amount.
// Candidates are expected in creation order; a later candidate replaces the
// current best only when strictly greater.
func SelectDiscount(candidates []models.Discount, lines []PricingLine, subtotal, shipping decimal.Decimal, now time.Time) (*models.Discount, decimal.Decimal) {
	var best *models.Discount
	bestAmount := decimal.Zero

	for i := range candidates {
		d := &candidates[i]
		if !IsEligible(d, lines, subtotal, shipping, now) {
			continue
		}
		amount := DiscountAmount(d, lines, shipping)
		if best == nil || amount.GreaterThan(bestAmount) {
			best = d
			bestAmount = amount
		}
	}

	return best, bestAmount
}

// ComputeTotals prices the lines with at most one discount from candidates.
func ComputeTotals(lines []PricingLine, candidates []models.Discount, settings *StoreSettings, now time.Time) Totals {
	subtotal := Subtotal(lines)
	shipping := Shipping(lines, subtotal, settings)

	totals := Totals{
		Subtotal:      subtotal,
		ShippingTotal: shipping,
		DiscountTotal: decimal.Zero,
	}
	for _, l := range lines {
		totals.ItemCount += l.Quantity
	}

	best, amount := SelectDiscount(candidates, lines, subtotal, shipping, now)
	goodsDiscount := decimal.Zero
	if best != nil {
		totals.DiscountTotal = amount
		totals.discount = best
		totals.Discount = &AppliedDiscount{
			ID:     best.ID,
			Name:   best.Name,
			Code:   best.Code,
			Type:   best.Type,
			Amount: amount,
		}
		if best.Type != models.DiscountTypeFreeShipping {
			goodsDiscount = amount
		}
	}

	taxBase := subtotal.Sub(goodsDiscount)
	if taxBase.IsNegative() {
		taxBase = decimal.Zero
	}
	totals.TaxTotal = utils.Percent(taxBase, settings.TaxRate)

	totals.Total = utils.RoundMoney(subtotal.Add(totals.TaxTotal).Add(shipping).Sub(totals.DiscountTotal))
	if totals.Total.IsNegative() {
		totals.Total = decimal.Zero
	}
	return totals
}
