// Package finance holds the pure money math for an order: subtotal, discount,
// shipping, deposit and commission. Amounts are int64 minor currency units,
// percentages are decimals with one fractional digit. Everything here is
// side-effect free and safe to call on every keystroke.
package finance

import (
	"github.com/shopspring/decimal"

	"github.com/hoangvu/atelierdesk/internal/domain"
)

// A full-price percentage discount is not representable; 100% must be entered
// as an absolute amount equal to the subtotal.
var (
	maxDiscountPct = decimal.NewFromFloat(99.9)
	maxDepositPct  = decimal.NewFromInt(100)
	oneHundred     = decimal.NewFromInt(100)
)

type Totals struct {
	Subtotal       int64 `json:"subtotal"`
	DiscountAmount int64 `json:"discountAmount"`
	Total          int64 `json:"total"`
}

type DepositSplit struct {
	DepositAmount int64 `json:"depositAmount"`
	Remaining     int64 `json:"remaining"`
}

// ComputeTotals derives subtotal, discount amount and total. Missing entry
// values are treated as UI defaults rather than errors: quantity below 1
// counts as 1, negative price or shipping as 0. An amount discount is clamped
// to the subtotal so the total never goes negative.
func ComputeTotals(products map[string]*domain.Product, discount decimal.Decimal, kind domain.ValueKind, shippingFee int64) Totals {
	var subtotal int64
	for _, p := range products {
		if p == nil {
			continue
		}
		qty := int64(p.Quantity)
		if qty < 1 {
			qty = 1
		}
		price := p.Price
		if price < 0 {
			price = 0
		}
		subtotal += qty * price
	}

	var discountAmount int64
	switch kind {
	case domain.KindPercent:
		pct := clampPercent(discount, maxDiscountPct)
		discountAmount = decimal.NewFromInt(subtotal).Mul(pct).Div(oneHundred).Round(0).IntPart()
	default:
		discountAmount = discount.Round(0).IntPart()
	}
	if discountAmount < 0 {
		discountAmount = 0
	}
	if discountAmount > subtotal {
		discountAmount = subtotal
	}

	if shippingFee < 0 {
		shippingFee = 0
	}

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		Total:          subtotal - discountAmount + shippingFee,
	}
}

// ComputeDeposit splits a total into the advance payment and the remainder.
// A 100% deposit is allowed; an amount deposit is clamped to the total.
func ComputeDeposit(total int64, deposit decimal.Decimal, kind domain.ValueKind) DepositSplit {
	if total < 0 {
		total = 0
	}
	var amount int64
	switch kind {
	case domain.KindPercent:
		pct := clampPercent(deposit, maxDepositPct)
		amount = decimal.NewFromInt(total).Mul(pct).Div(oneHundred).Round(0).IntPart()
	default:
		amount = deposit.Round(0).IntPart()
	}
	if amount < 0 {
		amount = 0
	}
	if amount > total {
		amount = total
	}
	return DepositSplit{DepositAmount: amount, Remaining: total - amount}
}

// ComputeCommission applies the consultant's snapshotted percentage to the
// order total.
func ComputeCommission(total int64, pct decimal.Decimal) int64 {
	if total < 0 {
		total = 0
	}
	p := clampPercent(pct, maxDepositPct)
	return decimal.NewFromInt(total).Mul(p).Div(oneHundred).Round(0).IntPart()
}

// clampPercent rounds to one fractional digit and bounds into [0, max].
func clampPercent(p decimal.Decimal, max decimal.Decimal) decimal.Decimal {
	p = p.Round(1)
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(max) {
		return max
	}
	return p
}
