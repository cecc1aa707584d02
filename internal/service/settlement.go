package service

import (
	"math"

	"ledgerpos/backend/internal/domain"
)

// centsPerPoint is how much of an order total earns one loyalty point.
const centsPerPoint int64 = 10000

type saleTotals struct {
	ItemsCents    int64
	DepositCents  int64
	TaxCents      int64
	DiscountCents int64
	TotalCents    int64
	PaidCents     int64
}

func (t saleTotals) balance() int64 {
	return t.TotalCents - t.PaidCents
}

func lineSubtotal(qty float64, unitPriceCents int64) int64 {
	return int64(math.Round(qty * float64(unitPriceCents)))
}

func computeTotals(items []domain.OrderItem, taxCents int64, discountCents int64, payments []domain.PaymentRequest) saleTotals {
	t := saleTotals{TaxCents: taxCents, DiscountCents: discountCents}
	for _, item := range items {
		t.ItemsCents += lineSubtotal(item.Qty, item.UnitPriceCents)
		t.DepositCents += item.RentalDepositCents
	}
	for _, payment := range payments {
		t.PaidCents += payment.AmountCents
	}
	t.TotalCents = t.ItemsCents + t.DepositCents + t.TaxCents - t.DiscountCents
	return t
}

func selectStatus(isHold bool, totals saleTotals) string {
	switch {
	case isHold:
		return domain.OrderStatusHeld
	case totals.balance() <= paymentToleranceCents:
		return domain.OrderStatusCompleted
	case totals.PaidCents > 0:
		return domain.OrderStatusPartialPayment
	default:
		return domain.OrderStatusPendingPayment
	}
}

// planSettlement decides what a settled order does to its customer's ledger, given the
// customer's debt before the order.
func planSettlement(debtCents int64, totals saleTotals, depositChange bool) domain.OrderEffect {
	var effect domain.OrderEffect
	balance := totals.balance()

	switch {
	case balance > paymentToleranceCents:
		effect.DebtDeltaCents = balance
	case balance < -paymentToleranceCents:
		excess := -balance
		cleared := min(excess, max(debtCents, 0))
		effect.DebtDeltaCents = -cleared
		if depositChange && excess > cleared {
			effect.WalletDeltaCents = excess - cleared
		}
	}

	if balance <= paymentToleranceCents && totals.TotalCents > 0 {
		effect.PointsAwarded = totals.TotalCents / centsPerPoint
	}
	return effect
}

func applyEffect(customer *domain.Customer, effect domain.OrderEffect) {
	customer.DebtCents += effect.DebtDeltaCents
	customer.WalletCents += effect.WalletDeltaCents
	customer.Points += effect.PointsAwarded
}

func reverseEffect(customer *domain.Customer, effect domain.OrderEffect) {
	customer.DebtCents -= effect.DebtDeltaCents
	customer.WalletCents -= effect.WalletDeltaCents
	customer.Points -= effect.PointsAwarded
}
