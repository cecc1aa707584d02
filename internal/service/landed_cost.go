package service

import (
	"math/big"
)

// LandedLine is one received line with its share of the extra costs folded in.
type LandedLine struct {
	Qty                 float64
	UnitPriceCents      int64
	LineValueCents      int64
	AllocatedExtraCents int64
	LandedCostCents     int64
}

type landedInput struct {
	Qty            float64
	UnitPriceCents int64
}

// allocateLandedCost spreads transport and packaging over lines in proportion to each
// line's value. The landed unit cost is unitPrice * (total + extra) / total, rounded half
// up to the cent. Callers validate that total value is positive.
func allocateLandedCost(lines []landedInput, extraCents int64) ([]LandedLine, *big.Rat) {
	total := new(big.Rat)
	values := make([]*big.Rat, len(lines))
	for i, line := range lines {
		value := new(big.Rat).SetFloat64(line.Qty)
		value.Mul(value, new(big.Rat).SetInt64(line.UnitPriceCents))
		values[i] = value
		total.Add(total, value)
	}

	out := make([]LandedLine, len(lines))
	if total.Sign() <= 0 {
		return out, total
	}

	extra := new(big.Rat).SetInt64(extraCents)
	factor := new(big.Rat).Add(total, extra)
	factor.Quo(factor, total)

	for i, line := range lines {
		landed := new(big.Rat).SetInt64(line.UnitPriceCents)
		landed.Mul(landed, factor)

		share := new(big.Rat).Mul(extra, values[i])
		share.Quo(share, total)

		out[i] = LandedLine{
			Qty:                 line.Qty,
			UnitPriceCents:      line.UnitPriceCents,
			LineValueCents:      roundHalfUp(values[i]),
			AllocatedExtraCents: roundHalfUp(share),
			LandedCostCents:     roundHalfUp(landed),
		}
	}
	return out, total
}

// roundHalfUp rounds a non-negative rational to the nearest integer, ties going up.
func roundHalfUp(r *big.Rat) int64 {
	num := new(big.Int).Mul(r.Num(), big.NewInt(2))
	num.Add(num, r.Denom())
	den := new(big.Int).Mul(r.Denom(), big.NewInt(2))
	return new(big.Int).Quo(num, den).Int64()
}
