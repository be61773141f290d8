package execution

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RealizedPL is the profit or loss of a completed cycle:
// (sell price - buy price) * executed quantity.
func RealizedPL(buyPrice, sellPrice, qty decimal.Decimal) decimal.Decimal {
	return sellPrice.Sub(buyPrice).Mul(qty)
}

// UnrealizedPL marks an open position against the live price. Only
// meaningful while the sell leg is pending.
func UnrealizedPL(buyPrice, livePrice, qty decimal.Decimal) decimal.Decimal {
	return livePrice.Sub(buyPrice).Mul(qty)
}

// Commission charges the platform rate on positive realized profit only.
// Losses are never charged, and the cost basis never participates.
func Commission(realizedPL, ratePct decimal.Decimal) decimal.Decimal {
	if !realizedPL.IsPositive() {
		return decimal.Zero
	}
	return realizedPL.Mul(ratePct.Div(hundred))
}

// NetRealized is what the user keeps from a completed cycle.
func NetRealized(realizedPL, commission decimal.Decimal) decimal.Decimal {
	return realizedPL.Sub(commission)
}

// NetAmount is the settlement value of a single-leg execution. Profit-based
// commission does not apply outside completed cycles.
func NetAmount(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price)
}
