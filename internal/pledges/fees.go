package pledges

import (
	"github.com/shopspring/decimal"

	"stockpledge/internal/types"
)

var hundred = decimal.NewFromInt(100)

// ComputeFee returns the convenience fee for a submission. Flat sessions
// charge the configured amount as-is; percentage sessions charge
// qty * price * (rate / 100). The result is floored at zero.
func ComputeFee(feeType types.FeeType, feeAmount, qty, price decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	switch feeType {
	case types.FeeTypePercentage:
		fee = qty.Mul(price).Mul(feeAmount.Div(hundred))
	default:
		fee = feeAmount
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee
}
