package sessions

import (
	"github.com/shopspring/decimal"

	"stockpledge/internal/types"
)

// statusRank orders the forward-only session lifecycle. Cancellation sits
// outside the ordering and is handled separately.
var statusRank = map[types.SessionStatus]int{
	types.SessionStatusActive:       0,
	types.SessionStatusClosed:       1,
	types.SessionStatusExecuting:    2,
	types.SessionStatusAwaitingSell: 3,
	types.SessionStatusCompleted:    4,
}

// CanTransition reports whether a session may move from one status to
// another. The lifecycle only moves forward; buy-only sessions skip
// awaiting_sell_execution, so any strictly forward move is allowed.
// Cancelled is reachable from every non-terminal status.
func CanTransition(from, to types.SessionStatus) bool {
	if types.IsTerminalSessionStatus(from) {
		return false
	}
	if to == types.SessionStatusCancelled {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

var hundred = decimal.NewFromInt(100)

// FillPercentage is how full a session is against its capacity, capped at
// 100. Sessions without a capacity report 0.
func FillPercentage(totalPledges, capacity int) decimal.Decimal {
	if capacity <= 0 {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(int64(totalPledges)).
		Div(decimal.NewFromInt(int64(capacity))).
		Mul(hundred)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}
