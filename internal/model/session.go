package model

import (
	"time"

	"stockpledge/internal/types"

	"github.com/shopspring/decimal"
)

type PledgeSession struct {
	ID             string              `json:"id"`
	StockSymbol    string              `json:"stock_symbol"`
	Mode           types.SessionMode   `json:"session_mode"`
	Status         types.SessionStatus `json:"status"`
	SessionStart   time.Time           `json:"session_start"`
	SessionEnd     time.Time           `json:"session_end"`
	MinQty         *decimal.Decimal    `json:"min_qty,omitempty"`
	MaxQty         *decimal.Decimal    `json:"max_qty,omitempty"`
	Capacity       int                 `json:"capacity"`
	FeeType        types.FeeType       `json:"convenience_fee_type"`
	FeeAmount      decimal.Decimal     `json:"convenience_fee_amount"`
	CommissionRate decimal.Decimal     `json:"commission_rate_override"`
	AllowAMO       bool                `json:"allow_amo"`
	CreatedBy      string              `json:"created_by"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// SessionStats is the aggregate recomputed from pledges on every request.
type SessionStats struct {
	SessionID        string          `json:"session_id"`
	UniquePledgers   int             `json:"unique_pledgers_count"`
	TotalPledges     int             `json:"total_pledges"`
	TotalPledgeValue decimal.Decimal `json:"total_pledge_value"`
	BuyCount         int             `json:"buy_count"`
	SellCount        int             `json:"sell_count"`
	FillPercentage   decimal.Decimal `json:"fill_percentage"`
	ComputedAt       time.Time       `json:"computed_at"`
}

type AccessRequest struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	BrokerageAccountID string             `json:"brokerage_account_id"`
	Broker             string             `json:"broker"`
	RiskScore          int                `json:"risk_score"`
	Status             types.AccessStatus `json:"status"`
	SubmittedAt        time.Time          `json:"submitted_at"`
	ReviewedAt         *time.Time         `json:"reviewed_at,omitempty"`
	ReviewedBy         string             `json:"reviewed_by,omitempty"`
	RejectionReason    string             `json:"rejection_reason,omitempty"`
}
