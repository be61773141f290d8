package model

import (
	"time"

	"stockpledge/internal/types"

	"github.com/shopspring/decimal"
)

// AutoSellConfig describes how the sell leg of a buy_sell_cycle pledge is
// triggered. It is stored as a structured column set, parsed once at the
// storage boundary.
type AutoSellConfig struct {
	Enabled   bool               `json:"enabled"`
	Mode      types.AutoSellMode `json:"execution_type"`
	HasTarget bool               `json:"has_target"`
	SellPrice *decimal.Decimal   `json:"sell_price,omitempty"`
	Paused    bool               `json:"paused"`
}

// RiskAcknowledgment records the explicit acceptance of each risk category.
// All three must be true for a submission to proceed.
type RiskAcknowledgment struct {
	Market         bool      `json:"market"`
	Execution      bool      `json:"execution"`
	Financial      bool      `json:"financial"`
	Version        string    `json:"version"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

// Complete reports whether every risk category was acknowledged.
func (r RiskAcknowledgment) Complete() bool {
	return r.Market && r.Execution && r.Financial
}

// DigitalConsent is the signature artifact plus the three consent clauses.
type DigitalConsent struct {
	Signature       string    `json:"signature"`
	AcceptTerms     bool      `json:"accept_terms"`
	AcceptRisk      bool      `json:"accept_risk"`
	AcceptExecution bool      `json:"accept_execution"`
	SignedAt        time.Time `json:"signed_at"`
}

// Complete reports whether all clauses are accepted and a signature exists.
func (c DigitalConsent) Complete() bool {
	return c.Signature != "" && c.AcceptTerms && c.AcceptRisk && c.AcceptExecution
}

type Pledge struct {
	ID                 string             `json:"id"`
	SessionID          string             `json:"session_id"`
	UserID             string             `json:"user_id"`
	BrokerageAccountID string             `json:"brokerage_account_id"`
	StockSymbol        string             `json:"stock_symbol"`
	Qty                decimal.Decimal    `json:"qty"`
	PriceTarget        decimal.Decimal    `json:"price_target"`
	Side               types.PledgeSide   `json:"side"`
	ConsentHash        string             `json:"consent_hash"`
	RiskAck            RiskAcknowledgment `json:"risk_acknowledgment"`
	Consent            DigitalConsent     `json:"digital_consent"`
	FeeAmount          decimal.Decimal    `json:"convenience_fee_amount"`
	FeePaid            bool               `json:"convenience_fee_paid"`
	FeePaymentID       string             `json:"convenience_fee_payment_id,omitempty"`
	AutoSell           *AutoSellConfig    `json:"auto_sell_config,omitempty"`
	Status             types.PledgeStatus `json:"status"`
	CorrelationID      string             `json:"correlation_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type PledgePayment struct {
	ID              string              `json:"id"`
	PledgeID        string              `json:"pledge_id"`
	UserID          string              `json:"user_id"`
	Amount          decimal.Decimal     `json:"amount"`
	Status          types.PaymentStatus `json:"status"`
	PaymentRef      string              `json:"payment_ref"`
	PaymentProvider string              `json:"payment_provider"`
	Currency        string              `json:"currency"`
	CreatedAt       time.Time           `json:"created_at"`
}

type ExecutionRecord struct {
	ID                 string                `json:"id"`
	PledgeID           string                `json:"pledge_id"`
	SessionID          string                `json:"session_id"`
	UserID             string                `json:"user_id"`
	BrokerageAccountID string                `json:"brokerage_account_id"`
	StockSymbol        string                `json:"stock_symbol"`
	Side               types.PledgeSide      `json:"side"`
	PledgedQty         decimal.Decimal       `json:"pledged_qty"`
	ExecutedQty        decimal.Decimal       `json:"executed_qty"`
	ExecutedPrice      decimal.Decimal       `json:"executed_price"`
	TotalValue         decimal.Decimal       `json:"total_execution_value"`
	PlatformCommission decimal.Decimal       `json:"platform_commission"`
	BrokerCommission   decimal.Decimal       `json:"broker_commission"`
	NetAmount          decimal.Decimal       `json:"net_amount"`
	Status             types.ExecutionStatus `json:"status"`
	BrokerOrderID      string                `json:"broker_order_id,omitempty"`
	ExecutedAt         time.Time             `json:"executed_at"`
	SettlementDate     *time.Time            `json:"settlement_date,omitempty"`
	ErrorMessage       string                `json:"error_message,omitempty"`
}
