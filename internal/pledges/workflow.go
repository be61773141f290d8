package pledges

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockpledge/internal/audit"
	"stockpledge/internal/model"
	"stockpledge/internal/payments"
	"stockpledge/internal/types"
)

// SessionSource is the slice of the sessions store the workflow needs.
type SessionSource interface {
	GetByID(ctx context.Context, id string) (model.PledgeSession, error)
	Stats(ctx context.Context, id string) (model.SessionStats, error)
}

// AccessSource resolves the user's approved brokerage account.
type AccessSource interface {
	ApprovedAccountFor(ctx context.Context, userID string) (string, error)
}

// Recorder writes standalone audit entries for attempts that never reach the
// finalize transaction.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) (model.AuditEntry, error)
}

// Workflow runs the submission gate. Every step is a hard precondition for
// the next; the first failing step decides the error the user sees.
type Workflow struct {
	store         Store
	sessions      SessionSource
	access        AccessSource
	provider      payments.Provider
	auditor       Recorder
	disclosureVer string
}

func NewWorkflow(store Store, sessions SessionSource, access AccessSource, provider payments.Provider, auditor Recorder, disclosureVer string) *Workflow {
	return &Workflow{
		store:         store,
		sessions:      sessions,
		access:        access,
		provider:      provider,
		auditor:       auditor,
		disclosureVer: disclosureVer,
	}
}

type SubmitRequest struct {
	UserID        string
	SessionID     string
	Qty           decimal.Decimal
	PriceTarget   decimal.Decimal
	RiskAck       model.RiskAcknowledgment
	Consent       model.DigitalConsent
	AutoSell      *model.AutoSellConfig
	CorrelationID string
}

// Submit walks the full gate: session open, demat approved, quantity and
// price bounds, risk disclosure, digital consent, fee, payment, then the
// atomic finalize. A pledge is never visible as ready_for_execution unless
// every step before it succeeded.
func (wf *Workflow) Submit(ctx context.Context, req SubmitRequest) (model.Pledge, error) {
	sess, err := wf.sessions.GetByID(ctx, req.SessionID)
	if err != nil {
		return model.Pledge{}, err
	}
	now := time.Now().UTC()
	if sess.Status != types.SessionStatusActive || sess.SessionEnd.Before(now) {
		return model.Pledge{}, ErrSessionExpired
	}
	account, err := wf.access.ApprovedAccountFor(ctx, req.UserID)
	if err != nil {
		return model.Pledge{}, ErrDematNotApproved
	}
	if sess.Capacity > 0 {
		stats, err := wf.sessions.Stats(ctx, req.SessionID)
		if err != nil {
			return model.Pledge{}, err
		}
		if stats.TotalPledges >= sess.Capacity {
			return model.Pledge{}, ErrSessionFull
		}
	}

	// Step 1: quantity and price bounds.
	if !req.Qty.IsPositive() {
		return model.Pledge{}, ErrInvalidQuantity
	}
	if sess.MinQty != nil && req.Qty.LessThan(*sess.MinQty) {
		return model.Pledge{}, ErrInvalidQuantity
	}
	if sess.MaxQty != nil && req.Qty.GreaterThan(*sess.MaxQty) {
		return model.Pledge{}, ErrInvalidQuantity
	}
	if !req.PriceTarget.IsPositive() {
		return model.Pledge{}, ErrInvalidPrice
	}

	// Step 2: risk disclosure, all categories explicitly acknowledged.
	if !req.RiskAck.Complete() {
		return model.Pledge{}, ErrDisclosureIncomplete
	}
	riskAck := req.RiskAck
	if riskAck.Version == "" {
		riskAck.Version = wf.disclosureVer
	}
	if riskAck.AcknowledgedAt.IsZero() {
		riskAck.AcknowledgedAt = now
	}

	// Step 3: digital consent, signature plus all three clauses.
	if !req.Consent.Complete() {
		return model.Pledge{}, ErrConsentIncomplete
	}
	consent := req.Consent
	if consent.SignedAt.IsZero() {
		consent.SignedAt = now
	}

	side := types.PledgeSideBuy
	if sess.Mode == types.SessionModeSellOnly {
		side = types.PledgeSideSell
	}
	autoSell, err := resolveAutoSell(sess.Mode, req.AutoSell)
	if err != nil {
		return model.Pledge{}, err
	}

	// Step 4: fee.
	fee := ComputeFee(sess.FeeType, sess.FeeAmount, req.Qty, req.PriceTarget)

	consentHash := ConsentHash(req.UserID, req.SessionID, sess.StockSymbol,
		req.Qty, req.PriceTarget, fee, consent.Signature, consent.SignedAt.Unix())

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	// Step 5: payment. A zero fee succeeds without touching the provider.
	var payment *model.PledgePayment
	if fee.IsPositive() {
		receipt, err := wf.provider.Charge(ctx, payments.ChargeRequest{
			UserID:    req.UserID,
			Amount:    fee,
			Currency:  "INR",
			ClientRef: correlationID,
		})
		if err != nil {
			wf.auditFailedPayment(ctx, req, sess, fee, err)
			return model.Pledge{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
		payment = &model.PledgePayment{
			UserID:          req.UserID,
			Amount:          fee,
			Status:          types.PaymentStatusCompleted,
			PaymentRef:      receipt.PaymentRef,
			PaymentProvider: receipt.Provider,
			Currency:        "INR",
		}
	}

	// Step 6: atomic finalize.
	pledge := model.Pledge{
		SessionID:          req.SessionID,
		UserID:             req.UserID,
		BrokerageAccountID: account,
		StockSymbol:        sess.StockSymbol,
		Qty:                req.Qty,
		PriceTarget:        req.PriceTarget,
		Side:               side,
		ConsentHash:        consentHash,
		RiskAck:            riskAck,
		Consent:            consent,
		FeeAmount:          fee,
		FeePaid:            true,
		AutoSell:           autoSell,
		Status:             types.PledgeStatusReady,
		CorrelationID:      correlationID,
	}
	created, err := wf.store.FinalizeSubmission(ctx, pledge, payment, audit.Entry{
		ActorID:    req.UserID,
		ActorRole:  types.ActorRoleUser,
		Action:     types.AuditActionPledgeCreated,
		TargetType: types.AuditTargetPledge,
		Payload: map[string]any{
			"stock_symbol":   sess.StockSymbol,
			"qty":            req.Qty.String(),
			"price_target":   req.PriceTarget.String(),
			"side":           string(side),
			"fee":            fee.String(),
			"correlation_id": correlationID,
		},
		Success: true,
	})
	if err != nil {
		return model.Pledge{}, err
	}
	zap.L().Info("pledge created",
		zap.String("pledge_id", created.ID),
		zap.String("session_id", created.SessionID),
		zap.String("user_id", created.UserID),
		zap.String("side", string(created.Side)),
		zap.String("fee", fee.String()))
	return created, nil
}

// Cancel withdraws the caller's pledge while it is still ready_for_execution.
func (wf *Workflow) Cancel(ctx context.Context, pledgeID, userID, reason string) (model.Pledge, error) {
	return wf.store.Cancel(ctx, pledgeID, userID, audit.Entry{
		ActorID:    userID,
		ActorRole:  types.ActorRoleUser,
		Action:     types.AuditActionPledgeCancelled,
		TargetType: types.AuditTargetPledge,
		Payload:    map[string]any{"reason": reason},
		Success:    true,
	})
}

func resolveAutoSell(mode types.SessionMode, cfg *model.AutoSellConfig) (*model.AutoSellConfig, error) {
	if mode != types.SessionModeBuySellCycle {
		return nil, nil
	}
	// Cycle pledges without a config default to an admin-managed position.
	if cfg == nil {
		return &model.AutoSellConfig{Enabled: true, Mode: types.AutoSellModeAdminManaged}, nil
	}
	out := *cfg
	out.Enabled = true
	out.Paused = false
	switch out.Mode {
	case types.AutoSellModeTarget:
		if out.SellPrice == nil || !out.SellPrice.IsPositive() {
			return nil, ErrInvalidPrice
		}
		out.HasTarget = true
	case types.AutoSellModeAdminManaged:
		out.HasTarget = false
		out.SellPrice = nil
	default:
		return nil, fmt.Errorf("unknown auto sell mode %q", out.Mode)
	}
	return &out, nil
}

func (wf *Workflow) auditFailedPayment(ctx context.Context, req SubmitRequest, sess model.PledgeSession, fee decimal.Decimal, cause error) {
	_, err := wf.auditor.Record(ctx, audit.Entry{
		ActorID:         req.UserID,
		ActorRole:       types.ActorRoleUser,
		Action:          types.AuditActionPledgeRejected,
		TargetType:      types.AuditTargetPledge,
		TargetSessionID: req.SessionID,
		Payload: map[string]any{
			"stock_symbol": sess.StockSymbol,
			"fee":          fee.String(),
			"reason":       cause.Error(),
		},
		Success: false,
	})
	if err != nil {
		zap.L().Warn("failed to audit payment failure", zap.Error(err))
	}
}
