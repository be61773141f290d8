package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stockpledge/internal/audit"
	"stockpledge/internal/model"
	"stockpledge/internal/stream"
	"stockpledge/internal/types"
)

// SessionSource resolves the commission rate for a pledge's session.
type SessionSource interface {
	GetByID(ctx context.Context, id string) (model.PledgeSession, error)
}

// Engine drives pledge executions. Every state change goes through a
// conditional claim so concurrent admin actions cannot double-execute.
type Engine struct {
	store    Store
	sessions SessionSource
	bus      *stream.Bus
}

func NewEngine(store Store, sessions SessionSource, bus *stream.Bus) *Engine {
	return &Engine{store: store, sessions: sessions, bus: bus}
}

// ExecuteBuyLeg executes the first leg of a ready pledge at the given market
// price. The record carries the pledge's own side, so a sell_only pledge's
// single leg is a sell. Cycle pledges move to awaiting_sell_execution;
// single-leg pledges are done.
func (e *Engine) ExecuteBuyLeg(ctx context.Context, adminID, pledgeID string, marketPrice decimal.Decimal) (model.ExecutionRecord, error) {
	if !marketPrice.IsPositive() {
		return model.ExecutionRecord{}, fmt.Errorf("market price must be positive")
	}
	pledge, err := e.store.GetPledge(ctx, pledgeID)
	if err != nil {
		return model.ExecutionRecord{}, err
	}
	if pledge.Status != types.PledgeStatusReady {
		return model.ExecutionRecord{}, ErrNotExecutable
	}
	if err := e.store.Claim(ctx, pledgeID, types.PledgeStatusReady); err != nil {
		return model.ExecutionRecord{}, err
	}

	side := pledge.Side
	if side == "" {
		side = types.PledgeSideBuy
	}
	action := types.AuditActionBuyExecuted
	if side == types.PledgeSideSell {
		action = types.AuditActionSellExecuted
	}
	totalValue := NetAmount(pledge.Qty, marketPrice)
	rec := model.ExecutionRecord{
		PledgeID:           pledge.ID,
		SessionID:          pledge.SessionID,
		UserID:             pledge.UserID,
		BrokerageAccountID: pledge.BrokerageAccountID,
		StockSymbol:        pledge.StockSymbol,
		Side:               side,
		PledgedQty:         pledge.Qty,
		ExecutedQty:        pledge.Qty,
		ExecutedPrice:      marketPrice,
		TotalValue:         totalValue,
		NetAmount:          totalValue,
		Status:             types.ExecutionStatusCompleted,
		ExecutedAt:         time.Now().UTC(),
	}
	nextStatus := types.PledgeStatusExecuted
	if pledge.AutoSell != nil && pledge.AutoSell.Enabled {
		nextStatus = types.PledgeStatusAwaitingSell
	}
	out, err := e.store.RecordExecution(ctx, rec, nextStatus, audit.Entry{
		ActorID:         adminID,
		ActorRole:       types.ActorRoleAdmin,
		Action:          action,
		TargetType:      types.AuditTargetExecution,
		TargetPledgeID:  pledge.ID,
		TargetSessionID: pledge.SessionID,
		Payload: map[string]any{
			"stock_symbol":   pledge.StockSymbol,
			"side":           string(side),
			"executed_qty":   pledge.Qty.String(),
			"executed_price": marketPrice.String(),
			"total_value":    totalValue.String(),
			"next_status":    string(nextStatus),
		},
		Success: true,
	})
	if err != nil {
		e.failPledge(ctx, adminID, pledge, err)
		return model.ExecutionRecord{}, err
	}
	e.publish(out)
	zap.L().Info("pledge leg executed",
		zap.String("pledge_id", pledge.ID),
		zap.String("side", string(side)),
		zap.String("price", marketPrice.String()),
		zap.String("next_status", string(nextStatus)))
	return out, nil
}

// ExecuteNow executes the sell leg immediately at the given market price,
// regardless of the configured mode or target. The sell leg always executes
// the buy leg's full executed quantity.
func (e *Engine) ExecuteNow(ctx context.Context, adminID, pledgeID string, marketPrice decimal.Decimal) (model.ExecutionRecord, error) {
	return e.executeSellLeg(ctx, adminID, types.ActorRoleAdmin, pledgeID, marketPrice)
}

func (e *Engine) executeSellLeg(ctx context.Context, actorID string, role types.ActorRole, pledgeID string, marketPrice decimal.Decimal) (model.ExecutionRecord, error) {
	if !marketPrice.IsPositive() {
		return model.ExecutionRecord{}, fmt.Errorf("market price must be positive")
	}
	pledge, err := e.store.GetPledge(ctx, pledgeID)
	if err != nil {
		return model.ExecutionRecord{}, err
	}
	if pledge.Status != types.PledgeStatusAwaitingSell {
		return model.ExecutionRecord{}, ErrNotExecutable
	}
	buyLeg, err := e.buyLegOf(ctx, pledgeID)
	if err != nil {
		return model.ExecutionRecord{}, err
	}
	sess, err := e.sessions.GetByID(ctx, pledge.SessionID)
	if err != nil {
		return model.ExecutionRecord{}, err
	}
	if err := e.store.Claim(ctx, pledgeID, types.PledgeStatusAwaitingSell); err != nil {
		return model.ExecutionRecord{}, err
	}

	qty := buyLeg.ExecutedQty
	realized := RealizedPL(buyLeg.ExecutedPrice, marketPrice, qty)
	commission := Commission(realized, sess.CommissionRate)
	net := NetRealized(realized, commission)
	totalValue := qty.Mul(marketPrice)
	rec := model.ExecutionRecord{
		PledgeID:           pledge.ID,
		SessionID:          pledge.SessionID,
		UserID:             pledge.UserID,
		BrokerageAccountID: pledge.BrokerageAccountID,
		StockSymbol:        pledge.StockSymbol,
		Side:               types.PledgeSideSell,
		PledgedQty:         pledge.Qty,
		ExecutedQty:        qty,
		ExecutedPrice:      marketPrice,
		TotalValue:         totalValue,
		PlatformCommission: commission,
		NetAmount:          totalValue.Sub(commission),
		Status:             types.ExecutionStatusCompleted,
		ExecutedAt:         time.Now().UTC(),
	}
	out, err := e.store.RecordExecution(ctx, rec, types.PledgeStatusExecuted, audit.Entry{
		ActorID:         actorID,
		ActorRole:       role,
		Action:          types.AuditActionSellExecuted,
		TargetType:      types.AuditTargetExecution,
		TargetPledgeID:  pledge.ID,
		TargetSessionID: pledge.SessionID,
		Payload: map[string]any{
			"stock_symbol":        pledge.StockSymbol,
			"executed_qty":        qty.String(),
			"buy_price":           buyLeg.ExecutedPrice.String(),
			"sell_price":          marketPrice.String(),
			"realized_pl":         realized.String(),
			"platform_commission": commission.String(),
			"net_realized":        net.String(),
		},
		Success: true,
	})
	if err != nil {
		e.failPledge(ctx, actorID, pledge, err)
		return model.ExecutionRecord{}, err
	}
	e.publish(out)
	zap.L().Info("sell leg executed",
		zap.String("pledge_id", pledge.ID),
		zap.String("realized_pl", realized.String()),
		zap.String("commission", commission.String()))
	return out, nil
}

// Pause stops automatic sell triggering. The target stays configured; it
// simply must not fire while paused.
func (e *Engine) Pause(ctx context.Context, adminID, pledgeID string) error {
	return e.setPaused(ctx, adminID, pledgeID, true, types.AuditActionAutoSellPaused)
}

// Resume re-enables automatic sell triggering.
func (e *Engine) Resume(ctx context.Context, adminID, pledgeID string) error {
	return e.setPaused(ctx, adminID, pledgeID, false, types.AuditActionAutoSellResumed)
}

func (e *Engine) setPaused(ctx context.Context, adminID, pledgeID string, paused bool, action types.AuditAction) error {
	pledge, cfg, err := e.autoSellOf(ctx, pledgeID)
	if err != nil {
		return err
	}
	prior := cfg.Paused
	cfg.Paused = paused
	return e.store.UpdateAutoSell(ctx, pledgeID, cfg, audit.Entry{
		ActorID:         adminID,
		ActorRole:       types.ActorRoleAdmin,
		Action:          action,
		TargetType:      types.AuditTargetPledge,
		TargetPledgeID:  pledgeID,
		TargetSessionID: pledge.SessionID,
		Payload: map[string]any{
			"prior_paused": prior,
			"new_paused":   paused,
		},
		Success: true,
	})
}

// ChangeTarget replaces the auto sell target price without touching status.
func (e *Engine) ChangeTarget(ctx context.Context, adminID, pledgeID string, newPrice decimal.Decimal) error {
	if !newPrice.IsPositive() {
		return fmt.Errorf("target price must be positive")
	}
	pledge, cfg, err := e.autoSellOf(ctx, pledgeID)
	if err != nil {
		return err
	}
	prior := ""
	if cfg.SellPrice != nil {
		prior = cfg.SellPrice.String()
	}
	cfg.SellPrice = &newPrice
	cfg.HasTarget = true
	return e.store.UpdateAutoSell(ctx, pledgeID, cfg, audit.Entry{
		ActorID:         adminID,
		ActorRole:       types.ActorRoleAdmin,
		Action:          types.AuditActionAutoSellTargetSet,
		TargetType:      types.AuditTargetPledge,
		TargetPledgeID:  pledgeID,
		TargetSessionID: pledge.SessionID,
		Payload: map[string]any{
			"prior_target": prior,
			"new_target":   newPrice.String(),
		},
		Success: true,
	})
}

// CancelAutoSell converts the position to admin managed and clears the
// target.
func (e *Engine) CancelAutoSell(ctx context.Context, adminID, pledgeID string) error {
	pledge, cfg, err := e.autoSellOf(ctx, pledgeID)
	if err != nil {
		return err
	}
	prior := string(cfg.Mode)
	priorTarget := ""
	if cfg.SellPrice != nil {
		priorTarget = cfg.SellPrice.String()
	}
	cfg.Mode = types.AutoSellModeAdminManaged
	cfg.HasTarget = false
	cfg.SellPrice = nil
	return e.store.UpdateAutoSell(ctx, pledgeID, cfg, audit.Entry{
		ActorID:         adminID,
		ActorRole:       types.ActorRoleAdmin,
		Action:          types.AuditActionAutoSellCancelled,
		TargetType:      types.AuditTargetPledge,
		TargetPledgeID:  pledgeID,
		TargetSessionID: pledge.SessionID,
		Payload: map[string]any{
			"prior_mode":   prior,
			"prior_target": priorTarget,
			"new_mode":     string(types.AutoSellModeAdminManaged),
		},
		Success: true,
	})
}

// SessionResult summarizes a batch execution over a session.
type SessionResult struct {
	Executed int      `json:"executed"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// ExecuteSession executes the buy leg of every ready pledge in a session.
// Each pledge is claimed independently, so one failure does not stop the
// batch.
func (e *Engine) ExecuteSession(ctx context.Context, adminID, sessionID string, marketPrice decimal.Decimal) (SessionResult, error) {
	pledgesReady, err := e.store.ListReadyPledges(ctx, sessionID)
	if err != nil {
		return SessionResult{}, err
	}
	var res SessionResult
	for _, p := range pledgesReady {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := e.ExecuteBuyLeg(ctx, adminID, p.ID, marketPrice); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.ID, err))
			continue
		}
		res.Executed++
	}
	return res, nil
}

// CheckAutoSellTargets executes the sell leg of any unpaused auto-target
// position whose target the live price has reached. Intended to be driven
// by the stats poller tick.
func (e *Engine) CheckAutoSellTargets(ctx context.Context, livePrice decimal.Decimal, symbol string) {
	pledges, err := e.store.ListAwaitingSell(ctx)
	if err != nil {
		zap.L().Warn("failed to list awaiting positions", zap.Error(err))
		return
	}
	for _, p := range pledges {
		cfg := p.AutoSell
		if cfg == nil || !cfg.Enabled || cfg.Paused || cfg.Mode != types.AutoSellModeTarget {
			continue
		}
		if p.StockSymbol != symbol || cfg.SellPrice == nil || livePrice.LessThan(*cfg.SellPrice) {
			continue
		}
		if _, err := e.executeSellLeg(ctx, "auto-sell", types.ActorRoleSystem, p.ID, livePrice); err != nil {
			zap.L().Warn("auto sell trigger failed",
				zap.String("pledge_id", p.ID),
				zap.Error(err))
		}
	}
}

// Position is the live view of an open cycle.
type Position struct {
	PledgeID     string          `json:"pledge_id"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	ExecutedQty  decimal.Decimal `json:"executed_qty"`
	LivePrice    decimal.Decimal `json:"live_price"`
	UnrealizedPL decimal.Decimal `json:"unrealized_pl"`
}

// PositionView computes unrealized P&L for a pledge awaiting its sell leg.
func (e *Engine) PositionView(ctx context.Context, pledgeID string, livePrice decimal.Decimal) (Position, error) {
	pledge, err := e.store.GetPledge(ctx, pledgeID)
	if err != nil {
		return Position{}, err
	}
	if pledge.Status != types.PledgeStatusAwaitingSell {
		return Position{}, ErrNotExecutable
	}
	buyLeg, err := e.buyLegOf(ctx, pledgeID)
	if err != nil {
		return Position{}, err
	}
	return Position{
		PledgeID:     pledgeID,
		BuyPrice:     buyLeg.ExecutedPrice,
		ExecutedQty:  buyLeg.ExecutedQty,
		LivePrice:    livePrice,
		UnrealizedPL: UnrealizedPL(buyLeg.ExecutedPrice, livePrice, buyLeg.ExecutedQty),
	}, nil
}

func (e *Engine) buyLegOf(ctx context.Context, pledgeID string) (model.ExecutionRecord, error) {
	recs, err := e.store.ExecutionsForPledge(ctx, pledgeID)
	if err != nil {
		return model.ExecutionRecord{}, err
	}
	for _, r := range recs {
		if r.Side == types.PledgeSideBuy && r.Status == types.ExecutionStatusCompleted {
			return r, nil
		}
	}
	return model.ExecutionRecord{}, ErrNoBuyLeg
}

func (e *Engine) autoSellOf(ctx context.Context, pledgeID string) (model.Pledge, model.AutoSellConfig, error) {
	pledge, err := e.store.GetPledge(ctx, pledgeID)
	if err != nil {
		return model.Pledge{}, model.AutoSellConfig{}, err
	}
	if pledge.AutoSell == nil || !pledge.AutoSell.Enabled {
		return model.Pledge{}, model.AutoSellConfig{}, ErrAutoSellDisabled
	}
	if types.IsTerminalPledgeStatus(pledge.Status) {
		return model.Pledge{}, model.AutoSellConfig{}, ErrNotExecutable
	}
	return pledge, *pledge.AutoSell, nil
}

// failPledge releases a claim after a failed execution attempt and leaves a
// failed audit entry behind.
func (e *Engine) failPledge(ctx context.Context, actorID string, pledge model.Pledge, cause error) {
	err := e.store.Release(ctx, pledge.ID, types.PledgeStatusFailed, audit.Entry{
		ActorID:         actorID,
		ActorRole:       types.ActorRoleAdmin,
		Action:          types.AuditActionExecutionFailed,
		TargetType:      types.AuditTargetPledge,
		TargetPledgeID:  pledge.ID,
		TargetSessionID: pledge.SessionID,
		Payload:         map[string]any{"reason": cause.Error()},
		Success:         false,
	})
	if err != nil {
		zap.L().Error("failed to release claimed pledge",
			zap.String("pledge_id", pledge.ID),
			zap.Error(err))
	}
}

func (e *Engine) publish(rec model.ExecutionRecord) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(stream.Event{Type: stream.EventExecution, SessionID: rec.SessionID, Data: rec})
}
