package execution

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockpledge/internal/audit"
	"stockpledge/internal/model"
	"stockpledge/internal/types"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const pledgeColumns = `id, session_id, user_id, brokerage_account_id, stock_symbol,
	qty, price_target, side, consent_hash,
	ack_market, ack_execution, ack_financial, ack_version, acknowledged_at,
	consent_signature, consent_terms, consent_risk, consent_execution, consent_signed_at,
	convenience_fee_amount, convenience_fee_paid, coalesce(convenience_fee_payment_id::text, ''),
	auto_sell_enabled, auto_sell_mode, auto_sell_has_target, auto_sell_price, auto_sell_paused,
	status, coalesce(correlation_id::text, ''), created_at, updated_at`

func (s *PostgresStore) GetPledge(ctx context.Context, id string) (model.Pledge, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pledgeColumns+` FROM pledges WHERE id = $1`, id)
	p, err := scanPledge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Pledge{}, ErrPledgeNotFound
	}
	return p, err
}

// Claim is the conditional status write guarding executions: only the caller
// that flips the row wins; everyone else sees zero rows affected.
func (s *PostgresStore) Claim(ctx context.Context, pledgeID string, from types.PledgeStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pledges SET status = 'executing', updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, pledgeID, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetPledge(ctx, pledgeID); errors.Is(err, ErrPledgeNotFound) {
			return ErrPledgeNotFound
		}
		return ErrAlreadyExecuting
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, pledgeID string, to types.PledgeStatus, entry audit.Entry) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE pledges SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'executing'
	`, pledgeID, string(to)); err != nil {
		return err
	}
	if _, err := audit.AppendTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) RecordExecution(ctx context.Context, rec model.ExecutionRecord, pledgeStatus types.PledgeStatus, entry audit.Entry) (model.ExecutionRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.ExecutionRecord{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO pledge_executions
			(pledge_id, session_id, user_id, brokerage_account_id, stock_symbol, side,
			 pledged_qty, executed_qty, executed_price, total_execution_value,
			 platform_commission, broker_commission, net_amount, status, broker_order_id,
			 executed_at, settlement_date, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, nullif($15,''), $16, $17, nullif($18,''))
		RETURNING id
	`, rec.PledgeID, rec.SessionID, rec.UserID, rec.BrokerageAccountID, rec.StockSymbol, string(rec.Side),
		rec.PledgedQty, rec.ExecutedQty, rec.ExecutedPrice, rec.TotalValue,
		rec.PlatformCommission, rec.BrokerCommission, rec.NetAmount, string(rec.Status), rec.BrokerOrderID,
		rec.ExecutedAt, rec.SettlementDate, rec.ErrorMessage).Scan(&rec.ID)
	if err != nil {
		return model.ExecutionRecord{}, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE pledges SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'executing'
	`, rec.PledgeID, string(pledgeStatus))
	if err != nil {
		return model.ExecutionRecord{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.ExecutionRecord{}, ErrAlreadyExecuting
	}

	if _, err := audit.AppendTx(ctx, tx, entry); err != nil {
		return model.ExecutionRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.ExecutionRecord{}, err
	}
	return rec, nil
}

func (s *PostgresStore) UpdateAutoSell(ctx context.Context, pledgeID string, cfg model.AutoSellConfig, entry audit.Entry) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE pledges
		SET auto_sell_mode = $2, auto_sell_has_target = $3, auto_sell_price = $4,
		    auto_sell_paused = $5, updated_at = NOW()
		WHERE id = $1 AND auto_sell_enabled AND status NOT IN ('executed', 'failed', 'cancelled')
	`, pledgeID, string(cfg.Mode), cfg.HasTarget, cfg.SellPrice, cfg.Paused)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetPledge(ctx, pledgeID); errors.Is(err, ErrPledgeNotFound) {
			return ErrPledgeNotFound
		}
		return ErrAutoSellDisabled
	}
	if _, err := audit.AppendTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const executionColumns = `id, pledge_id, session_id, user_id, brokerage_account_id, stock_symbol, side,
	pledged_qty, executed_qty, executed_price, total_execution_value,
	platform_commission, broker_commission, net_amount, status, coalesce(broker_order_id, ''),
	executed_at, settlement_date, coalesce(error_message, '')`

func (s *PostgresStore) ExecutionsForPledge(ctx context.Context, pledgeID string) ([]model.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+` FROM pledge_executions
		WHERE pledge_id = $1
		ORDER BY executed_at ASC
	`, pledgeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ExecutionsForUser(ctx context.Context, userID string) ([]model.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+` FROM pledge_executions
		WHERE user_id = $1
		ORDER BY executed_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListReadyPledges(ctx context.Context, sessionID string) ([]model.Pledge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pledgeColumns+` FROM pledges
		WHERE session_id = $1 AND status = 'ready_for_execution'
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPledges(rows)
}

func (s *PostgresStore) ListAwaitingSell(ctx context.Context) ([]model.Pledge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pledgeColumns+` FROM pledges
		WHERE status = 'awaiting_sell_execution'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPledges(rows)
}

func scanPledge(row pgx.Row) (model.Pledge, error) {
	var p model.Pledge
	var side, status, autoSellMode string
	var autoSell model.AutoSellConfig
	err := row.Scan(&p.ID, &p.SessionID, &p.UserID, &p.BrokerageAccountID, &p.StockSymbol,
		&p.Qty, &p.PriceTarget, &side, &p.ConsentHash,
		&p.RiskAck.Market, &p.RiskAck.Execution, &p.RiskAck.Financial, &p.RiskAck.Version, &p.RiskAck.AcknowledgedAt,
		&p.Consent.Signature, &p.Consent.AcceptTerms, &p.Consent.AcceptRisk, &p.Consent.AcceptExecution, &p.Consent.SignedAt,
		&p.FeeAmount, &p.FeePaid, &p.FeePaymentID,
		&autoSell.Enabled, &autoSellMode, &autoSell.HasTarget, &autoSell.SellPrice, &autoSell.Paused,
		&status, &p.CorrelationID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Pledge{}, err
	}
	p.Side = types.PledgeSide(side)
	p.Status = types.PledgeStatus(status)
	if autoSell.Enabled {
		autoSell.Mode = types.AutoSellMode(autoSellMode)
		p.AutoSell = &autoSell
	}
	return p, nil
}

func collectPledges(rows pgx.Rows) ([]model.Pledge, error) {
	var out []model.Pledge
	for rows.Next() {
		p, err := scanPledge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanExecution(row pgx.Row) (model.ExecutionRecord, error) {
	var rec model.ExecutionRecord
	var side, status string
	err := row.Scan(&rec.ID, &rec.PledgeID, &rec.SessionID, &rec.UserID, &rec.BrokerageAccountID,
		&rec.StockSymbol, &side, &rec.PledgedQty, &rec.ExecutedQty, &rec.ExecutedPrice,
		&rec.TotalValue, &rec.PlatformCommission, &rec.BrokerCommission, &rec.NetAmount,
		&status, &rec.BrokerOrderID, &rec.ExecutedAt, &rec.SettlementDate, &rec.ErrorMessage)
	if err != nil {
		return model.ExecutionRecord{}, err
	}
	rec.Side = types.PledgeSide(side)
	rec.Status = types.ExecutionStatus(status)
	return rec, nil
}
