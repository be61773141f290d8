package pledges

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"stockpledge/internal/audit"
	"stockpledge/internal/model"
	"stockpledge/internal/types"
)

// One non-terminal pledge per (user, session), enforced by a partial unique
// index so concurrent submissions cannot both land.
const (
	idxOneActivePerUserSession = "pledges_one_active_per_user_session"
	uniqueViolationSQLState    = "23505"
)

type PostgresStore struct {
	pool  *pgxpool.Pool
	audit *audit.Service
}

func NewPostgresStore(pool *pgxpool.Pool, auditSvc *audit.Service) *PostgresStore {
	return &PostgresStore{pool: pool, audit: auditSvc}
}

const pledgeColumns = `id, session_id, user_id, brokerage_account_id, stock_symbol,
	qty, price_target, side, consent_hash,
	ack_market, ack_execution, ack_financial, ack_version, acknowledged_at,
	consent_signature, consent_terms, consent_risk, consent_execution, consent_signed_at,
	convenience_fee_amount, convenience_fee_paid, coalesce(convenience_fee_payment_id::text, ''),
	auto_sell_enabled, auto_sell_mode, auto_sell_has_target, auto_sell_price, auto_sell_paused,
	status, coalesce(correlation_id::text, ''), created_at, updated_at`

// FinalizeSubmission writes the pledge, its payment record and the audit
// entry in one Serializable transaction. A unique-index violation means the
// user already holds a non-terminal pledge in this session.
func (s *PostgresStore) FinalizeSubmission(ctx context.Context, p model.Pledge, payment *model.PledgePayment, entry audit.Entry) (model.Pledge, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.Pledge{}, err
	}
	defer tx.Rollback(ctx)

	autoSell := p.AutoSell
	if autoSell == nil {
		autoSell = &model.AutoSellConfig{}
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO pledges
			(session_id, user_id, brokerage_account_id, stock_symbol, qty, price_target, side, consent_hash,
			 ack_market, ack_execution, ack_financial, ack_version, acknowledged_at,
			 consent_signature, consent_terms, consent_risk, consent_execution, consent_signed_at,
			 convenience_fee_amount, convenience_fee_paid,
			 auto_sell_enabled, auto_sell_mode, auto_sell_has_target, auto_sell_price, auto_sell_paused,
			 status, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
		        $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18,
		        $19, $20,
		        $21, $22, $23, $24, $25,
		        $26, nullif($27, '')::uuid)
		RETURNING id, created_at, updated_at
	`, p.SessionID, p.UserID, p.BrokerageAccountID, p.StockSymbol, p.Qty, p.PriceTarget, string(p.Side), p.ConsentHash,
		p.RiskAck.Market, p.RiskAck.Execution, p.RiskAck.Financial, p.RiskAck.Version, p.RiskAck.AcknowledgedAt,
		p.Consent.Signature, p.Consent.AcceptTerms, p.Consent.AcceptRisk, p.Consent.AcceptExecution, p.Consent.SignedAt,
		p.FeeAmount, p.FeePaid,
		autoSell.Enabled, string(autoSell.Mode), autoSell.HasTarget, autoSell.SellPrice, autoSell.Paused,
		string(p.Status), p.CorrelationID).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if uniqueViolationOn(err, idxOneActivePerUserSession) {
		s.recordConflict(ctx, entry)
		return model.Pledge{}, ErrPledgeExists
	}
	if err != nil {
		return model.Pledge{}, err
	}

	if payment != nil {
		err = tx.QueryRow(ctx, `
			INSERT INTO pledge_payments (pledge_id, user_id, amount, status, payment_ref, payment_provider, currency)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at
		`, p.ID, payment.UserID, payment.Amount, string(payment.Status),
			payment.PaymentRef, payment.PaymentProvider, payment.Currency).
			Scan(&payment.ID, &payment.CreatedAt)
		if err != nil {
			return model.Pledge{}, err
		}
		p.FeePaymentID = payment.ID
		if _, err := tx.Exec(ctx, `UPDATE pledges SET convenience_fee_payment_id = $1 WHERE id = $2`, payment.ID, p.ID); err != nil {
			return model.Pledge{}, err
		}
	}

	entry.TargetPledgeID = p.ID
	entry.TargetSessionID = p.SessionID
	if _, err := audit.AppendTx(ctx, tx, entry); err != nil {
		return model.Pledge{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if uniqueViolationOn(err, idxOneActivePerUserSession) {
			s.recordConflict(ctx, entry)
			return model.Pledge{}, ErrPledgeExists
		}
		return model.Pledge{}, err
	}
	return p, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (model.Pledge, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pledgeColumns+` FROM pledges WHERE id = $1`, id)
	p, err := scanPledge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Pledge{}, ErrPledgeNotFound
	}
	return p, err
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID, sessionID string) ([]model.Pledge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pledgeColumns+` FROM pledges
		WHERE user_id = $1 AND ($2 = '' OR session_id::text = $2)
		ORDER BY created_at DESC
	`, userID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPledges(rows)
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string) ([]model.Pledge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pledgeColumns+` FROM pledges
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPledges(rows)
}

// Cancel lets the owner withdraw a pledge that has not entered execution.
func (s *PostgresStore) Cancel(ctx context.Context, pledgeID, userID string, entry audit.Entry) (model.Pledge, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Pledge{}, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE pledges SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'ready_for_execution'
	`, pledgeID, userID)
	if err != nil {
		return model.Pledge{}, err
	}
	if tag.RowsAffected() == 0 {
		p, err := s.GetByID(ctx, pledgeID)
		if err != nil {
			return model.Pledge{}, err
		}
		if p.UserID != userID {
			return model.Pledge{}, ErrPledgeNotFound
		}
		return model.Pledge{}, ErrPledgeNotCancellable
	}
	entry.TargetPledgeID = pledgeID
	if _, err := audit.AppendTx(ctx, tx, entry); err != nil {
		return model.Pledge{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Pledge{}, err
	}
	return s.GetByID(ctx, pledgeID)
}

// recordConflict audits a submission that lost the uniqueness race. The
// original transaction is gone, so this is a best-effort standalone write.
func (s *PostgresStore) recordConflict(ctx context.Context, entry audit.Entry) {
	entry.Success = false
	if entry.Payload == nil {
		entry.Payload = map[string]any{}
	}
	entry.Payload["conflict"] = "active pledge already exists"
	if _, err := s.audit.Record(ctx, entry); err != nil {
		zap.L().Warn("failed to audit pledge conflict", zap.Error(err))
	}
}

func uniqueViolationOn(err error, indexName string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolationSQLState && pgErr.ConstraintName == indexName
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
