package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockpledge/internal/audit"
	"stockpledge/internal/model"
	"stockpledge/internal/types"
)

var (
	ErrSessionNotFound   = errors.New("pledge session not found")
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrStatusConflict    = errors.New("session status changed concurrently")
	ErrSessionHasPledges = errors.New("session has pledges and can only be cancelled")
)

const sessionColumns = `id, stock_symbol, session_mode, status, session_start, session_end,
	min_qty, max_qty, capacity, convenience_fee_type, convenience_fee_amount,
	commission_rate_override, allow_amo, created_by, created_at, updated_at`

// Store handles database operations for pledge sessions.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new session in active status and audits it in the same
// transaction.
func (s *Store) Create(ctx context.Context, sess model.PledgeSession, entry audit.Entry) (model.PledgeSession, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.PledgeSession{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO pledge_sessions
			(stock_symbol, session_mode, status, session_start, session_end,
			 min_qty, max_qty, capacity, convenience_fee_type, convenience_fee_amount,
			 commission_rate_override, allow_amo, created_by)
		VALUES ($1, $2, 'active', $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, status, created_at, updated_at
	`, sess.StockSymbol, string(sess.Mode), sess.SessionStart, sess.SessionEnd,
		sess.MinQty, sess.MaxQty, sess.Capacity, string(sess.FeeType), sess.FeeAmount,
		sess.CommissionRate, sess.AllowAMO, sess.CreatedBy).
		Scan(&sess.ID, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return model.PledgeSession{}, err
	}
	entry.TargetSessionID = sess.ID
	if _, err := audit.AppendTx(ctx, tx, entry); err != nil {
		return model.PledgeSession{}, err
	}
	return sess, tx.Commit(ctx)
}

// GetByID returns a single session.
func (s *Store) GetByID(ctx context.Context, id string) (model.PledgeSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM pledge_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PledgeSession{}, ErrSessionNotFound
	}
	return sess, err
}

// List returns sessions, optionally filtered by status, newest first.
func (s *Store) List(ctx context.Context, status types.SessionStatus) ([]model.PledgeSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM pledge_sessions
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PledgeSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateConfig mutates the fee and limit settings of an active session.
func (s *Store) UpdateConfig(ctx context.Context, sess model.PledgeSession, entry audit.Entry) (model.PledgeSession, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.PledgeSession{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		UPDATE pledge_sessions
		SET min_qty = $2, max_qty = $3, capacity = $4,
		    convenience_fee_type = $5, convenience_fee_amount = $6,
		    commission_rate_override = $7, session_end = $8, allow_amo = $9,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING updated_at
	`, sess.ID, sess.MinQty, sess.MaxQty, sess.Capacity,
		string(sess.FeeType), sess.FeeAmount, sess.CommissionRate,
		sess.SessionEnd, sess.AllowAMO).Scan(&sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PledgeSession{}, ErrStatusConflict
	}
	if err != nil {
		return model.PledgeSession{}, err
	}
	entry.TargetSessionID = sess.ID
	if _, err := audit.AppendTx(ctx, tx, entry); err != nil {
		return model.PledgeSession{}, err
	}
	return sess, tx.Commit(ctx)
}

// Transition moves a session from an expected status to the next one. The
// conditional UPDATE guards against concurrent admins: zero rows means the
// session was not in the expected status anymore.
func (s *Store) Transition(ctx context.Context, sessionID string, from, to types.SessionStatus, entry audit.Entry) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE pledge_sessions SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, sessionID, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, sessionID); errors.Is(err, ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return ErrStatusConflict
	}
	entry.TargetSessionID = sessionID
	if _, err := audit.AppendTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Cancel moves a session to cancelled from any non-terminal status.
func (s *Store) Cancel(ctx context.Context, sessionID string, entry audit.Entry) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE pledge_sessions SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled')
	`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, sessionID); errors.Is(err, ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return ErrStatusConflict
	}
	entry.TargetSessionID = sessionID
	if _, err := audit.AppendTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Stats recomputes the session aggregate from pledges on every call. It backs
// the capacity gate and the fill warnings users see, so it is never cached.
func (s *Store) Stats(ctx context.Context, sessionID string) (model.SessionStats, error) {
	sess, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return model.SessionStats{}, err
	}
	stats := model.SessionStats{SessionID: sessionID, ComputedAt: time.Now().UTC()}
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT user_id),
		       COUNT(*),
		       COALESCE(SUM(qty * price_target), 0),
		       COUNT(*) FILTER (WHERE side = 'buy'),
		       COUNT(*) FILTER (WHERE side = 'sell')
		FROM pledges
		WHERE session_id = $1 AND status NOT IN ('failed', 'cancelled')
	`, sessionID).Scan(&stats.UniquePledgers, &stats.TotalPledges,
		&stats.TotalPledgeValue, &stats.BuyCount, &stats.SellCount)
	if err != nil {
		return model.SessionStats{}, err
	}
	stats.FillPercentage = FillPercentage(stats.TotalPledges, sess.Capacity)
	return stats, nil
}

// HasPledges reports whether any non-cancelled pledge exists for the session.
// Sessions with pledges are never deleted, only cancelled.
func (s *Store) HasPledges(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pledges WHERE session_id = $1 AND status <> 'cancelled'
		)
	`, sessionID).Scan(&exists)
	return exists, err
}

func scanSession(row pgx.Row) (model.PledgeSession, error) {
	var sess model.PledgeSession
	var mode, status, feeType string
	err := row.Scan(&sess.ID, &sess.StockSymbol, &mode, &status,
		&sess.SessionStart, &sess.SessionEnd, &sess.MinQty, &sess.MaxQty,
		&sess.Capacity, &feeType, &sess.FeeAmount, &sess.CommissionRate,
		&sess.AllowAMO, &sess.CreatedBy, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return model.PledgeSession{}, err
	}
	sess.Mode = types.SessionMode(mode)
	sess.Status = types.SessionStatus(status)
	sess.FeeType = types.FeeType(feeType)
	return sess, nil
}
