package accessgate

import (
	"context"
	"errors"
	"time"

	"stockpledge/internal/audit"
	"stockpledge/internal/model"
	"stockpledge/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Partial unique indexes backing the conflict semantics:
//
//	access_requests_one_pending_per_user: unique (user_id) where status = 'pending'
//	access_requests_one_approved_per_account: unique (brokerage_account_id) where status = 'approved'
const (
	idxOnePendingPerUser     = "access_requests_one_pending_per_user"
	idxOneApprovedPerAccount = "access_requests_one_approved_per_account"
	uniqueViolationSQLState  = "23505"
)

type PostgresStore struct {
	pool  *pgxpool.Pool
	audit *audit.Service
}

func NewPostgresStore(pool *pgxpool.Pool, auditSvc *audit.Service) *PostgresStore {
	return &PostgresStore{pool: pool, audit: auditSvc}
}

func uniqueViolationOn(err error, index string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolationSQLState && pgErr.ConstraintName == index
}

func (s *PostgresStore) Create(ctx context.Context, req model.AccessRequest, entry audit.Entry) (model.AccessRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.AccessRequest{}, err
	}
	defer tx.Rollback(ctx)

	// An approved link by any other user blocks submission outright. The
	// partial unique index remains the backstop at approval time.
	var linkedUser string
	err = tx.QueryRow(ctx, `
		select user_id from access_requests
		where brokerage_account_id = $1 and status = 'approved'
		limit 1
	`, req.BrokerageAccountID).Scan(&linkedUser)
	if err == nil && linkedUser != req.UserID {
		s.recordConflict(ctx, entry, "account_already_linked")
		return model.AccessRequest{}, ErrAccountAlreadyLinked
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.AccessRequest{}, err
	}

	req.SubmittedAt = time.Now().UTC()
	req.Status = types.AccessStatusPending
	err = tx.QueryRow(ctx, `
		insert into access_requests (user_id, brokerage_account_id, broker, risk_score, status, submitted_at)
		values ($1, $2, $3, $4, $5, $6)
		returning id
	`, req.UserID, req.BrokerageAccountID, req.Broker, req.RiskScore, string(req.Status), req.SubmittedAt).Scan(&req.ID)
	if err != nil {
		if uniqueViolationOn(err, idxOnePendingPerUser) {
			s.recordConflict(ctx, entry, "duplicate_pending_request")
			return model.AccessRequest{}, ErrDuplicatePendingRequest
		}
		return model.AccessRequest{}, err
	}
	if _, err := audit.AppendTx(ctx, tx, entry); err != nil {
		return model.AccessRequest{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.AccessRequest{}, err
	}
	return req, nil
}

func (s *PostgresStore) Review(ctx context.Context, requestID, reviewerID string, decision types.AccessStatus, reason string, entry audit.Entry) (model.AccessRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.AccessRequest{}, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
		update access_requests
		set status = $1, reviewed_at = $2, reviewed_by = $3, rejection_reason = nullif($4, '')
		where id = $5 and status = 'pending'
	`, string(decision), now, reviewerID, reason, requestID)
	if err != nil {
		if uniqueViolationOn(err, idxOneApprovedPerAccount) {
			s.recordConflict(ctx, entry, "account_already_linked")
			return model.AccessRequest{}, ErrAccountAlreadyLinked
		}
		return model.AccessRequest{}, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, "select exists(select 1 from access_requests where id = $1)", requestID).Scan(&exists); err != nil {
			return model.AccessRequest{}, err
		}
		if !exists {
			return model.AccessRequest{}, ErrRequestNotFound
		}
		return model.AccessRequest{}, ErrAlreadyReviewed
	}
	if _, err := audit.AppendTx(ctx, tx, entry); err != nil {
		return model.AccessRequest{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if uniqueViolationOn(err, idxOneApprovedPerAccount) {
			s.recordConflict(ctx, entry, "account_already_linked")
			return model.AccessRequest{}, ErrAccountAlreadyLinked
		}
		return model.AccessRequest{}, err
	}
	return s.GetByID(ctx, requestID)
}

func (s *PostgresStore) recordConflict(ctx context.Context, entry audit.Entry, reason string) {
	entry.Success = false
	if entry.Payload == nil {
		entry.Payload = map[string]any{}
	}
	entry.Payload["conflict"] = reason
	if _, err := s.audit.Record(ctx, entry); err != nil {
		// Conflict audit is best effort: the conflicting write itself never
		// happened, so there is no half-written state to protect.
		return
	}
}

const accessRequestColumns = `
	id, user_id, brokerage_account_id, broker, risk_score, status,
	submitted_at, reviewed_at, coalesce(reviewed_by, ''), coalesce(rejection_reason, '')
`

func scanAccessRequest(row pgx.Row) (model.AccessRequest, error) {
	var r model.AccessRequest
	var status string
	if err := row.Scan(&r.ID, &r.UserID, &r.BrokerageAccountID, &r.Broker, &r.RiskScore, &status,
		&r.SubmittedAt, &r.ReviewedAt, &r.ReviewedBy, &r.RejectionReason); err != nil {
		return model.AccessRequest{}, err
	}
	r.Status = types.AccessStatus(status)
	return r, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (model.AccessRequest, error) {
	r, err := scanAccessRequest(s.pool.QueryRow(ctx, "select "+accessRequestColumns+" from access_requests where id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AccessRequest{}, ErrRequestNotFound
	}
	return r, err
}

func (s *PostgresStore) listQuery(ctx context.Context, query string, args ...any) ([]model.AccessRequest, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AccessRequest
	for rows.Next() {
		r, err := scanAccessRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]model.AccessRequest, error) {
	return s.listQuery(ctx, "select "+accessRequestColumns+" from access_requests where user_id = $1 order by submitted_at desc", userID)
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]model.AccessRequest, error) {
	return s.listQuery(ctx, "select "+accessRequestColumns+" from access_requests where status = 'pending' order by submitted_at asc")
}

func (s *PostgresStore) ApprovedAccountFor(ctx context.Context, userID string) (string, error) {
	var accountID string
	err := s.pool.QueryRow(ctx, `
		select brokerage_account_id from access_requests
		where user_id = $1 and status = 'approved'
		order by reviewed_at desc
		limit 1
	`, userID).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrRequestNotFound
	}
	return accountID, err
}
