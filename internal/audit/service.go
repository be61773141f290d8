package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"stockpledge/internal/model"
	"stockpledge/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The chain append is serialized with an advisory lock so sequence and
// prev_hash stay consistent under concurrent transactions.
const chainLockID = 2

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Entry is the write-side input; id, sequence, hashes and created_at are
// assigned on append.
type Entry struct {
	ActorID         string
	ActorRole       types.ActorRole
	Action          types.AuditAction
	TargetType      types.AuditTarget
	TargetPledgeID  string
	TargetSessionID string
	Payload         map[string]any
	Success         bool
}

// AppendTx appends one entry inside the caller's transaction. Callers that
// mutate durable state must use this so the mutation and its audit row
// commit or roll back together.
func AppendTx(ctx context.Context, tx pgx.Tx, e Entry) (model.AuditEntry, error) {
	if _, err := tx.Exec(ctx, "select pg_advisory_xact_lock($1)", chainLockID); err != nil {
		return model.AuditEntry{}, err
	}
	var prevHash string
	err := tx.QueryRow(ctx, "select hash from pledge_audit_log order by sequence desc limit 1").Scan(&prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.AuditEntry{}, err
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return model.AuditEntry{}, err
	}
	out := model.AuditEntry{
		ActorID:         e.ActorID,
		ActorRole:       e.ActorRole,
		Action:          e.Action,
		TargetType:      e.TargetType,
		TargetPledgeID:  e.TargetPledgeID,
		TargetSessionID: e.TargetSessionID,
		Payload:         e.Payload,
		Success:         e.Success,
		PrevHash:        prevHash,
		CreatedAt:       time.Now().UTC(),
	}
	err = tx.QueryRow(ctx, `
		insert into pledge_audit_log (actor_id, actor_role, action, target_type, target_pledge_id, target_session_id, payload, success, prev_hash, created_at)
		values ($1, $2, $3, $4, nullif($5,''), nullif($6,''), $7, $8, nullif($9,''), $10)
		returning id, sequence
	`, e.ActorID, string(e.ActorRole), string(e.Action), string(e.TargetType), e.TargetPledgeID, e.TargetSessionID, payload, e.Success, prevHash, out.CreatedAt).Scan(&out.ID, &out.Sequence)
	if err != nil {
		return model.AuditEntry{}, err
	}
	out.Hash = EntryHash(out)
	if _, err := tx.Exec(ctx, "update pledge_audit_log set hash = $1 where id = $2", out.Hash, out.ID); err != nil {
		return model.AuditEntry{}, err
	}
	return out, nil
}

// Record appends one entry in its own transaction, for callers that are not
// part of a larger mutation unit.
func (s *Service) Record(ctx context.Context, e Entry) (model.AuditEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.AuditEntry{}, err
	}
	defer tx.Rollback(ctx)
	out, err := AppendTx(ctx, tx, e)
	if err != nil {
		return model.AuditEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.AuditEntry{}, err
	}
	return out, nil
}

// VerifyLedger walks the full ledger in sequence order and recomputes every
// hash. Returns the number of entries checked.
func (s *Service) VerifyLedger(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `
		select id, sequence, actor_id, actor_role, action, target_type,
		       coalesce(target_pledge_id::text, ''), coalesce(target_session_id::text, ''),
		       payload, success, coalesce(prev_hash, ''), coalesce(hash, ''), created_at
		from pledge_audit_log
		order by sequence asc
	`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return 0, err
	}
	return len(entries), VerifyChain(entries)
}

// Filter narrows audit queries. Zero values mean "any".
type Filter struct {
	ActorID         string
	StockSymbol     string
	Success         *bool
	TargetPledgeID  string
	TargetSessionID string
	Limit           int
}

// List returns entries newest-first except when filtered to a single target,
// where creation order is the contract.
func (s *Service) List(ctx context.Context, f Filter) ([]model.AuditEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	order := "order by sequence desc"
	if f.TargetPledgeID != "" || f.TargetSessionID != "" {
		order = "order by sequence asc"
	}
	rows, err := s.pool.Query(ctx, `
		select id, sequence, actor_id, actor_role, action, target_type,
		       coalesce(target_pledge_id::text, ''), coalesce(target_session_id::text, ''),
		       payload, success, coalesce(prev_hash, ''), coalesce(hash, ''), created_at
		from pledge_audit_log
		where ($1 = '' or actor_id = $1)
		  and ($2 = '' or payload->>'stock_symbol' = $2)
		  and ($3::boolean is null or success = $3)
		  and ($4 = '' or target_pledge_id::text = $4)
		  and ($5 = '' or target_session_id::text = $5)
		`+order+`
		limit $6
	`, f.ActorID, f.StockSymbol, f.Success, f.TargetPledgeID, f.TargetSessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var role, action, target string
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Sequence, &e.ActorID, &role, &action, &target,
			&e.TargetPledgeID, &e.TargetSessionID, &payload, &e.Success, &e.PrevHash, &e.Hash, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorRole = types.ActorRole(role)
		e.Action = types.AuditAction(action)
		e.TargetType = types.AuditTarget(target)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
