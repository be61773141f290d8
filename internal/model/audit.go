package model

import (
	"time"

	"stockpledge/internal/types"
)

// AuditEntry is one append-only row in the pledge audit ledger. Entries are
// hash-chained: Hash covers the entry fields plus PrevHash of the previous
// row, so any rewrite of history breaks verification downstream.
type AuditEntry struct {
	ID              string            `json:"id"`
	Sequence        int64             `json:"sequence"`
	ActorID         string            `json:"actor_id"`
	ActorRole       types.ActorRole   `json:"actor_role"`
	Action          types.AuditAction `json:"action"`
	TargetType      types.AuditTarget `json:"target_type"`
	TargetPledgeID  string            `json:"target_pledge_id,omitempty"`
	TargetSessionID string            `json:"target_session_id,omitempty"`
	Payload         map[string]any    `json:"payload"`
	Success         bool              `json:"success"`
	PrevHash        string            `json:"prev_hash,omitempty"`
	Hash            string            `json:"hash"`
	CreatedAt       time.Time         `json:"created_at"`
}
