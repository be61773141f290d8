package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"

	"stockpledge/internal/model"
)

// EntryHash computes the chain hash for an entry. Everything that identifies
// the entry participates, plus the previous entry's hash, so replacing or
// reordering rows breaks verification.
func EntryHash(e model.AuditEntry) string {
	payload, _ := json.Marshal(e.Payload)
	buf := e.ID + "|" + e.ActorID + "|" + string(e.ActorRole) + "|" + string(e.Action) + "|" +
		string(e.TargetType) + "|" + e.TargetPledgeID + "|" + e.TargetSessionID + "|" +
		string(payload) + "|" + strconv.FormatBool(e.Success) + "|" +
		strconv.FormatInt(e.Sequence, 10) + "|" + e.PrevHash
	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])
}

var ErrChainBroken = errors.New("audit chain verification failed")

// VerifyChain walks entries in sequence order and recomputes every hash.
func VerifyChain(entries []model.AuditEntry) error {
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev {
			return ErrChainBroken
		}
		if EntryHash(e) != e.Hash {
			return ErrChainBroken
		}
		if i > 0 && e.Sequence <= entries[i-1].Sequence {
			return ErrChainBroken
		}
		prev = e.Hash
	}
	return nil
}
