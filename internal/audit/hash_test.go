package audit

import (
	"errors"
	"testing"
	"time"

	"stockpledge/internal/model"
	"stockpledge/internal/types"
)

func chainOf(n int) []model.AuditEntry {
	entries := make([]model.AuditEntry, 0, n)
	prev := ""
	for i := 0; i < n; i++ {
		e := model.AuditEntry{
			ID:             "entry-" + string(rune('a'+i)),
			Sequence:       int64(i + 1),
			ActorID:        "admin-1",
			ActorRole:      types.ActorRoleAdmin,
			Action:         types.AuditActionPledgeCreated,
			TargetType:     types.AuditTargetPledge,
			TargetPledgeID: "pledge-1",
			Payload:        map[string]any{"stock_symbol": "RELIANCE", "n": i},
			Success:        true,
			PrevHash:       prev,
			CreatedAt:      time.Now().UTC(),
		}
		e.Hash = EntryHash(e)
		prev = e.Hash
		entries = append(entries, e)
	}
	return entries
}

func TestVerifyChainAccepts(t *testing.T) {
	if err := VerifyChain(chainOf(5)); err != nil {
		t.Fatalf("VerifyChain on a valid chain: %v", err)
	}
	if err := VerifyChain(nil); err != nil {
		t.Fatalf("VerifyChain on empty chain: %v", err)
	}
}

func TestVerifyChainDetectsPayloadMutation(t *testing.T) {
	entries := chainOf(4)
	entries[2].Payload["n"] = 999
	if err := VerifyChain(entries); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("expected ErrChainBroken after payload mutation, got %v", err)
	}
}

func TestVerifyChainDetectsRemovedEntry(t *testing.T) {
	entries := chainOf(4)
	tampered := append(entries[:1], entries[2:]...)
	if err := VerifyChain(tampered); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("expected ErrChainBroken after removing an entry, got %v", err)
	}
}

func TestVerifyChainDetectsReorder(t *testing.T) {
	entries := chainOf(3)
	entries[1], entries[2] = entries[2], entries[1]
	if err := VerifyChain(entries); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("expected ErrChainBroken after reorder, got %v", err)
	}
}

func TestEntryHashDeterministic(t *testing.T) {
	e := chainOf(1)[0]
	if EntryHash(e) != e.Hash {
		t.Fatal("EntryHash must be deterministic for identical input")
	}
	e.Success = false
	if EntryHash(e) == e.Hash {
		t.Fatal("EntryHash must change when success flips")
	}
}
