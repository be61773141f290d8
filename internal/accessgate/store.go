package accessgate

import (
	"context"
	"errors"

	"stockpledge/internal/audit"
	"stockpledge/internal/model"
	"stockpledge/internal/types"
)

// Sentinel errors shared by every store implementation. Conflicts are
// enforced server-side (unique indexes / conditional writes), never by a
// client-visible check-then-create sequence.
var (
	ErrAccountAlreadyLinked    = errors.New("brokerage account already linked to another user")
	ErrDuplicatePendingRequest = errors.New("a pending access request already exists for this user")
	ErrRequestNotFound         = errors.New("access request not found")
	ErrAlreadyReviewed         = errors.New("access request already reviewed")
)

// Store persists access requests. The audit entry passed to each mutating
// method must commit in the same unit as the mutation.
type Store interface {
	Create(ctx context.Context, req model.AccessRequest, entry audit.Entry) (model.AccessRequest, error)
	Review(ctx context.Context, requestID, reviewerID string, decision types.AccessStatus, reason string, entry audit.Entry) (model.AccessRequest, error)
	GetByID(ctx context.Context, id string) (model.AccessRequest, error)
	ListByUser(ctx context.Context, userID string) ([]model.AccessRequest, error)
	ListPending(ctx context.Context) ([]model.AccessRequest, error)
	ApprovedAccountFor(ctx context.Context, userID string) (string, error)
}
