package pledges

import (
	"context"
	"errors"

	"stockpledge/internal/audit"
	"stockpledge/internal/model"
)

// Submission gate errors. Each one names the exact step that rejected the
// pledge so the user gets an actionable reason.
var (
	ErrInvalidQuantity      = errors.New("quantity outside session limits")
	ErrInvalidPrice         = errors.New("price target must be positive")
	ErrDisclosureIncomplete = errors.New("risk disclosure not fully acknowledged")
	ErrConsentIncomplete    = errors.New("digital consent incomplete")
	ErrPaymentFailed        = errors.New("convenience fee payment failed")
	ErrSessionFull          = errors.New("session is at capacity")
	ErrSessionExpired       = errors.New("session is closed for submissions")
	ErrDematNotApproved     = errors.New("no approved brokerage account")
	ErrPledgeExists         = errors.New("an active pledge already exists for this session")
	ErrPledgeNotFound       = errors.New("pledge not found")
	ErrPledgeNotCancellable = errors.New("pledge can no longer be cancelled")
)

// Store is the durable side of the workflow. FinalizeSubmission commits the
// pledge, its payment and the audit entry as one unit: either all three are
// visible or none is.
type Store interface {
	FinalizeSubmission(ctx context.Context, pledge model.Pledge, payment *model.PledgePayment, entry audit.Entry) (model.Pledge, error)
	GetByID(ctx context.Context, id string) (model.Pledge, error)
	ListByUser(ctx context.Context, userID, sessionID string) ([]model.Pledge, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.Pledge, error)
	Cancel(ctx context.Context, pledgeID, userID string, entry audit.Entry) (model.Pledge, error)
}
