package execution

import (
	"context"
	"errors"

	"stockpledge/internal/audit"
	"stockpledge/internal/model"
	"stockpledge/internal/types"
)

var (
	ErrPledgeNotFound    = errors.New("pledge not found")
	ErrAlreadyExecuting  = errors.New("pledge is already being executed")
	ErrNotExecutable     = errors.New("pledge is not in an executable status")
	ErrAutoSellDisabled  = errors.New("pledge has no auto sell configuration")
	ErrNoBuyLeg          = errors.New("no completed buy leg for this pledge")
	ErrExecutionNotFound = errors.New("execution record not found")
)

// Store is the durable side of the engine. Claim is the concurrency guard:
// a conditional status write that only one caller can win.
type Store interface {
	GetPledge(ctx context.Context, id string) (model.Pledge, error)
	// Claim moves the pledge from the expected status into executing.
	// ErrAlreadyExecuting means another attempt won the race.
	Claim(ctx context.Context, pledgeID string, from types.PledgeStatus) error
	// Release undoes a claim when the execution attempt fails, moving the
	// pledge to the given status and auditing the failure.
	Release(ctx context.Context, pledgeID string, to types.PledgeStatus, entry audit.Entry) error
	// RecordExecution inserts the record, moves the pledge to its next
	// status and appends the audit entry in one transaction.
	RecordExecution(ctx context.Context, rec model.ExecutionRecord, pledgeStatus types.PledgeStatus, entry audit.Entry) (model.ExecutionRecord, error)
	UpdateAutoSell(ctx context.Context, pledgeID string, cfg model.AutoSellConfig, entry audit.Entry) error
	ExecutionsForPledge(ctx context.Context, pledgeID string) ([]model.ExecutionRecord, error)
	ExecutionsForUser(ctx context.Context, userID string) ([]model.ExecutionRecord, error)
	ListReadyPledges(ctx context.Context, sessionID string) ([]model.Pledge, error)
	ListAwaitingSell(ctx context.Context) ([]model.Pledge, error)
}
