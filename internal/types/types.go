package types

type AccessStatus string

type SessionMode string

type SessionStatus string

type PledgeStatus string

type PledgeSide string

type FeeType string

type PaymentStatus string

type ExecutionStatus string

type AutoSellMode string

type ActorRole string

type AuditAction string

type AuditTarget string

const (
	AccessStatusPending  AccessStatus = "pending"
	AccessStatusApproved AccessStatus = "approved"
	AccessStatusRejected AccessStatus = "rejected"
)

const (
	SessionModeBuyOnly      SessionMode = "buy_only"
	SessionModeSellOnly     SessionMode = "sell_only"
	SessionModeBuySellCycle SessionMode = "buy_sell_cycle"
)

const (
	SessionStatusActive       SessionStatus = "active"
	SessionStatusClosed       SessionStatus = "closed"
	SessionStatusExecuting    SessionStatus = "executing"
	SessionStatusAwaitingSell SessionStatus = "awaiting_sell_execution"
	SessionStatusCompleted    SessionStatus = "completed"
	SessionStatusCancelled    SessionStatus = "cancelled"
)

const (
	PledgeStatusDraft          PledgeStatus = "draft"
	PledgeStatusPendingPayment PledgeStatus = "pending_payment"
	PledgeStatusPaid           PledgeStatus = "paid"
	PledgeStatusReady          PledgeStatus = "ready_for_execution"
	PledgeStatusExecuting      PledgeStatus = "executing"
	PledgeStatusAwaitingSell   PledgeStatus = "awaiting_sell_execution"
	PledgeStatusExecuted       PledgeStatus = "executed"
	PledgeStatusFailed         PledgeStatus = "failed"
	PledgeStatusCancelled      PledgeStatus = "cancelled"
)

const (
	PledgeSideBuy  PledgeSide = "buy"
	PledgeSideSell PledgeSide = "sell"
)

const (
	FeeTypeFlat       FeeType = "flat"
	FeeTypePercentage FeeType = "percentage"
)

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusPartial   ExecutionStatus = "partial"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

const (
	AutoSellModeTarget       AutoSellMode = "auto_target"
	AutoSellModeAdminManaged AutoSellMode = "admin_managed"
)

const (
	ActorRoleUser   ActorRole = "user"
	ActorRoleAdmin  ActorRole = "admin"
	ActorRoleSystem ActorRole = "system"
)

const (
	AuditActionAccessSubmitted      AuditAction = "access_request_submitted"
	AuditActionAccessReviewed       AuditAction = "access_request_reviewed"
	AuditActionSessionCreated       AuditAction = "session_created"
	AuditActionSessionUpdated       AuditAction = "session_updated"
	AuditActionSessionStatusChanged AuditAction = "session_status_changed"
	AuditActionSessionCancelled     AuditAction = "session_cancelled"
	AuditActionPledgeCreated        AuditAction = "pledge_created"
	AuditActionPledgeRejected       AuditAction = "pledge_rejected"
	AuditActionPledgeCancelled      AuditAction = "pledge_cancelled"
	AuditActionBuyExecuted          AuditAction = "buy_leg_executed"
	AuditActionSellExecuted         AuditAction = "sell_leg_executed"
	AuditActionExecutionFailed      AuditAction = "execution_failed"
	AuditActionAutoSellPaused       AuditAction = "auto_sell_paused"
	AuditActionAutoSellResumed      AuditAction = "auto_sell_resumed"
	AuditActionAutoSellTargetSet    AuditAction = "auto_sell_target_changed"
	AuditActionAutoSellCancelled    AuditAction = "auto_sell_cancelled"
)

const (
	AuditTargetAccessRequest AuditTarget = "access_request"
	AuditTargetSession       AuditTarget = "pledge_session"
	AuditTargetPledge        AuditTarget = "pledge"
	AuditTargetExecution     AuditTarget = "pledge_execution"
)

// IsTerminalPledgeStatus reports whether a pledge can no longer change state.
func IsTerminalPledgeStatus(s PledgeStatus) bool {
	switch s {
	case PledgeStatusExecuted, PledgeStatusFailed, PledgeStatusCancelled:
		return true
	}
	return false
}

// IsTerminalSessionStatus reports whether a session can no longer change state.
func IsTerminalSessionStatus(s SessionStatus) bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}
