package accessgate

import (
	"context"
	"errors"
	"fmt"

	"stockpledge/internal/audit"
	"stockpledge/internal/model"
	"stockpledge/internal/types"
	"stockpledge/internal/validator"

	"go.uber.org/zap"
)

// ErrInvalidAccountID wraps a format failure; the message carries the
// broker-specific hint from the validator.
var ErrInvalidAccountID = errors.New("invalid brokerage account id")

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type SubmitInput struct {
	UserID     string
	AccountID  string
	Broker     string
	Experience string
	Income     string
}

// SubmitRequest validates the account ID, computes the risk score and
// creates a pending AccessRequest. Resubmission after rejection goes through
// here unchanged: a fresh record is created, the rejected one is history.
func (s *Service) SubmitRequest(ctx context.Context, in SubmitInput) (model.AccessRequest, error) {
	res := validator.ValidateAccountID(in.Broker, in.AccountID)
	if !res.IsValid {
		// Pure validation failure: nothing was written, nothing is audited.
		return model.AccessRequest{}, fmt.Errorf("%w: %s", ErrInvalidAccountID, res.Message)
	}
	req := model.AccessRequest{
		UserID:             in.UserID,
		BrokerageAccountID: res.Normalized,
		Broker:             in.Broker,
		RiskScore:          validator.RiskScore(in.Experience, in.Income),
	}
	entry := audit.Entry{
		ActorID:    in.UserID,
		ActorRole:  types.ActorRoleUser,
		Action:     types.AuditActionAccessSubmitted,
		TargetType: types.AuditTargetAccessRequest,
		Payload: map[string]any{
			"broker":               in.Broker,
			"brokerage_account_id": res.Normalized,
			"risk_score":           req.RiskScore,
		},
		Success: true,
	}
	created, err := s.store.Create(ctx, req, entry)
	if err != nil {
		return model.AccessRequest{}, err
	}
	zap.L().Info("access request submitted",
		zap.String("request_id", created.ID),
		zap.String("user_id", created.UserID),
		zap.Int("risk_score", created.RiskScore))
	return created, nil
}

// Review approves or rejects a pending request. Administrator-only; the
// handler enforces that.
func (s *Service) Review(ctx context.Context, requestID, reviewerID string, approve bool, reason string) (model.AccessRequest, error) {
	decision := types.AccessStatusRejected
	if approve {
		decision = types.AccessStatusApproved
	}
	entry := audit.Entry{
		ActorID:    reviewerID,
		ActorRole:  types.ActorRoleAdmin,
		Action:     types.AuditActionAccessReviewed,
		TargetType: types.AuditTargetAccessRequest,
		Payload: map[string]any{
			"request_id": requestID,
			"decision":   string(decision),
			"reason":     reason,
		},
		Success: true,
	}
	reviewed, err := s.store.Review(ctx, requestID, reviewerID, decision, reason, entry)
	if err != nil {
		return model.AccessRequest{}, err
	}
	zap.L().Info("access request reviewed",
		zap.String("request_id", requestID),
		zap.String("reviewer_id", reviewerID),
		zap.String("decision", string(decision)))
	return reviewed, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]model.AccessRequest, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) ListPending(ctx context.Context) ([]model.AccessRequest, error) {
	return s.store.ListPending(ctx)
}

// ApprovedAccountFor returns the user's linked brokerage account, or
// ErrRequestNotFound when no approved link exists.
func (s *Service) ApprovedAccountFor(ctx context.Context, userID string) (string, error) {
	return s.store.ApprovedAccountFor(ctx, userID)
}
