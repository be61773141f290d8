package accessgate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stockpledge/internal/audit"
	"stockpledge/internal/model"
	"stockpledge/internal/types"
)

// memStore mirrors the postgres store's contract: conflicts surface as
// sentinel errors and still leave a failed audit entry behind.
type memStore struct {
	requests []model.AccessRequest
	entries  []audit.Entry
	nextID   int
}

func (m *memStore) Create(ctx context.Context, req model.AccessRequest, entry audit.Entry) (model.AccessRequest, error) {
	for _, existing := range m.requests {
		if existing.Status == types.AccessStatusApproved && existing.BrokerageAccountID == req.BrokerageAccountID {
			m.recordConflict(entry, "account already linked")
			return model.AccessRequest{}, ErrAccountAlreadyLinked
		}
	}
	for _, existing := range m.requests {
		if existing.Status == types.AccessStatusPending && existing.UserID == req.UserID {
			m.recordConflict(entry, "duplicate pending request")
			return model.AccessRequest{}, ErrDuplicatePendingRequest
		}
	}
	m.nextID++
	req.ID = fmt.Sprintf("req-%d", m.nextID)
	req.Status = types.AccessStatusPending
	req.SubmittedAt = time.Now().UTC()
	m.requests = append(m.requests, req)
	m.entries = append(m.entries, entry)
	return req, nil
}

func (m *memStore) Review(ctx context.Context, requestID, reviewerID string, decision types.AccessStatus, reason string, entry audit.Entry) (model.AccessRequest, error) {
	for i, existing := range m.requests {
		if existing.ID != requestID {
			continue
		}
		if existing.Status != types.AccessStatusPending {
			return model.AccessRequest{}, ErrAlreadyReviewed
		}
		if decision == types.AccessStatusApproved {
			for _, other := range m.requests {
				if other.Status == types.AccessStatusApproved && other.BrokerageAccountID == existing.BrokerageAccountID {
					m.recordConflict(entry, "account already linked")
					return model.AccessRequest{}, ErrAccountAlreadyLinked
				}
			}
		}
		now := time.Now().UTC()
		m.requests[i].Status = decision
		m.requests[i].ReviewedAt = &now
		m.requests[i].ReviewedBy = reviewerID
		m.requests[i].RejectionReason = reason
		m.entries = append(m.entries, entry)
		return m.requests[i], nil
	}
	return model.AccessRequest{}, ErrRequestNotFound
}

func (m *memStore) GetByID(ctx context.Context, id string) (model.AccessRequest, error) {
	for _, req := range m.requests {
		if req.ID == id {
			return req, nil
		}
	}
	return model.AccessRequest{}, ErrRequestNotFound
}

func (m *memStore) ListByUser(ctx context.Context, userID string) ([]model.AccessRequest, error) {
	var out []model.AccessRequest
	for _, req := range m.requests {
		if req.UserID == userID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *memStore) ListPending(ctx context.Context) ([]model.AccessRequest, error) {
	var out []model.AccessRequest
	for _, req := range m.requests {
		if req.Status == types.AccessStatusPending {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *memStore) ApprovedAccountFor(ctx context.Context, userID string) (string, error) {
	for _, req := range m.requests {
		if req.UserID == userID && req.Status == types.AccessStatusApproved {
			return req.BrokerageAccountID, nil
		}
	}
	return "", ErrRequestNotFound
}

func (m *memStore) recordConflict(entry audit.Entry, reason string) {
	entry.Success = false
	if entry.Payload == nil {
		entry.Payload = map[string]any{}
	}
	entry.Payload["conflict"] = reason
	m.entries = append(m.entries, entry)
}

func submit(t *testing.T, svc *Service, userID, accountID string) model.AccessRequest {
	t.Helper()
	req, err := svc.SubmitRequest(context.Background(), SubmitInput{
		UserID:     userID,
		AccountID:  accountID,
		Broker:     "zerodha",
		Experience: "intermediate",
		Income:     "mid",
	})
	if err != nil {
		t.Fatalf("submit request: %v", err)
	}
	return req
}

func TestSubmitRequestNormalizesAndScores(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)

	req := submit(t, svc, "user-1", "  ab-1234 5678-90 ")

	if req.BrokerageAccountID != "AB1234567890" {
		t.Fatalf("expected normalized account id AB1234567890, got %q", req.BrokerageAccountID)
	}
	if req.RiskScore != 50 {
		t.Fatalf("expected risk score 50, got %d", req.RiskScore)
	}
	if req.Status != types.AccessStatusPending {
		t.Fatalf("expected pending status, got %q", req.Status)
	}
	if len(store.entries) != 1 || store.entries[0].Action != types.AuditActionAccessSubmitted {
		t.Fatalf("expected one submitted audit entry, got %+v", store.entries)
	}
}

func TestSubmitRequestRejectsInvalidAccountID(t *testing.T) {
	svc := NewService(&memStore{})

	_, err := svc.SubmitRequest(context.Background(), SubmitInput{
		UserID:    "user-1",
		AccountID: "short",
		Broker:    "zerodha",
	})
	if !errors.Is(err, ErrInvalidAccountID) {
		t.Fatalf("expected ErrInvalidAccountID, got %v", err)
	}
}

func TestSubmitRequestDuplicatePending(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)

	submit(t, svc, "user-1", "AB1234567890")

	_, err := svc.SubmitRequest(context.Background(), SubmitInput{
		UserID:    "user-1",
		AccountID: "CD0987654321",
		Broker:    "zerodha",
	})
	if !errors.Is(err, ErrDuplicatePendingRequest) {
		t.Fatalf("expected ErrDuplicatePendingRequest, got %v", err)
	}
	last := store.entries[len(store.entries)-1]
	if last.Success {
		t.Fatal("expected conflicting attempt to be audited as failed")
	}
}

func TestSubmitRequestAccountAlreadyLinked(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)

	first := submit(t, svc, "user-1", "AB1234567890")
	if _, err := svc.Review(context.Background(), first.ID, "admin-1", true, ""); err != nil {
		t.Fatalf("approve request: %v", err)
	}

	_, err := svc.SubmitRequest(context.Background(), SubmitInput{
		UserID:    "user-2",
		AccountID: "AB1234567890",
		Broker:    "zerodha",
	})
	if !errors.Is(err, ErrAccountAlreadyLinked) {
		t.Fatalf("expected ErrAccountAlreadyLinked, got %v", err)
	}
	last := store.entries[len(store.entries)-1]
	if last.Success {
		t.Fatal("expected conflicting attempt to be audited as failed")
	}
}

func TestResubmissionAfterRejectionCreatesFreshRecord(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)

	first := submit(t, svc, "user-1", "AB1234567890")
	if _, err := svc.Review(context.Background(), first.ID, "admin-1", false, "account under another name"); err != nil {
		t.Fatalf("reject request: %v", err)
	}

	second := submit(t, svc, "user-1", "AB1234567890")
	if second.ID == first.ID {
		t.Fatal("resubmission reused the rejected record")
	}

	rejected, err := store.GetByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("get rejected request: %v", err)
	}
	if rejected.Status != types.AccessStatusRejected {
		t.Fatalf("rejected record was altered: %q", rejected.Status)
	}
	if rejected.RejectionReason != "account under another name" {
		t.Fatalf("rejection reason was altered: %q", rejected.RejectionReason)
	}
}

func TestReviewOutcomes(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)

	req := submit(t, svc, "user-1", "AB1234567890")

	approved, err := svc.Review(context.Background(), req.ID, "admin-1", true, "")
	if err != nil {
		t.Fatalf("approve request: %v", err)
	}
	if approved.Status != types.AccessStatusApproved {
		t.Fatalf("expected approved status, got %q", approved.Status)
	}
	if approved.ReviewedBy != "admin-1" || approved.ReviewedAt == nil {
		t.Fatalf("expected reviewer metadata, got %+v", approved)
	}

	if _, err := svc.Review(context.Background(), req.ID, "admin-1", false, "changed my mind"); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("expected ErrAlreadyReviewed, got %v", err)
	}
	if _, err := svc.Review(context.Background(), "req-missing", "admin-1", true, ""); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}

	account, err := svc.ApprovedAccountFor(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("approved account lookup: %v", err)
	}
	if account != "AB1234567890" {
		t.Fatalf("expected linked account AB1234567890, got %q", account)
	}
}
