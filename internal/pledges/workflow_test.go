package pledges

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stockpledge/internal/audit"
	"stockpledge/internal/model"
	"stockpledge/internal/payments"
	"stockpledge/internal/sessions"
	"stockpledge/internal/types"
)

type memPledgeStore struct {
	pledges  []model.Pledge
	payments []model.PledgePayment
	entries  []audit.Entry
	nextID   int
}

func (m *memPledgeStore) FinalizeSubmission(ctx context.Context, p model.Pledge, payment *model.PledgePayment, entry audit.Entry) (model.Pledge, error) {
	for _, existing := range m.pledges {
		if existing.UserID == p.UserID && existing.SessionID == p.SessionID && !types.IsTerminalPledgeStatus(existing.Status) {
			entry.Success = false
			m.entries = append(m.entries, entry)
			return model.Pledge{}, ErrPledgeExists
		}
	}
	m.nextID++
	p.ID = fmt.Sprintf("pl-%d", m.nextID)
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	if payment != nil {
		payment.ID = fmt.Sprintf("pay-%d", m.nextID)
		payment.PledgeID = p.ID
		p.FeePaymentID = payment.ID
		m.payments = append(m.payments, *payment)
	}
	m.pledges = append(m.pledges, p)
	m.entries = append(m.entries, entry)
	return p, nil
}

func (m *memPledgeStore) GetByID(ctx context.Context, id string) (model.Pledge, error) {
	for _, p := range m.pledges {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Pledge{}, ErrPledgeNotFound
}

func (m *memPledgeStore) ListByUser(ctx context.Context, userID, sessionID string) ([]model.Pledge, error) {
	var out []model.Pledge
	for _, p := range m.pledges {
		if p.UserID == userID && (sessionID == "" || p.SessionID == sessionID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPledgeStore) ListBySession(ctx context.Context, sessionID string) ([]model.Pledge, error) {
	var out []model.Pledge
	for _, p := range m.pledges {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPledgeStore) Cancel(ctx context.Context, pledgeID, userID string, entry audit.Entry) (model.Pledge, error) {
	for i, p := range m.pledges {
		if p.ID != pledgeID {
			continue
		}
		if p.UserID != userID {
			return model.Pledge{}, ErrPledgeNotFound
		}
		if p.Status != types.PledgeStatusReady {
			return model.Pledge{}, ErrPledgeNotCancellable
		}
		m.pledges[i].Status = types.PledgeStatusCancelled
		m.entries = append(m.entries, entry)
		return m.pledges[i], nil
	}
	return model.Pledge{}, ErrPledgeNotFound
}

type fakeSessions struct {
	session model.PledgeSession
	pledged int
}

func (f *fakeSessions) GetByID(ctx context.Context, id string) (model.PledgeSession, error) {
	if id != f.session.ID {
		return model.PledgeSession{}, sessions.ErrSessionNotFound
	}
	return f.session, nil
}

func (f *fakeSessions) Stats(ctx context.Context, id string) (model.SessionStats, error) {
	return model.SessionStats{SessionID: id, TotalPledges: f.pledged}, nil
}

type fakeAccess struct {
	accounts map[string]string
}

func (f *fakeAccess) ApprovedAccountFor(ctx context.Context, userID string) (string, error) {
	if acct, ok := f.accounts[userID]; ok {
		return acct, nil
	}
	return "", errors.New("no approved request")
}

type fakeRecorder struct {
	entries []audit.Entry
}

func (f *fakeRecorder) Record(ctx context.Context, e audit.Entry) (model.AuditEntry, error) {
	f.entries = append(f.entries, e)
	return model.AuditEntry{}, nil
}

func activeSession(mode types.SessionMode, feeType types.FeeType, feeAmount string) model.PledgeSession {
	minQty := dec("1")
	maxQty := dec("100")
	return model.PledgeSession{
		ID:           "sess-1",
		StockSymbol:  "RELIANCE",
		Mode:         mode,
		Status:       types.SessionStatusActive,
		SessionStart: time.Now().Add(-time.Hour),
		SessionEnd:   time.Now().Add(time.Hour),
		MinQty:       &minQty,
		MaxQty:       &maxQty,
		Capacity:     10,
		FeeType:      feeType,
		FeeAmount:    dec(feeAmount),
	}
}

func validSubmit(userID string) SubmitRequest {
	return SubmitRequest{
		UserID:      userID,
		SessionID:   "sess-1",
		Qty:         dec("10"),
		PriceTarget: dec("2500"),
		RiskAck:     model.RiskAcknowledgment{Market: true, Execution: true, Financial: true},
		Consent:     model.DigitalConsent{Signature: "sig-abc", AcceptTerms: true, AcceptRisk: true, AcceptExecution: true},
	}
}

func newWorkflow(store Store, sess *fakeSessions, provider payments.Provider, rec *fakeRecorder) *Workflow {
	access := &fakeAccess{accounts: map[string]string{"user-1": "AB1234567890"}}
	return NewWorkflow(store, sess, access, provider, rec, "v1")
}

func TestSubmitFlatFeeSuccess(t *testing.T) {
	store := &memPledgeStore{}
	sess := &fakeSessions{session: activeSession(types.SessionModeBuyOnly, types.FeeTypeFlat, "25")}
	wf := newWorkflow(store, sess, payments.NewSimulatedProvider(), &fakeRecorder{})

	pledge, err := wf.Submit(context.Background(), validSubmit("user-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if pledge.Status != types.PledgeStatusReady {
		t.Fatalf("expected ready_for_execution, got %q", pledge.Status)
	}
	if !pledge.FeeAmount.Equal(dec("25")) || !pledge.FeePaid {
		t.Fatalf("expected fee 25 paid, got %s paid=%v", pledge.FeeAmount, pledge.FeePaid)
	}
	if pledge.Side != types.PledgeSideBuy {
		t.Fatalf("expected buy side, got %q", pledge.Side)
	}
	if pledge.BrokerageAccountID != "AB1234567890" {
		t.Fatalf("expected linked demat account, got %q", pledge.BrokerageAccountID)
	}
	if pledge.ConsentHash == "" || pledge.CorrelationID == "" {
		t.Fatal("expected consent hash and correlation id to be set")
	}
	if len(store.payments) != 1 || store.payments[0].Status != types.PaymentStatusCompleted {
		t.Fatalf("expected one completed payment, got %+v", store.payments)
	}
	if len(store.entries) != 1 || store.entries[0].Action != types.AuditActionPledgeCreated || !store.entries[0].Success {
		t.Fatalf("expected one successful pledge_created entry, got %+v", store.entries)
	}
}

func TestSubmitPercentageFee(t *testing.T) {
	store := &memPledgeStore{}
	sess := &fakeSessions{session: activeSession(types.SessionModeBuyOnly, types.FeeTypePercentage, "1")}
	wf := newWorkflow(store, sess, payments.NewSimulatedProvider(), &fakeRecorder{})

	pledge, err := wf.Submit(context.Background(), validSubmit("user-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// 10 * 2500 * 1% = 250
	if !pledge.FeeAmount.Equal(dec("250")) {
		t.Fatalf("expected fee 250, got %s", pledge.FeeAmount)
	}
}

func TestSubmitZeroFeeSkipsProvider(t *testing.T) {
	store := &memPledgeStore{}
	sess := &fakeSessions{session: activeSession(types.SessionModeBuyOnly, types.FeeTypeFlat, "0")}
	declineAll := decimal.Zero
	provider := &payments.SimulatedProvider{DeclineAbove: &declineAll}
	wf := newWorkflow(store, sess, provider, &fakeRecorder{})

	pledge, err := wf.Submit(context.Background(), validSubmit("user-1"))
	if err != nil {
		t.Fatalf("zero-fee submit must not touch the provider: %v", err)
	}
	if !pledge.FeePaid || !pledge.FeeAmount.IsZero() {
		t.Fatalf("expected zero fee marked paid, got %s paid=%v", pledge.FeeAmount, pledge.FeePaid)
	}
	if len(store.payments) != 0 {
		t.Fatalf("expected no payment record for zero fee, got %+v", store.payments)
	}
}

func TestSubmitGateOrdering(t *testing.T) {
	session := activeSession(types.SessionModeBuyOnly, types.FeeTypeFlat, "25")

	cases := []struct {
		name    string
		mutate  func(*SubmitRequest)
		wantErr error
	}{
		{"qty below min", func(r *SubmitRequest) { r.Qty = dec("0.5") }, ErrInvalidQuantity},
		{"qty above max", func(r *SubmitRequest) { r.Qty = dec("101") }, ErrInvalidQuantity},
		{"zero price", func(r *SubmitRequest) { r.PriceTarget = decimal.Zero }, ErrInvalidPrice},
		{"disclosure incomplete", func(r *SubmitRequest) { r.RiskAck.Financial = false }, ErrDisclosureIncomplete},
		{"consent missing signature", func(r *SubmitRequest) { r.Consent.Signature = "" }, ErrConsentIncomplete},
		{"consent missing clause", func(r *SubmitRequest) { r.Consent.AcceptExecution = false }, ErrConsentIncomplete},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &memPledgeStore{}
			wf := newWorkflow(store, &fakeSessions{session: session}, payments.NewSimulatedProvider(), &fakeRecorder{})
			req := validSubmit("user-1")
			tc.mutate(&req)
			if _, err := wf.Submit(context.Background(), req); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if len(store.pledges) != 0 {
				t.Fatal("rejected submission must not create a pledge")
			}
		})
	}

	// An invalid quantity must be reported even when later gates would also
	// fail: step 1 wins.
	store := &memPledgeStore{}
	wf := newWorkflow(store, &fakeSessions{session: session}, payments.NewSimulatedProvider(), &fakeRecorder{})
	req := validSubmit("user-1")
	req.Qty = decimal.Zero
	req.RiskAck = model.RiskAcknowledgment{}
	req.Consent = model.DigitalConsent{}
	if _, err := wf.Submit(context.Background(), req); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected quantity gate to fire first, got %v", err)
	}
}

func TestSubmitSessionGates(t *testing.T) {
	t.Run("expired", func(t *testing.T) {
		session := activeSession(types.SessionModeBuyOnly, types.FeeTypeFlat, "25")
		session.SessionEnd = time.Now().Add(-time.Minute)
		wf := newWorkflow(&memPledgeStore{}, &fakeSessions{session: session}, payments.NewSimulatedProvider(), &fakeRecorder{})
		if _, err := wf.Submit(context.Background(), validSubmit("user-1")); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
	})
	t.Run("closed status", func(t *testing.T) {
		session := activeSession(types.SessionModeBuyOnly, types.FeeTypeFlat, "25")
		session.Status = types.SessionStatusClosed
		wf := newWorkflow(&memPledgeStore{}, &fakeSessions{session: session}, payments.NewSimulatedProvider(), &fakeRecorder{})
		if _, err := wf.Submit(context.Background(), validSubmit("user-1")); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
	})
	t.Run("full", func(t *testing.T) {
		session := activeSession(types.SessionModeBuyOnly, types.FeeTypeFlat, "25")
		wf := newWorkflow(&memPledgeStore{}, &fakeSessions{session: session, pledged: 10}, payments.NewSimulatedProvider(), &fakeRecorder{})
		if _, err := wf.Submit(context.Background(), validSubmit("user-1")); !errors.Is(err, ErrSessionFull) {
			t.Fatalf("expected ErrSessionFull, got %v", err)
		}
	})
	t.Run("demat not approved", func(t *testing.T) {
		session := activeSession(types.SessionModeBuyOnly, types.FeeTypeFlat, "25")
		wf := newWorkflow(&memPledgeStore{}, &fakeSessions{session: session}, payments.NewSimulatedProvider(), &fakeRecorder{})
		if _, err := wf.Submit(context.Background(), validSubmit("user-2")); !errors.Is(err, ErrDematNotApproved) {
			t.Fatalf("expected ErrDematNotApproved, got %v", err)
		}
	})
}

func TestSubmitPaymentDeclinedAuditsFailure(t *testing.T) {
	store := &memPledgeStore{}
	sess := &fakeSessions{session: activeSession(types.SessionModeBuyOnly, types.FeeTypeFlat, "25")}
	limit := dec("10")
	provider := &payments.SimulatedProvider{DeclineAbove: &limit}
	rec := &fakeRecorder{}
	wf := newWorkflow(store, sess, provider, rec)

	_, err := wf.Submit(context.Background(), validSubmit("user-1"))
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	if len(store.pledges) != 0 {
		t.Fatal("declined payment must not create a pledge")
	}
	if len(rec.entries) != 1 || rec.entries[0].Success || rec.entries[0].Action != types.AuditActionPledgeRejected {
		t.Fatalf("expected one failed pledge_rejected entry, got %+v", rec.entries)
	}
}

func TestSubmitDuplicateActivePledge(t *testing.T) {
	store := &memPledgeStore{}
	sess := &fakeSessions{session: activeSession(types.SessionModeBuyOnly, types.FeeTypeFlat, "25")}
	wf := newWorkflow(store, sess, payments.NewSimulatedProvider(), &fakeRecorder{})

	if _, err := wf.Submit(context.Background(), validSubmit("user-1")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := wf.Submit(context.Background(), validSubmit("user-1")); !errors.Is(err, ErrPledgeExists) {
		t.Fatalf("expected ErrPledgeExists, got %v", err)
	}
	last := store.entries[len(store.entries)-1]
	if last.Success {
		t.Fatal("expected duplicate attempt audited as failed")
	}
}

func TestSubmitCycleAutoSell(t *testing.T) {
	t.Run("auto target requires positive price", func(t *testing.T) {
		sess := &fakeSessions{session: activeSession(types.SessionModeBuySellCycle, types.FeeTypeFlat, "25")}
		wf := newWorkflow(&memPledgeStore{}, sess, payments.NewSimulatedProvider(), &fakeRecorder{})
		req := validSubmit("user-1")
		req.AutoSell = &model.AutoSellConfig{Mode: types.AutoSellModeTarget}
		if _, err := wf.Submit(context.Background(), req); !errors.Is(err, ErrInvalidPrice) {
			t.Fatalf("expected ErrInvalidPrice, got %v", err)
		}
	})
	t.Run("auto target set", func(t *testing.T) {
		sess := &fakeSessions{session: activeSession(types.SessionModeBuySellCycle, types.FeeTypeFlat, "25")}
		wf := newWorkflow(&memPledgeStore{}, sess, payments.NewSimulatedProvider(), &fakeRecorder{})
		req := validSubmit("user-1")
		target := dec("2600")
		req.AutoSell = &model.AutoSellConfig{Mode: types.AutoSellModeTarget, SellPrice: &target}
		pledge, err := wf.Submit(context.Background(), req)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if pledge.AutoSell == nil || !pledge.AutoSell.Enabled || !pledge.AutoSell.HasTarget {
			t.Fatalf("expected enabled auto sell with target, got %+v", pledge.AutoSell)
		}
		if pledge.AutoSell.SellPrice == nil || !pledge.AutoSell.SellPrice.Equal(target) {
			t.Fatalf("expected sell price 2600, got %+v", pledge.AutoSell.SellPrice)
		}
	})
	t.Run("defaults to admin managed", func(t *testing.T) {
		sess := &fakeSessions{session: activeSession(types.SessionModeBuySellCycle, types.FeeTypeFlat, "25")}
		wf := newWorkflow(&memPledgeStore{}, sess, payments.NewSimulatedProvider(), &fakeRecorder{})
		pledge, err := wf.Submit(context.Background(), validSubmit("user-1"))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if pledge.AutoSell == nil || pledge.AutoSell.Mode != types.AutoSellModeAdminManaged || pledge.AutoSell.HasTarget {
			t.Fatalf("expected admin managed default, got %+v", pledge.AutoSell)
		}
	})
	t.Run("sell only session gets no auto sell", func(t *testing.T) {
		sess := &fakeSessions{session: activeSession(types.SessionModeSellOnly, types.FeeTypeFlat, "25")}
		wf := newWorkflow(&memPledgeStore{}, sess, payments.NewSimulatedProvider(), &fakeRecorder{})
		pledge, err := wf.Submit(context.Background(), validSubmit("user-1"))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if pledge.Side != types.PledgeSideSell || pledge.AutoSell != nil {
			t.Fatalf("expected sell pledge without auto sell, got side=%q autoSell=%+v", pledge.Side, pledge.AutoSell)
		}
	})
}

func TestCancelPledge(t *testing.T) {
	store := &memPledgeStore{}
	sess := &fakeSessions{session: activeSession(types.SessionModeBuyOnly, types.FeeTypeFlat, "25")}
	wf := newWorkflow(store, sess, payments.NewSimulatedProvider(), &fakeRecorder{})

	pledge, err := wf.Submit(context.Background(), validSubmit("user-1"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	cancelled, err := wf.Cancel(context.Background(), pledge.ID, "user-1", "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != types.PledgeStatusCancelled {
		t.Fatalf("expected cancelled, got %q", cancelled.Status)
	}
	if _, err := wf.Cancel(context.Background(), pledge.ID, "user-1", "again"); !errors.Is(err, ErrPledgeNotCancellable) {
		t.Fatalf("expected ErrPledgeNotCancellable, got %v", err)
	}
	if _, err := wf.Cancel(context.Background(), pledge.ID, "user-9", "not mine"); !errors.Is(err, ErrPledgeNotFound) {
		t.Fatalf("expected ErrPledgeNotFound for foreign pledge, got %v", err)
	}
}
