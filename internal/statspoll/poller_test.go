package statspoll

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockpledge/internal/model"
	"stockpledge/internal/types"
)

func TestObserveShortensOnChange(t *testing.T) {
	p := New(nil, nil)
	now := time.Now()

	if !p.observe([]byte("a"), now) {
		t.Fatal("first snapshot counts as a change")
	}
	if p.Interval() != MinInterval {
		t.Fatalf("expected %s after change, got %s", MinInterval, p.Interval())
	}
	if p.observe([]byte("a"), now.Add(time.Second)) {
		t.Fatal("identical snapshot must not count as a change")
	}
	if !p.observe([]byte("b"), now.Add(2*time.Second)) {
		t.Fatal("different snapshot must count as a change")
	}
}

func TestIntervalDecaysToBaseline(t *testing.T) {
	p := New(nil, nil)
	now := time.Now()
	p.observe([]byte("a"), now)

	p.observe([]byte("a"), now.Add(30*time.Second))
	mid := p.Interval()
	if mid <= MinInterval || mid >= BaselineInterval {
		t.Fatalf("expected interval between bounds at half decay, got %s", mid)
	}
	if want := MinInterval + (BaselineInterval-MinInterval)/2; mid != want {
		t.Fatalf("expected %s at half decay, got %s", want, mid)
	}

	p.observe([]byte("a"), now.Add(2*time.Minute))
	if p.Interval() != BaselineInterval {
		t.Fatalf("expected baseline after decay window, got %s", p.Interval())
	}

	// Activity pulls it straight back down.
	p.observe([]byte("b"), now.Add(3*time.Minute))
	if p.Interval() != MinInterval {
		t.Fatalf("expected min interval after new activity, got %s", p.Interval())
	}
}

func TestPausePreservesAdaptiveState(t *testing.T) {
	fetched := 0
	p := New(func(ctx context.Context) ([]byte, error) {
		fetched++
		return []byte("a"), nil
	}, nil)

	now := time.Now()
	p.observe([]byte("a"), now)
	intervalBefore := p.Interval()

	p.Pause()
	p.tick(context.Background(), now.Add(time.Second))
	if fetched != 0 {
		t.Fatal("paused poller must not fetch")
	}
	if p.Interval() != intervalBefore {
		t.Fatalf("pause must preserve the interval, got %s", p.Interval())
	}

	p.Resume()
	p.tick(context.Background(), now.Add(2*time.Second))
	if fetched != 1 {
		t.Fatal("resumed poller must fetch again")
	}
	// The pre-pause hash survived, so an identical snapshot is quiescence.
	if p.Interval() == MinInterval && intervalBefore != MinInterval {
		t.Fatalf("resume must continue from pre-pause state")
	}
}

func TestCancelledFetchIsDropped(t *testing.T) {
	updates := 0
	ctx, cancel := context.WithCancel(context.Background())
	p := New(func(ctx context.Context) ([]byte, error) {
		cancel()
		return nil, ctx.Err()
	}, func([]byte) { updates++ })

	p.tick(ctx, time.Now())
	if updates != 0 {
		t.Fatal("cancelled fetch must not deliver an update")
	}
	if p.hasHash {
		t.Fatal("cancelled fetch must not fold into adaptive state")
	}
}

func TestFetchErrorKeepsState(t *testing.T) {
	p := New(func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("store unavailable")
	}, nil)
	now := time.Now()
	p.observe([]byte("a"), now)
	before := p.Interval()

	p.tick(context.Background(), now.Add(time.Second))
	if p.Interval() != before {
		t.Fatalf("fetch error must not disturb the interval, got %s", p.Interval())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(func(ctx context.Context) ([]byte, error) { return []byte("a"), nil }, nil)

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancellation")
	}
}

func TestReconcileAuthoritativeWins(t *testing.T) {
	local := []model.Pledge{
		{CorrelationID: "c-1", Status: types.PledgeStatusDraft},
		{CorrelationID: "c-2", Status: types.PledgeStatusDraft},
		{CorrelationID: "", Status: types.PledgeStatusDraft},
	}
	authoritative := []model.Pledge{
		{ID: "pl-1", CorrelationID: "c-1", Status: types.PledgeStatusReady},
	}

	merged := Reconcile(local, authoritative)
	if len(merged) != 2 {
		t.Fatalf("expected 2 pledges after merge, got %d", len(merged))
	}
	if merged[0].ID != "pl-1" || merged[0].Status != types.PledgeStatusReady {
		t.Fatalf("authoritative entry must replace the optimistic one, got %+v", merged[0])
	}
	if merged[1].CorrelationID != "c-2" {
		t.Fatalf("unacknowledged local entry must survive, got %+v", merged[1])
	}
}

func TestReconcileIgnoresOrdering(t *testing.T) {
	local := []model.Pledge{
		{CorrelationID: "c-2", Status: types.PledgeStatusDraft},
		{CorrelationID: "c-1", Status: types.PledgeStatusDraft},
	}
	authoritative := []model.Pledge{
		{ID: "pl-1", CorrelationID: "c-1", Status: types.PledgeStatusReady},
		{ID: "pl-2", CorrelationID: "c-2", Status: types.PledgeStatusReady},
	}
	merged := Reconcile(local, authoritative)
	if len(merged) != 2 {
		t.Fatalf("expected 2 pledges, got %d", len(merged))
	}
	for _, p := range merged {
		if p.Status != types.PledgeStatusReady {
			t.Fatalf("expected authoritative status everywhere, got %+v", p)
		}
	}
}
