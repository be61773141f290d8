package statspoll

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// BaselineInterval is the quiescent polling rate.
	BaselineInterval = 30 * time.Second
	// MinInterval is the floor reached while the dataset keeps changing.
	MinInterval = 10 * time.Second
	// decayWindow is roughly how long a burst of activity keeps the
	// interval below baseline once changes stop.
	decayWindow = time.Minute
)

// FetchFunc returns a serialized snapshot of whatever the poller watches.
// The poller only compares bytes; it never interprets them.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Poller re-fetches a dataset on an adaptive timer. A changed snapshot
// shortens the interval to MinInterval; quiescence decays it back to
// BaselineInterval over about a minute. Pausing stops fetching but keeps
// the adaptive state, so resuming continues where it left off.
type Poller struct {
	fetch    FetchFunc
	onUpdate func([]byte)

	mu           sync.Mutex
	paused       bool
	interval     time.Duration
	lastHash     [32]byte
	hasHash      bool
	lastActivity time.Time
}

func New(fetch FetchFunc, onUpdate func([]byte)) *Poller {
	return &Poller{
		fetch:    fetch,
		onUpdate: onUpdate,
		interval: BaselineInterval,
	}
}

// Run polls until the context is cancelled. Cancellation drops any in-flight
// result; nothing is retried.
func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(p.Interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		p.tick(ctx, time.Now())
		timer.Reset(p.Interval())
	}
}

func (p *Poller) tick(ctx context.Context, now time.Time) {
	p.mu.Lock()
	paused := p.paused
	p.mu.Unlock()
	if paused {
		return
	}
	data, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-fetch: drop the result, no retry.
			return
		}
		zap.L().Warn("stats poll fetch failed", zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}
	changed := p.observe(data, now)
	if changed && p.onUpdate != nil {
		p.onUpdate(data)
	}
}

// observe folds the snapshot into the adaptive state and reports whether it
// differed from the previous one.
func (p *Poller) observe(data []byte, now time.Time) bool {
	sum := sha256.Sum256(data)
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := !p.hasHash || sum != p.lastHash
	p.lastHash = sum
	p.hasHash = true
	if changed {
		p.lastActivity = now
		p.interval = MinInterval
		return changed
	}
	p.interval = decayedInterval(now.Sub(p.lastActivity))
	return changed
}

// decayedInterval walks the interval linearly from MinInterval back up to
// BaselineInterval across the decay window.
func decayedInterval(sinceActivity time.Duration) time.Duration {
	if sinceActivity <= 0 {
		return MinInterval
	}
	if sinceActivity >= decayWindow {
		return BaselineInterval
	}
	// Millisecond granularity keeps the multiplication well inside int64.
	span := BaselineInterval - MinInterval
	elapsed := time.Duration(sinceActivity.Milliseconds())
	window := time.Duration(decayWindow.Milliseconds())
	return MinInterval + span*elapsed/window
}

// Pause stops fetching. The adaptive interval and last-seen hash are kept.
func (p *Poller) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume restarts fetching with the state from before the pause.
func (p *Poller) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

func (p *Poller) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Interval is the current adaptive polling interval.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}
