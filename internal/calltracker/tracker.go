// Package calltracker holds in-flight and recently settled asynchronous
// calls, keyed by call token. Settled entries are retained for a TTL so
// late result fetches still find them, then evicted.
package calltracker

import (
	"errors"
	"sync"
	"time"

	"github.com/oriys/halo/internal/invoker"
	"github.com/oriys/halo/internal/metrics"
)

// ErrFull is returned by Put when the tracker is at capacity.
var ErrFull = errors.New("call tracker is full")

// ErrDuplicateToken is returned by Put when the token is already tracked.
var ErrDuplicateToken = errors.New("call token already tracked")

// Entry describes one tracked call.
type Entry struct {
	Token       string    `json:"token"`
	Operation   string    `json:"operation"`
	Correlation string    `json:"correlation"`
	CreatedAt   time.Time `json:"created_at"`

	// Call is the live pending call; shared, safe for concurrent use.
	Call *invoker.PendingCall `json:"-"`
}

type trackedCall struct {
	entry     Entry
	settledAt time.Time
}

// Tracker is an in-memory token index over pending calls.
type Tracker struct {
	mu       sync.RWMutex
	calls    map[string]*trackedCall
	ttl      time.Duration
	interval time.Duration
	maxSize  int
	done     chan struct{}
	once     sync.Once
}

// New creates a tracker. Settled entries are kept for ttl before eviction;
// sweepInterval is the eviction cadence (ttl/2 when non-positive).
func New(ttl, sweepInterval time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = ttl / 2
	}
	t := &Tracker{
		calls:    make(map[string]*trackedCall),
		ttl:      ttl,
		interval: sweepInterval,
		maxSize:  10000,
		done:     make(chan struct{}),
	}
	go t.cleanupLoop()
	return t
}

// Put registers a call under its token.
func (t *Tracker) Put(token, operation, correlation string, call *invoker.PendingCall) error {
	if call == nil {
		return invoker.ErrNilPendingCall
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.calls[token]; ok {
		return ErrDuplicateToken
	}
	if t.maxSize > 0 && len(t.calls) >= t.maxSize {
		return ErrFull
	}
	t.calls[token] = &trackedCall{
		entry: Entry{
			Token:       token,
			Operation:   operation,
			Correlation: correlation,
			CreatedAt:   time.Now(),
			Call:        call,
		},
	}
	metrics.SetPendingCalls(len(t.calls))
	return nil
}

// Get returns the entry for a token.
func (t *Tracker) Get(token string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tc, ok := t.calls[token]
	if !ok {
		return Entry{}, false
	}
	return tc.entry, true
}

// Remove deletes the entry for a token.
func (t *Tracker) Remove(token string) {
	t.mu.Lock()
	delete(t.calls, token)
	metrics.SetPendingCalls(len(t.calls))
	t.mu.Unlock()
}

// Len returns the number of tracked calls.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.calls)
}

// Full reports whether the tracker is at capacity.
func (t *Tracker) Full() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxSize > 0 && len(t.calls) >= t.maxSize
}

// List returns all tracked entries.
func (t *Tracker) List() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.calls))
	for _, tc := range t.calls {
		out = append(out, tc.entry)
	}
	return out
}

// Close stops the cleanup loop.
func (t *Tracker) Close() {
	t.once.Do(func() { close(t.done) })
}

// cleanupLoop evicts entries that have been settled for longer than the TTL.
// Unsettled entries are never evicted; every started call settles.
func (t *Tracker) cleanupLoop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for token, tc := range t.calls {
		if !tc.entry.Call.Settled() {
			continue
		}
		if tc.settledAt.IsZero() {
			tc.settledAt = now
			continue
		}
		if now.Sub(tc.settledAt) > t.ttl {
			delete(t.calls, token)
		}
	}
	metrics.SetPendingCalls(len(t.calls))
}
