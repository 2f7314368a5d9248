package degrade

import (
	"context"
	"sync"
	"time"
)

// DefaultHealthTTL is how long a health verdict is trusted.
const DefaultHealthTTL = 30 * time.Second

// HealthChecker is satisfied by the remote agent client.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthTracker remembers whether the remote agent is known to be down.
// Only a failed health check marks it down; while down it is re-checked at
// most once per TTL.
type HealthTracker struct {
	checker HealthChecker
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu        sync.Mutex
	down      bool
	checkedAt time.Time
}

// NewHealthTracker creates a tracker that starts in the "up" state.
func NewHealthTracker(checker HealthChecker, ttl time.Duration) *HealthTracker {
	if ttl <= 0 {
		ttl = DefaultHealthTTL
	}
	return &HealthTracker{
		checker: checker,
		ttl:     ttl,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// MarkDown records a failure; the next check is due after the TTL.
func (h *HealthTracker) MarkDown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.down = true
	h.checkedAt = h.now()
}

// Confirm checks the remote after a dispatch ran out of retries and marks it
// down only if the check fails too. It reports whether the remote is down.
// Without a checker the failure alone marks it down.
func (h *HealthTracker) Confirm(ctx context.Context) bool {
	if h.checker == nil {
		h.MarkDown()
		return true
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	err := h.checker.Health(checkCtx)
	if err != nil && ctx.Err() != nil {
		// Interrupted, not a verdict.
		return h.Down()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkedAt = h.now()
	h.down = err != nil
	return h.down
}

// MarkUp records that the remote answered.
func (h *HealthTracker) MarkUp() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.down = false
}

// Down reports the last known state without probing.
func (h *HealthTracker) Down() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.down
}

// ShortCircuit reports whether callers should skip the remote entirely.
func (h *HealthTracker) ShortCircuit(ctx context.Context) bool {
	h.mu.Lock()
	if !h.down {
		h.mu.Unlock()
		return false
	}
	if h.now().Sub(h.checkedAt) < h.ttl || h.checker == nil {
		h.mu.Unlock()
		return true
	}
	// Claim the check so concurrent dispatches keep short-circuiting meanwhile.
	h.checkedAt = h.now()
	h.mu.Unlock()

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	err := h.checker.Health(checkCtx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.down = true
		return true
	}
	h.down = false
	return false
}
