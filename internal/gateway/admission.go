package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/attitudes-vip/event-gateway/internal/domain"
)

// AdmissionConfig holds the rate-limit and ceiling tuning.
type AdmissionConfig struct {
	// EventRateLimit is the fixed-window ceiling per user key, applied
	// at connection time and again per outbound event.
	EventRateLimit  int
	EventRateWindow time.Duration

	// MaxConnections is the global concurrent-connection ceiling.
	MaxConnections int

	// MaxConnectionsPerAddr bounds connections from one source address.
	MaxConnectionsPerAddr int

	Clock domain.Clock
}

// bucket is a fixed-window counter. The window starts at the first hit
// and resets exactly at resetAt, never early.
type bucket struct {
	count   int
	resetAt time.Time
}

// EventDecision is the outcome of a per-event admission check.
type EventDecision struct {
	// Allowed is false when the event must be dropped.
	Allowed bool

	// CloseConnection is set when the sender has sustained enough
	// consecutive violations that the connection should be torn down,
	// not just the event dropped.
	CloseConnection bool
}

// Admission enforces per-key fixed-window rate limits and global
// connection ceilings before a connection or event is accepted.
// State is per-instance; see the registry for cross-instance membership.
type Admission struct {
	cfg AdmissionConfig

	mu         sync.Mutex
	buckets    map[string]*bucket
	violations map[string]int
	active     int
	perAddr    map[string]int
}

// NewAdmission creates an admission controller.
func NewAdmission(cfg AdmissionConfig) *Admission {
	return &Admission{
		cfg:        cfg,
		buckets:    make(map[string]*bucket),
		violations: make(map[string]int),
		perAddr:    make(map[string]int),
	}
}

// AllowConnection checks the global ceiling, the per-address ceiling,
// and the user's rate window. On success the connection is reserved;
// the caller must release it with ReleaseConnection on close.
func (a *Admission) AllowConnection(userID, addr string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active >= a.cfg.MaxConnections {
		return fmt.Errorf("global ceiling of %d reached: %w", a.cfg.MaxConnections, domain.ErrConnectionLimit)
	}
	if a.perAddr[addr] >= a.cfg.MaxConnectionsPerAddr {
		return fmt.Errorf("address %s at ceiling: %w", addr, domain.ErrConnectionLimit)
	}
	if !a.allowKeyLocked("user:" + userID) {
		return fmt.Errorf("connection admission for user %s: %w", userID, domain.ErrRateLimited)
	}

	a.active++
	a.perAddr[addr]++
	return nil
}

// ReleaseConnection synchronously releases the reservations taken by
// AllowConnection. Must be called exactly once per admitted connection.
func (a *Admission) ReleaseConnection(addr string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active > 0 {
		a.active--
	}
	if n := a.perAddr[addr]; n > 1 {
		a.perAddr[addr] = n - 1
	} else {
		delete(a.perAddr, addr)
	}
}

// AllowEvent checks the sender's rate window for one outbound event.
// A denied event is dropped and the client notified; the connection is
// only torn down once violations are sustained.
func (a *Admission) AllowEvent(userID string) EventDecision {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.allowKeyLocked("user:" + userID) {
		delete(a.violations, userID)
		return EventDecision{Allowed: true}
	}

	a.violations[userID]++
	return EventDecision{
		Allowed:         false,
		CloseConnection: a.violations[userID] >= domain.SustainedAbuseCeiling,
	}
}

// allowKeyLocked increments the fixed-window counter for key and reports
// whether the count is within the ceiling. Counts never go negative; a
// window resets only when its boundary has passed.
func (a *Admission) allowKeyLocked(key string) bool {
	now := a.cfg.Clock.Now()

	b, ok := a.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		a.buckets[key] = &bucket{count: 1, resetAt: now.Add(a.cfg.EventRateWindow)}
		return true
	}

	b.count++
	return b.count <= a.cfg.EventRateLimit
}

// ActiveConnections reports the number of reserved connections.
func (a *Admission) ActiveConnections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// BucketCount reports the number of live rate-limit buckets. Used by
// metrics and tests.
func (a *Admission) BucketCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets)
}

// SweepExpired evicts buckets whose window has passed and stale
// violation counters, returning the number of entries removed.
// Called by the cleanup supervisor.
func (a *Admission) SweepExpired(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for key, b := range a.buckets {
		if !now.Before(b.resetAt) {
			delete(a.buckets, key)
			removed++
		}
	}
	for userID := range a.violations {
		if _, ok := a.buckets["user:"+userID]; !ok {
			delete(a.violations, userID)
			removed++
		}
	}
	return removed
}
