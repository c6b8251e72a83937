package session

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ThatSaxyDev/telling-logger-go/internal/domain"
)

const (
	// maxBreadcrumbs bounds the trail; the oldest entry is evicted when full.
	maxBreadcrumbs = 20

	// DefaultTimeout is how long the app may stay backgrounded before a
	// resume rotates the session.
	DefaultTimeout = 5 * time.Minute
)

// Identity is the user snapshot captured at session start.
type Identity struct {
	UserID    string
	UserName  string
	UserEmail string
}

// Session represents one tracked session. A session is active while EndTime
// is zero; exactly one session is active at a time per process.
type Session struct {
	ID        string
	StartTime time.Time
	EndTime   time.Time
	Identity  Identity
}

// Breadcrumb records one recent analytics message for crash context.
type Breadcrumb struct {
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Tracker owns the current session identity and lifecycle plus the bounded
// breadcrumb trail attached to crash events. Session start and end are
// reported through the emit callback as analytics events; ending a session
// additionally triggers an immediate flush so rotations are never lost.
type Tracker struct {
	emit  func(*domain.Event)
	flush func()
	log   *zap.Logger
	now   func() time.Time

	mu      sync.Mutex
	current *Session
	crumbs  []Breadcrumb
}

// NewTracker creates a tracker. emit receives session lifecycle events and
// flush is invoked after a session ends.
func NewTracker(emit func(*domain.Event), flush func(), log *zap.Logger) *Tracker {
	return &Tracker{
		emit:  emit,
		flush: flush,
		log:   log,
		now:   time.Now,
	}
}

// Start begins a new session for the given identity, clearing the breadcrumb
// trail. The session id is derived from the identity (or "anon") plus a
// timestamp, unique per process-session but deliberately not cryptographic.
func (t *Tracker) Start(identity Identity) {
	t.mu.Lock()
	now := t.now()
	owner := identity.UserID
	if owner == "" {
		owner = "anon"
	}
	session := &Session{
		ID:        fmt.Sprintf("%s-%d", owner, now.UnixMilli()),
		StartTime: now,
		Identity:  identity,
	}
	t.current = session
	t.crumbs = nil
	t.mu.Unlock()

	t.log.Debug("Session started", zap.String("session_id", session.ID))

	started := domain.NewEvent(domain.CategoryAnalytics, domain.SeverityInfo, "session_started")
	started.Metadata = map[string]any{
		"sessionId": session.ID,
		"startTime": session.StartTime.Format(time.RFC3339Nano),
	}
	t.emit(started)
}

// End closes the active session, emits a "session_ended" event carrying the
// full session snapshot and triggers an immediate flush. Ending when no
// session is active is a no-op; End is idempotent.
func (t *Tracker) End() {
	t.mu.Lock()
	if t.current == nil || !t.current.EndTime.IsZero() {
		t.mu.Unlock()
		return
	}
	t.current.EndTime = t.now()
	snapshot := *t.current
	t.mu.Unlock()

	duration := snapshot.EndTime.Sub(snapshot.StartTime)
	t.log.Debug("Session ended",
		zap.String("session_id", snapshot.ID),
		zap.Duration("duration", duration))

	ended := domain.NewEvent(domain.CategoryAnalytics, domain.SeverityInfo, "session_ended")
	ended.Metadata = map[string]any{
		"sessionId":  snapshot.ID,
		"startTime":  snapshot.StartTime.Format(time.RFC3339Nano),
		"endTime":    snapshot.EndTime.Format(time.RFC3339Nano),
		"durationMs": duration.Milliseconds(),
	}
	t.emit(ended)
	t.flush()
}

// Rotate ends the active session and immediately starts a new one under the
// given identity. Used on identity change and on resume after timeout.
func (t *Tracker) Rotate(identity Identity) {
	t.End()
	t.Start(identity)
}

// SessionID returns the id of the active session, or "" when none is active.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil || !t.current.EndTime.IsZero() {
		return ""
	}
	return t.current.ID
}

// Current returns a snapshot of the active session, or nil.
func (t *Tracker) Current() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil || !t.current.EndTime.IsZero() {
		return nil
	}
	snapshot := *t.current
	return &snapshot
}

// AddBreadcrumb appends a recent analytics message to the trail, evicting
// the oldest entry once the trail holds maxBreadcrumbs.
func (t *Tracker) AddBreadcrumb(message string, metadata map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.crumbs = append(t.crumbs, Breadcrumb{
		Message:   message,
		Timestamp: t.now(),
		Metadata:  metadata,
	})
	if len(t.crumbs) > maxBreadcrumbs {
		t.crumbs = t.crumbs[len(t.crumbs)-maxBreadcrumbs:]
	}
}

// Breadcrumbs returns a copy of the trail for attachment to a crash event.
// The trail itself is left intact.
func (t *Tracker) Breadcrumbs() []Breadcrumb {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.crumbs) == 0 {
		return nil
	}
	out := make([]Breadcrumb, len(t.crumbs))
	copy(out, t.crumbs)
	return out
}
