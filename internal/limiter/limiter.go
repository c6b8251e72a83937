package limiter

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ThatSaxyDev/telling-logger-go/internal/domain"
)

// Reason explains why an admission was rejected.
type Reason string

const (
	ReasonAdmitted      Reason = "admitted"
	ReasonDuplicate     Reason = "duplicate"
	ReasonThroughput    Reason = "throughput_cap"
	ReasonCrashThrottle Reason = "crash_throttle"
)

// Decision captures the result of an admission check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Config holds the admission policy parameters.
type Config struct {
	DedupWindow         time.Duration
	MaxLogsPerSecond    int
	CrashThrottleWindow time.Duration
}

// DefaultConfig returns the stock admission policy.
func DefaultConfig() Config {
	return Config{
		DedupWindow:         5 * time.Second,
		MaxLogsPerSecond:    10,
		CrashThrottleWindow: 5 * time.Second,
	}
}

// Limiter sheds duplicate or bursty events before they reach the buffer.
// Three independent policies are checked in order: content deduplication,
// a rolling per-second throughput cap, and a crash-specific throttle. The
// limiter owns its rolling state exclusively.
type Limiter struct {
	cfg Config
	log *zap.Logger
	now func() time.Time

	mu                sync.Mutex
	lastByFingerprint map[uint64]time.Time
	lastByThrottleKey map[string]time.Time
	windowStart       time.Time
	windowCount       int
}

// New creates a limiter with the given policy.
func New(cfg Config, log *zap.Logger) *Limiter {
	return &Limiter{
		cfg:               cfg,
		log:               log,
		now:               time.Now,
		lastByFingerprint: make(map[uint64]time.Time),
		lastByThrottleKey: make(map[string]time.Time),
	}
}

// Fingerprint derives the deduplication key from the event's content:
// message, severity, raw stack text and serialized metadata. FNV-1a is a
// deliberate tradeoff: collisions cause a false dedup inside one window,
// which the policy accepts.
func Fingerprint(e *domain.Event) uint64 {
	h := fnv.New64a()
	h.Write([]byte(e.Message))
	h.Write([]byte{'|'})
	h.Write([]byte(e.Severity.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(e.Stack))
	h.Write([]byte{'|'})
	if len(e.Metadata) > 0 {
		if raw, err := json.Marshal(e.Metadata); err == nil {
			h.Write(raw)
		}
	}
	return h.Sum64()
}

func throttleKey(e *domain.Event) string {
	return fmt.Sprintf("%s|%s", e.Category, e.Severity)
}

// Allow checks whether the event may be admitted. The first failing policy
// rejects; a rejection leaves no side effects beyond the lazy rollover of
// the per-second window. Callers admit with Commit.
func (l *Limiter) Allow(e *domain.Event) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.rollWindow(now)

	if last, ok := l.lastByFingerprint[Fingerprint(e)]; ok && now.Sub(last) < l.cfg.DedupWindow {
		l.log.Debug("Event rejected as duplicate",
			zap.String("message", e.Message),
			zap.String("severity", e.Severity.String()))
		return Decision{Allowed: false, Reason: ReasonDuplicate}
	}

	if l.windowCount >= l.cfg.MaxLogsPerSecond {
		l.log.Debug("Event rejected by throughput cap",
			zap.Int("max_logs_per_second", l.cfg.MaxLogsPerSecond))
		return Decision{Allowed: false, Reason: ReasonThroughput}
	}

	if e.Category == domain.CategoryCrash {
		if last, ok := l.lastByThrottleKey[throttleKey(e)]; ok && now.Sub(last) < l.cfg.CrashThrottleWindow {
			l.log.Debug("Crash event throttled",
				zap.String("severity", e.Severity.String()))
			return Decision{Allowed: false, Reason: ReasonCrashThrottle}
		}
	}

	return Decision{Allowed: true, Reason: ReasonAdmitted}
}

// Commit records the event's admission: fingerprint time, throttle-key time
// and the per-second counter. Decision and commit are separate so a caller
// can evaluate hypothetically; in practice they run back-to-back.
func (l *Limiter) Commit(e *domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.rollWindow(now)

	l.lastByFingerprint[Fingerprint(e)] = now
	l.lastByThrottleKey[throttleKey(e)] = now
	l.windowCount++
}

// Cleanup purges fingerprint and throttle entries older than twice their
// windows, bounding memory independent of event volume. Run periodically.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for fp, last := range l.lastByFingerprint {
		if now.Sub(last) >= 2*l.cfg.DedupWindow {
			delete(l.lastByFingerprint, fp)
			removed++
		}
	}
	for key, last := range l.lastByThrottleKey {
		if now.Sub(last) >= 2*l.cfg.CrashThrottleWindow {
			delete(l.lastByThrottleKey, key)
			removed++
		}
	}
	if removed > 0 {
		l.log.Debug("Limiter state cleaned up", zap.Int("removed", removed))
	}
}

// rollWindow lazily resets the per-second window. Caller must hold l.mu.
func (l *Limiter) rollWindow(now time.Time) {
	if now.Sub(l.windowStart) >= time.Second {
		l.windowStart = now
		l.windowCount = 0
	}
}
