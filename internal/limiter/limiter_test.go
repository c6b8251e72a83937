package limiter

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ThatSaxyDev/telling-logger-go/internal/domain"
)

var testStart = time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

// newTestLimiter returns a limiter with a controllable clock.
func newTestLimiter(cfg Config) (*Limiter, *time.Time) {
	l := New(cfg, zap.NewNop())
	now := testStart
	l.now = func() time.Time { return now }
	return l, &now
}

func testEvent(message string) *domain.Event {
	return &domain.Event{
		ID:        domain.NewID(),
		Category:  domain.CategoryGeneral,
		Severity:  domain.SeverityInfo,
		Message:   message,
		Timestamp: testStart,
	}
}

func TestLimiter_Allow_DedupWindow(t *testing.T) {
	l, now := newTestLimiter(DefaultConfig())

	event := testEvent("repeated message")
	decision := l.Allow(event)
	assert.True(t, decision.Allowed)
	l.Commit(event)

	// Identical content within the window is rejected.
	dup := testEvent("repeated message")
	decision = l.Allow(dup)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonDuplicate, decision.Reason)

	// After the window elapses the same content is accepted again.
	*now = now.Add(5001 * time.Millisecond)
	decision = l.Allow(dup)
	assert.True(t, decision.Allowed)
}

func TestLimiter_Allow_DistinctMetadataNotDeduped(t *testing.T) {
	l, _ := newTestLimiter(DefaultConfig())

	first := testEvent("same message")
	first.Metadata = map[string]any{"attempt": "1"}
	assert.True(t, l.Allow(first).Allowed)
	l.Commit(first)

	second := testEvent("same message")
	second.Metadata = map[string]any{"attempt": "2"}
	assert.True(t, l.Allow(second).Allowed)
}

func TestLimiter_Allow_PerSecondCap(t *testing.T) {
	cfg := DefaultConfig()
	l, now := newTestLimiter(cfg)

	for i := 0; i < cfg.MaxLogsPerSecond; i++ {
		event := testEvent(fmt.Sprintf("message %d", i))
		decision := l.Allow(event)
		assert.True(t, decision.Allowed, "event %d should be admitted", i)
		l.Commit(event)
	}

	over := testEvent("one too many")
	decision := l.Allow(over)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonThroughput, decision.Reason)

	// Lazy rollover: once a full second has elapsed the window resets.
	*now = now.Add(1001 * time.Millisecond)
	decision = l.Allow(over)
	assert.True(t, decision.Allowed)
}

func TestLimiter_Allow_CrashThrottle(t *testing.T) {
	l, now := newTestLimiter(DefaultConfig())

	first := testEvent("first crash")
	first.Category = domain.CategoryCrash
	first.Severity = domain.SeverityFatal
	assert.True(t, l.Allow(first).Allowed)
	l.Commit(first)

	// A structurally different crash of the same severity is still throttled.
	second := testEvent("second crash, different message")
	second.Category = domain.CategoryCrash
	second.Severity = domain.SeverityFatal
	decision := l.Allow(second)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonCrashThrottle, decision.Reason)

	// A crash at a different severity is a different throttle key.
	third := testEvent("third crash")
	third.Category = domain.CategoryCrash
	third.Severity = domain.SeverityError
	assert.True(t, l.Allow(third).Allowed)

	// After the throttle window the same key is admitted again.
	*now = now.Add(5001 * time.Millisecond)
	assert.True(t, l.Allow(second).Allowed)
}

func TestLimiter_Allow_NonCrashNotThrottledByKey(t *testing.T) {
	l, _ := newTestLimiter(DefaultConfig())

	first := testEvent("general one")
	assert.True(t, l.Allow(first).Allowed)
	l.Commit(first)

	// Same (category, severity) key but not Crash: only dedup applies.
	second := testEvent("general two")
	assert.True(t, l.Allow(second).Allowed)
}

func TestLimiter_Allow_RejectionHasNoSideEffects(t *testing.T) {
	cfg := DefaultConfig()
	l, _ := newTestLimiter(cfg)

	event := testEvent("once")
	l.Allow(event)
	l.Commit(event)

	// Rejected duplicates never consume throughput budget.
	for i := 0; i < cfg.MaxLogsPerSecond*2; i++ {
		assert.False(t, l.Allow(testEvent("once")).Allowed)
	}

	fresh := testEvent("fresh")
	assert.True(t, l.Allow(fresh).Allowed)
}

func TestLimiter_Cleanup_PurgesStaleEntries(t *testing.T) {
	l, now := newTestLimiter(DefaultConfig())

	event := testEvent("stale")
	event.Category = domain.CategoryCrash
	l.Commit(event)
	assert.Len(t, l.lastByFingerprint, 1)
	assert.Len(t, l.lastByThrottleKey, 1)

	// Entries younger than twice their window survive.
	*now = now.Add(9 * time.Second)
	l.Cleanup()
	assert.Len(t, l.lastByFingerprint, 1)

	*now = now.Add(2 * time.Second)
	l.Cleanup()
	assert.Empty(t, l.lastByFingerprint)
	assert.Empty(t, l.lastByThrottleKey)
}
