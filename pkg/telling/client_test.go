package telling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"

	"github.com/ThatSaxyDev/telling-logger-go/internal/domain"
	"github.com/ThatSaxyDev/telling-logger-go/internal/storage"
	"github.com/ThatSaxyDev/telling-logger-go/internal/transport"
)

// captureTransport records every delivered batch. When gate is non-nil,
// Post blocks until the gate closes, keeping a flush in flight.
type captureTransport struct {
	mu      sync.Mutex
	batches [][]domain.Portable
	status  int
	gate    chan struct{}
}

func (ct *captureTransport) Post(_ context.Context, _ string, headers map[string]string, body []byte) (*transport.Response, error) {
	raw := body
	if headers["Content-Encoding"] == "gzip" {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		if raw, err = io.ReadAll(zr); err != nil {
			return nil, err
		}
	}
	var batch []domain.Portable
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, err
	}

	ct.mu.Lock()
	ct.batches = append(ct.batches, batch)
	ct.mu.Unlock()

	if ct.gate != nil {
		<-ct.gate
	}
	return &transport.Response{StatusCode: ct.status}, nil
}

func (ct *captureTransport) calls() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.batches)
}

func (ct *captureTransport) allEvents() []domain.Portable {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	var out []domain.Portable
	for _, batch := range ct.batches {
		out = append(out, batch...)
	}
	return out
}

func (ct *captureTransport) find(message string) (domain.Portable, bool) {
	for _, p := range ct.allEvents() {
		if p.Message == message {
			return p, true
		}
	}
	return domain.Portable{}, false
}

// testOptions keeps timers and admission out of the way so tests drive the
// pipeline explicitly.
func testOptions(ct *captureTransport) Options {
	return Options{
		Endpoint:         "http://collector.local/events",
		Transport:        ct,
		Store:            storage.NewMemory(),
		MaxLogsPerSecond: 1000,
		FlushInterval:    time.Hour,
		CleanupInterval:  time.Hour,
	}
}

func TestClient_EmitBeforeInitIsNoOp(t *testing.T) {
	client := New()

	client.Log(SeverityInfo, "too early", nil)
	client.Event("too early too", nil)

	ct := &captureTransport{status: 200}
	client.Init("key", testOptions(ct))
	defer client.Dispose()

	for _, event := range client.buf.Snapshot() {
		assert.NotEqual(t, "too early", event.Message)
		assert.NotEqual(t, "too early too", event.Message)
	}
}

func TestClient_Init_EmitsSessionAndFirstOpen(t *testing.T) {
	ct := &captureTransport{status: 200}
	client := New()
	client.Init("key", testOptions(ct))
	defer client.Dispose()

	messages := make([]string, 0)
	for _, event := range client.buf.Snapshot() {
		messages = append(messages, event.Message)
	}
	assert.Contains(t, messages, "session_started")
	assert.Contains(t, messages, "first_open")
}

func TestClient_Init_FirstOpenOnlyOnce(t *testing.T) {
	store := storage.NewMemory()
	assert.NoError(t, store.Set(context.Background(), storage.KeyFirstOpen, "done"))

	ct := &captureTransport{status: 200}
	opts := testOptions(ct)
	opts.Store = store
	client := New()
	client.Init("key", opts)
	defer client.Dispose()

	for _, event := range client.buf.Snapshot() {
		assert.NotEqual(t, "first_open", event.Message)
	}
}

func TestClient_Init_AppUpdatedOnVersionChange(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	assert.NoError(t, store.Set(ctx, storage.KeyFirstOpen, "done"))
	assert.NoError(t, store.Set(ctx, storage.KeyLastAppVersion, "1.0.0"))

	ct := &captureTransport{status: 200}
	opts := testOptions(ct)
	opts.Store = store
	opts.AppVersion = "1.1.0"
	client := New()
	client.Init("key", opts)
	defer client.Dispose()

	var updated *domain.Event
	for _, event := range client.buf.Snapshot() {
		if event.Message == "app_updated" {
			updated = event
		}
	}
	assert.NotNil(t, updated)
	assert.Equal(t, "1.0.0", updated.Metadata["from"])
	assert.Equal(t, "1.1.0", updated.Metadata["to"])

	version, _, err := store.Get(ctx, storage.KeyLastAppVersion)
	assert.NoError(t, err)
	assert.Equal(t, "1.1.0", version)
}

func TestClient_BatchSizeTriggersSingleFlush(t *testing.T) {
	gate := make(chan struct{})
	ct := &captureTransport{status: 200, gate: gate}
	client := New()
	client.Init("key", testOptions(ct))
	defer client.Dispose()

	// Init produced session_started + first_open; 25 more events cross the
	// batch threshold of 20 exactly once.
	for i := 0; i < 25; i++ {
		client.Event(fmt.Sprintf("analytics event %d", i), nil)
	}

	assert.Eventually(t, func() bool { return ct.calls() == 1 }, time.Second, 5*time.Millisecond)

	// Triggers while the flush is in flight coalesce rather than queue.
	close(gate)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, ct.calls())

	sent := len(ct.allEvents())
	assert.GreaterOrEqual(t, sent, 20)
	assert.Equal(t, 27, sent+client.buf.Len(), "every admitted event is sent or still buffered")
}

func TestClient_ErrorSeverityTriggersFlush(t *testing.T) {
	ct := &captureTransport{status: 200}
	client := New()
	client.Init("key", testOptions(ct))
	defer client.Dispose()

	client.Log(SeverityError, "something broke", nil)

	assert.Eventually(t, func() bool {
		_, ok := ct.find("something broke")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestClient_CaptureException_CarriesStackAndBreadcrumbs(t *testing.T) {
	ct := &captureTransport{status: 200}
	client := New()
	client.Init("key", testOptions(ct))
	defer client.Dispose()

	client.Event("tapped checkout", nil)
	client.CaptureException(errors.New("payment provider unreachable"), map[string]any{"order": "o-17"})

	assert.Eventually(t, func() bool {
		_, ok := ct.find("payment provider unreachable")
		return ok
	}, time.Second, 5*time.Millisecond)

	crash, _ := ct.find("payment provider unreachable")
	assert.Equal(t, "crash", crash.Category)
	assert.Equal(t, "error", crash.Severity)
	assert.NotEmpty(t, crash.Stack)
	assert.NotEmpty(t, crash.Frames)
	assert.Equal(t, "o-17", crash.Metadata["order"])
	assert.NotEmpty(t, crash.SessionID)

	crumbs, ok := crash.Metadata["breadcrumbs"].([]any)
	assert.True(t, ok, "crash metadata carries the breadcrumb trail")
	found := false
	for _, crumb := range crumbs {
		if m, ok := crumb.(map[string]any); ok && m["message"] == "tapped checkout" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestClient_SetUser_RotatesSessionAndClearsBreadcrumbs(t *testing.T) {
	ct := &captureTransport{status: 200}
	client := New()
	client.Init("key", testOptions(ct))
	defer client.Dispose()

	sessionA := client.tracker.SessionID()
	client.Event("pre-rotation crumb", nil)

	client.SetUser("user42", "Test User", "t@example.com")
	sessionB := client.tracker.SessionID()

	assert.NotEqual(t, sessionA, sessionB)
	assert.Contains(t, sessionB, "user42-")

	id, name, email := client.User()
	assert.Equal(t, "user42", id)
	assert.Equal(t, "Test User", name)
	assert.Equal(t, "t@example.com", email)

	client.CaptureException(errors.New("post-rotation crash"), nil)
	assert.Eventually(t, func() bool {
		_, ok := ct.find("post-rotation crash")
		return ok
	}, time.Second, 5*time.Millisecond)

	crash, _ := ct.find("post-rotation crash")
	assert.Equal(t, sessionB, crash.SessionID)
	assert.Equal(t, "user42", crash.UserID)
	if crumbs, ok := crash.Metadata["breadcrumbs"].([]any); ok {
		for _, crumb := range crumbs {
			m := crumb.(map[string]any)
			assert.NotEqual(t, "pre-rotation crumb", m["message"],
				"breadcrumbs from the previous session must not leak")
		}
	}
}

func TestClient_OnAppStateChange_RotatesAfterTimeout(t *testing.T) {
	ct := &captureTransport{status: 200}
	opts := testOptions(ct)
	opts.SessionTimeout = 5 * time.Minute
	client := New()
	client.Init("key", opts)
	defer client.Dispose()

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	sessionA := client.tracker.SessionID()

	client.OnAppStateChange(AppStateBackgrounded)
	now = now.Add(6 * time.Minute)
	client.OnAppStateChange(AppStateForegrounded)

	assert.NotEqual(t, sessionA, client.tracker.SessionID())
}

func TestClient_OnAppStateChange_ShortBackgroundKeepsSession(t *testing.T) {
	ct := &captureTransport{status: 200}
	client := New()
	client.Init("key", testOptions(ct))
	defer client.Dispose()

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	sessionA := client.tracker.SessionID()

	client.OnAppStateChange(AppStateBackgrounded)
	now = now.Add(30 * time.Second)
	client.OnAppStateChange(AppStateForegrounded)

	assert.Equal(t, sessionA, client.tracker.SessionID())
}

func TestClient_Dispose_StopsAcceptingEvents(t *testing.T) {
	ct := &captureTransport{status: 200}
	client := New()
	client.Init("key", testOptions(ct))

	client.Dispose()
	client.Event("after dispose", nil)

	for _, event := range client.buf.Snapshot() {
		assert.NotEqual(t, "after dispose", event.Message)
	}

	// Dispose is idempotent.
	client.Dispose()
}

func TestClient_Reinit_KeepsBufferedEvents(t *testing.T) {
	ct := &captureTransport{status: 200}
	client := New()
	client.Init("key", testOptions(ct))
	defer client.Dispose()

	client.Event("survives reinit", nil)
	before := client.buf.Len()

	client.Init("new-key", testOptions(ct))

	assert.Equal(t, before, client.buf.Len())
}

func TestClient_HydratesAndFlushesOnInit(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	// A previous process persisted an unsent event and died.
	orphan := domain.NewEvent(domain.CategoryGeneral, domain.SeverityWarning, "orphaned event")
	raw, err := orphan.Encode()
	assert.NoError(t, err)
	assert.NoError(t, store.SetList(ctx, storage.KeyUnsentEvents, []string{raw}))

	ct := &captureTransport{status: 200}
	opts := testOptions(ct)
	opts.Store = store
	client := New()
	client.Init("key", opts)
	defer client.Dispose()

	assert.Eventually(t, func() bool {
		_, ok := ct.find("orphaned event")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestClient_TrackFunnelAndScreenView(t *testing.T) {
	ct := &captureTransport{status: 200}
	client := New()
	client.Init("key", testOptions(ct))
	defer client.Dispose()

	client.TrackFunnel("onboarding", "email_entered", nil)
	client.HandleScreenView("Settings")

	var funnel, screen *domain.Event
	for _, event := range client.buf.Snapshot() {
		switch event.Message {
		case "funnel_onboarding":
			funnel = event
		case "screen_view":
			screen = event
		}
	}

	assert.NotNil(t, funnel)
	assert.Equal(t, domain.CategoryAnalytics, funnel.Category)
	assert.Equal(t, "onboarding", funnel.Metadata["funnel"])
	assert.Equal(t, "email_entered", funnel.Metadata["step"])

	assert.NotNil(t, screen)
	assert.Equal(t, "Settings", screen.Metadata["screen"])
}
