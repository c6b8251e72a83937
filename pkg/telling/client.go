// Package telling is a client-side telemetry pipeline. It accepts log,
// analytics, funnel and exception events from application code, sheds
// duplicate and bursty callers, buffers admitted events with durable
// mirroring, and delivers them to a remote collector in compressed batches
// with backoff and a credential circuit breaker.
//
// A host owns exactly one Client, initializes it once, and disposes it
// explicitly. No operation blocks the caller: all I/O is dispatched
// asynchronously.
package telling

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ThatSaxyDev/telling-logger-go/internal/buffer"
	"github.com/ThatSaxyDev/telling-logger-go/internal/delivery"
	"github.com/ThatSaxyDev/telling-logger-go/internal/device"
	"github.com/ThatSaxyDev/telling-logger-go/internal/domain"
	"github.com/ThatSaxyDev/telling-logger-go/internal/limiter"
	"github.com/ThatSaxyDev/telling-logger-go/internal/logger"
	"github.com/ThatSaxyDev/telling-logger-go/internal/session"
	"github.com/ThatSaxyDev/telling-logger-go/internal/stacktrace"
	"github.com/ThatSaxyDev/telling-logger-go/internal/storage"
)

// Severity levels re-exported for callers of Log.
const (
	SeverityTrace   = domain.SeverityTrace
	SeverityDebug   = domain.SeverityDebug
	SeverityInfo    = domain.SeverityInfo
	SeverityWarning = domain.SeverityWarning
	SeverityError   = domain.SeverityError
	SeverityFatal   = domain.SeverityFatal
)

// AppState is the host application's lifecycle state as far as the pipeline
// cares: foregrounded or backgrounded.
type AppState int

const (
	AppStateForegrounded AppState = iota
	AppStateBackgrounded
)

// Client is the pipeline facade. A process owns exactly one Client; all
// emission operations are no-ops (with a debug warning) before Init and
// after Dispose.
type Client struct {
	mu          sync.Mutex
	initialized bool
	opts        Options
	log         *zap.Logger
	now         func() time.Time

	limiter *limiter.Limiter
	tracker *session.Tracker
	buf     *buffer.Buffer
	engine  *delivery.Engine
	device  domain.Device

	identity       session.Identity
	backgroundedAt time.Time

	stop chan struct{}
}

// New creates an uninitialized Client. Call Init before emitting.
func New() *Client {
	return &Client{
		log: zap.NewNop(),
		now: time.Now,
	}
}

// Init wires the pipeline under the given API key. It hydrates unsent events
// from durable storage before admitting anything new, starts a session, and
// arms the flush and cleanup timers. Init is idempotent per process: calling
// it again reassigns configuration and restarts the timers without losing
// buffered events.
func (c *Client) Init(key string, opts Options) {
	opts = opts.withDefaults()

	log := opts.Logger
	if log == nil {
		log = logger.ForSDK(opts.Debug)
	}

	c.mu.Lock()
	reinit := c.initialized
	restored := 0
	if reinit {
		close(c.stop)
		c.opts = opts
		c.log = log
		c.engine = delivery.New(opts.deliveryConfig(key), c.buf, opts.Transport, log)
	} else {
		c.opts = opts
		c.log = log
		c.limiter = limiter.New(opts.limiterConfig(), log)
		c.buf = buffer.New(opts.Store, opts.bufferConfig(), log)
		c.engine = delivery.New(opts.deliveryConfig(key), c.buf, opts.Transport, log)
		c.tracker = session.NewTracker(c.emit, c.Flush, log)
		c.device = device.Collect(opts.AppVersion, opts.AppBuildNumber)
		// Hydrate before any new event can be admitted.
		restored = c.buf.Hydrate(context.Background())
		c.initialized = true
	}
	c.stop = make(chan struct{})
	stop := c.stop
	lim, eng := c.limiter, c.engine
	c.mu.Unlock()

	go c.run(opts.FlushInterval, opts.CleanupInterval, lim, eng, stop)

	if reinit {
		c.log.Debug("Pipeline re-initialized")
		return
	}

	if restored > 0 {
		c.log.Debug("Recovered unsent events from storage", zap.Int("count", restored))
		c.Flush()
	}

	c.tracker.Start(session.Identity{})
	c.recordInstallState()
	c.log.Debug("Pipeline initialized")
}

// Log emits a general-category event.
func (c *Client) Log(severity domain.Severity, message string, metadata map[string]any) {
	event := domain.NewEvent(domain.CategoryGeneral, severity, message)
	event.Metadata = metadata
	c.emit(event)
}

// Event emits a named analytics event.
func (c *Client) Event(name string, metadata map[string]any) {
	event := domain.NewEvent(domain.CategoryAnalytics, domain.SeverityInfo, name)
	event.Metadata = metadata
	c.emit(event)
}

// TrackFunnel emits an analytics event marking progress through a funnel.
func (c *Client) TrackFunnel(funnel, step string, metadata map[string]any) {
	merged := cloneMetadata(metadata)
	merged["funnel"] = funnel
	merged["step"] = step
	c.Event("funnel_"+funnel, merged)
}

// HandleScreenView emits the analytics event behind navigation trackers.
func (c *Client) HandleScreenView(screen string) {
	c.Event("screen_view", map[string]any{"screen": screen})
}

// CaptureException emits a crash-category event for err at Error severity,
// capturing and parsing the caller's stack.
func (c *Client) CaptureException(err error, metadata map[string]any) {
	c.capture(err, domain.SeverityError, metadata)
}

// CaptureFatal emits a crash-category event for err at Fatal severity.
func (c *Client) CaptureFatal(err error, metadata map[string]any) {
	c.capture(err, domain.SeverityFatal, metadata)
}

func (c *Client) capture(err error, severity domain.Severity, metadata map[string]any) {
	if err == nil {
		return
	}
	event := domain.NewEvent(domain.CategoryCrash, severity, err.Error())
	event.Metadata = metadata
	event.Stack = string(debug.Stack())
	event.Frames = stacktrace.Parse(event.Stack)
	c.emit(event)
}

// SetUser records the user identity and rotates the session under it.
func (c *Client) SetUser(id, name, email string) {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		c.log.Debug("SetUser called before Init")
		return
	}
	c.identity = session.Identity{UserID: id, UserName: name, UserEmail: email}
	identity := c.identity
	tracker := c.tracker
	c.mu.Unlock()

	tracker.Rotate(identity)
}

// ClearUser drops the user identity and rotates the session anonymously.
func (c *Client) ClearUser() {
	c.SetUser("", "", "")
}

// User returns the current identity snapshot.
func (c *Client) User() (id, name, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity.UserID, c.identity.UserName, c.identity.UserEmail
}

// OnAppStateChange feeds the host's lifecycle signal into the pipeline:
// backgrounding flushes immediately, and resuming after the session timeout
// rotates the session.
func (c *Client) OnAppStateChange(state AppState) {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return
	}
	tracker := c.tracker
	timeout := c.opts.SessionTimeout

	switch state {
	case AppStateBackgrounded:
		c.backgroundedAt = c.now()
		c.mu.Unlock()
		c.Flush()
	case AppStateForegrounded:
		away := time.Duration(0)
		if !c.backgroundedAt.IsZero() {
			away = c.now().Sub(c.backgroundedAt)
		}
		c.backgroundedAt = time.Time{}
		identity := c.identity
		c.mu.Unlock()
		if away > timeout {
			c.log.Debug("Session timed out in background, rotating",
				zap.Duration("away", away))
			tracker.Rotate(identity)
		}
	default:
		c.mu.Unlock()
	}
}

// Flush triggers an asynchronous delivery attempt. Callers never block on
// the network; concurrent triggers are coalesced by the engine.
func (c *Client) Flush() {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()
	if engine == nil {
		return
	}
	go engine.Flush(context.Background())
}

// Dispose cancels the recurring timers and detaches the pipeline. It does
// not flush: hosts wanting a final delivery call Flush (or signal a
// background transition) first. An in-flight flush completes on its own.
func (c *Client) Dispose() {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return
	}
	c.initialized = false
	close(c.stop)
	buf := c.buf
	c.mu.Unlock()

	buf.Close()
	c.log.Debug("Pipeline disposed")
}

// emit is the single admission path: rate limit, enrich with session and
// device context, buffer, and evaluate flush triggers. It returns without
// blocking; persistence and delivery happen asynchronously.
func (c *Client) emit(event *domain.Event) {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		c.log.Debug("Event emitted before Init, dropping",
			zap.String("message", event.Message))
		return
	}
	lim, tracker, buf, engine := c.limiter, c.tracker, c.buf, c.engine
	identity := c.identity
	snapshot := c.device
	batchSize := c.opts.BatchSize
	c.mu.Unlock()

	if engine.Disabled() {
		return
	}

	decision := lim.Allow(event)
	if !decision.Allowed {
		return
	}
	lim.Commit(event)

	// Enrichment happens before the event becomes immutable in the buffer.
	if event.SessionID == "" {
		event.SessionID = tracker.SessionID()
	}
	if event.Device == nil {
		event.Device = &snapshot
	}
	if event.UserID == "" {
		event.UserID = identity.UserID
		event.UserName = identity.UserName
		event.UserEmail = identity.UserEmail
	}
	if event.Category == domain.CategoryCrash {
		if crumbs := tracker.Breadcrumbs(); len(crumbs) > 0 {
			metadata := cloneMetadata(event.Metadata)
			metadata["breadcrumbs"] = crumbs
			event.Metadata = metadata
		}
	}

	buf.Append(event)

	if event.Category == domain.CategoryAnalytics {
		tracker.AddBreadcrumb(event.Message, event.Metadata)
	}

	if buf.Len() >= batchSize || event.Severity >= domain.SeverityError {
		go engine.Flush(context.Background())
	}
}

// run owns the two recurring tasks: flush and limiter cleanup. Both stop as
// a unit when the stop channel closes.
func (c *Client) run(flushEvery, cleanupEvery time.Duration, lim *limiter.Limiter, eng *delivery.Engine, stop chan struct{}) {
	flushTicker := time.NewTicker(flushEvery)
	defer flushTicker.Stop()
	cleanupTicker := time.NewTicker(cleanupEvery)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-flushTicker.C:
			eng.Flush(context.Background())
		case <-cleanupTicker.C:
			lim.Cleanup()
		}
	}
}

// recordInstallState maintains the first-open marker and last-known app
// version, emitting the corresponding analytics events. Best-effort: a
// failing store only costs the bookkeeping.
func (c *Client) recordInstallState() {
	ctx := context.Background()
	store := c.opts.Store

	if _, ok, err := store.Get(ctx, storage.KeyFirstOpen); err == nil && !ok {
		if err := store.Set(ctx, storage.KeyFirstOpen, "done"); err != nil {
			c.log.Debug("Failed to persist first-open marker", zap.Error(err))
		}
		c.Event("first_open", nil)
	}

	if c.opts.AppVersion == "" {
		return
	}
	last, ok, err := store.Get(ctx, storage.KeyLastAppVersion)
	if err == nil && ok && last != c.opts.AppVersion {
		c.Event("app_updated", map[string]any{
			"from": last,
			"to":   c.opts.AppVersion,
		})
	}
	if err := store.Set(ctx, storage.KeyLastAppVersion, c.opts.AppVersion); err != nil {
		c.log.Debug("Failed to persist app version", zap.Error(err))
	}
}

func cloneMetadata(metadata map[string]any) map[string]any {
	cloned := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		cloned[k] = v
	}
	return cloned
}
