package telling

import (
	"time"

	"go.uber.org/zap"

	"github.com/ThatSaxyDev/telling-logger-go/internal/buffer"
	"github.com/ThatSaxyDev/telling-logger-go/internal/delivery"
	"github.com/ThatSaxyDev/telling-logger-go/internal/limiter"
	"github.com/ThatSaxyDev/telling-logger-go/internal/session"
	"github.com/ThatSaxyDev/telling-logger-go/internal/storage"
	"github.com/ThatSaxyDev/telling-logger-go/internal/transport"
)

const (
	defaultFlushInterval   = 5 * time.Second
	defaultCleanupInterval = 30 * time.Second
	defaultRequestTimeout  = 10 * time.Second
)

// Options configures a Client. The zero value is usable: every unset field
// falls back to the stock policy.
type Options struct {
	// Endpoint is the collector URL. Required for delivery; without it the
	// pipeline buffers but every flush fails as a transport error.
	Endpoint string

	// Debug enables console narration of admission rejections, flush
	// outcomes and degraded paths. Production hosts leave this off: the SDK
	// is then silent on every error path.
	Debug bool

	// AppVersion and AppBuildNumber are stamped into the device snapshot.
	AppVersion     string
	AppBuildNumber string

	// FlushInterval is the recurring flush period.
	FlushInterval time.Duration

	// CleanupInterval is the recurring rate-limiter cleanup period.
	CleanupInterval time.Duration

	// SessionTimeout is how long the app may stay backgrounded before a
	// resume rotates the session.
	SessionTimeout time.Duration

	// RequestTimeout bounds each delivery round trip.
	RequestTimeout time.Duration

	// MaxLogsPerSecond, DedupWindow and CrashThrottleWindow tune admission.
	MaxLogsPerSecond    int
	DedupWindow         time.Duration
	CrashThrottleWindow time.Duration

	// BufferCapacity and BufferTrimTo bound the unsent-event queue.
	BufferCapacity int
	BufferTrimTo   int

	// BatchSize is the buffer length that triggers a flush on admission.
	BatchSize int

	// MaxAttempts and BaseRetryDelay tune the backoff/circuit-breaker policy.
	MaxAttempts    int
	BaseRetryDelay time.Duration

	// Store is the durable backend for unsent events. Defaults to an
	// in-memory store, which does not survive process death; hosts wanting
	// crash survivability pass a file or Redis store.
	Store storage.Store

	// Transport overrides the outbound HTTP collaborator. Defaults to
	// net/http with RequestTimeout.
	Transport transport.Transport

	// Logger overrides the SDK logger. Defaults to a nop logger, or a
	// development logger when Debug is set.
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.FlushInterval <= 0 {
		o.FlushInterval = defaultFlushInterval
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = defaultCleanupInterval
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = session.DefaultTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}

	stockLimiter := limiter.DefaultConfig()
	if o.MaxLogsPerSecond <= 0 {
		o.MaxLogsPerSecond = stockLimiter.MaxLogsPerSecond
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = stockLimiter.DedupWindow
	}
	if o.CrashThrottleWindow <= 0 {
		o.CrashThrottleWindow = stockLimiter.CrashThrottleWindow
	}

	stockBuffer := buffer.DefaultConfig()
	if o.BufferCapacity <= 0 {
		o.BufferCapacity = stockBuffer.Capacity
	}
	if o.BufferTrimTo <= 0 {
		o.BufferTrimTo = stockBuffer.TrimTo
	}

	stockDelivery := delivery.DefaultConfig()
	if o.BatchSize <= 0 {
		o.BatchSize = stockDelivery.BatchSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = stockDelivery.MaxAttempts
	}
	if o.BaseRetryDelay <= 0 {
		o.BaseRetryDelay = stockDelivery.BaseRetryDelay
	}

	if o.Store == nil {
		o.Store = storage.NewMemory()
	}
	if o.Transport == nil {
		o.Transport = transport.NewHTTP(o.RequestTimeout)
	}
	return o
}

func (o Options) limiterConfig() limiter.Config {
	return limiter.Config{
		DedupWindow:         o.DedupWindow,
		MaxLogsPerSecond:    o.MaxLogsPerSecond,
		CrashThrottleWindow: o.CrashThrottleWindow,
	}
}

func (o Options) bufferConfig() buffer.Config {
	return buffer.Config{
		Capacity: o.BufferCapacity,
		TrimTo:   o.BufferTrimTo,
	}
}

func (o Options) deliveryConfig(key string) delivery.Config {
	cfg := delivery.DefaultConfig()
	cfg.Endpoint = o.Endpoint
	cfg.APIKey = key
	cfg.BatchSize = o.BatchSize
	cfg.MaxAttempts = o.MaxAttempts
	cfg.BaseRetryDelay = o.BaseRetryDelay
	return cfg
}
