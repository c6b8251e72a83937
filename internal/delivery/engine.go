package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/ThatSaxyDev/telling-logger-go/internal/buffer"
	"github.com/ThatSaxyDev/telling-logger-go/internal/domain"
	"github.com/ThatSaxyDev/telling-logger-go/internal/transport"
)

// Config holds the delivery policy.
type Config struct {
	// Endpoint is the collector URL batches are POSTed to.
	Endpoint string
	// APIKey is attached to every request as X-Api-Key.
	APIKey string
	// BatchSize is the buffer length that triggers a flush on admission.
	BatchSize int
	// MaxAttempts is the failure-counter ceiling. A batch that has failed
	// MaxAttempts times is dropped: an explicit give-up, not an oversight.
	// MaxAttempts consecutive 403s instead disable delivery permanently.
	MaxAttempts int
	// BaseRetryDelay seeds the exponential backoff.
	BaseRetryDelay time.Duration
	// CompressionThreshold is the encoded size above which the payload is
	// gzip-compressed.
	CompressionThreshold int
}

// DefaultConfig returns the stock delivery policy.
func DefaultConfig() Config {
	return Config{
		BatchSize:            20,
		MaxAttempts:          5,
		BaseRetryDelay:       5 * time.Second,
		CompressionThreshold: 1024,
	}
}

// Engine drains the buffer, deduplicates, compresses and sends batches,
// then reconciles the buffer against the outcome. It owns the failure
// counter, the retry-not-before instant and the terminal disabled flag;
// no other component touches delivery state.
type Engine struct {
	cfg       Config
	buf       *buffer.Buffer
	transport transport.Transport
	log       *zap.Logger
	now       func() time.Time

	inFlight atomic.Bool

	mu        sync.Mutex
	failures  int
	disabled  bool
	notBefore time.Time
}

// New creates a delivery engine over the given buffer and transport.
func New(cfg Config, buf *buffer.Buffer, tr transport.Transport, log *zap.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		buf:       buf,
		transport: tr,
		log:       log,
		now:       time.Now,
	}
}

// Disabled reports whether the engine has reached its terminal state. Once
// disabled, the engine never delivers again for the process lifetime and
// callers should stop buffering.
func (e *Engine) Disabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disabled
}

// Flush drains the buffer and attempts delivery. It is not reentrant: a
// flush arriving while one is in progress is coalesced and dropped, relying
// on the next trigger to pick up anything admitted meanwhile. The no-op
// paths (empty buffer, disabled, backoff window) leave the buffer untouched.
func (e *Engine) Flush(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.log.Debug("Flush already in progress, coalescing trigger")
		return
	}
	defer e.inFlight.Store(false)

	e.mu.Lock()
	if e.disabled {
		e.mu.Unlock()
		return
	}
	if e.now().Before(e.notBefore) {
		e.log.Debug("Flush suppressed until backoff expires",
			zap.Time("not_before", e.notBefore))
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if e.buf.Len() == 0 {
		return
	}

	batch := collapse(e.buf.Drain())
	if len(batch) == 0 {
		return
	}

	body, compressed, err := e.encode(batch)
	if err != nil {
		// Encoding a batch never legitimately fails; if it does, requeue and
		// let the next flush retry.
		e.log.Error("Failed to encode batch", zap.Error(err))
		e.buf.Requeue(batch)
		return
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"X-Api-Key":    e.cfg.APIKey,
	}
	if compressed {
		headers["Content-Encoding"] = "gzip"
	}

	resp, err := e.transport.Post(ctx, e.cfg.Endpoint, headers, body)
	if err != nil {
		e.log.Warn("Transport failure delivering batch",
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
		e.onTransientFailure(batch)
		e.buf.Persist(ctx)
		return
	}

	switch resp.StatusCode {
	case http.StatusOK:
		e.onSuccess(len(batch))
	case http.StatusForbidden:
		e.onCredentialFailure()
	default:
		e.log.Warn("Collector rejected batch",
			zap.Int("status", resp.StatusCode),
			zap.Int("batch_size", len(batch)))
		e.onTransientFailure(batch)
	}

	e.buf.Persist(ctx)
}

// onSuccess resets the failure counter and backoff.
func (e *Engine) onSuccess(sent int) {
	e.mu.Lock()
	e.failures = 0
	e.notBefore = time.Time{}
	e.mu.Unlock()

	e.log.Debug("Batch delivered", zap.Int("events", sent))
}

// onCredentialFailure counts a 403. The drained batch is never requeued (a
// bad key cannot succeed on retry); at the ceiling, the engine disables
// itself permanently and discards everything still buffered.
func (e *Engine) onCredentialFailure() {
	e.mu.Lock()
	e.failures++
	reached := e.failures >= e.cfg.MaxAttempts
	if reached {
		e.disabled = true
	}
	failures := e.failures
	e.mu.Unlock()

	if reached {
		e.buf.Clear()
		e.log.Warn("Delivery disabled permanently after repeated credential failures",
			zap.Int("failures", failures))
		return
	}
	e.log.Warn("Collector rejected credentials",
		zap.Int("failures", failures),
		zap.Int("max", e.cfg.MaxAttempts))
}

// onTransientFailure applies exponential backoff and requeues the batch
// while the failure counter stays below the ceiling. At the ceiling the
// batch is dropped deliberately: give up after MaxAttempts tries.
func (e *Engine) onTransientFailure(batch []*domain.Event) {
	e.mu.Lock()
	e.failures++
	delay := e.cfg.BaseRetryDelay * time.Duration(1<<(e.failures-1))
	e.notBefore = e.now().Add(delay)
	requeue := e.failures < e.cfg.MaxAttempts
	failures := e.failures
	e.mu.Unlock()

	if requeue {
		e.buf.Requeue(batch)
	} else {
		e.log.Warn("Dropping batch after exhausting delivery attempts",
			zap.Int("dropped", len(batch)),
			zap.Int("attempts", failures))
	}

	e.log.Debug("Delivery backoff applied",
		zap.Int("failures", failures),
		zap.Duration("delay", delay))
}

// encode serializes the batch as a JSON array of portable events,
// compressing when the payload exceeds the threshold.
func (e *Engine) encode(batch []*domain.Event) (body []byte, compressed bool, err error) {
	portables := make([]domain.Portable, len(batch))
	for i, event := range batch {
		portables[i] = event.ToPortable()
	}

	raw, err := json.Marshal(portables)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal batch: %w", err)
	}
	if len(raw) <= e.cfg.CompressionThreshold {
		return raw, false, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, false, fmt.Errorf("failed to compress batch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to finish compressing batch: %w", err)
	}
	return buf.Bytes(), true, nil
}

// collapse deduplicates a drained batch by a coarse content fingerprint of
// (message, severity, raw stack), keeping the last occurrence of each. This
// is a second pass independent of admission-time dedup, applied to the whole
// pending batch.
func collapse(batch []*domain.Event) []*domain.Event {
	lastIndex := make(map[uint64]int, len(batch))
	for i, event := range batch {
		lastIndex[coarseFingerprint(event)] = i
	}

	out := make([]*domain.Event, 0, len(lastIndex))
	for i, event := range batch {
		if lastIndex[coarseFingerprint(event)] == i {
			out = append(out, event)
		}
	}
	return out
}

func coarseFingerprint(e *domain.Event) uint64 {
	h := fnv.New64a()
	h.Write([]byte(e.Message))
	h.Write([]byte{'|'})
	h.Write([]byte(e.Severity.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(e.Stack))
	return h.Sum64()
}
