package buffer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ThatSaxyDev/telling-logger-go/internal/domain"
	"github.com/ThatSaxyDev/telling-logger-go/internal/storage"
)

// Config bounds the buffer. When an append finds the buffer at Capacity,
// the oldest (size - TrimTo) events are dropped first, so a single append
// never exceeds Capacity and eviction keeps the most recent entries.
type Config struct {
	Capacity int
	TrimTo   int
}

// DefaultConfig returns the stock bounds.
func DefaultConfig() Config {
	return Config{Capacity: 500, TrimTo: 400}
}

// Buffer is the ordered queue of admitted, not-yet-acknowledged events. Its
// contents are mirrored to the durable store after every admission and after
// every flush outcome, so a process restart recovers unsent events. Mirroring
// is best-effort: persistence failures are logged, never raised.
type Buffer struct {
	cfg   Config
	store storage.Store
	log   *zap.Logger

	mu     sync.Mutex
	events []*domain.Event

	dirty chan struct{}
	done  chan struct{}
	once  sync.Once
}

// New creates a buffer mirrored to the given store and starts the background
// persister. Callers must Close the buffer to stop it.
func New(store storage.Store, cfg Config, log *zap.Logger) *Buffer {
	b := &Buffer{
		cfg:   cfg,
		store: store,
		log:   log,
		dirty: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go b.persistLoop()
	return b
}

// Append admits an event, evicting the oldest entries first when the buffer
// is at capacity, and schedules a persist.
func (b *Buffer) Append(event *domain.Event) {
	b.mu.Lock()
	if len(b.events) >= b.cfg.Capacity {
		drop := len(b.events) - b.cfg.TrimTo
		b.log.Debug("Buffer at capacity, dropping oldest events",
			zap.Int("dropped", drop),
			zap.Int("capacity", b.cfg.Capacity))
		b.events = append([]*domain.Event(nil), b.events[drop:]...)
	}
	b.events = append(b.events, event)
	b.mu.Unlock()

	b.markDirty()
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Snapshot returns a copy of the buffered events in order.
func (b *Buffer) Snapshot() []*domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*domain.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Drain empties the buffer and returns its contents. Events admitted while
// a drained batch is in flight land in the fresh buffer. Drain itself does
// not persist: the caller persists once the flush outcome is known.
func (b *Buffer) Drain() []*domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.events
	b.events = nil
	return drained
}

// Requeue puts a drained batch back at the front of the buffer, ahead of
// anything admitted since the drain.
func (b *Buffer) Requeue(events []*domain.Event) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	b.events = append(append([]*domain.Event(nil), events...), b.events...)
	b.mu.Unlock()
}

// Clear discards all buffered events.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Hydrate loads persisted events into the buffer. Entries that fail to
// decode are skipped individually: partial corruption never discards the
// whole buffer. Must run before any new event is admitted.
func (b *Buffer) Hydrate(ctx context.Context) int {
	raws, ok, err := b.store.GetList(ctx, storage.KeyUnsentEvents)
	if err != nil {
		b.log.Warn("Failed to hydrate buffer from storage", zap.Error(err))
		return 0
	}
	if !ok {
		return 0
	}

	restored := make([]*domain.Event, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		event, err := domain.Decode(raw)
		if err != nil {
			skipped++
			b.log.Warn("Skipping corrupt persisted event", zap.Error(err))
			continue
		}
		restored = append(restored, event)
	}

	b.mu.Lock()
	b.events = restored
	b.mu.Unlock()

	b.log.Debug("Buffer hydrated",
		zap.Int("restored", len(restored)),
		zap.Int("skipped", skipped))
	return len(restored)
}

// Persist serializes the current buffer contents to the durable store.
// Failures are logged and swallowed; the in-memory buffer stays correct
// until the next successful persist.
func (b *Buffer) Persist(ctx context.Context) {
	snapshot := b.Snapshot()

	raws := make([]string, 0, len(snapshot))
	for _, event := range snapshot {
		raw, err := event.Encode()
		if err != nil {
			b.log.Warn("Failed to encode event for persistence",
				zap.String("event_id", event.ID),
				zap.Error(err))
			continue
		}
		raws = append(raws, raw)
	}

	if err := b.store.SetList(ctx, storage.KeyUnsentEvents, raws); err != nil {
		b.log.Warn("Failed to persist buffer", zap.Error(err))
	}
}

// Close stops the background persister after a final persist.
func (b *Buffer) Close() {
	b.once.Do(func() { close(b.done) })
}

// markDirty schedules an asynchronous persist, coalescing bursts.
func (b *Buffer) markDirty() {
	select {
	case b.dirty <- struct{}{}:
	default:
	}
}

func (b *Buffer) persistLoop() {
	for {
		select {
		case <-b.done:
			b.Persist(context.Background())
			return
		case <-b.dirty:
			b.Persist(context.Background())
		}
	}
}
