package history

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the number of entries a [Recorder] holds before it
// starts dropping.
const DefaultBuffer = 256

// defaultWriteTimeout bounds a single store write.
const defaultWriteTimeout = 5 * time.Second

// Recorder writes entries to a [Store] from a background goroutine. Add
// never blocks: when the buffer is full the entry is dropped and counted.
type Recorder struct {
	store   Store
	entries chan Entry
	timeout time.Duration
	dropped atomic.Int64
	failed  atomic.Int64
}

// RecorderOption configures a [Recorder].
type RecorderOption func(*Recorder)

// WithBuffer sets the number of buffered entries.
func WithBuffer(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.entries = make(chan Entry, n)
		}
	}
}

// WithWriteTimeout bounds each store write.
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRecorder returns a recorder writing to store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:   store,
		entries: make(chan Entry, DefaultBuffer),
		timeout: defaultWriteTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Add queues e for writing. It reports false when the buffer is full.
// A nil recorder accepts and discards everything.
func (r *Recorder) Add(e Entry) bool {
	if r == nil {
		return true
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case r.entries <- e:
		return true
	default:
		r.dropped.Add(1)
		slog.Warn("history: buffer full, entry dropped", "conversation_id", e.ConversationID)
		return false
	}
}

// Run writes queued entries until ctx is cancelled, then flushes what is
// still buffered. It always returns nil.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return nil
		case e := <-r.entries:
			r.write(ctx, e)
		}
	}
}

// flush writes the remaining buffered entries with a fresh context.
func (r *Recorder) flush() {
	ctx := context.Background()
	for {
		select {
		case e := <-r.entries:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Entry) {
	wctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.Record(wctx, e); err != nil {
		r.failed.Add(1)
		slog.Error("history: record failed", "conversation_id", e.ConversationID, "error", err)
	}
}

// Dropped returns how many entries were discarded because the buffer was
// full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Failed returns how many store writes failed.
func (r *Recorder) Failed() int64 { return r.failed.Load() }
