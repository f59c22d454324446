package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/parley/internal/observe"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ErrRetriesExhausted is passed to OnFailure when every connection attempt
// of a cycle failed.
var ErrRetriesExhausted = errors.New("client: reconnection failed after max retries")

// Reconnector opens connections on request and retries failed attempts with
// exponential backoff.
//
// A connection cycle starts with [Reconnector.Request]. [Reconnector.Run]
// dials the transport, doubling the wait between attempts up to MaxBackoff,
// and hands the first successful connection to OnConnect. When every attempt
// fails, OnFailure is called with the last error.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	transport  Transport
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	onAttempt  func(attempt int)
	onConnect  func(Conn)
	onFailure  func(error)
	metrics    *observe.Metrics

	mu       sync.Mutex
	conn     Conn
	done     chan struct{}
	stopOnce sync.Once
	requests chan struct{} // signalled when a connection is wanted
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Transport is used to establish connections.
	Transport Transport

	// MaxRetries is the maximum number of attempts per cycle.
	// Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial backoff duration between retries. Doubles each
	// attempt up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on backoff duration. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// OnAttempt is called before each dial. May be nil.
	OnAttempt func(attempt int)

	// OnConnect is called with each new connection. May be nil.
	OnConnect func(Conn)

	// OnFailure is called when a cycle gives up. May be nil.
	OnFailure func(error)

	// Metrics records attempt results. May be nil.
	Metrics *observe.Metrics
}

// NewReconnector creates a new [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Reconnector{
		transport:  cfg.Transport,
		maxRetries: maxRetries,
		backoff:    backoff,
		maxBackoff: maxBackoff,
		onAttempt:  cfg.OnAttempt,
		onConnect:  cfg.OnConnect,
		onFailure:  cfg.OnFailure,
		metrics:    cfg.Metrics,
		done:       make(chan struct{}),
		requests:   make(chan struct{}, 1),
	}
}

// Request asks the monitor to open a connection. Safe to call multiple
// times; requests made while one is pending are merged.
func (r *Reconnector) Request() {
	select {
	case r.requests <- struct{}{}:
	default:
		// Already requested; avoid blocking.
	}
}

// Run serves connection requests until ctx is cancelled or [Reconnector.Stop]
// is called. It always returns nil.
func (r *Reconnector) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.done:
			return nil
		case <-r.requests:
			r.attemptConnect(ctx)
		}
	}
}

// Stop halts the monitor and closes the current connection.
// Safe to call multiple times.
func (r *Reconnector) Stop() error {
	r.stopOnce.Do(func() {
		close(r.done)
	})

	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Connection returns the most recent connection. May return nil before the
// first successful attempt.
func (r *Reconnector) Connection() Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

// attemptConnect dials with exponential backoff.
func (r *Reconnector) attemptConnect(ctx context.Context) {
	currentBackoff := r.backoff
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		slog.Info("client: connecting",
			"attempt", attempt,
			"max_retries", r.maxRetries,
		)
		if r.onAttempt != nil {
			r.onAttempt(attempt)
		}

		conn, err := r.transport.Dial(ctx)
		if err == nil {
			r.metrics.RecordReconnect(ctx, "success")
			r.mu.Lock()
			oldConn := r.conn
			r.conn = conn
			r.mu.Unlock()

			// Release the previous connection; its reader exits on close.
			if oldConn != nil {
				_ = oldConn.Close()
			}

			slog.Info("client: connected", "attempt", attempt)

			if r.onConnect != nil {
				r.onConnect(conn)
			}
			return
		}
		lastErr = err
		r.metrics.RecordReconnect(ctx, "failure")

		slog.Warn("client: connection attempt failed",
			"attempt", attempt,
			"error", err,
		)
		if attempt == r.maxRetries {
			break
		}

		// Wait before retrying.
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(currentBackoff):
		}

		// Exponential backoff.
		currentBackoff *= 2
		if currentBackoff > r.maxBackoff {
			currentBackoff = r.maxBackoff
		}
	}

	slog.Error("client: reconnection failed after max retries",
		"max_retries", r.maxRetries,
		"error", lastErr,
	)
	if r.onFailure != nil {
		r.onFailure(fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr))
	}
}
