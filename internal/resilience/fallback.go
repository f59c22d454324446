package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllFailed is returned when every member of a [FallbackGroup] failed or
// was skipped by its breaker. The member errors are joined into the
// returned error.
var ErrAllFailed = errors.New("resilience: all endpoints failed")

// FallbackConfig configures the breaker created for each member of a
// [FallbackGroup]. The breaker name is set to the member name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	value   T
	breaker *CircuitBreaker
}

// MemberState is the breaker state of one member of a [FallbackGroup].
type MemberState struct {
	Name  string
	State State
}

// FallbackGroup tries a primary value and then its fallbacks in the order
// they were added, each behind its own [CircuitBreaker].
type FallbackGroup[T any] struct {
	cfg FallbackConfig

	mu      sync.RWMutex
	members []member[T]
}

// NewFallbackGroup returns a group whose primary member is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends a member tried after those already in the group.
func (g *FallbackGroup[T]) AddFallback(name string, value T) {
	cbCfg := g.cfg.CircuitBreaker
	cbCfg.Name = name

	g.mu.Lock()
	g.members = append(g.members, member[T]{value: value, breaker: NewCircuitBreaker(cbCfg)})
	g.mu.Unlock()
}

// States returns the breaker state of every member in try order.
func (g *FallbackGroup[T]) States() []MemberState {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]MemberState, len(g.members))
	for i, m := range g.members {
		out[i] = MemberState{Name: m.breaker.Name(), State: m.breaker.State()}
	}
	return out
}

// Execute calls fn with each member in turn until one succeeds.
func (g *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult calls fn with each member of g in turn and returns the
// first successful result. It is a function because methods cannot declare
// type parameters.
func ExecuteWithResult[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	g.mu.RLock()
	members := append([]member[T](nil), g.members...)
	g.mu.RUnlock()

	var errs []error
	for _, m := range members {
		var result R
		err := m.breaker.Execute(func() error {
			var err error
			result, err = fn(m.value)
			return err
		})
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping endpoint, circuit open", "endpoint", m.breaker.Name())
		} else {
			slog.Warn("resilience: endpoint failed, trying next", "endpoint", m.breaker.Name(), "error", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.breaker.Name(), err))
	}

	var zero R
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
