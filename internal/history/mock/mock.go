// Package mock provides an in-memory [history.Store] for tests.
//
// Typical usage:
//
//	store := &mock.Store{}
//	rec := history.NewRecorder(store)
//	// run rec, add entries …
//	if got := len(store.Entries()); got != 2 {
//	    t.Errorf("expected 2 entries, got %d", got)
//	}
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/parley/internal/history"
)

var _ history.Store = (*Store)(nil)

// Store keeps entries in memory. Search is a case-insensitive substring
// match. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries []history.Entry

	// RecordErr is returned by [Store.Record] when non-nil; the entry is
	// not kept.
	RecordErr error

	// RecentErr is returned by [Store.Recent] when non-nil.
	RecentErr error

	// SearchErr is returned by [Store.Search] when non-nil.
	SearchErr error
}

// Record implements history.Store.
func (s *Store) Record(_ context.Context, e history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	s.entries = append(s.entries, e)
	return nil
}

// Recent implements history.Store.
func (s *Store) Recent(_ context.Context, conversationID string, limit int) ([]history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	out := []history.Entry{}
	for _, e := range s.entries {
		if e.ConversationID == conversationID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Search implements history.Store.
func (s *Store) Search(_ context.Context, query string, opts history.SearchOpts) ([]history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	q := strings.ToLower(query)
	out := []history.Entry{}
	for _, e := range s.entries {
		switch {
		case !strings.Contains(strings.ToLower(e.Text), q):
		case opts.ConversationID != "" && e.ConversationID != opts.ConversationID:
		case opts.Speaker != "" && e.Speaker != opts.Speaker:
		case !opts.After.IsZero() && !e.Timestamp.After(opts.After):
		case !opts.Before.IsZero() && !e.Timestamp.Before(opts.Before):
		default:
			out = append(out, e)
		}
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// Entries returns a copy of every recorded entry.
func (s *Store) Entries() []history.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
