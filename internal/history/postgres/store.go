// Package postgres provides a PostgreSQL-backed [history.Store].
//
// Entries live in a single dialogue_entries table with a GIN full-text
// index over the text column. [Migrate] creates the schema and is safe to
// run on every start.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	rec := history.NewRecorder(store)
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/parley/internal/history"
)

var _ history.Store = (*Store)(nil)

// Store is a [history.Store] over a [pgxpool.Pool].
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, checks the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Record implements [history.Store].
func (s *Store) Record(ctx context.Context, e history.Entry) error {
	const q = `
		INSERT INTO dialogue_entries
		    (conversation_id, interaction_id, utterance_id, speaker, speaker_name, text, from_player, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		e.ConversationID,
		e.InteractionID,
		e.UtteranceID,
		e.Speaker,
		e.SpeakerName,
		e.Text,
		e.FromPlayer,
		e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("history store: record: %w", err)
	}
	return nil
}

// Recent implements [history.Store].
func (s *Store) Recent(ctx context.Context, conversationID string, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT conversation_id, interaction_id, utterance_id, speaker, speaker_name, text, from_player, timestamp
		FROM (
		    SELECT *
		    FROM   dialogue_entries
		    WHERE  conversation_id = $1
		    ORDER  BY timestamp DESC, id DESC
		    LIMIT  $2
		) recent
		ORDER BY timestamp, id`

	rows, err := s.pool.Query(ctx, q, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("history store: recent: %w", err)
	}
	return collectEntries(rows)
}

// Search implements [history.Store]. query is passed to plainto_tsquery,
// so no operator syntax is needed.
func (s *Store) Search(ctx context.Context, query string, opts history.SearchOpts) ([]history.Entry, error) {
	args := []any{query}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', text) @@ plainto_tsquery('english', $1)",
	}
	if opts.ConversationID != "" {
		conditions = append(conditions, "conversation_id = "+next(opts.ConversationID))
	}
	if opts.Speaker != "" {
		conditions = append(conditions, "speaker = "+next(opts.Speaker))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "timestamp > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "timestamp < "+next(opts.Before))
	}

	q := "SELECT conversation_id, interaction_id, utterance_id, speaker, speaker_name, text, from_player, timestamp\n" +
		"FROM   dialogue_entries\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY timestamp, id"
	if opts.Limit > 0 {
		q += "\nLIMIT " + next(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: search: %w", err)
	}
	return collectEntries(rows)
}

// collectEntries scans rows into entries. It never returns a nil slice
// without an error.
func collectEntries(rows pgx.Rows) ([]history.Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Entry, error) {
		var e history.Entry
		err := row.Scan(
			&e.ConversationID,
			&e.InteractionID,
			&e.UtteranceID,
			&e.Speaker,
			&e.SpeakerName,
			&e.Text,
			&e.FromPlayer,
			&e.Timestamp,
		)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return entries, nil
}
