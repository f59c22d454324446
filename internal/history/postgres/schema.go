package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlDialogueEntries = `
CREATE TABLE IF NOT EXISTS dialogue_entries (
    id               BIGSERIAL    PRIMARY KEY,
    conversation_id  TEXT         NOT NULL,
    interaction_id   TEXT         NOT NULL DEFAULT '',
    utterance_id     TEXT         NOT NULL DEFAULT '',
    speaker          TEXT         NOT NULL,
    speaker_name     TEXT         NOT NULL DEFAULT '',
    text             TEXT         NOT NULL,
    from_player      BOOLEAN      NOT NULL DEFAULT false,
    timestamp        TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_dialogue_entries_conversation_timestamp
    ON dialogue_entries (conversation_id, timestamp);

CREATE INDEX IF NOT EXISTS idx_dialogue_entries_fts
    ON dialogue_entries USING GIN (to_tsvector('english', text));
`

// Migrate creates the history schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlDialogueEntries); err != nil {
		return fmt.Errorf("history migrate: %w", err)
	}
	return nil
}
