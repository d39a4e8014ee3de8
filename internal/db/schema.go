package db

import (
	"context"
	"fmt"
)

// schema is idempotent so it can run at every startup.
const schema = `
CREATE TABLE IF NOT EXISTS pipeline_items (
	id               UUID PRIMARY KEY,
	owner_id         UUID NOT NULL,
	parent_id        UUID REFERENCES pipeline_items(id),
	script_id        UUID,
	source_ref       TEXT NOT NULL,
	content_type     TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'queued',
	current_stage    INT NOT NULL DEFAULT 0,
	retry_count      INT NOT NULL DEFAULT 0,
	revision_context JSONB,
	cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
	error_message    TEXT NOT NULL DEFAULT '',
	error_stage      INT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at       TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS pipeline_items_owner_idx ON pipeline_items (owner_id, created_at);

CREATE TABLE IF NOT EXISTS stage_payloads (
	item_id    UUID NOT NULL REFERENCES pipeline_items(id) ON DELETE CASCADE,
	stage      INT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (item_id, stage)
);

CREATE TABLE IF NOT EXISTS scripts (
	id             UUID PRIMARY KEY,
	owner_id       UUID NOT NULL,
	title          TEXT NOT NULL,
	content_type   TEXT NOT NULL,
	source_ref     TEXT NOT NULL,
	status          TEXT NOT NULL,
	revision_count  INT NOT NULL DEFAULT 0,
	reason_category TEXT NOT NULL DEFAULT '',
	reason_text     TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS scripts_owner_idx ON scripts (owner_id, created_at);

CREATE TABLE IF NOT EXISTS script_versions (
	id         UUID PRIMARY KEY,
	script_id  UUID NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
	item_id    UUID NOT NULL,
	version    INT NOT NULL,
	draft      JSONB NOT NULL,
	synthesis  JSONB NOT NULL,
	gate       JSONB NOT NULL,
	feedback         TEXT NOT NULL DEFAULT '',
	target_scene_ids JSONB NOT NULL DEFAULT 'null',
	is_current       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (script_id, version)
);

CREATE UNIQUE INDEX IF NOT EXISTS script_versions_current_idx
	ON script_versions (script_id) WHERE is_current;

CREATE TABLE IF NOT EXISTS owner_credentials (
	owner_id   UUID NOT NULL,
	provider   TEXT NOT NULL,
	sealed     BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (owner_id, provider)
);

CREATE TABLE IF NOT EXISTS owner_usage (
	owner_id   UUID PRIMARY KEY,
	runs_today INT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
