// Package store provides SQLite-backed persistence for the NULL Engine.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS worlds (
	id            TEXT PRIMARY KEY,
	seed_prompt   TEXT NOT NULL,
	config_json   TEXT NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL DEFAULT 'generating',
	current_epoch INTEGER NOT NULL DEFAULT 0,
	current_tick  INTEGER NOT NULL DEFAULT 0,
	state_version INTEGER NOT NULL DEFAULT 1,
	created_at    INTEGER NOT NULL DEFAULT 0,
	updated_at    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_worlds_status ON worlds(status);

CREATE TABLE IF NOT EXISTS factions (
	id          TEXT PRIMARY KEY,
	world_id    TEXT NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	color       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_factions_world ON factions(world_id);

CREATE TABLE IF NOT EXISTS agents (
	id           TEXT PRIMARY KEY,
	world_id     TEXT NOT NULL REFERENCES worlds(id) ON DELETE CASCADE,
	faction_id   TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL,
	persona_json TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_agents_world ON agents(world_id);

CREATE TABLE IF NOT EXISTS conversations (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	world_id          TEXT NOT NULL,
	epoch             INTEGER NOT NULL,
	tick              INTEGER NOT NULL,
	topic             TEXT NOT NULL DEFAULT '',
	participants_json TEXT NOT NULL DEFAULT '[]',
	messages_json     TEXT NOT NULL DEFAULT '[]',
	summary           TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_world ON conversations(world_id, epoch, tick);

CREATE TABLE IF NOT EXISTS world_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	world_id     TEXT NOT NULL,
	epoch        INTEGER NOT NULL,
	tick         INTEGER NOT NULL,
	event_type   TEXT NOT NULL,
	description  TEXT NOT NULL,
	targets_json TEXT NOT NULL DEFAULT '[]',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_world_events_world ON world_events(world_id, id);

CREATE TABLE IF NOT EXISTS agent_posts (
	id         TEXT PRIMARY KEY,
	world_id   TEXT NOT NULL,
	agent_id   TEXT NOT NULL,
	agent_name TEXT NOT NULL DEFAULT '',
	epoch      INTEGER NOT NULL,
	tick       INTEGER NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_posts_world ON agent_posts(world_id, created_at);

CREATE TABLE IF NOT EXISTS wiki_pages (
	id         TEXT PRIMARY KEY,
	world_id   TEXT NOT NULL,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	version    INTEGER NOT NULL DEFAULT 1,
	updated_at INTEGER NOT NULL,
	UNIQUE(world_id, title)
);

CREATE TABLE IF NOT EXISTS strata (
	world_id    TEXT NOT NULL,
	epoch       INTEGER NOT NULL,
	summary     TEXT NOT NULL DEFAULT '',
	themes_json TEXT NOT NULL DEFAULT '[]',
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (world_id, epoch)
);

CREATE TABLE IF NOT EXISTS audit_records (
	id           TEXT PRIMARY KEY,
	world_id     TEXT NOT NULL,
	category     TEXT NOT NULL,
	actor        TEXT NOT NULL DEFAULT '',
	action       TEXT NOT NULL,
	request_json TEXT NOT NULL DEFAULT '{}',
	severity     TEXT NOT NULL DEFAULT 'info',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_world ON audit_records(world_id);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes writers. Never issue db.* calls while a
	// *sql.Tx from the same pool is open.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
