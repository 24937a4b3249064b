package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "insight runs",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS insight_runs (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    labels TEXT NOT NULL DEFAULT '[]',
    author TEXT,
    provider TEXT NOT NULL,
    model TEXT,
    context TEXT NOT NULL,
    output_markdown TEXT,
    raw_output TEXT,
    status TEXT NOT NULL CHECK(status IN ('ok', 'failed')),
    error TEXT,
    duration_ms INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_insight_runs_mode ON insight_runs(mode);
CREATE INDEX IF NOT EXISTS idx_insight_runs_created ON insight_runs(created_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "run feedback",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS run_feedback (
    run_id TEXT PRIMARY KEY REFERENCES insight_runs(id) ON DELETE CASCADE,
    rating TEXT NOT NULL CHECK(rating IN ('useful', 'not_useful')),
    note TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
