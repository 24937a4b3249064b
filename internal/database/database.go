package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a history that lives only as long as the DB value.
const MemoryPath = ":memory:"

// historyPragmas are applied in order to the single history connection.
// The server and the CLI may write runs to the same file concurrently.
var historyPragmas = []struct {
	stmt, desc string
}{
	{"PRAGMA journal_mode=WAL", "setting journal mode"},
	{"PRAGMA foreign_keys=ON", "enabling foreign keys"},
	{"PRAGMA busy_timeout=5000", "setting busy timeout"},
}

// DB is the insight run history. It stores the rendered context and the
// generated narrative of each run plus its feedback. Uploaded exports are
// never written here.
type DB struct {
	conn   *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens the run history at dbPath, creating the file and its directory
// on first use and migrating the runs schema to the latest version.
// MemoryPath gives a throwaway history.
func Open(dbPath string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	// PRAGMAs and an in-memory database are both per connection.
	conn.SetMaxOpenConns(1)

	for _, p := range historyPragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", p.desc, err)
		}
	}

	if err := migrate(conn, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}

	db := &DB{conn: conn, path: dbPath, logger: logger}
	version, _ := getSchemaVersion(conn)
	var runs int
	if err := conn.QueryRow("SELECT COUNT(*) FROM insight_runs").Scan(&runs); err != nil {
		conn.Close()
		return nil, fmt.Errorf("counting runs: %w", err)
	}
	logger.Debug("run history opened",
		zap.String("path", dbPath),
		zap.Int("schema_version", version),
		zap.Int("runs", runs))
	return db, nil
}

// Close closes the history.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the history file path, or MemoryPath.
func (db *DB) Path() string {
	return db.path
}
