package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	// Path is a file path, a "file:" URI, or ":memory:".
	Path string

	MaxOpenConns int
}

// SQLiteConfigFromEnv reads SQLITE_PATH.
func SQLiteConfigFromEnv() SQLiteConfig {
	return SQLiteConfig{
		Path:         getEnvOrDefault("SQLITE_PATH", "data/synopmap.db"),
		MaxOpenConns: 1,
	}
}

// OpenSQLite opens and pings a SQLite database, creating the parent
// directory of file-backed databases.
func OpenSQLite(cfg SQLiteConfig) (*sql.DB, error) {
	dsn, err := sqliteDSN(cfg.Path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// MigrateSQLite applies the snapshot schema. It is idempotent.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}

	params := "_busy_timeout=5000&_journal_mode=WAL"

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + params, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create sqlite directory %s: %w", dir, err)
		}
	}
	return "file:" + path + "?" + params, nil
}
