package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name:      "sqlite3",
	migration: "migrations/sqlite.sql",
	uniqueViolation: func(err error) bool {
		var sqErr sqlite3.Error
		if !errors.As(err, &sqErr) {
			return false
		}
		return sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqErr.ExtendedCode == sqlite3.ErrConstraintUnique
	},
}

// NewSQLiteStorage opens (or creates) a SQLite database file at path.
func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s, err := newSQLStorage(db, sqliteDialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
