package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xaenox/diplomat-bot/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

type dialect struct {
	name       string
	migration  string
	positional bool // $1 placeholders instead of ?

	// reports whether err is a primary key or unique constraint failure
	uniqueViolation func(err error) bool
}

// rebind rewrites ? placeholders for dialects that number their parameters.
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	selectUserQuery = `SELECT record FROM users WHERE username = ?`
	upsertUserQuery = `
		INSERT INTO users (username, record, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (username) DO UPDATE
		SET record = excluded.record, updated_at = excluded.updated_at`
	existsUserQuery = `SELECT COUNT(*) FROM users WHERE username = ?`
	renameUserQuery = `UPDATE users SET username = ?, updated_at = ? WHERE username = ?`
	deleteUserQuery = `DELETE FROM users WHERE username = ?`
)

// SQLStorage stores one encoded record per row in a users table.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

func newSQLStorage(db *sql.DB, d dialect, logger *zap.Logger) (*SQLStorage, error) {
	s := &SQLStorage{db: db, dialect: d, logger: logger}
	if err := s.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	return s, nil
}

func (s *SQLStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile(s.dialect.migration)
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *SQLStorage) GetUser(ctx context.Context, username string) (*models.User, error) {
	var record string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(selectUserQuery), username).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	return DecodeUser(username, []byte(record), s.logger)
}

func (s *SQLStorage) SaveUser(ctx context.Context, user *models.User) error {
	raw, err := EncodeUser(user)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.dialect.rebind(upsertUserQuery), user.Username, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("error saving user: %w", err)
	}
	return nil
}

func (s *SQLStorage) RenameUser(ctx context.Context, oldName, newName string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var taken int
	if err := tx.QueryRowContext(ctx, s.dialect.rebind(existsUserQuery), newName).Scan(&taken); err != nil {
		return false, fmt.Errorf("error checking username: %w", err)
	}
	if taken > 0 {
		return false, nil
	}

	// another session may claim newName after the check above
	result, err := tx.ExecContext(ctx, s.dialect.rebind(renameUserQuery), newName, time.Now().UTC(), oldName)
	if err != nil {
		if s.dialect.uniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("error renaming user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("error committing rename: %w", err)
	}
	return true, nil
}

func (s *SQLStorage) DeleteUser(ctx context.Context, username string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(deleteUserQuery), username); err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	return nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
