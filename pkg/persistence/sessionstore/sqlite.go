package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite session store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteDSNForFile returns a DSN for a file-backed session database.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite session store: empty path")
	}
	// WAL for concurrent readers + writer. busy_timeout to avoid transient SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, userID, key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("sqlite session store: db is nil")
	}
	if err := validate(userID, key); err != nil {
		return nil, false, err
	}
	var value []byte
	err := s.db.QueryRowContext(ctxOrBackground(ctx), `
		SELECT value FROM session_values WHERE user_id = ? AND session_key = ?
	`, userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "sqlite session store: get")
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, userID, key string, value []byte) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	if err := validate(userID, key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctxOrBackground(ctx), `
		INSERT INTO session_values (user_id, session_key, value, updated_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, session_key) DO UPDATE SET
			value = excluded.value,
			updated_at_ms = excluded.updated_at_ms
	`, userID, key, value, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite session store: set")
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, key string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	if err := validate(userID, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctxOrBackground(ctx), `
		DELETE FROM session_values WHERE user_id = ? AND session_key = ?
	`, userID, key)
	if err != nil {
		return errors.Wrap(err, "sqlite session store: delete")
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_values (
			user_id TEXT NOT NULL,
			session_key TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			PRIMARY KEY (user_id, session_key)
		)`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite session store: migrate")
		}
	}
	return nil
}
