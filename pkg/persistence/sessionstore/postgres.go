package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

const (
	postgresTableName        = "opendocs_session_values"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresStore connects lazily on first use and creates its table then.
type PostgresStore struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

var _ Store = &PostgresStore{}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.Wrap(ErrInvalidInput, "postgres session store: empty dsn")
	}
	return &PostgresStore{
		dsn:       dsn,
		tableName: postgresTableName,
		openDB:    sql.Open,
	}, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, key string) ([]byte, bool, error) {
	if err := validate(userID, key); err != nil {
		return nil, false, err
	}
	if err := s.ensureReady(); err != nil {
		return nil, false, err
	}
	ctx, cancel := context.WithTimeout(ctxOrBackground(ctx), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT value FROM %s WHERE user_id = $1 AND session_key = $2", postgresQuoteIdentifier(s.tableName))
	var value []byte
	err := s.db.QueryRowContext(ctx, query, userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "postgres session store: get")
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, userID, key string, value []byte) error {
	if err := validate(userID, key); err != nil {
		return err
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	ctx, cancel := context.WithTimeout(ctxOrBackground(ctx), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, session_key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, session_key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, postgresQuoteIdentifier(s.tableName))
	if _, err := s.db.ExecContext(ctx, query, userID, key, value); err != nil {
		return errors.Wrap(err, "postgres session store: set")
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, key string) error {
	if err := validate(userID, key); err != nil {
		return err
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctxOrBackground(ctx), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE user_id = $1 AND session_key = $2", postgresQuoteIdentifier(s.tableName))
	if _, err := s.db.ExecContext(ctx, query, userID, key); err != nil {
		return errors.Wrap(err, "postgres session store: delete")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = errors.Wrap(err, "postgres session store: open")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				user_id TEXT NOT NULL,
				session_key TEXT NOT NULL,
				value BYTEA NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (user_id, session_key)
			)`, postgresQuoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = errors.Wrap(err, "postgres session store: migrate")
			return
		}
		s.db = db
	})
	return s.initErr
}

func postgresQuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
