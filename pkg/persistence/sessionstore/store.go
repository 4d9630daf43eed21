package sessionstore

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidInput      = errors.New("sessionstore: invalid input")
	ErrUnsupportedScheme = errors.New("sessionstore: unsupported dsn scheme")
)

// Store is a per-user key-value session store. Values are opaque bytes.
// Get reports ok=false when nothing is stored under (userID, key).
type Store interface {
	Get(ctx context.Context, userID, key string) ([]byte, bool, error)
	Set(ctx context.Context, userID, key string, value []byte) error
	Delete(ctx context.Context, userID, key string) error
	Close() error
}

func validate(userID, key string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.Wrap(ErrInvalidInput, "empty user id")
	}
	if strings.TrimSpace(key) == "" {
		return errors.Wrap(ErrInvalidInput, "empty key")
	}
	return nil
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
