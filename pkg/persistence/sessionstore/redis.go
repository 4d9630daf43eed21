package sessionstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "opendocs:session"

// RedisStore keeps one string key per (user, key): <prefix>:<user>:<key>.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	ownClient bool
}

var _ Store = &RedisStore{}

type RedisOption func(*RedisStore) error

func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) error {
		if prefix == "" {
			return errors.Wrap(ErrInvalidInput, "redis session store: empty prefix")
		}
		s.prefix = prefix
		return nil
	}
}

// NewRedisStore wraps an existing client. Close does not close it.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.Wrap(ErrInvalidInput, "redis session store: nil client")
	}
	s := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewRedisStoreFromURL dials redis://[user:pass@]host:port/db.
func NewRedisStoreFromURL(rawURL string, opts ...RedisOption) (*RedisStore, error) {
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "redis session store: parse url")
	}
	s, err := NewRedisStore(redis.NewClient(options), opts...)
	if err != nil {
		return nil, err
	}
	s.ownClient = true
	return s, nil
}

func (s *RedisStore) redisKey(userID, key string) string {
	return s.prefix + ":" + userID + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, userID, key string) ([]byte, bool, error) {
	if err := validate(userID, key); err != nil {
		return nil, false, err
	}
	value, err := s.client.Get(ctxOrBackground(ctx), s.redisKey(userID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis session store: get")
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, userID, key string, value []byte) error {
	if err := validate(userID, key); err != nil {
		return err
	}
	if err := s.client.Set(ctxOrBackground(ctx), s.redisKey(userID, key), value, 0).Err(); err != nil {
		return errors.Wrap(err, "redis session store: set")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID, key string) error {
	if err := validate(userID, key); err != nil {
		return err
	}
	if err := s.client.Del(ctxOrBackground(ctx), s.redisKey(userID, key)).Err(); err != nil {
		return errors.Wrap(err, "redis session store: delete")
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || !s.ownClient {
		return nil
	}
	return s.client.Close()
}
