package sessionstore

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// Layout: bucket "sessions" -> one nested bucket per user -> key -> value.
const boltBucketSessions = "sessions"

type BoltStore struct {
	db *bbolt.DB
}

var _ Store = &BoltStore{}

func NewBoltStore(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("bolt session store: empty path")
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "bolt session store: open")
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucketSessions))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "bolt session store: create bucket")
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(_ context.Context, userID, key string) ([]byte, bool, error) {
	if err := validate(userID, key); err != nil {
		return nil, false, err
	}
	var (
		value []byte
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		user := tx.Bucket([]byte(boltBucketSessions)).Bucket([]byte(userID))
		if user == nil {
			return nil
		}
		if v := user.Get([]byte(key)); v != nil {
			// bbolt memory is only valid inside the transaction
			value = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "bolt session store: get")
	}
	return value, found, nil
}

func (s *BoltStore) Set(_ context.Context, userID, key string, value []byte) error {
	if err := validate(userID, key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		user, err := tx.Bucket([]byte(boltBucketSessions)).CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		return user.Put([]byte(key), value)
	})
	if err != nil {
		return errors.Wrap(err, "bolt session store: set")
	}
	return nil
}

func (s *BoltStore) Delete(_ context.Context, userID, key string) error {
	if err := validate(userID, key); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		user := tx.Bucket([]byte(boltBucketSessions)).Bucket([]byte(userID))
		if user == nil {
			return nil
		}
		return user.Delete([]byte(key))
	})
	if err != nil {
		return errors.Wrap(err, "bolt session store: delete")
	}
	return nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
