package opendocs

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type mapStore struct {
	mu     sync.Mutex
	values map[string][]byte
	writes int
	getErr error
	setErr error
}

func newMapStore() *mapStore {
	return &mapStore{values: map[string][]byte{}}
}

func (s *mapStore) Get(_ context.Context, userID, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	v, ok := s.values[userID+"/"+key]
	return v, ok, nil
}

func (s *mapStore) Set(_ context.Context, userID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[userID+"/"+key] = append([]byte(nil), value...)
	s.writes++
	return nil
}

func (s *mapStore) put(userID, raw string) {
	s.values[userID+"/"+SessionKey] = []byte(raw)
}

func (s *mapStore) raw(userID string) string {
	return string(s.values[userID+"/"+SessionKey])
}

var errStoreDown = errors.New("store down")

// stepClock advances one second on every call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func identifiers(docs []Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Identifier())
	}
	return out
}
