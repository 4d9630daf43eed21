package opendocs

import (
	"context"
	"sync"
)

// UpdateSignalName is the name UI surfaces listen for to reload the list.
const UpdateSignalName = "opendocs:updateRequested"

// UpdateSignal is the fire-and-forget "the recent documents changed" notification.
type UpdateSignal interface {
	Raise(ctx context.Context, userID string) error
}

// SignalFunc adapts a function to UpdateSignal.
type SignalFunc func(ctx context.Context, userID string) error

func (f SignalFunc) Raise(ctx context.Context, userID string) error {
	return f(ctx, userID)
}

type NoopSignal struct{}

func (NoopSignal) Raise(context.Context, string) error { return nil }

// RecordingSignal keeps the users it was raised for, in order.
type RecordingSignal struct {
	mu    sync.Mutex
	users []string
}

func (r *RecordingSignal) Raise(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return nil
}

func (r *RecordingSignal) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.users...)
}

func (r *RecordingSignal) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
