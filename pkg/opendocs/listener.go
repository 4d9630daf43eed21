package opendocs

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type ApplicationType string

const (
	ApplicationBackend  ApplicationType = "backend"
	ApplicationFrontend ApplicationType = "frontend"
	ApplicationCLI      ApplicationType = "cli"
)

// RecordEvent is one record lifecycle notification from the host. ID is kept
// as the host sent it, so placeholder ids of unsaved records ("NEW64f...")
// can be recognized and ignored.
type RecordEvent struct {
	UserID      string
	Application ApplicationType
	Table       string
	ID          string
}

// Disposition is what the listener did with an event.
type Disposition string

const (
	DispositionApplied   Disposition = "applied"
	DispositionIgnored   Disposition = "ignored"
	DispositionUntracked Disposition = "untracked"
	DispositionFailed    Disposition = "failed"
)

// RecordObserver is the surface the host calls on record lifecycle events.
type RecordObserver interface {
	RecordOpened(ctx context.Context, ev RecordEvent) Disposition
	RecordSaved(ctx context.Context, ev RecordEvent) Disposition
	RecordDeleted(ctx context.Context, ev RecordEvent) Disposition
}

// LiveIDResolver maps a workspace or version id to the live record id.
// ok=false means there is nothing to resolve.
type LiveIDResolver interface {
	ResolveLiveID(ctx context.Context, table string, id int64) (int64, bool, error)
}

// RecencyStore is the part of Repository the listener drives.
type RecencyStore interface {
	Add(ctx context.Context, table string, uid int64, userID string) error
	Remove(ctx context.Context, identifier, userID string) error
	Contains(ctx context.Context, identifier, userID string) (bool, error)
}

var _ RecencyStore = (*Repository)(nil)

type Listener struct {
	store    RecencyStore
	resolver LiveIDResolver
	signal   UpdateSignal
}

var _ RecordObserver = (*Listener)(nil)

type ListenerOption func(*Listener) error

func WithLiveIDResolver(resolver LiveIDResolver) ListenerOption {
	return func(l *Listener) error {
		l.resolver = resolver
		return nil
	}
}

func WithUpdateSignal(signal UpdateSignal) ListenerOption {
	return func(l *Listener) error {
		if signal == nil {
			return errors.New("opendocs: update signal is nil")
		}
		l.signal = signal
		return nil
	}
}

func NewListener(store RecencyStore, opts ...ListenerOption) (*Listener, error) {
	if store == nil {
		return nil, errors.New("opendocs: recency store is nil")
	}
	l := &Listener{store: store, signal: NoopSignal{}}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// RecordOpened tracks the record and always raises the update signal.
func (l *Listener) RecordOpened(ctx context.Context, ev RecordEvent) Disposition {
	uid, ok := l.accept(ev)
	if !ok {
		return l.done("opened", DispositionIgnored)
	}
	uid = l.resolveLiveID(ctx, ev.Table, uid)

	disposition := DispositionApplied
	if err := l.store.Add(ctx, ev.Table, uid, ev.UserID); err != nil {
		log.Warn().Err(err).Str("user", ev.UserID).Str("identifier", Identifier(ev.Table, uid)).Msg("could not track opened record")
		disposition = DispositionFailed
	}
	l.raise(ctx, ev.UserID)
	return l.done("opened", disposition)
}

// RecordSaved only refreshes the UI, and only for records the user tracks.
func (l *Listener) RecordSaved(ctx context.Context, ev RecordEvent) Disposition {
	uid, ok := l.accept(ev)
	if !ok {
		return l.done("saved", DispositionIgnored)
	}
	uid = l.resolveLiveID(ctx, ev.Table, uid)

	tracked, err := l.store.Contains(ctx, Identifier(ev.Table, uid), ev.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user", ev.UserID).Str("identifier", Identifier(ev.Table, uid)).Msg("could not check saved record")
		return l.done("saved", DispositionFailed)
	}
	if !tracked {
		return l.done("saved", DispositionUntracked)
	}
	l.raise(ctx, ev.UserID)
	return l.done("saved", DispositionApplied)
}

// RecordDeleted untracks the record and always raises the update signal.
func (l *Listener) RecordDeleted(ctx context.Context, ev RecordEvent) Disposition {
	uid, ok := l.accept(ev)
	if !ok {
		return l.done("deleted", DispositionIgnored)
	}
	uid = l.resolveLiveID(ctx, ev.Table, uid)

	disposition := DispositionApplied
	if err := l.store.Remove(ctx, Identifier(ev.Table, uid), ev.UserID); err != nil {
		log.Warn().Err(err).Str("user", ev.UserID).Str("identifier", Identifier(ev.Table, uid)).Msg("could not untrack deleted record")
		disposition = DispositionFailed
	}
	l.raise(ctx, ev.UserID)
	return l.done("deleted", disposition)
}

// accept applies the context filter: backend application, a user, a table
// and a persisted numeric id.
func (l *Listener) accept(ev RecordEvent) (int64, bool) {
	if ev.Application != ApplicationBackend || ev.UserID == "" || strings.TrimSpace(ev.Table) == "" {
		return 0, false
	}
	return parsePersistedID(ev.ID)
}

func parsePersistedID(id string) (int64, bool) {
	if id == "" {
		return 0, false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	uid, err := strconv.ParseInt(id, 10, 64)
	if err != nil || uid <= 0 {
		return 0, false
	}
	return uid, true
}

func (l *Listener) resolveLiveID(ctx context.Context, table string, uid int64) int64 {
	if l.resolver == nil {
		return uid
	}
	live, ok, err := l.resolver.ResolveLiveID(ctx, table, uid)
	if err != nil {
		log.Debug().Err(err).Str("table", table).Int64("uid", uid).Msg("live id resolution failed, keeping original id")
		return uid
	}
	if !ok || live <= 0 {
		return uid
	}
	return live
}

func (l *Listener) raise(ctx context.Context, userID string) {
	if err := l.signal.Raise(ctx, userID); err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("could not raise update signal")
	}
}

func (l *Listener) done(event string, d Disposition) Disposition {
	listenerEvents.WithLabelValues(event, string(d)).Inc()
	return d
}
