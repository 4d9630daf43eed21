package opendocs

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type mapResolver map[string]int64

func (m mapResolver) ResolveLiveID(_ context.Context, table string, id int64) (int64, bool, error) {
	if table == "broken" {
		return 0, false, errors.New("resolver exploded")
	}
	live, ok := m[Identifier(table, id)]
	return live, ok, nil
}

func newTestListener(t *testing.T, opts ...ListenerOption) (*Listener, *Repository, *RecordingSignal) {
	t.Helper()
	repo, _ := newTestRepository(t, newMapStore())
	signal := &RecordingSignal{}
	l, err := NewListener(repo, append([]ListenerOption{WithUpdateSignal(signal)}, opts...)...)
	require.NoError(t, err)
	return l, repo, signal
}

func backendEvent(table, id string) RecordEvent {
	return RecordEvent{UserID: "u1", Application: ApplicationBackend, Table: table, ID: id}
}

func TestListener_OpenedTracksAndSignals(t *testing.T) {
	ctx := context.Background()
	l, repo, signal := newTestListener(t)

	require.Equal(t, DispositionApplied, l.RecordOpened(ctx, backendEvent("pages", "12")))
	docs, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"pages:12"}, identifiers(docs))
	require.Equal(t, []string{"u1"}, signal.Users())
}

func TestListener_FiltersEvents(t *testing.T) {
	ctx := context.Background()
	l, repo, signal := newTestListener(t)

	rejected := []RecordEvent{
		{UserID: "u1", Application: ApplicationFrontend, Table: "pages", ID: "1"},
		{UserID: "u1", Application: ApplicationCLI, Table: "pages", ID: "1"},
		{UserID: "", Application: ApplicationBackend, Table: "pages", ID: "1"},
		backendEvent("", "1"),
		backendEvent("  ", "1"),
		backendEvent("pages", "NEW123"),
		backendEvent("pages", "NEW64f1a"),
		backendEvent("pages", "0"),
		backendEvent("pages", "-4"),
		backendEvent("pages", "+4"),
		backendEvent("pages", "1.5"),
		backendEvent("pages", ""),
	}
	for _, ev := range rejected {
		require.Equal(t, DispositionIgnored, l.RecordOpened(ctx, ev), "%+v", ev)
		require.Equal(t, DispositionIgnored, l.RecordSaved(ctx, ev), "%+v", ev)
		require.Equal(t, DispositionIgnored, l.RecordDeleted(ctx, ev), "%+v", ev)
	}
	docs, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, docs)
	require.Zero(t, signal.Count())
}

func TestListener_ResolvesLiveID(t *testing.T) {
	ctx := context.Background()
	l, repo, _ := newTestListener(t, WithLiveIDResolver(mapResolver{"pages:501": 5}))

	l.RecordOpened(ctx, backendEvent("pages", "501"))
	l.RecordOpened(ctx, backendEvent("pages", "7"))
	l.RecordOpened(ctx, backendEvent("broken", "3"))

	docs, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"pages:5", "pages:7", "broken:3"}, identifiers(docs))
}

func TestListener_SavedSignalsOnlyTracked(t *testing.T) {
	ctx := context.Background()
	l, _, signal := newTestListener(t, WithLiveIDResolver(mapResolver{"pages:900": 9}))

	require.Equal(t, DispositionUntracked, l.RecordSaved(ctx, backendEvent("pages", "9")))
	require.Zero(t, signal.Count())

	l.RecordOpened(ctx, backendEvent("pages", "9"))
	require.Equal(t, 1, signal.Count())

	require.Equal(t, DispositionApplied, l.RecordSaved(ctx, backendEvent("pages", "900")))
	require.Equal(t, 2, signal.Count())
}

func TestListener_DeletedUntracksAndSignals(t *testing.T) {
	ctx := context.Background()
	l, repo, signal := newTestListener(t)

	l.RecordOpened(ctx, backendEvent("pages", "1"))
	l.RecordOpened(ctx, backendEvent("pages", "2"))
	require.Equal(t, DispositionApplied, l.RecordDeleted(ctx, backendEvent("pages", "1")))
	require.Equal(t, DispositionApplied, l.RecordDeleted(ctx, backendEvent("pages", "77")))

	docs, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"pages:2"}, identifiers(docs))
	require.Equal(t, 4, signal.Count())
}

func TestListener_StoreFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	repo, _ := newTestRepository(t, store)
	failing := SignalFunc(func(context.Context, string) error { return errors.New("bus down") })
	l, err := NewListener(repo, WithUpdateSignal(failing))
	require.NoError(t, err)

	store.setErr = errStoreDown
	require.Equal(t, DispositionFailed, l.RecordOpened(ctx, backendEvent("pages", "1")))
	store.getErr = errStoreDown
	require.Equal(t, DispositionFailed, l.RecordSaved(ctx, backendEvent("pages", "1")))
	require.Equal(t, DispositionFailed, l.RecordDeleted(ctx, backendEvent("pages", "1")))
}

func TestNewListener_Validation(t *testing.T) {
	_, err := NewListener(nil)
	require.Error(t, err)

	repo, _ := newTestRepository(t, newMapStore())
	_, err = NewListener(repo, WithUpdateSignal(nil))
	require.Error(t, err)
}
