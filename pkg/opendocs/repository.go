package opendocs

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// MaxRecent bounds the recency list of a single user.
	MaxRecent = 8
	// SessionKey is the per-user session slot holding the recency mapping.
	SessionKey = "opendocs::recent"
)

// SessionStore is the per-user key-value session capability the repository
// persists through. Get reports ok=false for an absent value.
type SessionStore interface {
	Get(ctx context.Context, userID, key string) ([]byte, bool, error)
	Set(ctx context.Context, userID, key string, value []byte) error
}

// Repository is the recency store. It holds no per-user state of its own;
// every call loads and persists through the SessionStore.
type Repository struct {
	store     SessionStore
	now       func() time.Time
	key       string
	maxRecent int
}

type RepositoryOption func(*Repository) error

func WithClock(now func() time.Time) RepositoryOption {
	return func(r *Repository) error {
		if now == nil {
			return errors.New("opendocs: clock is nil")
		}
		r.now = now
		return nil
	}
}

func WithSessionKey(key string) RepositoryOption {
	return func(r *Repository) error {
		if key == "" {
			return errors.New("opendocs: session key is empty")
		}
		r.key = key
		return nil
	}
}

// WithMaxRecent overrides the capacity. Anything below one is rejected.
func WithMaxRecent(n int) RepositoryOption {
	return func(r *Repository) error {
		if n < 1 {
			return errors.Errorf("opendocs: invalid capacity %d", n)
		}
		r.maxRecent = n
		return nil
	}
}

func NewRepository(store SessionStore, opts ...RepositoryOption) (*Repository, error) {
	if store == nil {
		return nil, errors.New("opendocs: session store is nil")
	}
	r := &Repository{
		store:     store,
		now:       time.Now,
		key:       SessionKey,
		maxRecent: MaxRecent,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// List returns the user's documents, most recent first, at most MaxRecent of
// them. Legacy or malformed persisted data is migrated and written back first.
func (r *Repository) List(ctx context.Context, userID string) ([]Document, error) {
	entries, _, err := r.loadMigrated(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	docs := r.sorted(entries)
	if len(docs) > r.maxRecent {
		docs = docs[:r.maxRecent]
	}
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.doc)
	}
	return out, nil
}

// Contains reports whether identifier is part of the user's visible list.
func (r *Repository) Contains(ctx context.Context, identifier, userID string) (bool, error) {
	docs, err := r.List(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, d := range docs {
		if d.Identifier() == identifier {
			return true, nil
		}
	}
	return false, nil
}

// Add opens or re-opens table:uid for the user with a fresh timestamp,
// evicting the oldest entries beyond capacity. The result is always persisted.
func (r *Repository) Add(ctx context.Context, table string, uid int64, userID string) error {
	entries, report, err := r.loadMigrated(ctx, userID, false)
	if err != nil {
		return err
	}

	doc := Document{Table: table, UID: uid, UpdatedAt: r.now()}
	b, err := doc.MarshalEntry()
	if err != nil {
		return err
	}

	// The new entry goes first so the stable sort lets it win timestamp ties.
	next := NewEntries()
	next.Set(doc.Identifier(), b)
	for pair := entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == doc.Identifier() {
			continue
		}
		next.Set(pair.Key, pair.Value)
	}

	docs := r.sorted(next)
	evicted := 0
	if len(docs) > r.maxRecent {
		evicted = len(docs) - r.maxRecent
		docs = docs[:r.maxRecent]
	}
	capped := NewEntries()
	for _, d := range docs {
		capped.Set(d.key, d.raw)
	}
	if evicted > 0 {
		documentsEvicted.Add(float64(evicted))
		log.Debug().Str("user", userID).Int("evicted", evicted).Msg("evicted oldest recent documents")
	}
	return r.persistMigrated(ctx, userID, capped, report)
}

// Remove deletes identifier from the user's list. Removing an absent
// identifier is not an error; the mapping is persisted either way.
func (r *Repository) Remove(ctx context.Context, identifier, userID string) error {
	entries, report, err := r.loadMigrated(ctx, userID, false)
	if err != nil {
		return err
	}
	entries.Delete(identifier)
	return r.persistMigrated(ctx, userID, entries, report)
}

// MigrateUser runs the migration pass for one user and reports what it did.
// With dryRun the persisted data is left untouched.
func (r *Repository) MigrateUser(ctx context.Context, userID string, dryRun bool) (MigrationReport, error) {
	_, report, err := r.loadMigrated(ctx, userID, !dryRun)
	return report, err
}

type keyedDocument struct {
	key string
	raw json.RawMessage
	doc Document
}

func (r *Repository) sorted(entries *Entries) []keyedDocument {
	docs := make([]keyedDocument, 0, entries.Len())
	for pair := entries.Oldest(); pair != nil; pair = pair.Next() {
		doc, err := DeserializeDocument(pair.Value, r.now)
		if err != nil {
			log.Debug().Err(err).Str("key", pair.Key).Msg("skipping undecodable recent document")
			continue
		}
		docs = append(docs, keyedDocument{key: pair.Key, raw: pair.Value, doc: doc})
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].doc.UpdatedAt.After(docs[j].doc.UpdatedAt)
	})
	return docs
}

// loadMigrated reads the user's mapping and migrates it. A missing value is
// an empty mapping; a value that is not a JSON object is an empty mapping that
// counts as changed. When writeBack is set, a changed mapping is persisted.
func (r *Repository) loadMigrated(ctx context.Context, userID string, writeBack bool) (*Entries, MigrationReport, error) {
	raw, ok, err := r.store.Get(ctx, userID, r.key)
	if err != nil {
		return nil, MigrationReport{}, errors.Wrap(err, "opendocs: load recent documents")
	}

	in := NewEntries()
	corrupt := false
	if ok && !isNull(raw) {
		if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, in) != nil {
			in = NewEntries()
			corrupt = true
		}
	}

	out, report := Migrate(in, r.now)
	if corrupt {
		report.Changed = true
	}

	if report.Changed && writeBack {
		log.Info().
			Str("user", userID).
			Int("kept", report.Kept).
			Int("salvaged", report.Salvaged).
			Int("discarded", report.Discarded).
			Msg("migrated recent documents")
		if err := r.persistMigrated(ctx, userID, out, report); err != nil {
			return nil, report, err
		}
	}
	return out, report, nil
}

// persistMigrated writes entries and, once the write succeeded, accounts for
// the migration that produced them.
func (r *Repository) persistMigrated(ctx context.Context, userID string, entries *Entries, report MigrationReport) error {
	if err := r.persist(ctx, userID, entries); err != nil {
		return err
	}
	if report.Changed {
		observeMigration(report)
	}
	return nil
}

func (r *Repository) persist(ctx context.Context, userID string, entries *Entries) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "opendocs: encode recent documents")
	}
	if err := r.store.Set(ctx, userID, r.key, b); err != nil {
		return errors.Wrap(err, "opendocs: persist recent documents")
	}
	storeWrites.Inc()
	return nil
}
