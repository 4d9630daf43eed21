package cmds

import (
	"github.com/pkg/errors"

	"github.com/go-go-golems/opendocs/pkg/opendocs"
	"github.com/go-go-golems/opendocs/pkg/persistence/sessionstore"
	"github.com/go-go-golems/opendocs/pkg/records"
)

// app holds the stores a command works with.
type app struct {
	settings AppSettings
	store    sessionstore.Store
	catalog  *records.Catalog
	repo     *opendocs.Repository
}

func openApp(s AppSettings) (*app, error) {
	store, err := sessionstore.Open(s.SessionDSN)
	if err != nil {
		return nil, errors.Wrap(err, "open session store")
	}
	a := &app{settings: s, store: store}

	if s.CatalogDSN != "" {
		var opts []records.CatalogOption
		if s.FileListRoute != "" {
			opts = append(opts, records.WithFileListRoute(s.FileListRoute))
		}
		catalog, err := records.Open(s.CatalogDSN, opts...)
		if err != nil {
			_ = store.Close()
			return nil, errors.Wrap(err, "open record catalog")
		}
		a.catalog = catalog
	}

	repo, err := opendocs.NewRepository(store)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.repo = repo
	return a, nil
}

func (a *app) lookup() opendocs.RecordLookup {
	if a.catalog == nil {
		return records.None{}
	}
	return a.catalog
}

func (a *app) liveIDs() opendocs.LiveIDResolver {
	if a.catalog == nil {
		return records.None{}
	}
	return a.catalog
}

func (a *app) enricher() (*opendocs.Enricher, error) {
	route := opendocs.DefaultEditRoute
	if a.settings.EditRoute != "" {
		route = opendocs.EditRoute(a.settings.EditRoute)
	}
	opts := []opendocs.EnricherOption{opendocs.WithURIBuilder(route)}
	if a.catalog != nil {
		opts = append(opts,
			opendocs.WithBreadcrumbBuilder(a.catalog),
			opendocs.WithIconResolver(a.catalog),
		)
	}
	return opendocs.NewEnricher(a.lookup(), opts...)
}

func (a *app) Close() error {
	var first error
	if a.catalog != nil {
		first = a.catalog.Close()
	}
	if err := a.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
