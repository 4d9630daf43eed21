package opendocs

import (
	"context"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Record is what a record lookup returns for one tracked document.
// UID is the uid of the row actually fetched, which is the workspace overlay
// when one exists.
type Record struct {
	Table      string `json:"table" yaml:"table"`
	UID        int64  `json:"uid" yaml:"uid"`
	LiveUID    int64  `json:"liveUid,omitempty" yaml:"liveUid,omitempty"`
	PID        int64  `json:"pid,omitempty" yaml:"pid,omitempty"`
	Title      string `json:"title" yaml:"title"`
	Icon       string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Overlay    string `json:"overlay,omitempty" yaml:"overlay,omitempty"`
	File       int64  `json:"file,omitempty" yaml:"file,omitempty"`
	Identifier string `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Deleted    bool   `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// RecordLookup fetches a tracked record. It returns an error matching
// ErrTableNotFound or ErrRecordNotFound when the record is gone.
type RecordLookup interface {
	LookupRecord(ctx context.Context, table string, uid int64) (Record, error)
}

type IconResolver interface {
	ResolveIcon(ctx context.Context, rec Record) (icon string, overlay string, err error)
}

type BreadcrumbBuilder interface {
	Breadcrumb(ctx context.Context, rec Record) ([]BreadcrumbNode, error)
}

type URIBuilder interface {
	EditURI(table string, uid int64) (string, error)
}

// BreadcrumbNode is one step of a record's location. Nodes pointing at an
// editable record carry Table and UID; the enricher fills URL for them.
type BreadcrumbNode struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Label      string `json:"label" yaml:"label"`
	Icon       string `json:"icon" yaml:"icon"`
	URL        string `json:"url" yaml:"url"`
	Table      string `json:"-" yaml:"-"`
	UID        int64  `json:"-" yaml:"-"`
}

// EnrichedDocument is the listing representation of a tracked document.
type EnrichedDocument struct {
	Identifier            string           `json:"identifier" yaml:"identifier"`
	Title                 string           `json:"title" yaml:"title"`
	URI                   string           `json:"uri" yaml:"uri"`
	IconIdentifier        string           `json:"iconIdentifier" yaml:"iconIdentifier"`
	IconOverlayIdentifier string           `json:"iconOverlayIdentifier" yaml:"iconOverlayIdentifier"`
	Breadcrumb            []BreadcrumbNode `json:"breadcrumb" yaml:"breadcrumb"`
	UpdatedAt             string           `json:"updatedAt" yaml:"updatedAt"`
}

// EnrichResult is the outcome for one document: either Document is set, or
// the entry is omitted with Reason.
type EnrichResult struct {
	Document EnrichedDocument
	Omitted  bool
	Reason   error
}

// EditRoute builds <route>?edit[<table>][<uid>]=edit.
type EditRoute string

const DefaultEditRoute EditRoute = "/typo3/record/edit"

func (r EditRoute) EditURI(table string, uid int64) (string, error) {
	if table == "" || uid <= 0 {
		return "", errors.Errorf("opendocs: cannot build edit uri for %s", Identifier(table, uid))
	}
	q := url.Values{}
	q.Set("edit["+table+"]["+strconv.FormatInt(uid, 10)+"]", "edit")
	return string(r) + "?" + q.Encode(), nil
}

// RecordIcons reads icon identifiers straight off the record.
type RecordIcons struct{}

const DefaultIconIdentifier = "default-not-found"

func (RecordIcons) ResolveIcon(_ context.Context, rec Record) (string, string, error) {
	icon := rec.Icon
	if icon == "" {
		icon = DefaultIconIdentifier
	}
	return icon, rec.Overlay, nil
}

type Enricher struct {
	lookup      RecordLookup
	icons       IconResolver
	breadcrumbs BreadcrumbBuilder
	uris        URIBuilder
	titles      *bluemonday.Policy
}

type EnricherOption func(*Enricher) error

func WithIconResolver(icons IconResolver) EnricherOption {
	return func(e *Enricher) error {
		if icons == nil {
			return errors.New("opendocs: icon resolver is nil")
		}
		e.icons = icons
		return nil
	}
}

func WithBreadcrumbBuilder(b BreadcrumbBuilder) EnricherOption {
	return func(e *Enricher) error {
		e.breadcrumbs = b
		return nil
	}
}

func WithURIBuilder(u URIBuilder) EnricherOption {
	return func(e *Enricher) error {
		if u == nil {
			return errors.New("opendocs: uri builder is nil")
		}
		e.uris = u
		return nil
	}
}

func NewEnricher(lookup RecordLookup, opts ...EnricherOption) (*Enricher, error) {
	if lookup == nil {
		return nil, errors.New("opendocs: record lookup is nil")
	}
	e := &Enricher{
		lookup: lookup,
		icons:  RecordIcons{},
		uris:   DefaultEditRoute,
		titles: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Enrich resolves every document independently. Results keep the input order.
func (e *Enricher) Enrich(ctx context.Context, docs []Document) []EnrichResult {
	results := make([]EnrichResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, e.enrichOne(ctx, doc))
	}
	return results
}

// Visible drops omitted results.
func Visible(results []EnrichResult) []EnrichedDocument {
	out := make([]EnrichedDocument, 0, len(results))
	for _, r := range results {
		if !r.Omitted {
			out = append(out, r.Document)
		}
	}
	return out
}

func (e *Enricher) enrichOne(ctx context.Context, doc Document) EnrichResult {
	identifier := doc.Identifier()
	rec, err := e.lookup.LookupRecord(ctx, doc.Table, doc.UID)
	if err != nil {
		reason := "lookup_failed"
		switch {
		case errors.Is(err, ErrTableNotFound):
			reason = "table_not_found"
		case errors.Is(err, ErrRecordNotFound):
			reason = "record_not_found"
		}
		enrichmentOmitted.WithLabelValues(reason).Inc()
		log.Debug().Err(err).Str("identifier", identifier).Msg("omitting recent document from listing")
		return EnrichResult{Omitted: true, Reason: err}
	}

	uid := rec.UID
	if uid <= 0 {
		uid = doc.UID
	}
	uri, err := e.uris.EditURI(doc.Table, uid)
	if err != nil {
		enrichmentOmitted.WithLabelValues("uri_failed").Inc()
		return EnrichResult{Omitted: true, Reason: err}
	}

	out := EnrichedDocument{
		Identifier: identifier,
		Title:      e.stripTitle(rec.Title),
		URI:        uri,
		Breadcrumb: []BreadcrumbNode{},
		UpdatedAt:  doc.UpdatedAt.Format(TimestampLayout),
	}
	if icon, overlay, err := e.icons.ResolveIcon(ctx, rec); err == nil {
		out.IconIdentifier = icon
		out.IconOverlayIdentifier = overlay
	} else {
		log.Debug().Err(err).Str("identifier", identifier).Msg("icon resolution failed")
	}
	if e.breadcrumbs != nil {
		nodes, err := e.breadcrumbs.Breadcrumb(ctx, rec)
		if err != nil {
			log.Debug().Err(err).Str("identifier", identifier).Msg("breadcrumb failed")
		} else if nodes != nil {
			out.Breadcrumb = e.linkNodes(nodes)
		}
	}
	return EnrichResult{Document: out}
}

func (e *Enricher) linkNodes(nodes []BreadcrumbNode) []BreadcrumbNode {
	for i := range nodes {
		if nodes[i].URL != "" || nodes[i].Table == "" || nodes[i].UID <= 0 {
			continue
		}
		if u, err := e.uris.EditURI(nodes[i].Table, nodes[i].UID); err == nil {
			nodes[i].URL = u
		}
	}
	return nodes
}

// NoTitle stands in for records whose title is empty after stripping.
const NoTitle = "[No title]"

// entityGuard hides ampersands from the sanitizer so entities already in a
// title survive; only what the sanitizer escaped itself is unescaped.
const entityGuard = "\uE000"

func (e *Enricher) stripTitle(title string) string {
	if strings.Contains(title, entityGuard) {
		title = strings.ReplaceAll(title, entityGuard, "")
	}
	guarded := strings.ReplaceAll(title, "&", entityGuard)
	stripped := html.UnescapeString(e.titles.Sanitize(guarded))
	stripped = strings.TrimSpace(strings.ReplaceAll(stripped, entityGuard, "&"))
	if stripped == "" {
		return NoTitle
	}
	return stripped
}
