package opendocs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeLookup map[string]Record

func (f fakeLookup) LookupRecord(_ context.Context, table string, uid int64) (Record, error) {
	if table == "tx_removed" {
		return Record{}, errors.Wrap(ErrTableNotFound, table)
	}
	rec, ok := f[Identifier(table, uid)]
	if !ok {
		return Record{}, errors.Wrap(ErrRecordNotFound, Identifier(table, uid))
	}
	return rec, nil
}

type fakeBreadcrumbs struct{}

func (fakeBreadcrumbs) Breadcrumb(_ context.Context, rec Record) ([]BreadcrumbNode, error) {
	if rec.Table == "tt_content" {
		return nil, errors.New("rootline broken")
	}
	return []BreadcrumbNode{
		{Identifier: "pages:1", Label: "Root", Icon: "apps-pagetree-root", Table: "pages", UID: 1},
		{Identifier: "folder:/", Label: "fileadmin", Icon: "apps-filetree-folder", URL: "/typo3/file?id=1:/"},
	}, nil
}

func TestEnricher_Enrich(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lookup := fakeLookup{
		"pages:10":     {Table: "pages", UID: 10, Title: "<b>Home</b> &amp; more", Icon: "apps-pagetree-page", Overlay: "overlay-hidden"},
		"pages:20":     {Table: "pages", UID: 2001, LiveUID: 20, Title: "Draft"},
		"tt_content:3": {Table: "tt_content", UID: 3, Title: "<p></p>"},
	}
	e, err := NewEnricher(lookup, WithBreadcrumbBuilder(fakeBreadcrumbs{}))
	require.NoError(t, err)

	docs := []Document{
		{Table: "pages", UID: 10, UpdatedAt: at},
		{Table: "pages", UID: 404, UpdatedAt: at},
		{Table: "pages", UID: 20, UpdatedAt: at},
		{Table: "tx_removed", UID: 1, UpdatedAt: at},
		{Table: "tt_content", UID: 3, UpdatedAt: at},
	}
	results := e.Enrich(ctx, docs)
	require.Len(t, results, 5)

	require.True(t, results[1].Omitted)
	require.ErrorIs(t, results[1].Reason, ErrRecordNotFound)
	require.True(t, results[3].Omitted)
	require.ErrorIs(t, results[3].Reason, ErrTableNotFound)

	visible := Visible(results)
	require.Len(t, visible, 3)

	home := visible[0]
	require.Equal(t, "pages:10", home.Identifier)
	require.Equal(t, "Home &amp; more", home.Title)
	require.Equal(t, "/typo3/record/edit?edit%5Bpages%5D%5B10%5D=edit", home.URI)
	require.Equal(t, "apps-pagetree-page", home.IconIdentifier)
	require.Equal(t, "overlay-hidden", home.IconOverlayIdentifier)
	require.Equal(t, "2024-05-01T12:00:00+00:00", home.UpdatedAt)
	require.Len(t, home.Breadcrumb, 2)
	require.Equal(t, "/typo3/record/edit?edit%5Bpages%5D%5B1%5D=edit", home.Breadcrumb[0].URL)
	require.Equal(t, "/typo3/file?id=1:/", home.Breadcrumb[1].URL)

	draft := visible[1]
	require.Equal(t, "pages:20", draft.Identifier)
	require.Equal(t, "/typo3/record/edit?edit%5Bpages%5D%5B2001%5D=edit", draft.URI)
	require.Equal(t, DefaultIconIdentifier, draft.IconIdentifier)

	content := visible[2]
	require.Equal(t, NoTitle, content.Title)
	require.NotNil(t, content.Breadcrumb)
	require.Empty(t, content.Breadcrumb)

	b, err := json.Marshal(content)
	require.NoError(t, err)
	require.Contains(t, string(b), `"breadcrumb":[]`)
}

func TestEnricher_StripTitleKeepsEntities(t *testing.T) {
	e, err := NewEnricher(fakeLookup{})
	require.NoError(t, err)

	for _, tc := range []struct {
		in   string
		want string
	}{
		{"&lt;script&gt;alert(1)&lt;/script&gt;", "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{"Tom & Jerry", "Tom & Jerry"},
		{`<em>"Quoted"</em> it's`, `"Quoted" it's`},
		{"<b>Caf&eacute;</b>", "Caf&eacute;"},
		{"a < b", "a < b"},
		{"  <br/>  ", NoTitle},
	} {
		require.Equal(t, tc.want, e.stripTitle(tc.in), tc.in)
	}
}

func TestEditRoute(t *testing.T) {
	uri, err := EditRoute("/edit").EditURI("sys_file_metadata", 4)
	require.NoError(t, err)
	require.Equal(t, "/edit?edit%5Bsys_file_metadata%5D%5B4%5D=edit", uri)

	_, err = EditRoute("/edit").EditURI("", 4)
	require.Error(t, err)
}
