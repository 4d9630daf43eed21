package opendocs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var migrationNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func entriesFrom(t *testing.T, raw string) *Entries {
	t.Helper()
	e := NewEntries()
	require.NoError(t, json.Unmarshal([]byte(raw), e))
	return e
}

func encodeEntries(t *testing.T, e *Entries) string {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return string(b)
}

func TestClassifyEntry(t *testing.T) {
	require.IsType(t, CurrentFormat{}, ClassifyEntry(json.RawMessage(`{"table":"pages","uid":1}`)))
	require.IsType(t, CurrentFormat{}, ClassifyEntry(json.RawMessage(`{"table":"","uid":1}`)))
	require.IsType(t, LegacyFormat{}, ClassifyEntry(json.RawMessage(`["Home",{"edit":{"pages":{"1":"edit"}}},"",{},""]`)))
	require.IsType(t, LegacyFormat{}, ClassifyEntry(json.RawMessage(`{"0":"Home","1":{"edit":{"pages":{"1":"edit"}}}}`)))
	require.IsType(t, LegacyFormat{}, ClassifyEntry(json.RawMessage(`{"table":null}`)))
	require.IsType(t, Unrecognized{}, ClassifyEntry(json.RawMessage(`"pages:1"`)))
	require.IsType(t, Unrecognized{}, ClassifyEntry(json.RawMessage(`42`)))
	require.IsType(t, Unrecognized{}, ClassifyEntry(json.RawMessage(`null`)))
	require.IsType(t, Unrecognized{}, ClassifyEntry(json.RawMessage(`{broken`)))
}

func TestDecodeLegacy_EditParams(t *testing.T) {
	entry := ClassifyEntry(json.RawMessage(`["Home",{"edit":{"pages":{"123":"edit"}}},"edit[pages][123]=edit",{},"/typo3"]`))
	legacy, ok := entry.(LegacyFormat)
	require.True(t, ok)
	require.Equal(t, "Home", legacy.Title())

	doc, err := DecodeLegacy(legacy, fixedClock(migrationNow))
	require.NoError(t, err)
	require.Equal(t, "pages", doc.Table)
	require.Equal(t, int64(123), doc.UID)
	require.True(t, doc.UpdatedAt.Equal(migrationNow))
}

func TestDecodeLegacy_FirstPairWins(t *testing.T) {
	legacy := ClassifyEntry(json.RawMessage(`["x",{"edit":{"tt_content":{"9":"edit","3":"edit"},"pages":{"1":"edit"}}}]`)).(LegacyFormat)
	doc, err := DecodeLegacy(legacy, fixedClock(migrationNow))
	require.NoError(t, err)
	require.Equal(t, "tt_content:9", doc.Identifier())
}

func TestDecodeLegacy_MetadataFallback(t *testing.T) {
	legacy := ClassifyEntry(json.RawMessage(`["x",{},"",{"table":"sys_file","uid":"12","updatedAt":"2022-04-05T06:07:08+00:00"}]`)).(LegacyFormat)
	doc, err := DecodeLegacy(legacy, fixedClock(migrationNow))
	require.NoError(t, err)
	require.Equal(t, "sys_file:12", doc.Identifier())
	require.True(t, doc.UpdatedAt.Equal(time.Date(2022, 4, 5, 6, 7, 8, 0, time.UTC)))

	// the edit params give a table but an unusable uid
	legacy = ClassifyEntry(json.RawMessage(`["x",{"edit":{"pages":{"NEW1":"new"}}},"",{"uid":4}]`)).(LegacyFormat)
	doc, err = DecodeLegacy(legacy, fixedClock(migrationNow))
	require.NoError(t, err)
	require.Equal(t, "pages:4", doc.Identifier())
}

func TestDecodeLegacy_Unsalvageable(t *testing.T) {
	cases := []string{
		`["x",{"edit":{"":{"1":"edit"}}}]`,
		`["x",{},"",{"table":""}]`,
		`["x"]`,
		`[]`,
		`["x",{"edit":{"pages":{}}}]`,
	}
	for _, raw := range cases {
		legacy := ClassifyEntry(json.RawMessage(raw)).(LegacyFormat)
		_, err := DecodeLegacy(legacy, fixedClock(migrationNow))
		require.ErrorIs(t, err, ErrMalformedDocument, raw)
	}
}

func TestMigrate_SalvagesAndDiscards(t *testing.T) {
	in := entriesFrom(t, `{
		"legacy-key": ["Home",{"edit":{"pages":{"123":"edit"}}},"",{},""],
		"broken": ["Empty",{"edit":{"":{"5":"edit"}}},"",{},""],
		"scalar": "pages:9",
		"tt_content:2": {"table":"tt_content","uid":"2"},
		"empty": {"table":"","uid":5}
	}`)

	out, report := Migrate(in, fixedClock(migrationNow))
	require.True(t, report.Changed)
	require.Equal(t, 1, report.Kept)
	require.Equal(t, 1, report.Salvaged)
	require.Equal(t, 3, report.Discarded)

	require.Equal(t, 2, out.Len())
	keys := []string{}
	for p := out.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	require.Equal(t, []string{"pages:123", "tt_content:2"}, keys)

	v, ok := out.Get("tt_content:2")
	require.True(t, ok)
	require.JSONEq(t, `{"table":"tt_content","uid":2,"updatedAt":"2024-06-01T09:30:00+00:00"}`, string(v))
}

func TestMigrate_Idempotent(t *testing.T) {
	in := entriesFrom(t, `{
		"a": ["Home",{"edit":{"pages":{"1":"edit"}}}],
		"b": {"table":"pages","uid":"2"},
		"c": {"0":"Obj","1":{"edit":{"tt_content":{"3":"edit"}}}},
		"d": 7
	}`)

	once, _ := Migrate(in, fixedClock(migrationNow))
	twice, report := Migrate(once, fixedClock(migrationNow.Add(time.Hour)))
	require.False(t, report.Changed)
	require.Equal(t, encodeEntries(t, once), encodeEntries(t, twice))
}

func TestMigrate_NoopOnCurrentFormat(t *testing.T) {
	in := entriesFrom(t, `{
		"pages:1": {"table":"pages","uid":1,"updatedAt":"2024-01-01T10:00:00+00:00"},
		"pages:2": {"table":"pages","uid":2,"updatedAt":"2024-01-02T10:00:00+01:00"}
	}`)
	out, report := Migrate(in, fixedClock(migrationNow))
	require.False(t, report.Changed)
	require.Equal(t, 2, report.Kept)
	require.Equal(t, encodeEntries(t, in), encodeEntries(t, out))
}

func TestMigrate_LegacyCollisionLastWins(t *testing.T) {
	in := entriesFrom(t, `{
		"x": ["First",{"edit":{"pages":{"1":"edit"}}},"",{"updatedAt":"2020-01-01T00:00:00+00:00"}],
		"y": ["Second",{"edit":{"pages":{"1":"edit"}}},"",{"updatedAt":"2021-01-01T00:00:00+00:00"}]
	}`)
	out, report := Migrate(in, fixedClock(migrationNow))
	require.Equal(t, 2, report.Salvaged)
	require.Equal(t, 1, out.Len())
	v, ok := out.Get("pages:1")
	require.True(t, ok)
	require.Contains(t, string(v), "2021-01-01T00:00:00+00:00")
}
