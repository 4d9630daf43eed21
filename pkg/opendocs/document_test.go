package opendocs

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDocument_Identifier(t *testing.T) {
	d := Document{Table: "tt_content", UID: 2}
	require.Equal(t, "tt_content:2", d.Identifier())
	require.Equal(t, "pages:10", Identifier("pages", 10))
}

func TestDocument_RoundTrip(t *testing.T) {
	tz := time.FixedZone("CET", 3600)
	docs := []Document{
		{Table: "pages", UID: 42, UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, tz)},
		{Table: "tt_content", UID: 7, UpdatedAt: time.Date(2023, 12, 31, 23, 59, 59, 123456000, time.UTC)},
	}
	for _, d := range docs {
		raw, err := d.MarshalEntry()
		require.NoError(t, err)
		back, err := DeserializeDocument(raw, nil)
		require.NoError(t, err)
		require.True(t, d.Equal(back), "round trip of %s", d.Identifier())

		again, err := back.MarshalEntry()
		require.NoError(t, err)
		require.JSONEq(t, string(raw), string(again))
	}
}

func TestDocument_SerializeFormat(t *testing.T) {
	d := Document{Table: "pages", UID: 42, UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	raw, err := d.MarshalEntry()
	require.NoError(t, err)
	require.Equal(t, `{"table":"pages","uid":42,"updatedAt":"2024-03-01T10:00:00+00:00"}`, string(raw))
}

func TestDeserializeDocument_Coercion(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	d, err := DeserializeDocument(json.RawMessage(`{"table":"pages","uid":"17","updatedAt":"2024-02-02T08:00:00+02:00","extra":true}`), fixedClock(now))
	require.NoError(t, err)
	require.Equal(t, int64(17), d.UID)
	require.Equal(t, "pages", d.Table)
	require.True(t, d.UpdatedAt.Equal(time.Date(2024, 2, 2, 6, 0, 0, 0, time.UTC)))

	d, err = DeserializeDocument(json.RawMessage(`{"table":"pages","uid":5}`), fixedClock(now))
	require.NoError(t, err)
	require.True(t, d.UpdatedAt.Equal(now))

	d, err = DeserializeDocument(json.RawMessage(`{"table":"pages","uid":5.0,"updatedAt":"2024-02-02 08:00:00"}`), fixedClock(now))
	require.NoError(t, err)
	require.Equal(t, int64(5), d.UID)
	require.Equal(t, 2024, d.UpdatedAt.Year())
}

func TestDeserializeDocument_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty table":     `{"table":"","uid":1}`,
		"missing table":   `{"uid":1}`,
		"zero uid":        `{"table":"pages","uid":0}`,
		"negative uid":    `{"table":"pages","uid":-3}`,
		"non numeric uid": `{"table":"pages","uid":"abc"}`,
		"fractional uid":  `{"table":"pages","uid":1.5}`,
		"bad timestamp":   `{"table":"pages","uid":1,"updatedAt":"??"}`,
		"not an object":   `"pages:1"`,
	}
	for name, raw := range cases {
		_, err := DeserializeDocument(json.RawMessage(raw), nil)
		require.Error(t, err, name)
		require.True(t, errors.Is(err, ErrMalformedDocument), name)
	}
}

func TestCoerceUID_FloatBounds(t *testing.T) {
	uid, err := coerceUID(json.RawMessage(`4.2e1`))
	require.NoError(t, err)
	require.Equal(t, int64(42), uid)

	// 2^63 and beyond do not fit an int64
	for _, raw := range []string{`9.223372036854775807e18`, `9.3e18`, `-9.3e18`, `1e300`} {
		_, err := coerceUID(json.RawMessage(raw))
		require.ErrorIs(t, err, ErrMalformedDocument, raw)
	}

	uid, err = coerceUID(json.RawMessage(`-9.223372036854775808e18`))
	require.NoError(t, err)
	require.Equal(t, int64(math.MinInt64), uid)
}
