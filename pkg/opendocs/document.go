package opendocs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
)

// TimestampLayout is ATOM with an optional fractional part. Second-precision
// values written by older versions round-trip byte-identically.
const TimestampLayout = "2006-01-02T15:04:05.999999999-07:00"

var (
	ErrMalformedDocument = errors.New("malformed document")
	ErrRecordNotFound    = errors.New("record not found")
	ErrTableNotFound     = errors.New("table not found")
)

// MalformedDocumentError describes why a persisted or legacy entry could not
// become a Document.
type MalformedDocumentError struct {
	Field  string
	Reason string
}

func (e *MalformedDocumentError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("malformed document: %s %s", e.Field, e.Reason)
}

func (e *MalformedDocumentError) Is(target error) bool {
	return target == ErrMalformedDocument
}

func malformed(field, reason string) error {
	return &MalformedDocumentError{Field: field, Reason: reason}
}

// Document is one tracked record, identified by table and uid.
// Documents are values; a re-open produces a new Document with a fresh
// UpdatedAt instead of mutating the old one.
type Document struct {
	Table     string
	UID       int64
	UpdatedAt time.Time
}

// Identifier returns the recency-list key "table:uid".
func (d Document) Identifier() string {
	return Identifier(d.Table, d.UID)
}

func Identifier(table string, uid int64) string {
	return table + ":" + strconv.FormatInt(uid, 10)
}

// Equal compares identity and timestamp instant, ignoring the location.
func (d Document) Equal(other Document) bool {
	return d.Table == other.Table && d.UID == other.UID && d.UpdatedAt.Equal(other.UpdatedAt)
}

// SerializedDocument is the current persisted form of a Document.
type SerializedDocument struct {
	Table     string `json:"table"`
	UID       int64  `json:"uid"`
	UpdatedAt string `json:"updatedAt"`
}

func (d Document) Serialize() SerializedDocument {
	return SerializedDocument{
		Table:     d.Table,
		UID:       d.UID,
		UpdatedAt: d.UpdatedAt.Format(TimestampLayout),
	}
}

// MarshalEntry renders the document as a persisted entry value.
func (d Document) MarshalEntry() (json.RawMessage, error) {
	b, err := json.Marshal(d.Serialize())
	if err != nil {
		return nil, errors.Wrap(err, "opendocs: marshal document")
	}
	return b, nil
}

// DeserializeDocument decodes a current-format entry. Extra fields are ignored.
// uid accepts integers and numeric strings; a missing updatedAt becomes now().
func DeserializeDocument(raw json.RawMessage, now func() time.Time) (Document, error) {
	fields := map[string]json.RawMessage{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Document{}, malformed("entry", "is not an object")
	}
	return documentFromFields(
		rawField(fields, "table"),
		rawField(fields, "uid"),
		rawField(fields, "updatedAt"),
		now,
	)
}

func rawField(fields map[string]json.RawMessage, name string) json.RawMessage {
	v, ok := fields[name]
	if !ok || isNull(v) {
		return nil
	}
	return v
}

func documentFromFields(tableRaw, uidRaw, updatedRaw json.RawMessage, now func() time.Time) (Document, error) {
	table, err := coerceTable(tableRaw)
	if err != nil {
		return Document{}, err
	}
	uid, err := coerceUID(uidRaw)
	if err != nil {
		return Document{}, err
	}
	if uid <= 0 {
		return Document{}, malformed("uid", "is not a positive integer")
	}
	if updatedRaw == nil {
		if now == nil {
			now = time.Now
		}
		return Document{Table: table, UID: uid, UpdatedAt: now()}, nil
	}
	var s string
	if err := json.Unmarshal(updatedRaw, &s); err != nil {
		return Document{}, malformed("updatedAt", "is not a string")
	}
	updatedAt, err := ParseTimestamp(s)
	if err != nil {
		return Document{}, malformed("updatedAt", "is not a timestamp")
	}
	return Document{Table: table, UID: uid, UpdatedAt: updatedAt}, nil
}

func coerceTable(raw json.RawMessage) (string, error) {
	if raw == nil {
		return "", malformed("table", "is missing")
	}
	var table string
	if err := json.Unmarshal(raw, &table); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", malformed("table", "is not a string")
		}
		table = n.String()
	}
	if table == "" {
		return "", malformed("table", "is empty")
	}
	return table, nil
}

// coerceUID returns 0 for a missing uid so callers can apply fallbacks.
func coerceUID(raw json.RawMessage) (int64, error) {
	if raw == nil {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		uid, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, malformed("uid", "is not numeric")
		}
		return uid, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, malformed("uid", "is not numeric")
	}
	if uid, err := n.Int64(); err == nil {
		return uid, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, malformed("uid", "is not an integer")
	}
	return int64(f), nil
}

// ParseTimestamp accepts RFC 3339 / ATOM strings and falls back to the
// tolerant formats legacy metadata was written with.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("opendocs: empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "opendocs: parse timestamp %q", s)
	}
	return t, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
