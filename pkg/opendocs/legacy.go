package opendocs

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Positional slots of the legacy encoding
// [title, editParams, queryString, metadata, returnUrl].
const (
	legacySlotTitle = iota
	legacySlotParams
	legacySlotQueryString
	legacySlotMetadata
	legacySlotReturnURL
	legacySlotCount
)

// PersistedEntry is one value of the persisted recency mapping, classified by
// ClassifyEntry into exactly one of CurrentFormat, LegacyFormat or Unrecognized.
type PersistedEntry interface {
	isPersistedEntry()
}

// CurrentFormat is an object carrying a "table" key.
type CurrentFormat struct {
	Raw json.RawMessage
}

// LegacyFormat is the positional encoding, stored either as a JSON array or
// as an object keyed "0".."4".
type LegacyFormat struct {
	Slots []json.RawMessage
}

// Unrecognized is anything else: scalars, null, broken JSON.
type Unrecognized struct {
	Raw json.RawMessage
}

func (CurrentFormat) isPersistedEntry() {}
func (LegacyFormat) isPersistedEntry()  {}
func (Unrecognized) isPersistedEntry()  {}

// ClassifyEntry is the single dispatch point for persisted entry shapes.
func ClassifyEntry(raw json.RawMessage) PersistedEntry {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Unrecognized{Raw: raw}
	}
	switch trimmed[0] {
	case '{':
		fields := map[string]json.RawMessage{}
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return Unrecognized{Raw: raw}
		}
		if rawField(fields, "table") != nil {
			return CurrentFormat{Raw: raw}
		}
		slots := make([]json.RawMessage, legacySlotCount)
		for i := range slots {
			slots[i] = fields[strconv.Itoa(i)]
		}
		return LegacyFormat{Slots: slots}
	case '[':
		var slots []json.RawMessage
		if err := json.Unmarshal(trimmed, &slots); err != nil {
			return Unrecognized{Raw: raw}
		}
		return LegacyFormat{Slots: slots}
	default:
		return Unrecognized{Raw: raw}
	}
}

func (l LegacyFormat) slot(i int) json.RawMessage {
	if i < 0 || i >= len(l.Slots) || isNull(l.Slots[i]) {
		return nil
	}
	return l.Slots[i]
}

// Title returns the stored title, if any. It is informational only.
func (l LegacyFormat) Title() string {
	var title string
	if raw := l.slot(legacySlotTitle); raw != nil {
		_ = json.Unmarshal(raw, &title)
	}
	return title
}

// DecodeLegacy salvages a Document from a legacy entry.
//
// The table and uid come from the first pair of editParams.edit
// ({edit: {<table>: {<uid>: "edit"}}}) in stored key order; the legacy
// writer only ever stored one pair, further pairs are ignored. metadata.table
// and metadata.uid fill whatever the edit parameters did not yield.
// updatedAt comes from metadata.updatedAt when parseable, else now().
func DecodeLegacy(entry LegacyFormat, now func() time.Time) (Document, error) {
	table, uid := firstEditPair(entry.slot(legacySlotParams))

	metadata := map[string]json.RawMessage{}
	if raw := entry.slot(legacySlotMetadata); raw != nil {
		if err := json.Unmarshal(raw, &metadata); err != nil {
			metadata = map[string]json.RawMessage{}
		}
	}
	if table == "" {
		if raw := rawField(metadata, "table"); raw != nil {
			if t, err := coerceTable(raw); err == nil {
				table = t
			}
		}
	}
	if uid == 0 {
		if raw := rawField(metadata, "uid"); raw != nil {
			if u, err := coerceUID(raw); err == nil {
				uid = u
			}
		}
	}

	if table == "" {
		return Document{}, malformed("table", "cannot be determined from legacy entry")
	}
	if uid <= 0 {
		return Document{}, malformed("uid", "cannot be determined from legacy entry")
	}

	if raw := rawField(metadata, "updatedAt"); raw != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if t, err := ParseTimestamp(s); err == nil {
				return Document{Table: table, UID: uid, UpdatedAt: t}, nil
			}
		}
	}
	if now == nil {
		now = time.Now
	}
	return Document{Table: table, UID: uid, UpdatedAt: now()}, nil
}

func firstEditPair(paramsRaw json.RawMessage) (string, int64) {
	if paramsRaw == nil {
		return "", 0
	}
	params := map[string]json.RawMessage{}
	if err := json.Unmarshal(paramsRaw, &params); err != nil {
		return "", 0
	}
	editRaw := rawField(params, "edit")
	if editRaw == nil {
		return "", 0
	}
	edit := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(editRaw, edit); err != nil {
		return "", 0
	}
	first := edit.Oldest()
	if first == nil {
		return "", 0
	}
	table := first.Key

	uids := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(first.Value, uids); err != nil {
		return table, 0
	}
	firstUID := uids.Oldest()
	if firstUID == nil {
		return table, 0
	}
	uid, err := strconv.ParseInt(strings.TrimSpace(firstUID.Key), 10, 64)
	if err != nil {
		return table, 0
	}
	return table, uid
}
