package opendocs

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Entries is the persisted recency mapping: identifier -> serialized entry,
// in stored order.
type Entries = orderedmap.OrderedMap[string, json.RawMessage]

func NewEntries() *Entries {
	return orderedmap.New[string, json.RawMessage]()
}

// MigrationReport summarizes one migration pass.
type MigrationReport struct {
	Kept      int  `json:"kept" yaml:"kept"`
	Salvaged  int  `json:"salvaged" yaml:"salvaged"`
	Discarded int  `json:"discarded" yaml:"discarded"`
	Changed   bool `json:"changed" yaml:"changed"`
}

// Migrate normalizes every entry independently into the current format.
//
// Current-format entries are re-serialized under their existing key and
// dropped when they do not decode (empty table included). Legacy entries are
// decoded and stored under their own identifier; two legacy entries naming the
// same record collapse, the later one in stored order wins. Everything else is
// dropped. Changed reports whether the output differs from the input by value.
//
// The pass is idempotent and does not cap the number of entries.
func Migrate(in *Entries, now func() time.Time) (*Entries, MigrationReport) {
	if now == nil {
		now = time.Now
	}
	out := NewEntries()
	report := MigrationReport{}
	if in == nil {
		return out, report
	}

	for pair := in.Oldest(); pair != nil; pair = pair.Next() {
		switch entry := ClassifyEntry(pair.Value).(type) {
		case CurrentFormat:
			doc, err := DeserializeDocument(entry.Raw, now)
			if err != nil {
				log.Debug().Err(err).Str("key", pair.Key).Msg("discarding malformed recent document")
				report.Discarded++
				continue
			}
			b, err := doc.MarshalEntry()
			if err != nil {
				report.Discarded++
				continue
			}
			out.Set(pair.Key, b)
			report.Kept++
		case LegacyFormat:
			doc, err := DecodeLegacy(entry, now)
			if err != nil {
				log.Debug().Err(err).Str("key", pair.Key).Str("title", entry.Title()).Msg("discarding unsalvageable legacy recent document")
				report.Discarded++
				continue
			}
			b, err := doc.MarshalEntry()
			if err != nil {
				report.Discarded++
				continue
			}
			out.Set(doc.Identifier(), b)
			report.Salvaged++
		default:
			log.Debug().Str("key", pair.Key).Msg("discarding unrecognized recent document entry")
			report.Discarded++
		}
	}

	report.Changed = !entriesEqual(in, out)
	return out, report
}

// entriesEqual compares key order and compacted entry values.
func entriesEqual(a, b *Entries) bool {
	if a.Len() != b.Len() {
		return false
	}
	pa, pb := a.Oldest(), b.Oldest()
	for pa != nil && pb != nil {
		if pa.Key != pb.Key {
			return false
		}
		if !bytes.Equal(compactJSON(pa.Value), compactJSON(pb.Value)) {
			return false
		}
		pa, pb = pa.Next(), pb.Next()
	}
	return pa == nil && pb == nil
}

func compactJSON(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return bytes.TrimSpace(raw)
	}
	return buf.Bytes()
}
