package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/yycweather/dashboard/internal/kv"
	"github.com/yycweather/dashboard/internal/weather"
)

// ErrOutOfRange reports a day or month outside the document's valid range.
var ErrOutOfRange = errors.New("out of range")

// Merger reads, merges and writes month documents against the key-value
// store. Corrupt stored content is treated as absent so a bad record can
// never block future writes.
type Merger struct {
	store kv.Store
}

func NewMerger(store kv.Store) *Merger {
	return &Merger{store: store}
}

// Load fetches the document for the given key, synthesizing an empty one
// when it is absent. The corrupt flag reports that stored content existed
// but failed to decode; the returned document is then the empty fallback.
func (m *Merger) Load(ctx context.Context, city string, units weather.Units, year, month int) (MonthDocument, bool, error) {
	raw, err := m.store.Get(ctx, Key(city, units, year, month))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return NewDocument(city, units, year, month), false, nil
		}
		return NewDocument(city, units, year, month), false, err
	}

	doc, ok := decode(raw)
	if !ok {
		log.Printf("history: corrupt document for %s, treating as absent", Key(city, units, year, month))
		return NewDocument(city, units, year, month), true, nil
	}

	// Backfill metadata and days map for documents written by older
	// revisions of the schema.
	if doc.Meta == (Meta{}) {
		doc.Meta = Meta{City: city, Units: units, Year: year, Month: month}
	}
	if doc.Days == nil {
		doc.Days = make(map[int]DayRecord)
	}

	return doc, false, nil
}

// Merge sets the entry for one day, preserving all other recorded days, and
// writes the whole document back. Absent or corrupt stored content merges
// into a fresh empty document.
func (m *Merger) Merge(ctx context.Context, city string, units weather.Units, year, month, day int, rec DayRecord) (MonthDocument, error) {
	if month < 1 || month > 12 {
		return MonthDocument{}, fmt.Errorf("%w: month %d", ErrOutOfRange, month)
	}
	if day < 1 || day > DaysInMonth(year, month) {
		return MonthDocument{}, fmt.Errorf("%w: day %d is not valid for %d-%02d", ErrOutOfRange, day, year, month)
	}

	doc, _, err := m.Load(ctx, city, units, year, month)
	if err != nil {
		return MonthDocument{}, err
	}

	doc.Days[day] = rec

	raw, err := json.Marshal(doc)
	if err != nil {
		return MonthDocument{}, err
	}

	// History retention is indefinite: no TTL.
	if err := m.store.Set(ctx, Key(city, units, year, month), raw, 0); err != nil {
		return MonthDocument{}, err
	}

	return doc, nil
}

// decode attempts to parse stored bytes as a month document. A false result
// means the content is corrupt and should behave exactly like absence.
func decode(raw []byte) (MonthDocument, bool) {
	var doc MonthDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return MonthDocument{}, false
	}
	return doc, true
}
