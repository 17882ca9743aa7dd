// Package codes resolves attendance codes from a chain of ranked sources:
// explicit overrides, inline pairs, local files, remote URLs, auto-discovered
// paths, and a git-backed code database.
package codes

import (
	"encoding/json"
	"fmt"
	"time"

	"alwaysattend/internal/logging"
)

// Record is one resolved attendance code. Immutable once resolved.
type Record struct {
	// Date is the calendar date the code applies to, when the source knows it.
	Date *time.Time
	// Slot is the label the source attached to the code ("Workshop 1").
	Slot string
	// Code is the token to submit.
	Code string
	// SourceRank is the priority of the source that supplied the record;
	// lower wins.
	SourceRank int
}

// wireRecord is the JSON shape shared by every file/URL/database source.
type wireRecord struct {
	Date string `json:"date,omitempty"`
	Slot string `json:"slot"`
	Code string `json:"code"`
}

// decodeRecords parses the standard JSON array shape. Malformed entries
// (missing code) are dropped with a warning rather than failing the source.
func decodeRecords(data []byte, rank int, origin string) ([]Record, error) {
	var wire []wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode codes from %s: %w", origin, err)
	}

	records := make([]Record, 0, len(wire))
	for i, w := range wire {
		if w.Code == "" {
			logging.CodesWarn("%s: entry %d has no code, dropped (slot=%q)", origin, i, w.Slot)
			continue
		}
		rec := Record{Slot: w.Slot, Code: w.Code, SourceRank: rank}
		if w.Date != "" {
			d, err := time.Parse("2006-01-02", w.Date)
			if err != nil {
				logging.CodesWarn("%s: entry %d has unparseable date %q, kept without date", origin, i, w.Date)
			} else {
				rec.Date = &d
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
