package match

import (
	"alwaysattend/internal/codes"
	"alwaysattend/internal/logging"
	"alwaysattend/internal/portal"
)

// Kind says how a slot got its code.
type Kind string

const (
	KindExact     Kind = "exact"
	KindFallback  Kind = "fallback"
	KindUnmatched Kind = "unmatched"
)

// Result pairs one slot with at most one record. Every input slot yields
// exactly one Result, in input order.
type Result struct {
	Slot   portal.Slot
	Record *codes.Record
	Kind   Kind
}

// fallbackThreshold is the minimum share of the shorter normalized label's
// words that must appear in the other label for a phase-two pairing.
const fallbackThreshold = 0.6

// Match assigns records to slots in two phases. Phase one claims exact
// agreements: same label and date, then same label when the date is missing
// on either side, then the same relaxed to normalized labels. Phase two pairs
// leftovers by normalized word overlap at or
// above the threshold; an overlap tie between candidates leaves the slot
// unmatched rather than picking arbitrarily. A record is consumed by the
// first slot that claims it.
func Match(slots []portal.Slot, records []codes.Record) []Result {
	results := make([]Result, len(slots))
	for i, slot := range slots {
		results[i] = Result{Slot: slot, Kind: KindUnmatched}
	}
	consumed := make([]bool, len(records))

	// Phase one, strictest rule first across all slots before relaxing.
	phaseOne := []func(portal.Slot, codes.Record) bool{
		func(s portal.Slot, r codes.Record) bool {
			return s.Label == r.Slot && sameDate(s, r)
		},
		func(s portal.Slot, r codes.Record) bool {
			return s.Label == r.Slot && dateAbsent(s, r)
		},
		func(s portal.Slot, r codes.Record) bool {
			return Normalize(s.Label) == Normalize(r.Slot) && (dateAbsent(s, r) || sameDate(s, r))
		},
	}
	for _, rule := range phaseOne {
		for i := range results {
			if results[i].Kind != KindUnmatched {
				continue
			}
			for j := range records {
				if consumed[j] || !rule(results[i].Slot, records[j]) {
					continue
				}
				results[i].Record = &records[j]
				results[i].Kind = KindExact
				consumed[j] = true
				break
			}
		}
	}

	// Phase two, overlap fallback for whatever remains.
	for i := range results {
		if results[i].Kind != KindUnmatched {
			continue
		}
		normSlot := Normalize(results[i].Slot.Label)

		best, bestScore, tied := -1, 0.0, false
		for j := range records {
			if consumed[j] {
				continue
			}
			if !dateAbsent(results[i].Slot, records[j]) && !sameDate(results[i].Slot, records[j]) {
				continue
			}
			score := overlap(normSlot, Normalize(records[j].Slot))
			switch {
			case score < fallbackThreshold:
			case score > bestScore:
				best, bestScore, tied = j, score, false
			case score == bestScore && best >= 0:
				tied = true
			}
		}

		if best < 0 {
			continue
		}
		if tied {
			logging.MatchDebug("slot %q: ambiguous fallback candidates at %.2f, left unmatched",
				results[i].Slot.Label, bestScore)
			continue
		}
		results[i].Record = &records[best]
		results[i].Kind = KindFallback
		consumed[best] = true
	}

	exact, fallback := 0, 0
	for _, res := range results {
		switch res.Kind {
		case KindExact:
			exact++
		case KindFallback:
			fallback++
		}
	}
	logging.Match("matched %d/%d slots (%d exact, %d fallback)",
		exact+fallback, len(slots), exact, fallback)
	return results
}

// dateAbsent reports that at least one side carries no usable date: the
// record left it out, or the slot's day anchor was unparseable.
func dateAbsent(s portal.Slot, r codes.Record) bool {
	return r.Date == nil || s.Date.IsZero()
}

func sameDate(s portal.Slot, r codes.Record) bool {
	if r.Date == nil || s.Date.IsZero() {
		return false
	}
	sy, sm, sd := s.Date.Date()
	ry, rm, rd := r.Date.Date()
	return sy == ry && sm == rm && sd == rd
}
