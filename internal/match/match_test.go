package match

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"alwaysattend/internal/codes"
	"alwaysattend/internal/portal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func datePtr(t time.Time) *time.Time { return &t }

func slot(label string, date time.Time) portal.Slot {
	return portal.Slot{Label: label, Date: date}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Laboratory 2":     "lab 02",
		"lab 02":           "lab 02",
		"Tutorial 10":      "tut 10",
		"Practical-1":      "prac 01",
		"Applied Session":  "applied sess",
		"  Workshop   3  ": "workshop 03",
	}
	for in, want := range cases {
		require.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, label := range []string{"Laboratory 2", "Tutorial 10", "Workshop 1"} {
		once := Normalize(label)
		require.Equal(t, once, Normalize(once))
	}
}

func TestExactLabelAndDateWins(t *testing.T) {
	wed := day(2026, time.August, 19)
	records := []codes.Record{
		{Slot: "Workshop 1", Code: "WRONG", Date: datePtr(day(2026, time.August, 12))},
		{Slot: "Workshop 1", Code: "RIGHT", Date: datePtr(wed)},
	}

	results := Match([]portal.Slot{slot("Workshop 1", wed)}, records)
	require.Len(t, results, 1)
	require.Equal(t, KindExact, results[0].Kind)
	require.Equal(t, "RIGHT", results[0].Record.Code)
}

func TestNormalizedLabelsMatchExact(t *testing.T) {
	// "Laboratory 2" and "lab 02" normalize identically, so this pairing is
	// still phase one.
	results := Match(
		[]portal.Slot{slot("Laboratory 2", day(2026, time.August, 19))},
		[]codes.Record{{Slot: "lab 02", Code: "LAB22"}},
	)
	require.Equal(t, KindExact, results[0].Kind)
	require.Equal(t, "LAB22", results[0].Record.Code)
}

func TestFallbackOverlap(t *testing.T) {
	results := Match(
		[]portal.Slot{slot("Applied Workshop 1", day(2026, time.August, 19))},
		[]codes.Record{{Slot: "workshop 01", Code: "APP01"}},
	)
	require.Equal(t, KindFallback, results[0].Kind)
	require.Equal(t, "APP01", results[0].Record.Code)
}

func TestUndatedSlotMatchesDatedRecordExactly(t *testing.T) {
	// An unparseable day anchor leaves the slot with a zero date. A dated
	// record with the identical label must still be an exact match.
	results := Match(
		[]portal.Slot{{Label: "Workshop 1"}},
		[]codes.Record{{Slot: "Workshop 1", Code: "AAA11", Date: datePtr(day(2026, time.August, 19))}},
	)
	require.Equal(t, KindExact, results[0].Kind)
	require.Equal(t, "AAA11", results[0].Record.Code)
}

func TestUndatedSlotNormalizedMatch(t *testing.T) {
	results := Match(
		[]portal.Slot{{Label: "Laboratory 2"}},
		[]codes.Record{{Slot: "lab 02", Code: "LAB22", Date: datePtr(day(2026, time.August, 20))}},
	)
	require.Equal(t, KindExact, results[0].Kind)
}

func TestUndatedSlotFallbackAllowsDatedRecord(t *testing.T) {
	results := Match(
		[]portal.Slot{{Label: "Applied Workshop 1"}},
		[]codes.Record{{Slot: "workshop 01", Code: "APP01", Date: datePtr(day(2026, time.August, 19))}},
	)
	require.Equal(t, KindFallback, results[0].Kind)
}

func TestSuffixedLabelFallsBackOnSameDate(t *testing.T) {
	// The portal decorates the label with the week; the code source does not.
	// Exact rules all miss, overlap on the same date pairs them.
	mon := day(2026, time.August, 17)
	results := Match(
		[]portal.Slot{slot("Workshop 1 (Week 6)", mon)},
		[]codes.Record{{Slot: "Workshop 1", Code: "WKS16", Date: datePtr(mon)}},
	)
	require.Equal(t, KindFallback, results[0].Kind)
	require.Equal(t, "WKS16", results[0].Record.Code)
}

func TestFallbackBelowThresholdUnmatched(t *testing.T) {
	results := Match(
		[]portal.Slot{slot("Workshop 1", day(2026, time.August, 19))},
		[]codes.Record{{Slot: "Tutorial 9", Code: "TUT99"}},
	)
	require.Equal(t, KindUnmatched, results[0].Kind)
	require.Nil(t, results[0].Record)
}

func TestFallbackTieLeavesUnmatched(t *testing.T) {
	// Two candidates overlap the slot equally; neither may be picked.
	results := Match(
		[]portal.Slot{slot("Workshop", day(2026, time.August, 19))},
		[]codes.Record{
			{Slot: "Workshop 1", Code: "ONE11"},
			{Slot: "Workshop 2", Code: "TWO22"},
		},
	)
	require.Equal(t, KindUnmatched, results[0].Kind)
}

func TestRecordConsumedOnce(t *testing.T) {
	wed := day(2026, time.August, 19)
	results := Match(
		[]portal.Slot{slot("Workshop 1", wed), slot("Workshop 1", wed)},
		[]codes.Record{{Slot: "Workshop 1", Code: "ONLY1"}},
	)
	require.Equal(t, KindExact, results[0].Kind)
	require.Equal(t, KindUnmatched, results[1].Kind, "a record pairs with one slot only")
}

func TestOneResultPerSlotInInputOrder(t *testing.T) {
	wed := day(2026, time.August, 19)
	slots := []portal.Slot{
		slot("Workshop 1", wed),
		slot("Laboratory 2", wed),
		slot("Tutorial 3", wed),
	}
	results := Match(slots, []codes.Record{{Slot: "Laboratory 2", Code: "LAB22"}})

	require.Len(t, results, len(slots))
	var gotLabels []string
	for _, res := range results {
		gotLabels = append(gotLabels, res.Slot.Label)
	}
	want := []string{"Workshop 1", "Laboratory 2", "Tutorial 3"}
	if diff := cmp.Diff(want, gotLabels); diff != "" {
		t.Fatalf("result order mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, KindUnmatched, results[0].Kind)
	require.Equal(t, KindExact, results[1].Kind)
	require.Equal(t, KindUnmatched, results[2].Kind)
}

func TestDatedRecordNeverCrossesDates(t *testing.T) {
	results := Match(
		[]portal.Slot{slot("Workshop 1", day(2026, time.August, 19))},
		[]codes.Record{{Slot: "workshop 01", Code: "OLD01", Date: datePtr(day(2026, time.August, 12))}},
	)
	require.Equal(t, KindUnmatched, results[0].Kind, "fallback must not pair across dates")
}
