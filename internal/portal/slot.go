// Package portal reads timetable slots from the attendance portal and submits
// codes into them. The page structure it targets groups slots into day panels
// keyed by a compact date anchor.
package portal

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// EntryRef locates the submission entry point for one slot on the page.
type EntryRef struct {
	// Anchor is the day-panel anchor the slot lives under ("20_Aug_26").
	Anchor string
	// Position is the slot's index within its day panel.
	Position int
}

// Slot is one attendance slot visible on the portal for the current week.
type Slot struct {
	// Label is the cleaned slot label ("Workshop 1").
	Label string
	// Date is the slot's calendar date, zero when the anchor was unparseable.
	Date time.Time
	// Submitted reports whether the portal already shows the confirmation mark.
	Submitted bool

	Entry EntryRef
}

var monthAbbr = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseDayAnchor decodes a day-panel anchor like "20_Aug_26" into a date.
func ParseDayAnchor(anchor string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(anchor), "_")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("anchor %q: want day_Mon_yy", anchor)
	}
	var day, year int
	if _, err := fmt.Sscanf(parts[0], "%d", &day); err != nil || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("anchor %q: bad day %q", anchor, parts[0])
	}
	month, ok := monthAbbr[strings.ToLower(parts[1])]
	if !ok {
		return time.Time{}, fmt.Errorf("anchor %q: bad month %q", anchor, parts[1])
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &year); err != nil {
		return time.Time{}, fmt.Errorf("anchor %q: bad year %q", anchor, parts[2])
	}
	if year < 100 {
		year += 2000
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local), nil
}

// FormatDayAnchor renders a date back into the portal's anchor form.
func FormatDayAnchor(t time.Time) string {
	return fmt.Sprintf("%d_%s_%02d", t.Day(), t.Format("Jan"), t.Year()%100)
}

var (
	courseCodeRe = regexp.MustCompile(`[A-Z]{3}\d{4}`)
	spaceRunRe   = regexp.MustCompile(`\s+`)
)

// ExtractSlotLabel cleans a raw slot cell into a bare label. The course code,
// surrounding whitespace and any trailing time range are stripped.
func ExtractSlotLabel(raw, course string) string {
	label := strings.TrimSpace(raw)
	if course != "" {
		label = strings.ReplaceAll(label, course, "")
	}
	label = courseCodeRe.ReplaceAllString(label, "")
	// Drop a trailing "09:00 - 10:00" style time range.
	if idx := strings.IndexAny(label, "("); idx > 0 {
		label = label[:idx]
	}
	label = spaceRunRe.ReplaceAllString(label, " ")
	return strings.TrimSpace(strings.Trim(label, "-–"))
}

// EnrolledCourses pulls the distinct course codes visible in a page's text,
// in first-appearance order.
func EnrolledCourses(text string) []string {
	seen := make(map[string]bool)
	var courses []string
	for _, code := range courseCodeRe.FindAllString(text, -1) {
		if !seen[code] {
			seen[code] = true
			courses = append(courses, code)
		}
	}
	return courses
}
