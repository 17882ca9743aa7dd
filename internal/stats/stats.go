// Package stats persists submission history as a single JSON file under the
// state directory. Totals, per-course counts and time buckets are maintained
// incrementally so the summary never needs a full-history scan.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"alwaysattend/internal/logging"
)

// maxRecentErrors caps the rolling error list so the file stays small.
const maxRecentErrors = 50

// RunEntry is the outcome of one submission attempt.
type RunEntry struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Course string    `json:"course,omitempty"`
	Slot   string    `json:"slot"`
	Code   string    `json:"code,omitempty"`
	Status string    `json:"status"` // submitted|skipped|failed
	Error  string    `json:"error,omitempty"`
}

// Totals are the lifetime counters.
type Totals struct {
	Submitted int `json:"submitted"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// file is the on-disk shape.
type file struct {
	Totals    Totals            `json:"totals"`
	PerCourse map[string]Totals `json:"per_course"`
	Daily     map[string]Totals `json:"daily"`  // keyed YYYY-MM-DD
	Weekly    map[string]Totals `json:"weekly"` // keyed YYYY-Www
	Recent    []RunEntry        `json:"recent_errors"`
	Runs      []RunEntry        `json:"runs,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Manager reads and writes the stats file. Safe for concurrent use.
type Manager struct {
	path string

	mu   sync.Mutex
	data *file
}

// NewManager builds a manager over the given stats file path. The file is
// loaded lazily on first use; a missing or corrupt file starts fresh.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) load() *file {
	if m.data != nil {
		return m.data
	}
	m.data = &file{
		PerCourse: map[string]Totals{},
		Daily:     map[string]Totals{},
		Weekly:    map[string]Totals{},
	}
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return m.data
	}
	var loaded file
	if err := json.Unmarshal(raw, &loaded); err != nil {
		logging.Stats("stats file %s corrupt, starting fresh: %v", m.path, err)
		return m.data
	}
	if loaded.PerCourse == nil {
		loaded.PerCourse = map[string]Totals{}
	}
	if loaded.Daily == nil {
		loaded.Daily = map[string]Totals{}
	}
	if loaded.Weekly == nil {
		loaded.Weekly = map[string]Totals{}
	}
	m.data = &loaded
	return m.data
}

// Record appends one outcome and updates every counter bucket.
func (m *Manager) Record(course, slot, code, status, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := m.load()

	now := time.Now()
	entry := RunEntry{
		ID:     uuid.NewString(),
		At:     now,
		Course: course,
		Slot:   slot,
		Code:   code,
		Status: status,
		Error:  errText,
	}
	data.Runs = append(data.Runs, entry)

	bump := func(t *Totals) {
		switch status {
		case "submitted":
			t.Submitted++
		case "skipped":
			t.Skipped++
		default:
			t.Failed++
		}
	}
	bump(&data.Totals)
	if course != "" {
		ct := data.PerCourse[course]
		bump(&ct)
		data.PerCourse[course] = ct
	}
	dayKey := now.Format("2006-01-02")
	dt := data.Daily[dayKey]
	bump(&dt)
	data.Daily[dayKey] = dt

	year, week := now.ISOWeek()
	weekKey := fmt.Sprintf("%d-W%02d", year, week)
	wt := data.Weekly[weekKey]
	bump(&wt)
	data.Weekly[weekKey] = wt

	if errText != "" {
		data.Recent = append(data.Recent, entry)
		if len(data.Recent) > maxRecentErrors {
			data.Recent = data.Recent[len(data.Recent)-maxRecentErrors:]
		}
	}

	data.UpdatedAt = now
	return m.flush(data)
}

// Summary is a render-ready view of the stats file.
type Summary struct {
	Totals    Totals
	PerCourse map[string]Totals
	Courses   []string // sorted keys of PerCourse
	Recent    []RunEntry
	UpdatedAt time.Time
}

// Summary returns the current aggregated view.
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := m.load()

	courses := make([]string, 0, len(data.PerCourse))
	for course := range data.PerCourse {
		courses = append(courses, course)
	}
	sort.Strings(courses)

	perCourse := make(map[string]Totals, len(data.PerCourse))
	for course, totals := range data.PerCourse {
		perCourse[course] = totals
	}

	return Summary{
		Totals:    data.Totals,
		PerCourse: perCourse,
		Courses:   courses,
		Recent:    append([]RunEntry(nil), data.Recent...),
		UpdatedAt: data.UpdatedAt,
	}
}

// Export writes the raw stats JSON to path.
func (m *Manager) Export(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := m.load()

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

// Clear resets all statistics and removes the file.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = &file{
		PerCourse: map[string]Totals{},
		Daily:     map[string]Totals{},
		Weekly:    map[string]Totals{},
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stats file: %w", err)
	}
	return nil
}

func (m *Manager) flush(data *file) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create stats dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return os.Rename(tmp, m.path)
}
