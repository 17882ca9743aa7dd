package codes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"alwaysattend/internal/logging"
)

// Source supplies records from one origin. Sources are tried in rank order;
// a source returning an error is skipped, not fatal.
type Source interface {
	Name() string
	Rank() int
	Resolve(ctx context.Context) ([]Record, error)
}

// Ranks of the precedence chain, highest priority first.
const (
	rankOverrides = 1
	rankPairs     = 2
	rankFile      = 3
	rankURL       = 4
	rankAuto      = 5
	rankDatabase  = 6
)

// OverridesSource serves explicit per-slot configuration pairs.
type OverridesSource struct {
	Overrides map[string]string
}

func (s *OverridesSource) Name() string { return "overrides" }
func (s *OverridesSource) Rank() int    { return rankOverrides }

func (s *OverridesSource) Resolve(ctx context.Context) ([]Record, error) {
	slots := make([]string, 0, len(s.Overrides))
	for slot := range s.Overrides {
		slots = append(slots, slot)
	}
	sort.Strings(slots) // stable output order

	records := make([]Record, 0, len(slots))
	for _, slot := range slots {
		records = append(records, Record{Slot: slot, Code: s.Overrides[slot], SourceRank: s.Rank()})
	}
	return records, nil
}

// PairsSource parses an inline "slot:code" list.
type PairsSource struct {
	Pairs []string
}

func (s *PairsSource) Name() string { return "pairs" }
func (s *PairsSource) Rank() int    { return rankPairs }

func (s *PairsSource) Resolve(ctx context.Context) ([]Record, error) {
	records := make([]Record, 0, len(s.Pairs))
	for _, pair := range s.Pairs {
		// Split on the last colon so slot labels may themselves contain one.
		idx := strings.LastIndex(pair, ":")
		if idx <= 0 || idx == len(pair)-1 {
			logging.CodesWarn("malformed pair %q dropped, want \"slot:code\"", pair)
			continue
		}
		records = append(records, Record{
			Slot:       strings.TrimSpace(pair[:idx]),
			Code:       strings.TrimSpace(pair[idx+1:]),
			SourceRank: s.Rank(),
		})
	}
	return records, nil
}

// FileSource reads a local JSON array of code objects.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string { return "file" }
func (s *FileSource) Rank() int    { return rankFile }

func (s *FileSource) Resolve(ctx context.Context) ([]Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return decodeRecords(data, s.Rank(), s.Path)
}

// URLSource fetches the JSON shape from a remote endpoint with bounded
// retries and exponential backoff.
type URLSource struct {
	URL     string
	Timeout time.Duration
	Retries int

	rank int
}

func (s *URLSource) Name() string { return "url" }

func (s *URLSource) Rank() int {
	if s.rank != 0 {
		return s.rank
	}
	return rankURL
}

func (s *URLSource) Resolve(ctx context.Context) ([]Record, error) {
	data, err := fetchJSON(ctx, s.URL, s.Timeout, s.Retries)
	if err != nil {
		return nil, err
	}
	return decodeRecords(data, s.Rank(), s.URL)
}

// AutoSource constructs <base>/<course>/<week>.json against a configured base
// location, which may be an HTTP endpoint or a local directory.
type AutoSource struct {
	Base    string
	Course  string
	Week    string
	Timeout time.Duration
	Retries int
}

func (s *AutoSource) Name() string { return "auto" }
func (s *AutoSource) Rank() int    { return rankAuto }

func (s *AutoSource) Resolve(ctx context.Context) ([]Record, error) {
	if s.Course == "" || s.Week == "" {
		return nil, fmt.Errorf("auto-discovery needs course and week")
	}
	course := sanitizeCourse(s.Course)
	week := sanitizeWeek(s.Week)

	if strings.HasPrefix(s.Base, "http://") || strings.HasPrefix(s.Base, "https://") {
		url := strings.TrimRight(s.Base, "/") + "/" + course + "/" + week + ".json"
		inner := &URLSource{URL: url, Timeout: s.Timeout, Retries: s.Retries, rank: s.Rank()}
		return inner.Resolve(ctx)
	}

	path := filepath.Join(s.Base, course, week+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeRecords(data, s.Rank(), path)
}

// DatabaseSource reads the locally-tracked code database laid out as
// <root>/<course>/<week>.json. An empty week means "latest on disk".
type DatabaseSource struct {
	Root   string
	Course string
	Week   string
}

func (s *DatabaseSource) Name() string { return "database" }
func (s *DatabaseSource) Rank() int    { return rankDatabase }

func (s *DatabaseSource) Resolve(ctx context.Context) ([]Record, error) {
	if s.Course == "" {
		return nil, fmt.Errorf("database source needs a course")
	}
	week := s.Week
	if week == "" {
		latest, ok := LatestWeek(s.Root, s.Course)
		if !ok {
			return nil, fmt.Errorf("no week files for %s under %s", s.Course, s.Root)
		}
		week = latest
	}
	path := filepath.Join(s.Root, sanitizeCourse(s.Course), sanitizeWeek(week)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeRecords(data, s.Rank(), path)
}

// fetchJSON GETs a URL with bounded per-attempt timeout, retries, and backoff.
func fetchJSON(ctx context.Context, url string, timeout time.Duration, retries int) ([]byte, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func sanitizeCourse(course string) string {
	var b strings.Builder
	for _, ch := range course {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func sanitizeWeek(week string) string {
	var b strings.Builder
	for _, ch := range week {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
