package codes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"alwaysattend/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestOverrideBeatsFileSource(t *testing.T) {
	// An inline override and a file source both carry a code for the same
	// slot; the override wins because its source ranks higher.
	dir := t.TempDir()
	codesFile := filepath.Join(dir, "codes.json")
	writeFile(t, codesFile, `[{"slot":"Workshop 1","code":"AAA11"}]`)

	r := NewResolver(config.CodesConfig{
		Overrides: map[string]string{"Workshop 1": "ZZZ99"},
		File:      codesFile,
	})

	records, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "ZZZ99", records[0].Code)
	require.Equal(t, 1, records[0].SourceRank)
}

func TestLowerRankedSourceFillsGaps(t *testing.T) {
	dir := t.TempDir()
	codesFile := filepath.Join(dir, "codes.json")
	writeFile(t, codesFile, `[
		{"slot":"Workshop 1","code":"AAA11"},
		{"slot":"Lab 2","code":"BBB22","date":"2026-08-19"}
	]`)

	r := NewResolver(config.CodesConfig{
		Overrides: map[string]string{"Workshop 1": "ZZZ99"},
		File:      codesFile,
	})

	records, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	byLabel := map[string]Record{}
	for _, rec := range records {
		byLabel[rec.Slot] = rec
	}
	require.Equal(t, "ZZZ99", byLabel["Workshop 1"].Code)
	require.Equal(t, "BBB22", byLabel["Lab 2"].Code)
	require.NotNil(t, byLabel["Lab 2"].Date)
	require.Equal(t, "2026-08-19", byLabel["Lab 2"].Date.Format("2006-01-02"))
}

func TestFailingSourceIsSkipped(t *testing.T) {
	r := NewResolver(config.CodesConfig{
		Overrides: map[string]string{"Workshop 1": "ZZZ99"},
		File:      filepath.Join(t.TempDir(), "does-not-exist.json"),
	})

	records, err := r.Resolve(context.Background())
	require.NoError(t, err, "a failing source must not fail the run")
	require.Len(t, records, 1)
}

func TestPairsSourceParsing(t *testing.T) {
	src := &PairsSource{Pairs: []string{"Workshop 1:ABC12", "Lab 2 : DEF34"}}
	records, err := src.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "Workshop 1", records[0].Slot)
	require.Equal(t, "ABC12", records[0].Code)
	require.Equal(t, "Lab 2", records[1].Slot)
	require.Equal(t, "DEF34", records[1].Code)
}

func TestPairsSourceDropsMalformedKeepsRest(t *testing.T) {
	src := &PairsSource{Pairs: []string{"no-separator", "Lab 2:DEF34", "trailing:", ":leading"}}
	records, err := src.Resolve(context.Background())
	require.NoError(t, err, "a bad pair must not fail the source")
	require.Len(t, records, 1)
	require.Equal(t, "Lab 2", records[0].Slot)
	require.Equal(t, "DEF34", records[0].Code)
}

func TestDecodeDropsEntriesWithoutCode(t *testing.T) {
	records, err := decodeRecords([]byte(`[
		{"slot":"Workshop 1","code":"AAA11"},
		{"slot":"Lab 2"},
		{"slot":"Tut 3","code":"CCC33","date":"not-a-date"}
	]`), rankFile, "test")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Nil(t, records[1].Date, "bad date is dropped, record kept")
}

func TestURLSourceFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"slot":"Workshop 1","code":"NET01"}]`))
	}))
	defer server.Close()

	src := &URLSource{URL: server.URL, Retries: 1}
	records, err := src.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "NET01", records[0].Code)
	require.Equal(t, rankURL, records[0].SourceRank)
}

func TestAutoSourceLocalPath(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "COS1234", "5.json"),
		`[{"slot":"Lab 1","code":"AUTO1"}]`)

	src := &AutoSource{Base: base, Course: "COS1234", Week: "5"}
	records, err := src.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, rankAuto, records[0].SourceRank)
}

func TestDatabaseSourceUsesLatestWeek(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "COS1234", "3.json"), `[{"slot":"Lab 1","code":"OLD33"}]`)
	writeFile(t, filepath.Join(root, "COS1234", "10.json"), `[{"slot":"Lab 1","code":"NEW10"}]`)
	writeFile(t, filepath.Join(root, "COS1234", "README.md"), "not a week file")

	src := &DatabaseSource{Root: root, Course: "COS1234"}
	records, err := src.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "NEW10", records[0].Code, "numeric compare, 10 beats 3")
}

func TestLatestWeekMissingCourse(t *testing.T) {
	_, ok := LatestWeek(t.TempDir(), "COS9999")
	require.False(t, ok)
}

func TestMirrorSkipsForeignDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "unrelated.txt"), "hello")

	m := &Mirror{Repo: "https://example.invalid/codes.git", Branch: "main", Dir: dir}
	require.NoError(t, m.Sync(context.Background()), "non-repo content must not be clobbered")

	data, err := os.ReadFile(filepath.Join(dir, "unrelated.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}
