package codes

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LatestWeek scans <root>/<course>/ for numeric week files and returns the
// highest week number found. The second return is false when the course
// directory is missing or holds no week files.
func LatestWeek(root, course string) (string, bool) {
	dir := filepath.Join(root, sanitizeCourse(course))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	best := -1
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		stem, ok := strings.CutSuffix(name, ".json")
		if !ok {
			continue
		}
		week, err := strconv.Atoi(stem)
		if err != nil || week < 0 {
			continue
		}
		if week > best {
			best = week
		}
	}
	if best < 0 {
		return "", false
	}
	return strconv.Itoa(best), true
}
