package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledIsNoOp(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, Settings{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Auth("should not be written")
	if _, err := os.Stat(filepath.Join(dir, "logs")); !os.IsNotExist(err) {
		t.Fatalf("logs directory should not exist in production mode")
	}
}

func TestCategoryFileWritten(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Auth("session probe ok identity=%s", "s123")
	AuthDebug("totp step accepted")

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("read logs dir: %v", err)
	}
	var authFile string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_auth.log") {
			authFile = filepath.Join(dir, "logs", e.Name())
		}
	}
	if authFile == "" {
		t.Fatalf("no auth log file created, entries=%v", entries)
	}
	data, err := os.ReadFile(authFile)
	if err != nil {
		t.Fatalf("read auth log: %v", err)
	}
	if !strings.Contains(string(data), "session probe ok identity=s123") {
		t.Errorf("info line missing from auth log: %s", data)
	}
	if !strings.Contains(string(data), "[DEBUG] totp step accepted") {
		t.Errorf("debug line missing from auth log: %s", data)
	}
}

func TestCategoryFilter(t *testing.T) {
	dir := t.TempDir()
	err := Initialize(dir, Settings{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"codes": false},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Codes("filtered out")
	entries, _ := os.ReadDir(filepath.Join(dir, "logs"))
	for _, e := range entries {
		if strings.Contains(e.Name(), "_codes.log") {
			t.Errorf("codes log should be filtered, found %s", e.Name())
		}
	}
}
