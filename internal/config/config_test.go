package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "main", cfg.Codes.MirrorBranch)
	require.Equal(t, 3, cfg.Codes.FetchRetries)
	require.Equal(t, ".alwaysattend", cfg.State.Dir)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
portal:
  url: https://attendance.example.edu/student/Default.aspx
  username: s1234567
codes:
  course: COS1234
  week: "6"
  pairs:
    - "Workshop 1:ABC12"
browser:
  channel: chrome
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	t.Setenv("WEEK_NUMBER", "7")
	t.Setenv("TOTP_SECRET", "JBSWY3DPEHPK3PXP")
	t.Setenv("HEADLESS", "0")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "https://attendance.example.edu/student/Default.aspx", cfg.Portal.URL)
	require.Equal(t, "s1234567", cfg.Portal.Identity())
	// env wins over file
	require.Equal(t, "7", cfg.Codes.Week)
	require.Equal(t, "JBSWY3DPEHPK3PXP", cfg.Portal.TOTPSecret)
	require.True(t, cfg.Browser.Headed)
	require.Equal(t, []string{"Workshop 1:ABC12"}, cfg.Codes.Pairs)
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresPortalURL(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate())
	cfg.Portal.URL = "https://portal.example.edu"
	require.NoError(t, cfg.Validate())
}

func TestValidateMirrorNeedsRoot(t *testing.T) {
	cfg := Default()
	cfg.Portal.URL = "https://portal.example.edu"
	cfg.Codes.MirrorRepo = "https://github.com/example/codes.git"
	cfg.Codes.DatabaseRoot = ""
	require.Error(t, cfg.Validate())
}

func TestStatePaths(t *testing.T) {
	s := StateConfig{Dir: "/tmp/aa"}
	require.Equal(t, filepath.Join("/tmp/aa", "session.json"), s.SessionPath())
	s.SessionFile = "/elsewhere/token.json"
	require.Equal(t, "/elsewhere/token.json", s.SessionPath())
}
