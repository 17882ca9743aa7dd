// Package config holds all Always Attend configuration. A Config is built once
// at startup from the YAML config file, environment variables, and CLI flags,
// then passed read-only into every component.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the single immutable configuration object for a run.
type Config struct {
	// Portal and account identity
	Portal PortalConfig `yaml:"portal"`

	// Browser engine selection
	Browser BrowserConfig `yaml:"browser"`

	// Attendance code sources, in precedence order
	Codes CodesConfig `yaml:"codes"`

	// Local state (session token, stats, logs)
	State StateConfig `yaml:"state"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PortalConfig identifies the attendance portal and the federated account.
type PortalConfig struct {
	URL        string `yaml:"url"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	TOTPSecret string `yaml:"totp_secret"`
	// MFACode is a one-shot manual code for accounts without a TOTP seed.
	MFACode string `yaml:"mfa_code"`
}

// Identity returns the account identity the session token is keyed by.
func (p PortalConfig) Identity() string {
	if p.Username != "" {
		return p.Username
	}
	return "default"
}

// BrowserConfig selects the browser engine and its mode.
type BrowserConfig struct {
	// Bin is an explicit browser binary path. Empty means rod's managed browser.
	Bin string `yaml:"bin"`
	// Channel prefers a system browser install: chrome|chrome-beta|msedge.
	Channel string `yaml:"channel"`
	Headed  bool   `yaml:"headed"`

	NavigationTimeoutMs int `yaml:"navigation_timeout_ms"`
	ViewportWidth       int `yaml:"viewport_width"`
	ViewportHeight      int `yaml:"viewport_height"`
}

// NavigationTimeout returns the bounded timeout for page navigations.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	if b.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.NavigationTimeoutMs) * time.Millisecond
}

// CodesConfig configures every code source. Lower-numbered sources win; the
// resolver iterates them in the order documented on each field.
type CodesConfig struct {
	// Overrides are explicit slot->code pairs, highest priority (rank 1).
	Overrides map[string]string `yaml:"overrides"`
	// Pairs is an inline "slot:code" list (rank 2).
	Pairs []string `yaml:"pairs"`
	// File is a local JSON array of code objects (rank 3).
	File string `yaml:"file"`
	// URL is a remote endpoint returning the same JSON shape (rank 4).
	URL string `yaml:"url"`
	// BaseURL + Course + Week auto-discovers <base>/<course>/<week>.json (rank 5).
	BaseURL string `yaml:"base_url"`
	// DatabaseRoot is a local code database laid out <root>/<course>/<week>.json (rank 6).
	DatabaseRoot string `yaml:"database_root"`

	// MirrorRepo optionally backs DatabaseRoot with a git remote synced before reads.
	MirrorRepo   string `yaml:"mirror_repo"`
	MirrorBranch string `yaml:"mirror_branch"`

	// Course and Week scope auto-discovery and database reads. Empty week means
	// "latest on disk".
	Course string `yaml:"course"`
	Week   string `yaml:"week"`

	// FetchTimeoutMs bounds each remote fetch attempt.
	FetchTimeoutMs int `yaml:"fetch_timeout_ms"`
	FetchRetries   int `yaml:"fetch_retries"`
}

// FetchTimeout returns the per-attempt timeout for remote code fetches.
func (c CodesConfig) FetchTimeout() time.Duration {
	if c.FetchTimeoutMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

// StateConfig locates local mutable state.
type StateConfig struct {
	// Dir is the state directory. Session token, stats and logs live under it.
	Dir string `yaml:"dir"`
	// SessionFile overrides the default <dir>/session.json token path.
	SessionFile string `yaml:"session_file"`
	// StatsFile overrides the default <dir>/stats.json path.
	StatsFile string `yaml:"stats_file"`
}

// SessionPath returns the session token file path.
func (s StateConfig) SessionPath() string {
	if s.SessionFile != "" {
		return s.SessionFile
	}
	return filepath.Join(s.Dir, "session.json")
}

// StatsPath returns the statistics file path.
func (s StateConfig) StatsPath() string {
	if s.StatsFile != "" {
		return s.StatsFile
	}
	return filepath.Join(s.Dir, "stats.json")
}

// LoggingConfig mirrors internal/logging's expectations.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns a Config with sensible defaults applied.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			NavigationTimeoutMs: 30000,
			ViewportWidth:       1280,
			ViewportHeight:      900,
		},
		Codes: CodesConfig{
			MirrorBranch:   "main",
			DatabaseRoot:   "data",
			FetchTimeoutMs: 15000,
			FetchRetries:   3,
		},
		State: StateConfig{
			Dir: ".alwaysattend",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML config file (if present), applies environment overrides,
// and returns the result. A missing file is not an error; env and flags can
// carry the whole configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to env/flags
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. Names follow the
// launcher scripts' conventions so existing .env files keep working.
func (c *Config) applyEnv() {
	setString(&c.Portal.URL, "PORTAL_URL")
	setString(&c.Portal.Username, "PORTAL_USERNAME", "USERNAME")
	setString(&c.Portal.Password, "PORTAL_PASSWORD", "PASSWORD")
	setString(&c.Portal.TOTPSecret, "TOTP_SECRET")
	setString(&c.Portal.MFACode, "MFA_CODE")

	setString(&c.Browser.Bin, "BROWSER_BIN")
	setString(&c.Browser.Channel, "BROWSER_CHANNEL")
	if v, ok := os.LookupEnv("HEADLESS"); ok {
		c.Browser.Headed = v == "0" || strings.EqualFold(v, "false")
	}

	setString(&c.Codes.File, "CODES_FILE")
	setString(&c.Codes.URL, "CODES_URL")
	setString(&c.Codes.BaseURL, "CODES_BASE_URL")
	setString(&c.Codes.DatabaseRoot, "CODES_DB_PATH")
	setString(&c.Codes.MirrorRepo, "CODES_DB_REPO")
	setString(&c.Codes.MirrorBranch, "CODES_DB_BRANCH")
	setString(&c.Codes.Course, "COURSE_CODE")
	setString(&c.Codes.Week, "WEEK_NUMBER")

	setString(&c.State.Dir, "STATE_DIR")
	setString(&c.State.SessionFile, "STORAGE_STATE")

	if v, ok := os.LookupEnv("DEBUG_MODE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}

func setString(dst *string, names ...string) {
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
			return
		}
	}
}

// Validate checks the fields every run needs. Credential presence is checked
// separately by the auth manager so login-only probes can run without them.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Portal.URL) == "" {
		return fmt.Errorf("portal.url is required (set PORTAL_URL or the config file)")
	}
	if c.Codes.MirrorRepo != "" && c.Codes.DatabaseRoot == "" {
		return fmt.Errorf("codes.database_root is required when codes.mirror_repo is set")
	}
	return nil
}

// HasCredentials reports whether an interactive login can be attempted.
func (c *Config) HasCredentials() bool {
	return c.Portal.Username != "" && c.Portal.Password != ""
}
