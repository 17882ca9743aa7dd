// Package browser owns the rod-driven browser instance. It launches (or
// connects to) Chrome, hands out pages, and snapshots/restores the cookie and
// web-storage state that makes up a portal session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"alwaysattend/internal/config"
	"alwaysattend/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// StorageState is the serializable per-origin web storage of a page.
type StorageState struct {
	Local   string `json:"local"`
	Session string `json:"session"`
}

// Controller owns a single browser instance for the whole run.
type Controller struct {
	cfg config.BrowserConfig

	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
}

// New creates a controller; the browser is launched lazily by Start.
func New(cfg config.BrowserConfig) *Controller {
	return &Controller{cfg: cfg}
}

// Start launches the configured browser and connects to it. Channel selection
// falls back to rod's managed Chromium when the requested system browser is
// missing, matching the launcher scripts' behavior.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		if _, err := c.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("stale browser connection, relaunching")
		_ = c.browser.Close()
		c.browser = nil
		c.controlURL = ""
	}

	bin := c.cfg.Bin
	if bin == "" && c.cfg.Channel != "" {
		if found, ok := channelBinary(c.cfg.Channel); ok {
			bin = found
			logging.Browser("using system browser channel=%s bin=%s", c.cfg.Channel, bin)
		} else {
			logging.BrowserWarn("channel %q unavailable, falling back to managed browser", c.cfg.Channel)
		}
	}

	launch := launcher.New().Headless(!c.cfg.Headed)
	if bin != "" {
		launch = launch.Bin(bin)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		if bin == "" {
			return fmt.Errorf("launch browser: %w", err)
		}
		// Retry once without the explicit binary.
		fallback := launcher.New().Headless(!c.cfg.Headed)
		alt, altErr := fallback.Launch()
		if altErr != nil {
			return fmt.Errorf("launch browser: %w (fallback: %v)", err, altErr)
		}
		controlURL = alt
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}

	c.browser = browser
	c.controlURL = controlURL
	return nil
}

// Page opens a fresh page and navigates it to url within the configured
// navigation timeout.
func (c *Controller) Page(ctx context.Context, url string) (*rod.Page, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	browser := c.browser
	c.mu.Unlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             c.cfg.ViewportWidth,
		Height:            c.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("set viewport: %v", err)
	}

	if url != "" {
		if err := page.Context(ctx).Timeout(c.cfg.NavigationTimeout()).Navigate(url); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("navigate %s: %w", url, err)
		}
	}
	return page, nil
}

// Navigate drives an existing page to url with the configured timeout.
func (c *Controller) Navigate(ctx context.Context, page *rod.Page, url string) error {
	if err := page.Context(ctx).Timeout(c.cfg.NavigationTimeout()).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.Context(ctx).Timeout(c.cfg.NavigationTimeout()).WaitLoad(); err != nil {
		logging.BrowserWarn("wait load %s: %v", url, err)
	}
	return nil
}

// Cookies snapshots all cookies visible to the page.
func (c *Controller) Cookies(page *rod.Page) ([]*proto.NetworkCookie, error) {
	res, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return res.Cookies, nil
}

// SetCookies installs cookie params onto the page's browser context.
func (c *Controller) SetCookies(page *rod.Page, cookies []*proto.NetworkCookieParam) error {
	if len(cookies) == 0 {
		return nil
	}
	return page.SetCookies(cookies)
}

// CookieParams converts snapshot cookies into settable cookie params.
func CookieParams(cookies []*proto.NetworkCookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, ck := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
			SameSite: ck.SameSite,
			Priority: ck.Priority,
		})
	}
	return params
}

// SnapshotStorage captures localStorage and sessionStorage for the page's
// current origin as JSON blobs.
func (c *Controller) SnapshotStorage(page *rod.Page) StorageState {
	return StorageState{
		Local:   snapshotStorage(page, "localStorage"),
		Session: snapshotStorage(page, "sessionStorage"),
	}
}

// RestoreStorage writes storage blobs back into the page's current origin.
// The page must already be on the target origin.
func (c *Controller) RestoreStorage(page *rod.Page, state StorageState) {
	_, _ = page.Evaluate(&rod.EvalOptions{
		JS: `
		(local, session) => {
			try {
				const l = JSON.parse(local || "{}");
				Object.entries(l).forEach(([k, v]) => localStorage.setItem(k, v));
			} catch (e) {}
			try {
				const s = JSON.parse(session || "{}");
				Object.entries(s).forEach(([k, v]) => sessionStorage.setItem(k, v));
			} catch (e) {}
		}
		`,
		JSArgs:       []interface{}{state.Local, state.Session},
		ByValue:      true,
		AwaitPromise: true,
		UserGesture:  true,
	})
}

// Close shuts the browser down.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	c.controlURL = ""
	return err
}

func snapshotStorage(page *rod.Page, store string) string {
	jsFunc := fmt.Sprintf(`() => {
		try {
			const out = {};
			for (const key of Object.keys(%s)) {
				out[key] = %s.getItem(key);
			}
			return JSON.stringify(out);
		} catch (e) {
			return "{}";
		}
	}`, store, store)

	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           jsFunc,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return "{}"
	}
	return res.Value.String()
}

// channelBinary maps a browser channel name to an installed binary path.
func channelBinary(channel string) (string, bool) {
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = map[string][]string{
			"chrome":      {"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"},
			"chrome-beta": {"/Applications/Google Chrome Beta.app/Contents/MacOS/Google Chrome Beta"},
			"msedge":      {"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
		}[channel]
	case "windows":
		candidates = map[string][]string{
			"chrome": {
				`C:\Program Files\Google\Chrome\Application\chrome.exe`,
				`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			},
			"msedge": {`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`},
		}[channel]
	default:
		names := map[string][]string{
			"chrome":      {"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"},
			"chrome-beta": {"google-chrome-beta"},
			"msedge":      {"microsoft-edge", "microsoft-edge-stable"},
		}[channel]
		for _, name := range names {
			if path, err := exec.LookPath(name); err == nil {
				return path, true
			}
		}
		return "", false
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}
