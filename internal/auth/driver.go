package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"alwaysattend/internal/browser"
	"alwaysattend/internal/config"
	"alwaysattend/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Selector ladders for the federated (Okta-style) login form. Tried in order;
// the portal's IdP occasionally renames ids between tenant upgrades.
var (
	usernameSelectors = []string{
		"#okta-signin-username",
		`input[name="identifier"]`,
		`input[name="username"]`,
		`input[autocomplete="username"]`,
		`input[type="email"]`,
		`input[data-se="o-form-input-username"]`,
		`input[name*="user"]`,
		`input[name*="login"]`,
	}
	passwordSelectors = []string{
		"#okta-signin-password",
		`input[name="password"]`,
		`input[autocomplete="current-password"]`,
		`input[type="password"]`,
		`input[data-se="o-form-input-password"]`,
		`input[name*="pass"]`,
	}
	submitSelectors = []string{
		"#okta-signin-submit",
		`button[type="submit"]`,
		`input[type="submit"]`,
	}
	otpSelectors = []string{
		`input[name="credentials.passcode"]`,
		`input[name="credentials.otp"]`,
		`input[name="otp"]`,
		`input[name="code"]`,
		`input[name="passcode"]`,
		`input[autocomplete="one-time-code"]`,
		`input[inputmode="numeric"]`,
	}
	loginFieldProbe = "#okta-signin-username, input[name=\"username\"], input[type=\"password\"], #okta-signin-password"
)

// RodDriver implements Driver against the live portal through a browser
// controller. One page is kept for the whole login conversation.
type RodDriver struct {
	cfg     *config.Config
	browser *browser.Controller
	page    *rod.Page
}

// NewRodDriver builds the production login driver.
func NewRodDriver(cfg *config.Config, ctrl *browser.Controller) *RodDriver {
	return &RodDriver{cfg: cfg, browser: ctrl}
}

// Page exposes the authenticated page for downstream portal reads. Valid only
// after a successful Probe or login conversation.
func (d *RodDriver) Page() *rod.Page { return d.page }

// Probe presents the stored token to the portal with a lightweight navigation
// and reports whether it lands on an authenticated page.
func (d *RodDriver) Probe(ctx context.Context, tok *Token) (bool, error) {
	page, err := d.browser.Page(ctx, "")
	if err != nil {
		return false, err
	}
	d.page = page

	if err := d.browser.SetCookies(page, tok.Cookies); err != nil {
		logging.AuthWarn("restore cookies: %v", err)
	}
	if err := d.browser.Navigate(ctx, page, d.cfg.Portal.URL); err != nil {
		return false, err
	}
	d.browser.RestoreStorage(page, tok.Storage)

	return d.isAuthenticated(page), nil
}

// BeginLogin navigates to the portal (which redirects to the IdP) and submits
// credentials, handling both single-page and two-step username→password forms.
func (d *RodDriver) BeginLogin(ctx context.Context, username, password string) (LoginResult, error) {
	if d.page == nil {
		page, err := d.browser.Page(ctx, "")
		if err != nil {
			return LoginRejected, err
		}
		d.page = page
	}
	page := d.page

	if err := d.browser.Navigate(ctx, page, d.cfg.Portal.URL); err != nil {
		return LoginRejected, err
	}
	if d.isAuthenticated(page) {
		// A parallel session already satisfied the IdP.
		return LoginAuthenticated, nil
	}

	userOK := fillFirstMatch(page, usernameSelectors, username)
	passOK := fillFirstMatch(page, passwordSelectors, password)

	if userOK && !passOK {
		// Two-step flow: Next, then password on the second page.
		logging.AuthDebug("two-step login detected")
		clickFirstMatch(page, submitSelectors)
		waitForAny(page, passwordSelectors, 10*time.Second)
		passOK = fillFirstMatch(page, passwordSelectors, password)
	}
	if !userOK || !passOK {
		return LoginRejected, fmt.Errorf("could not locate login form fields on %s", pageURL(page))
	}

	clickFirstMatch(page, submitSelectors)
	_ = page.WaitLoad()

	if hasAny(page, otpSelectors) {
		return LoginMFARequired, nil
	}
	if d.isAuthenticated(page) {
		return LoginAuthenticated, nil
	}
	if hasAny(page, passwordSelectors) {
		// Still on the credential form after submit: definitive rejection.
		return LoginRejected, nil
	}
	// Redirect still settling; the MFA challenge may render late.
	waitForAny(page, otpSelectors, 5*time.Second)
	if hasAny(page, otpSelectors) {
		return LoginMFARequired, nil
	}
	return LoginAuthenticated, nil
}

// SubmitOTP enters the one-time code, falling back to per-digit boxes when the
// IdP renders six separate inputs.
func (d *RodDriver) SubmitOTP(ctx context.Context, code string) error {
	page := d.page
	if page == nil {
		return fmt.Errorf("no login page in progress")
	}

	if !fillFirstMatch(page, otpSelectors, code) {
		boxes, err := page.Elements(`input[aria-label*="digit" i], input[maxlength="1"]`)
		if err != nil || len(boxes) < len(code) {
			return fmt.Errorf("could not locate MFA code input on %s", pageURL(page))
		}
		for i, ch := range code {
			if err := boxes[i].Input(string(ch)); err != nil {
				return fmt.Errorf("fill MFA digit %d: %w", i+1, err)
			}
		}
	}

	clickFirstMatch(page, submitSelectors)
	_ = page.WaitLoad()
	return nil
}

// ConfirmAuthenticated polls for the redirect back to the portal after the
// final login step.
func (d *RodDriver) ConfirmAuthenticated(ctx context.Context) (bool, error) {
	page := d.page
	if page == nil {
		return false, fmt.Errorf("no login page in progress")
	}
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Second):
		}
		if d.isAuthenticated(page) {
			return true, nil
		}
	}
	return d.isAuthenticated(page), nil
}

// CaptureToken serializes the authenticated session's cookies and storage.
func (d *RodDriver) CaptureToken(ctx context.Context, identity string) (*Token, error) {
	page := d.page
	if page == nil {
		return nil, fmt.Errorf("no authenticated page to capture")
	}
	cookies, err := d.browser.Cookies(page)
	if err != nil {
		return nil, err
	}
	params := browser.CookieParams(cookies)
	return &Token{
		Identity: identity,
		Cookies:  params,
		Storage:  d.browser.SnapshotStorage(page),
	}, nil
}

// isAuthenticated mirrors the original heuristic: not on the IdP host and no
// login form fields visible.
func (d *RodDriver) isAuthenticated(page *rod.Page) bool {
	u := pageURL(page)
	if parsed, err := url.Parse(u); err == nil {
		if strings.Contains(strings.ToLower(parsed.Host), "okta") {
			return false
		}
	}
	return !hasAny(page, []string{loginFieldProbe})
}

func pageURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// fillFirstMatch fills the first visible element matching any selector.
func fillFirstMatch(page *rod.Page, selectors []string, value string) bool {
	for _, sel := range selectors {
		el, err := page.Timeout(1500 * time.Millisecond).Element(sel)
		if err != nil {
			continue
		}
		if visible, _ := el.Visible(); !visible {
			continue
		}
		if err := el.SelectAllText(); err == nil {
			_ = el.Input("")
		}
		if err := el.Input(value); err == nil {
			return true
		}
	}
	return false
}

// clickFirstMatch clicks the first visible element matching any selector.
func clickFirstMatch(page *rod.Page, selectors []string) bool {
	for _, sel := range selectors {
		el, err := page.Timeout(1500 * time.Millisecond).Element(sel)
		if err != nil {
			continue
		}
		if visible, _ := el.Visible(); !visible {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			return true
		}
	}
	return false
}

func hasAny(page *rod.Page, selectors []string) bool {
	for _, sel := range selectors {
		if has, _, err := page.Has(sel); err == nil && has {
			return true
		}
	}
	return false
}

func waitForAny(page *rod.Page, selectors []string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if hasAny(page, selectors) {
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
}
