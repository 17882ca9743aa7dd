package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"alwaysattend/internal/browser"
	"alwaysattend/internal/config"
	"alwaysattend/internal/logging"
)

// Selector ladders for the entry form. The portal is an ASP.NET app; control
// ids are stable but carry naming-container prefixes on some pages.
var (
	codeInputSelectors = []string{
		"#txtAttendanceCode",
		`input[id$="txtAttendanceCode"]`,
		`input[name*="AttendanceCode"]`,
		`input[placeholder*="code" i]`,
	}
	codeSubmitSelectors = []string{
		"#btnSubmitAttendanceCode",
		`input[id$="btnSubmitAttendanceCode"]`,
		`button[id*="Submit"]`,
		`input[type="submit"]`,
	}
)

// Submitter enters attendance codes through the portal's entry form and
// verifies the confirmation tick afterwards.
type Submitter struct {
	cfg  *config.Config
	ctrl *browser.Controller
}

// NewSubmitter builds a submitter over an authenticated browser session.
func NewSubmitter(cfg *config.Config, ctrl *browser.Controller) *Submitter {
	return &Submitter{cfg: cfg, ctrl: ctrl}
}

// Submit enters code for slot and verifies the portal accepted it. The page
// must hold an authenticated session on the Units page.
func (s *Submitter) Submit(ctx context.Context, page *rod.Page, slot Slot, code string) error {
	if slot.Submitted {
		return submitErr(ReasonAlreadySubmitted, slot.Label, "")
	}

	timer := logging.StartTimer(logging.CategorySubmit, "submit "+slot.Label)
	defer timer.Stop()

	if err := s.openEntry(ctx, page, slot); err != nil {
		return err
	}

	input, ok := firstVisible(page, codeInputSelectors)
	if !ok {
		return submitErr(ReasonPageStructure, slot.Label, "code input not found")
	}
	if err := input.SelectAllText(); err == nil {
		_ = input.Input("")
	}
	if err := input.Input(code); err != nil {
		return submitErr(ReasonPageStructure, slot.Label, fmt.Sprintf("fill code: %v", err))
	}

	button, ok := firstVisible(page, codeSubmitSelectors)
	if !ok {
		return submitErr(ReasonPageStructure, slot.Label, "submit button not found")
	}
	if err := button.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return submitErr(ReasonPageStructure, slot.Label, fmt.Sprintf("click submit: %v", err))
	}
	_ = page.WaitLoad()

	if reason, rejected := rejectionReason(page); rejected {
		return submitErr(reason, slot.Label, pageFeedback(page))
	}

	// The entry page rarely confirms inline; the tick on the Units page is
	// the source of truth.
	if err := s.ctrl.Navigate(ctx, page, s.cfg.Portal.URL); err != nil {
		return submitErr(ReasonConfirmationMissing, slot.Label, fmt.Sprintf("re-read units page: %v", err))
	}
	if !s.verifyTick(page, slot) {
		return submitErr(ReasonConfirmationMissing, slot.Label, "")
	}

	logging.Submit("slot %q confirmed with code %s", slot.Label, code)
	return nil
}

// openEntry navigates to the slot's Entry.aspx link inside its day panel.
func (s *Submitter) openEntry(ctx context.Context, page *rod.Page, slot Slot) error {
	if err := s.ctrl.Navigate(ctx, page, s.cfg.Portal.URL); err != nil {
		return submitErr(ReasonPageStructure, slot.Label, fmt.Sprintf("navigate: %v", err))
	}

	panel, err := page.Timeout(3 * time.Second).Element("#dayPanel_" + slot.Entry.Anchor)
	if err != nil {
		if onLoginPage(page) {
			return submitErr(ReasonSessionLost, slot.Label, "")
		}
		return submitErr(ReasonPageStructure, slot.Label, "day panel "+slot.Entry.Anchor+" not found")
	}
	links, err := panel.Elements(`a[href*="Entry.aspx"]`)
	if err != nil || len(links) == 0 {
		return submitErr(ReasonPageStructure, slot.Label, "no entry links in day panel")
	}

	idx := slot.Entry.Position
	if idx >= len(links) {
		// Ticked rows drop their entry link, shifting later positions down.
		idx = len(links) - 1
	}
	if err := links[idx].Click(proto.InputMouseButtonLeft, 1); err != nil {
		return submitErr(ReasonPageStructure, slot.Label, fmt.Sprintf("open entry: %v", err))
	}
	_ = page.WaitLoad()
	return nil
}

// verifyTick re-reads the slot's day panel and looks for the confirmation
// mark next to the slot's label.
func (s *Submitter) verifyTick(page *rod.Page, slot Slot) bool {
	panel, err := page.Timeout(5 * time.Second).Element("#dayPanel_" + slot.Entry.Anchor)
	if err != nil {
		return false
	}
	rows, err := panel.Elements("tr, .slot-row, li")
	if err != nil || len(rows) == 0 {
		rows = []*rod.Element{panel}
	}
	for _, row := range rows {
		text, err := row.Text()
		if err != nil {
			continue
		}
		if !strings.Contains(text, slot.Label) {
			continue
		}
		if has, _, err := row.Has(`img[src*="tick"]`); err == nil && has {
			return true
		}
	}
	return false
}

// rejectionReason inspects the entry page's feedback text after a submit.
func rejectionReason(page *rod.Page) (SubmitReason, bool) {
	text := strings.ToLower(pageFeedback(page))
	switch {
	case text == "":
		return "", false
	case strings.Contains(text, "expired"):
		return ReasonExpiredCode, true
	case strings.Contains(text, "already"):
		return ReasonAlreadySubmitted, true
	case strings.Contains(text, "invalid"), strings.Contains(text, "incorrect"),
		strings.Contains(text, "not recognised"), strings.Contains(text, "not recognized"):
		return ReasonRejected, true
	}
	return "", false
}

// pageFeedback pulls the validation/feedback message from the entry page.
func pageFeedback(page *rod.Page) string {
	for _, sel := range []string{"#lblMessage", `[id$="lblMessage"]`, ".validation-summary", ".alert"} {
		el, err := page.Timeout(500 * time.Millisecond).Element(sel)
		if err != nil {
			continue
		}
		if text, err := el.Text(); err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return ""
}

// onLoginPage detects the mid-run bounce back to the IdP.
func onLoginPage(page *rod.Page) bool {
	info, err := page.Info()
	if err == nil && strings.Contains(strings.ToLower(info.URL), "okta") {
		return true
	}
	has, _, err := page.Has(`input[type="password"], #okta-signin-username`)
	return err == nil && has
}

func firstVisible(page *rod.Page, selectors []string) (*rod.Element, bool) {
	for _, sel := range selectors {
		el, err := page.Timeout(1500 * time.Millisecond).Element(sel)
		if err != nil {
			continue
		}
		if visible, _ := el.Visible(); !visible {
			continue
		}
		return el, true
	}
	return nil, false
}
