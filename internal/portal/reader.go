package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"alwaysattend/internal/browser"
	"alwaysattend/internal/config"
	"alwaysattend/internal/logging"
)

// Reader extracts the week's attendance slots from the portal's Units page.
type Reader struct {
	cfg  *config.Config
	ctrl *browser.Controller
}

// NewReader builds a reader over an authenticated browser session.
func NewReader(cfg *config.Config, ctrl *browser.Controller) *Reader {
	return &Reader{cfg: cfg, ctrl: ctrl}
}

// Slots navigates the page to the portal and collects every slot in the
// visible week, day panel by day panel. Slots already carrying the
// confirmation tick are returned with Submitted set rather than dropped, so
// callers can count them.
func (r *Reader) Slots(ctx context.Context, page *rod.Page) ([]Slot, error) {
	if err := r.ctrl.Navigate(ctx, page, r.cfg.Portal.URL); err != nil {
		return nil, err
	}

	anchors, err := dayAnchors(page)
	if err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		logging.MatchDebug("no day anchors found on %s", r.cfg.Portal.URL)
		return nil, nil
	}

	var slots []Slot
	for _, anchor := range anchors {
		date, err := ParseDayAnchor(anchor)
		if err != nil {
			logging.MatchDebug("unparseable day anchor %q, kept with zero date", anchor)
			date = time.Time{}
		}
		daySlots, err := r.panelSlots(page, anchor, date)
		if err != nil {
			logging.BrowserWarn("read day panel %s: %v", anchor, err)
			continue
		}
		slots = append(slots, daySlots...)
	}
	logging.Match("read %d slots across %d days", len(slots), len(anchors))
	return slots, nil
}

// panelSlots reads the rows of one day panel.
func (r *Reader) panelSlots(page *rod.Page, anchor string, date time.Time) ([]Slot, error) {
	panel, err := page.Timeout(3 * time.Second).Element("#dayPanel_" + anchor)
	if err != nil {
		return nil, fmt.Errorf("day panel %s not found", anchor)
	}

	rows, err := panel.Elements("tr, .slot-row, li")
	if err != nil || len(rows) == 0 {
		// Single-row panels render the slot directly.
		rows = []*rod.Element{panel}
	}

	var slots []Slot
	position := 0
	for _, row := range rows {
		text, err := row.Text()
		if err != nil {
			continue
		}
		label := ExtractSlotLabel(text, r.cfg.Codes.Course)
		if label == "" || strings.EqualFold(label, "pass") {
			continue
		}

		ticked := false
		if has, _, err := row.Has(`img[src*="tick"]`); err == nil && has {
			ticked = true
		}

		slots = append(slots, Slot{
			Label:     label,
			Date:      date,
			Submitted: ticked,
			Entry:     EntryRef{Anchor: anchor, Position: position},
		})
		position++
	}
	return slots, nil
}

// dayAnchors lists the week's day-panel anchors, preferring the #daySel
// selector options and falling back to scanning panel ids.
func dayAnchors(page *rod.Page) ([]string, error) {
	if sel, err := page.Timeout(3 * time.Second).Element("#daySel"); err == nil {
		options, err := sel.Elements("option")
		if err == nil && len(options) > 0 {
			var anchors []string
			for _, opt := range options {
				val, err := opt.Attribute("value")
				if err != nil || val == nil || *val == "" {
					continue
				}
				anchors = append(anchors, *val)
			}
			if len(anchors) > 0 {
				return anchors, nil
			}
		}
	}

	panels, err := page.Elements(`[id^="dayPanel_"]`)
	if err != nil {
		return nil, fmt.Errorf("scan day panels: %w", err)
	}
	var anchors []string
	for _, panel := range panels {
		id, err := panel.Attribute("id")
		if err != nil || id == nil {
			continue
		}
		anchors = append(anchors, strings.TrimPrefix(*id, "dayPanel_"))
	}
	return anchors, nil
}
