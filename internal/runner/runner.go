// Package runner orchestrates one submission run: prove the session, gather
// slots and codes concurrently, match them, then submit sequentially.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"alwaysattend/internal/auth"
	"alwaysattend/internal/codes"
	"alwaysattend/internal/logging"
	"alwaysattend/internal/match"
	"alwaysattend/internal/portal"
)

// Status classifies one slot's outcome within a run.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome is the per-slot result of a run.
type Outcome struct {
	Slot   portal.Slot
	Code   string
	Kind   match.Kind
	Status Status
	Detail string
	Err    error
}

// Summary aggregates a run's outcomes.
type Summary struct {
	Outcomes  []Outcome
	Submitted int
	Skipped   int
	Failed    int
	DryRun    bool
}

// ExitCode maps a summary onto the process exit code: 0 when nothing failed,
// 1 when any submission failed.
func (s Summary) ExitCode() int {
	if s.Failed > 0 {
		return 1
	}
	return 0
}

// Session proves and maintains the authenticated session.
type Session interface {
	EnsureSession(ctx context.Context) (*auth.Token, error)
	Invalidate()
}

// SlotSource reads the week's slots from the portal.
type SlotSource interface {
	Slots(ctx context.Context) ([]portal.Slot, error)
}

// CodeSource resolves attendance codes from the configured chain.
type CodeSource interface {
	Resolve(ctx context.Context) ([]codes.Record, error)
}

// Submitter enters one code into the portal.
type Submitter interface {
	Submit(ctx context.Context, slot portal.Slot, code string) error
}

// Recorder persists per-slot outcomes.
type Recorder interface {
	Record(course, slot, code, status, errText string) error
}

// Runner executes submission runs against pluggable collaborators.
type Runner struct {
	Session   Session
	Slots     SlotSource
	Codes     CodeSource
	Submitter Submitter
	Stats     Recorder

	Course string
	DryRun bool
}

// Run performs one full submission pass. A session or slot-read failure is
// fatal; individual submission failures are collected into the summary.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if _, err := r.Session.EnsureSession(ctx); err != nil {
		return Summary{}, fmt.Errorf("establish session: %w", err)
	}

	// Slot reading drives the browser while code resolution hits disk and
	// network, so the two overlap safely.
	var slots []portal.Slot
	var records []codes.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		slots, err = r.Slots.Slots(gctx)
		if err != nil {
			return fmt.Errorf("read slots: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = r.Codes.Resolve(gctx)
		if err != nil {
			return fmt.Errorf("resolve codes: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	pending, outcomes := r.partition(slots, records)

	// Earliest slot first so expiring codes get their chance.
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i].Slot, pending[j].Slot
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Label < b.Label
	})

	for _, res := range pending {
		outcomes = append(outcomes, r.submitOne(ctx, res))
	}

	summary := Summary{Outcomes: outcomes, DryRun: r.DryRun}
	for _, out := range outcomes {
		switch out.Status {
		case StatusSubmitted:
			summary.Submitted++
		case StatusSkipped:
			summary.Skipped++
		case StatusFailed:
			summary.Failed++
		}
		r.record(out)
	}
	logging.Submit("run complete submitted=%d skipped=%d failed=%d dry_run=%v",
		summary.Submitted, summary.Skipped, summary.Failed, r.DryRun)
	return summary, nil
}

// partition splits matched results into submittable work and immediate
// outcomes (already ticked, or no code available).
func (r *Runner) partition(slots []portal.Slot, records []codes.Record) (pending []match.Result, outcomes []Outcome) {
	results := match.Match(slots, records)
	for _, res := range results {
		switch {
		case res.Slot.Submitted:
			outcomes = append(outcomes, Outcome{
				Slot: res.Slot, Kind: res.Kind,
				Status: StatusSkipped, Detail: "already submitted",
			})
		case res.Kind == match.KindUnmatched:
			outcomes = append(outcomes, Outcome{
				Slot: res.Slot, Kind: res.Kind,
				Status: StatusSkipped, Detail: "no code available",
			})
		default:
			pending = append(pending, res)
		}
	}
	return pending, outcomes
}

// submitOne performs one submission, re-proving the session once if the
// portal bounced it mid-run.
func (r *Runner) submitOne(ctx context.Context, res match.Result) Outcome {
	out := Outcome{Slot: res.Slot, Code: res.Record.Code, Kind: res.Kind}

	if r.DryRun {
		out.Status = StatusSkipped
		out.Detail = "dry run"
		logging.Submit("dry run: would submit %q to slot %q", out.Code, res.Slot.Label)
		return out
	}

	err := r.Submitter.Submit(ctx, res.Slot, res.Record.Code)
	if isSessionLost(err) {
		logging.SubmitWarn("session lost mid-run at slot %q, re-authenticating", res.Slot.Label)
		r.Session.Invalidate()
		if _, authErr := r.Session.EnsureSession(ctx); authErr != nil {
			out.Status = StatusFailed
			out.Err = authErr
			return out
		}
		err = r.Submitter.Submit(ctx, res.Slot, res.Record.Code)
	}

	switch {
	case err == nil:
		out.Status = StatusSubmitted
	case isAlreadySubmitted(err):
		out.Status = StatusSkipped
		out.Detail = "already submitted"
	default:
		out.Status = StatusFailed
		out.Err = err
	}
	return out
}

func (r *Runner) record(out Outcome) {
	if r.Stats == nil {
		return
	}
	errText := ""
	if out.Err != nil {
		errText = out.Err.Error()
	}
	if err := r.Stats.Record(r.Course, out.Slot.Label, out.Code, string(out.Status), errText); err != nil {
		logging.SubmitWarn("record stats for %q: %v", out.Slot.Label, err)
	}
}

func isSessionLost(err error) bool {
	var serr *portal.SubmitError
	return errors.As(err, &serr) && serr.Reason == portal.ReasonSessionLost
}

func isAlreadySubmitted(err error) bool {
	var serr *portal.SubmitError
	return errors.As(err, &serr) && serr.Reason == portal.ReasonAlreadySubmitted
}
