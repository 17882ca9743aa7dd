package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"alwaysattend/internal/auth"
	"alwaysattend/internal/codes"
	"alwaysattend/internal/portal"
)

type fakeSession struct {
	ensureCalls int
	invalidated int
	err         error
}

func (f *fakeSession) EnsureSession(ctx context.Context) (*auth.Token, error) {
	f.ensureCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &auth.Token{Identity: "s123"}, nil
}

func (f *fakeSession) Invalidate() { f.invalidated++ }

type fakeSlots struct {
	slots []portal.Slot
	err   error
}

func (f *fakeSlots) Slots(ctx context.Context) ([]portal.Slot, error) { return f.slots, f.err }

type fakeCodes struct {
	records []codes.Record
	err     error
}

func (f *fakeCodes) Resolve(ctx context.Context) ([]codes.Record, error) { return f.records, f.err }

type fakeSubmitter struct {
	submitted []string // labels in submission order
	errs      map[string]error
	failOnce  map[string]error
}

func (f *fakeSubmitter) Submit(ctx context.Context, slot portal.Slot, code string) error {
	if err, ok := f.failOnce[slot.Label]; ok {
		delete(f.failOnce, slot.Label)
		return err
	}
	if err, ok := f.errs[slot.Label]; ok {
		return err
	}
	f.submitted = append(f.submitted, slot.Label)
	return nil
}

type fakeStats struct {
	statuses map[string]string
}

func (f *fakeStats) Record(course, slot, code, status, errText string) error {
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[slot] = status
	return nil
}

func day(d int) time.Time {
	return time.Date(2026, time.August, d, 0, 0, 0, 0, time.Local)
}

func newRunner(session *fakeSession, slots []portal.Slot, records []codes.Record, sub *fakeSubmitter) (*Runner, *fakeStats) {
	stats := &fakeStats{}
	return &Runner{
		Session:   session,
		Slots:     &fakeSlots{slots: slots},
		Codes:     &fakeCodes{records: records},
		Submitter: sub,
		Stats:     stats,
		Course:    "COS1234",
	}, stats
}

func TestRunSubmitsMatchedSlots(t *testing.T) {
	slots := []portal.Slot{
		{Label: "Workshop 1", Date: day(19)},
		{Label: "Lab 2", Date: day(20)},
	}
	records := []codes.Record{
		{Slot: "Workshop 1", Code: "AAA11"},
		{Slot: "Lab 2", Code: "BBB22"},
	}
	sub := &fakeSubmitter{}
	r, stats := newRunner(&fakeSession{}, slots, records, sub)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.Submitted)
	require.Zero(t, sum.Failed)
	require.Equal(t, []string{"Workshop 1", "Lab 2"}, sub.submitted, "earliest date first")
	require.Equal(t, "submitted", stats.statuses["Workshop 1"])
	require.Equal(t, 0, sum.ExitCode())
}

func TestAlreadyTickedSlotsSkippedWithoutSubmit(t *testing.T) {
	slots := []portal.Slot{
		{Label: "Workshop 1", Date: day(19), Submitted: true},
	}
	records := []codes.Record{{Slot: "Workshop 1", Code: "AAA11"}}
	sub := &fakeSubmitter{}
	r, _ := newRunner(&fakeSession{}, slots, records, sub)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Skipped)
	require.Empty(t, sub.submitted, "ticked slots must not be re-submitted")
}

func TestZeroCodesSkipsEverything(t *testing.T) {
	slots := []portal.Slot{
		{Label: "Workshop 1", Date: day(19)},
		{Label: "Lab 2", Date: day(20)},
	}
	sub := &fakeSubmitter{}
	r, _ := newRunner(&fakeSession{}, slots, nil, sub)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.Skipped)
	require.Zero(t, sum.Failed)
	require.Empty(t, sub.submitted)
}

func TestDryRunTouchesNothing(t *testing.T) {
	slots := []portal.Slot{{Label: "Workshop 1", Date: day(19)}}
	records := []codes.Record{{Slot: "Workshop 1", Code: "AAA11"}}
	sub := &fakeSubmitter{}
	r, _ := newRunner(&fakeSession{}, slots, records, sub)
	r.DryRun = true

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, sum.DryRun)
	require.Equal(t, 1, sum.Skipped)
	require.Empty(t, sub.submitted)
}

func TestSessionFailureIsFatal(t *testing.T) {
	session := &fakeSession{err: errors.New("no credentials")}
	r, _ := newRunner(session, nil, nil, &fakeSubmitter{})

	_, err := r.Run(context.Background())
	require.Error(t, err)
}

func TestSubmissionFailureDoesNotStopRun(t *testing.T) {
	slots := []portal.Slot{
		{Label: "Workshop 1", Date: day(19)},
		{Label: "Lab 2", Date: day(20)},
	}
	records := []codes.Record{
		{Slot: "Workshop 1", Code: "AAA11"},
		{Slot: "Lab 2", Code: "BBB22"},
	}
	sub := &fakeSubmitter{errs: map[string]error{
		"Workshop 1": &portal.SubmitError{Reason: portal.ReasonRejected, Slot: "Workshop 1"},
	}}
	r, stats := newRunner(&fakeSession{}, slots, records, sub)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 1, sum.Submitted)
	require.Equal(t, 1, sum.ExitCode())
	require.Equal(t, "failed", stats.statuses["Workshop 1"])
}

func TestSessionLostTriggersOneReauth(t *testing.T) {
	slots := []portal.Slot{{Label: "Workshop 1", Date: day(19)}}
	records := []codes.Record{{Slot: "Workshop 1", Code: "AAA11"}}
	sub := &fakeSubmitter{failOnce: map[string]error{
		"Workshop 1": &portal.SubmitError{Reason: portal.ReasonSessionLost, Slot: "Workshop 1"},
	}}
	session := &fakeSession{}
	r, _ := newRunner(session, slots, records, sub)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Submitted)
	require.Equal(t, 1, session.invalidated)
	require.Equal(t, 2, session.ensureCalls, "initial ensure plus one re-auth")
}

func TestAlreadySubmittedFromPortalCountsSkipped(t *testing.T) {
	slots := []portal.Slot{{Label: "Workshop 1", Date: day(19)}}
	records := []codes.Record{{Slot: "Workshop 1", Code: "AAA11"}}
	sub := &fakeSubmitter{errs: map[string]error{
		"Workshop 1": &portal.SubmitError{Reason: portal.ReasonAlreadySubmitted, Slot: "Workshop 1"},
	}}
	r, _ := newRunner(&fakeSession{}, slots, records, sub)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Skipped)
	require.Zero(t, sum.Failed)
}
