package portal

import "fmt"

// SubmitReason classifies why a submission did not land.
type SubmitReason string

const (
	// ReasonAlreadySubmitted means the portal already shows the tick mark.
	ReasonAlreadySubmitted SubmitReason = "already_submitted"
	// ReasonExpiredCode means the portal reported the code as expired.
	ReasonExpiredCode SubmitReason = "expired_code"
	// ReasonRejected means the portal rejected the code as invalid.
	ReasonRejected SubmitReason = "portal_rejected"
	// ReasonConfirmationMissing means the submit went through but the tick
	// never appeared on re-read.
	ReasonConfirmationMissing SubmitReason = "confirmation_missing"
	// ReasonPageStructure means the expected entry form was not found.
	ReasonPageStructure SubmitReason = "page_structure"
	// ReasonSessionLost means the portal bounced the page to the login form
	// mid-run.
	ReasonSessionLost SubmitReason = "session_lost"
)

// SubmitError carries the classified failure for one submission attempt.
type SubmitError struct {
	Reason SubmitReason
	Slot   string
	Detail string
}

func (e *SubmitError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("submit %q: %s", e.Slot, e.Reason)
	}
	return fmt.Sprintf("submit %q: %s (%s)", e.Slot, e.Reason, e.Detail)
}

func submitErr(reason SubmitReason, slot, detail string) *SubmitError {
	return &SubmitError{Reason: reason, Slot: slot, Detail: detail}
}
