package auth

import "fmt"

// Reason is the machine-readable cause of an authentication failure.
type Reason string

const (
	ReasonNoCredentials  Reason = "no_credentials"
	ReasonBadCredentials Reason = "bad_credentials"
	ReasonMFATimeout     Reason = "mfa_timeout"
	ReasonExpiredToken   Reason = "expired_token"
	ReasonNetwork        Reason = "network"
)

// AuthError is fatal for the run: no submissions are attempted after one.
type AuthError struct {
	Reason Reason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth failed (%s)", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

func failure(reason Reason, err error) *AuthError {
	return &AuthError{Reason: reason, Err: err}
}
