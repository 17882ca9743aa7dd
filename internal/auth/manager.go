// Package auth owns the authenticated session lifecycle: loading and probing a
// stored token, driving the federated login and MFA challenge when the token
// is stale, and persisting the refreshed token.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"alwaysattend/internal/config"
	"alwaysattend/internal/logging"
)

// State names a position in the session lifecycle.
type State string

const (
	StateNoSession        State = "NO_SESSION"
	StateLoading          State = "LOADING"
	StateValidating       State = "VALIDATING"
	StateValid            State = "VALID"
	StateStale            State = "STALE"
	StateInteractiveLogin State = "INTERACTIVE_LOGIN"
	StateMFAChallenge     State = "MFA_CHALLENGE"
	StateMFAResolved      State = "MFA_RESOLVED"
	StateAuthFailed       State = "AUTH_FAILED"
)

// LoginResult is the outcome of submitting credentials to the IdP.
type LoginResult int

const (
	// LoginAuthenticated means the portal accepted the credentials with no
	// second factor.
	LoginAuthenticated LoginResult = iota
	// LoginMFARequired means the IdP is asking for a one-time code.
	LoginMFARequired
	// LoginRejected is a definitive credential rejection.
	LoginRejected
)

// Driver abstracts the browser-facing half of the login flow so the state
// machine can be exercised without a live portal.
type Driver interface {
	// Probe presents a stored token to the portal and reports whether it is
	// still accepted.
	Probe(ctx context.Context, tok *Token) (bool, error)
	// BeginLogin submits username/password to the federated login form.
	BeginLogin(ctx context.Context, username, password string) (LoginResult, error)
	// SubmitOTP enters a one-time code into the MFA challenge.
	SubmitOTP(ctx context.Context, code string) error
	// ConfirmAuthenticated waits for the post-login redirect back to the portal.
	ConfirmAuthenticated(ctx context.Context) (bool, error)
	// CaptureToken serializes the now-authenticated session.
	CaptureToken(ctx context.Context, identity string) (*Token, error)
}

// Manager produces a session token proven valid for the portal, minimizing
// interactive MFA prompts across runs.
type Manager struct {
	cfg    *config.Config
	store  *Store
	driver Driver

	// resume carries the operator's "MFA done" signal for the manual path.
	resume chan struct{}

	mu    sync.Mutex
	token *Token
	state State
	trace []State

	// loginRetries bounds network-level retries during login.
	loginRetries int
	backoff      time.Duration
}

// NewManager wires the state machine to a token store and a login driver.
func NewManager(cfg *config.Config, store *Store, driver Driver) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        store,
		driver:       driver,
		resume:       make(chan struct{}, 1),
		state:        StateNoSession,
		trace:        []State{StateNoSession},
		loginRetries: 3,
		backoff:      time.Second,
	}
}

// ResumeMFA signals that the operator finished the MFA challenge out-of-band.
func (m *Manager) ResumeMFA() {
	select {
	case m.resume <- struct{}{}:
	default:
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Trace returns the sequence of states visited so far.
func (m *Manager) Trace() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.trace))
	copy(out, m.trace)
	return out
}

// Invalidate marks the current token as rejected by the portal. The stored
// token is flagged, not deleted; it is only replaced on the next successful
// login.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
	m.transition(StateStale)
	if err := m.store.MarkInvalid(m.cfg.Portal.Identity()); err != nil {
		logging.AuthWarn("mark token invalid: %v", err)
	}
}

// EnsureSession returns a token proven valid for the portal. Idempotent within
// a run: repeated calls return the same token without re-running MFA.
func (m *Manager) EnsureSession(ctx context.Context) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != nil && m.state == StateValid {
		return m.token, nil
	}

	identity := m.cfg.Portal.Identity()

	m.transition(StateLoading)
	stored, err := m.store.Load(identity)
	switch {
	case err == nil:
		m.transition(StateValidating)
		ok, probeErr := m.probe(ctx, stored)
		if probeErr != nil {
			m.transition(StateAuthFailed)
			return nil, failure(ReasonNetwork, probeErr)
		}
		if ok {
			m.transition(StateValid)
			m.token = stored
			logging.Auth("stored session accepted identity=%s age=%s", identity, time.Since(stored.CapturedAt).Round(time.Second))
			return stored, nil
		}
		logging.Auth("stored session stale identity=%s", identity)
		m.transition(StateStale)
	case errors.Is(err, ErrNoToken):
		// No token at all: go straight to interactive login.
	default:
		m.transition(StateAuthFailed)
		return nil, failure(ReasonExpiredToken, err)
	}

	tok, loginErr := m.interactiveLogin(ctx, identity)
	if loginErr != nil {
		m.transition(StateAuthFailed)
		return nil, loginErr
	}

	m.transition(StateValid)
	m.token = tok
	return tok, nil
}

// interactiveLogin drives INTERACTIVE_LOGIN → MFA_CHALLENGE → MFA_RESOLVED.
// Caller holds the lock.
func (m *Manager) interactiveLogin(ctx context.Context, identity string) (*Token, error) {
	m.transition(StateInteractiveLogin)

	if !m.cfg.HasCredentials() {
		return nil, failure(ReasonNoCredentials, errors.New("portal username/password not configured"))
	}

	var result LoginResult
	var err error
	for attempt := 0; attempt < m.loginRetries; attempt++ {
		result, err = m.driver.BeginLogin(ctx, m.cfg.Portal.Username, m.cfg.Portal.Password)
		if err == nil {
			break
		}
		logging.AuthWarn("login attempt %d/%d failed: %v", attempt+1, m.loginRetries, err)
		select {
		case <-ctx.Done():
			return nil, failure(ReasonNetwork, ctx.Err())
		case <-time.After(m.backoff << attempt):
		}
	}
	if err != nil {
		return nil, failure(ReasonNetwork, err)
	}

	switch result {
	case LoginRejected:
		return nil, failure(ReasonBadCredentials, errors.New("portal rejected credentials"))
	case LoginMFARequired:
		if err := m.resolveMFA(ctx); err != nil {
			return nil, err
		}
	case LoginAuthenticated:
		// no second factor demanded
	}

	ok, err := m.driver.ConfirmAuthenticated(ctx)
	if err != nil {
		return nil, failure(ReasonNetwork, err)
	}
	if !ok {
		return nil, failure(ReasonBadCredentials, errors.New("portal did not confirm authenticated state"))
	}
	m.transition(StateMFAResolved)

	tok, err := m.driver.CaptureToken(ctx, identity)
	if err != nil {
		return nil, failure(ReasonNetwork, err)
	}
	tok.CapturedAt = time.Now()
	if err := m.store.Save(tok); err != nil {
		// A save failure is not fatal for this run: the session itself is live.
		logging.AuthWarn("persist session token: %v", err)
	} else {
		logging.Auth("session token persisted identity=%s", identity)
	}
	return tok, nil
}

// resolveMFA handles the challenge with the first applicable strategy:
// configured TOTP seed, one-shot manual code, or an unbounded wait for the
// operator to finish the challenge in the headed browser.
func (m *Manager) resolveMFA(ctx context.Context) error {
	m.transition(StateMFAChallenge)

	if secret := m.cfg.Portal.TOTPSecret; secret != "" {
		code, err := GenerateTOTP(secret, time.Now())
		if err != nil {
			return failure(ReasonBadCredentials, err)
		}
		logging.AuthDebug("submitting derived TOTP code")
		if err := m.driver.SubmitOTP(ctx, code); err != nil {
			return failure(ReasonNetwork, err)
		}
		return nil
	}

	if code := m.cfg.Portal.MFACode; code != "" {
		logging.AuthDebug("submitting manual MFA code from config")
		if err := m.driver.SubmitOTP(ctx, code); err != nil {
			return failure(ReasonNetwork, err)
		}
		return nil
	}

	// Manual path: suspend until the operator signals completion. MFA duration
	// is unbounded; only explicit cancellation aborts the wait.
	logging.Auth("waiting for operator to complete MFA in the browser")
	select {
	case <-m.resume:
		return nil
	case <-ctx.Done():
		return failure(ReasonMFATimeout, ctx.Err())
	}
}

// probe releases no resources; it only asks the driver whether the token still
// opens an authenticated page.
func (m *Manager) probe(ctx context.Context, tok *Token) (bool, error) {
	return m.driver.Probe(ctx, tok)
}

func (m *Manager) transition(next State) {
	m.state = next
	m.trace = append(m.trace, next)
	logging.AuthDebug("state -> %s", next)
}
