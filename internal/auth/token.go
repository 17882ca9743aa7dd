package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"alwaysattend/internal/browser"

	"github.com/go-rod/rod/lib/proto"
)

// Token is the serialized proof of a prior successful login. Beyond Identity
// and CapturedAt the payload is opaque to everything outside this package.
type Token struct {
	Identity    string                       `json:"identity"`
	CapturedAt  time.Time                    `json:"captured_at"`
	Invalidated bool                         `json:"invalidated,omitempty"`
	Cookies     []*proto.NetworkCookieParam  `json:"cookies"`
	Storage     browser.StorageState         `json:"storage"`
}

// ErrNoToken is returned when no usable token is stored.
var ErrNoToken = errors.New("no stored session token")

// Store persists one session token per portal identity.
type Store struct {
	path string
}

// NewStore creates a store writing to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the stored token. A held write lock counts as "token unavailable"
// rather than something to wait on.
func (s *Store) Load(identity string) (*Token, error) {
	if _, err := os.Stat(s.lockPath()); err == nil {
		return nil, ErrNoToken
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("read session token: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		// A corrupt token file is equivalent to no token; login will replace it.
		return nil, ErrNoToken
	}
	if tok.Identity != identity || tok.Invalidated {
		return nil, ErrNoToken
	}
	return &tok, nil
}

// Save atomically replaces the stored token. The previous token stays on disk
// until the new one is fully written.
func (s *Store) Save(tok *Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	lock, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("session store locked: %w", err)
	}
	_ = lock.Close()
	defer os.Remove(s.lockPath())

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session token: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session token: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session token: %w", err)
	}
	return nil
}

// MarkInvalid flags the stored token as rejected by the portal without
// deleting it. The flag survives restarts so the next run goes straight to
// interactive login.
func (s *Store) MarkInvalid(identity string) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil || tok.Identity != identity {
		return nil
	}
	tok.Invalidated = true
	return s.Save(&tok)
}

func (s *Store) lockPath() string { return s.path + ".lock" }
