// Package session holds the state of a single in-progress login attempt.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Session represents one login attempt.
// It carries everything the flow needs from building the authorization URL
// through persisting the credential. A Session is owned by exactly one flow
// and discarded when that flow terminates.
type Session struct {
	// ID is a random identifier used only to correlate log lines
	ID string

	// Issuer is the identity provider base URL
	Issuer string

	// ClientID is the OAuth client identifier
	ClientID string

	// Port is the requested loopback port (0 = OS-assigned)
	Port int

	// State is the CSRF state sent in the authorization request and
	// expected back on the redirect
	State string

	// CodeVerifier is the PKCE code verifier (sent with the token exchange)
	CodeVerifier string

	// ForcedAccountID restricts the login to one workspace/account (empty = any)
	ForcedAccountID string

	// Home is the directory the credential is eventually persisted under.
	// The login core never reads it.
	Home string

	// CreatedAt is when this session was created
	CreatedAt time.Time
}

// Params are the caller-supplied inputs for a session.
type Params struct {
	Issuer   string
	ClientID string
	Port     int
	Home     string
}

// Overrides make a session deterministic. They exist for tests and
// scripted environments that drive the flow without a real provider.
type Overrides struct {
	// State replaces the random CSRF state. Required.
	State string

	// AccountID forces the workspace/account the login must resolve to.
	AccountID string
}

// New creates a session with a freshly generated CSRF state and PKCE verifier.
func New(p Params) (*Session, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	return newSession(p, state, ""), nil
}

// NewWithOverrides creates a session whose state (and optionally account id)
// are fixed by the caller. The forced state is still compared literally on
// callback; an empty state is rejected so the check can never be disabled.
func NewWithOverrides(p Params, o Overrides) (*Session, error) {
	if o.State == "" {
		return nil, fmt.Errorf("forced state must not be empty")
	}
	return newSession(p, o.State, o.AccountID), nil
}

func newSession(p Params, state, forcedAccountID string) *Session {
	return &Session{
		ID:              uuid.NewString(),
		Issuer:          p.Issuer,
		ClientID:        p.ClientID,
		Port:            p.Port,
		State:           state,
		CodeVerifier:    oauth2.GenerateVerifier(),
		ForcedAccountID: forcedAccountID,
		Home:            p.Home,
		CreatedAt:       time.Now(),
	}
}

// generateState creates a random state parameter for CSRF protection.
// The state is 16 random bytes encoded as hex (32 characters).
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
