package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/waskosky/codex/internal/callback"
	"github.com/waskosky/codex/internal/oidc"
)

// State is a step of the login state machine.
type State int

const (
	NotStarted State = iota
	AwaitingBrowserOpen
	AwaitingCallback
	ExchangingToken
	ParsingClaims
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case AwaitingBrowserOpen:
		return "awaiting_browser_open"
	case AwaitingCallback:
		return "awaiting_callback"
	case ExchangingToken:
		return "exchanging_token"
	case ParsingClaims:
		return "parsing_claims"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

// ErrorKind classifies why a login failed.
type ErrorKind string

const (
	KindBind              ErrorKind = "bind"
	KindStateMismatch     ErrorKind = "state_mismatch"
	KindProvider          ErrorKind = "provider"
	KindTimeout           ErrorKind = "timeout"
	KindCancelled         ErrorKind = "cancelled"
	KindExchange          ErrorKind = "exchange"
	KindMalformedToken    ErrorKind = "malformed_token"
	KindMissingClaim      ErrorKind = "missing_claim"
	KindWorkspaceMismatch ErrorKind = "workspace_mismatch"
	KindPersist           ErrorKind = "persist"
	KindInternal          ErrorKind = "internal"
)

// FailedError is returned by Flow.Run for every failed login. From is the
// state the flow was in when it failed.
type FailedError struct {
	From State
	Kind ErrorKind
	Err  error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("login failed while %s (%s): %v", e.From, e.Kind, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// UserMessage renders the failure for a terminal user.
func (e *FailedError) UserMessage() string {
	switch e.Kind {
	case KindBind:
		return fmt.Sprintf("Could not start the local login server: %v. Is another login already running?", e.Err)
	case KindStateMismatch:
		return "The sign-in response did not match this login attempt. Please run login again."
	case KindProvider:
		var perr *callback.ProviderError
		if errors.As(e.Err, &perr) {
			if perr.Description != "" {
				return fmt.Sprintf("Sign-in was rejected by the provider: %s", perr.Description)
			}
			return fmt.Sprintf("Sign-in was rejected by the provider: %s", perr.Code)
		}
		return fmt.Sprintf("Sign-in was rejected by the provider: %v", e.Err)
	case KindTimeout:
		return "Timed out waiting for the browser sign-in. Please run login again."
	case KindCancelled:
		return "Login was cancelled."
	case KindExchange:
		var xe *oidc.ExchangeError
		if errors.As(e.Err, &xe) && xe.Stage == oidc.StageRequest {
			return fmt.Sprintf("Could not reach the sign-in service: %v", xe.Err)
		}
		return fmt.Sprintf("Failed to obtain tokens: %v", e.Err)
	case KindMalformedToken, KindMissingClaim:
		return fmt.Sprintf("The sign-in service returned an unexpected identity token: %v", e.Err)
	case KindWorkspaceMismatch:
		return e.Err.Error()
	case KindPersist:
		return fmt.Sprintf("Signed in, but the credential could not be saved: %v", e.Err)
	default:
		return fmt.Sprintf("Login failed: %v", e.Err)
	}
}

// WorkspaceMismatchError means the login resolved to a different account
// than the one it was restricted to.
type WorkspaceMismatchError struct {
	Want string
	Got  string
}

func (e *WorkspaceMismatchError) Error() string {
	return fmt.Sprintf("login is restricted to workspace %s, but the account signed into workspace %s", e.Want, e.Got)
}

// callbackKind maps a listener error onto an ErrorKind.
func callbackKind(err error) ErrorKind {
	var perr *callback.ProviderError
	switch {
	case errors.Is(err, callback.ErrStateMismatch):
		return KindStateMismatch
	case errors.As(err, &perr):
		return KindProvider
	case errors.Is(err, callback.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, callback.ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindInternal
	}
}

// claimsKind maps a claims parser error onto an ErrorKind.
func claimsKind(err error) ErrorKind {
	var missing *oidc.MissingClaimError
	if errors.As(err, &missing) {
		return KindMissingClaim
	}
	return KindMalformedToken
}
