package callback

import (
	"errors"
	"fmt"
)

var (
	// ErrStateMismatch means the redirect's state differs from the expected
	// one: a possible CSRF attempt or a stale browser tab.
	ErrStateMismatch = errors.New("callback state does not match the login session")

	// ErrTimeout means no qualifying redirect arrived within MaxWait.
	ErrTimeout = errors.New("timed out waiting for the authorization callback")

	// ErrCancelled means the listener was told to stop before a callback arrived.
	ErrCancelled = errors.New("login was cancelled")
)

// ProviderError is an error redirect sent by the identity provider.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("provider returned error %q: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("provider returned error %q", e.Code)
}

// BindError means the loopback port could not be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind callback listener on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }
