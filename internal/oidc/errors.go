package oidc

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// ExchangeStage identifies where a token exchange failed.
type ExchangeStage string

const (
	// StageRequest is a transport failure (connect, TLS, timeout).
	StageRequest ExchangeStage = "request"
	// StageStatus is a non-2xx reply or an OAuth error document from the token endpoint.
	StageStatus ExchangeStage = "status"
	// StageDecode is a 2xx reply whose body could not be parsed.
	StageDecode ExchangeStage = "decode"
	// StageMissingField is a parsed reply lacking id_token or access_token.
	StageMissingField ExchangeStage = "missing_field"
)

// maxErrorBody bounds how much of a provider error body is kept.
const maxErrorBody = 2048

// ExchangeError reports a failed authorization-code exchange.
type ExchangeError struct {
	Stage      ExchangeStage
	StatusCode int    // HTTP status, StageStatus only
	Body       string // provider response body, when available
	Field      string // missing token name, StageMissingField only
	Err        error
}

func (e *ExchangeError) Error() string {
	switch e.Stage {
	case StageRequest:
		return fmt.Sprintf("token exchange request failed: %v", e.Err)
	case StageStatus:
		if e.Body != "" {
			return fmt.Sprintf("token endpoint returned HTTP %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("token endpoint returned HTTP %d", e.StatusCode)
	case StageMissingField:
		return fmt.Sprintf("token response missing %s", e.Field)
	default:
		return fmt.Sprintf("failed to decode token response: %v", e.Err)
	}
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// classifyExchangeError maps an oauth2 error onto the stage it came from.
func classifyExchangeError(err error) *ExchangeError {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		xe := &ExchangeError{Stage: StageStatus, Body: truncate(string(rErr.Body)), Err: err}
		if rErr.Response != nil {
			xe.StatusCode = rErr.Response.StatusCode
		}
		return xe
	}

	// oauth2 reports an absent access_token only through its message.
	if strings.Contains(err.Error(), "server response missing access_token") {
		return &ExchangeError{Stage: StageMissingField, Field: "access_token", Err: err}
	}

	var uErr *url.Error
	if errors.As(err, &uErr) {
		return &ExchangeError{Stage: StageRequest, Err: err}
	}

	return &ExchangeError{Stage: StageDecode, Err: err}
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}

// MalformedTokenError means the id token is not a decodable three-segment token.
type MalformedTokenError struct {
	Reason string
	Err    error
}

func (e *MalformedTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed id token: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed id token: %s", e.Reason)
}

func (e *MalformedTokenError) Unwrap() error { return e.Err }

// MissingClaimError names a required claim absent from the id token payload.
type MissingClaimError struct {
	Field string
}

func (e *MissingClaimError) Error() string {
	return fmt.Sprintf("id token missing required claim %q", e.Field)
}
