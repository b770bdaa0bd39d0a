package callback

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
)

// handleCallback handles the provider's authorization redirect.
//  1. Reject anything that is not a GET (keep waiting)
//  2. Provider error redirect: deliver ProviderError
//  3. Missing code or state: answer 400 and keep waiting
//  4. State mismatch: deliver ErrStateMismatch
//  5. Otherwise deliver the authorization code
func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Extract callback parameters
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")
	errorParam := query.Get("error")
	errorDesc := query.Get("error_description")

	slog.Info("callback received", // #nosec G706 -- only boolean values logged, no injection risk
		"code_present", code != "",
		"state_present", state != "",
		"error_present", errorParam != "",
	)

	// Handle provider error responses
	if errorParam != "" {
		slog.Error("provider error in callback", // #nosec G706 -- values sanitized via sanitizeLog
			"error", sanitizeLog(errorParam),
			"description", sanitizeLog(errorDesc),
		)
		msg := fmt.Sprintf("Sign-in failed: %s", errorDesc)
		if errorDesc == "" {
			msg = fmt.Sprintf("Sign-in failed: %s", errorParam)
		}

		l.complete(w, result{err: &ProviderError{Code: errorParam, Description: errorDesc}}, func() {
			l.renderError(w, msg)
		})
		return
	}

	// Validate parameters
	if code == "" || state == "" {
		slog.Warn("invalid callback parameters", // #nosec G706 -- only boolean values logged, no injection risk
			"code_present", code != "",
			"state_present", state != "",
		)
		l.renderError(w, "Invalid callback parameters")
		return
	}

	// Byte-for-byte comparison; constant time so the expected state cannot
	// be probed through response timing.
	if subtle.ConstantTimeCompare([]byte(state), []byte(l.cfg.ExpectedState)) != 1 {
		slog.Error("callback state mismatch", // #nosec G706 -- values redacted via redactLog
			"state", redactLog(state),
		)
		l.complete(w, result{err: ErrStateMismatch}, func() {
			l.renderError(w, "This sign-in link does not belong to the current login attempt. Please start the login again.")
		})
		return
	}

	slog.Info("authorization code received", // #nosec G706 -- values redacted via redactLog
		"code", redactLog(code),
	)

	l.complete(w, result{code: code}, func() {
		l.renderSuccess(w, "You are now signed in. You may close this window and return to your terminal.")
	})
}

// handleCancel lets a newer login attempt shut down a listener left
// behind on the same port. Browsers label subresource requests from other
// sites with Sec-Fetch-Site; those are refused so a page the user happens
// to visit cannot end the login.
func (l *Listener) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch site := r.Header.Get("Sec-Fetch-Site"); site {
	case "", "none", "same-origin":
	default:
		slog.Warn("cross-site cancel request refused", // #nosec G706 -- values sanitized via sanitizeLog
			"sec_fetch_site", sanitizeLog(site),
		)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	slog.Info("login cancel requested")

	l.complete(w, result{err: ErrCancelled}, func() {
		l.renderPage(w, http.StatusOK, "error.html", "Login Cancelled", "This login attempt was cancelled.")
	})
}

// handleNotFound answers unrelated requests (favicon, probes) without
// ending the wait.
func (l *Listener) handleNotFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "not found", http.StatusNotFound)
}

// complete records res as the listener's outcome and renders the page for
// it. A request arriving after the outcome is already fixed only gets an
// informational page.
func (l *Listener) complete(w http.ResponseWriter, res result, render func()) {
	if !l.finish(res) {
		slog.Warn("callback received after login attempt finished")
		l.renderPage(w, http.StatusConflict, "error.html", "Login Already Finished",
			"This login attempt has already finished. You may close this window.")
		return
	}
	render()
}
