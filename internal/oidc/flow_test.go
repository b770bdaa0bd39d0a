package oidc

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedirectURI = "http://localhost:1455/auth/callback"

func newTestClient(t *testing.T, issuer string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		Issuer:      issuer,
		ClientID:    "test-client",
		RedirectURI: testRedirectURI,
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

// newTokenServer starts a fake token endpoint. The handler receives the
// parsed form of every POST to /oauth/token.
func newTokenServer(t *testing.T, handler func(w http.ResponseWriter, form url.Values)) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler(w, r.PostForm)
	}))
	t.Cleanup(ts.Close)
	return ts.URL
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestAuthURL(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:8080")
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	authURL := c.AuthURL("test_state_123", verifier, "")
	require.True(t, strings.HasPrefix(authURL, "http://127.0.0.1:8080/oauth/authorize?"), authURL)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "test-client", q.Get("client_id"))
	assert.Equal(t, testRedirectURI, q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email offline_access", q.Get("scope"))
	assert.Equal(t, "test_state_123", q.Get("state"))
	assert.Equal(t, "true", q.Get("id_token_add_organizations"))
	assert.Equal(t, "true", q.Get("codex_cli_simplified_flow"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.False(t, q.Has("allowed_workspace_id"))

	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), q.Get("code_challenge"))
}

func TestAuthURLAllowedWorkspace(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:8080")

	u, err := url.Parse(c.AuthURL("s", "v", "12345678-0000-0000-0000-000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "12345678-0000-0000-0000-000000000000", u.Query().Get("allowed_workspace_id"))
}

func TestExchange(t *testing.T) {
	var gotForm url.Values
	issuer := newTokenServer(t, func(w http.ResponseWriter, form url.Values) {
		gotForm = form
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id_token":      "h.p.s",
			"access_token":  "access-123",
			"refresh_token": "refresh-123",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})

	c := newTestClient(t, issuer)
	tokens, err := c.Exchange(context.Background(), "auth-code-xyz", "the-verifier")
	require.NoError(t, err)

	assert.Equal(t, "h.p.s", tokens.IDToken)
	assert.Equal(t, "access-123", tokens.AccessToken)
	assert.Equal(t, "refresh-123", tokens.RefreshToken)
	assert.False(t, tokens.Expiry.IsZero())

	assert.Equal(t, "authorization_code", gotForm.Get("grant_type"))
	assert.Equal(t, "auth-code-xyz", gotForm.Get("code"))
	assert.Equal(t, "test-client", gotForm.Get("client_id"))
	assert.Equal(t, testRedirectURI, gotForm.Get("redirect_uri"))
	assert.Equal(t, "the-verifier", gotForm.Get("code_verifier"))
	assert.False(t, gotForm.Has("client_secret"))
}

func TestExchangeWithoutRefreshToken(t *testing.T) {
	issuer := newTokenServer(t, func(w http.ResponseWriter, _ url.Values) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id_token":     "h.p.s",
			"access_token": "access-123",
		})
	})

	tokens, err := newTestClient(t, issuer).Exchange(context.Background(), "code", "")
	require.NoError(t, err)
	assert.Empty(t, tokens.RefreshToken)
}

func TestExchangeErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    func(w http.ResponseWriter, form url.Values)
		wantStage  ExchangeStage
		wantStatus int
		wantBody   string
		wantField  string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ url.Values) {
				http.Error(w, "upstream exploded", http.StatusInternalServerError)
			},
			wantStage:  StageStatus,
			wantStatus: http.StatusInternalServerError,
			wantBody:   "upstream exploded",
		},
		{
			name: "invalid grant",
			handler: func(w http.ResponseWriter, _ url.Values) {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error":             "invalid_grant",
					"error_description": "code expired",
				})
			},
			wantStage:  StageStatus,
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid_grant",
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, _ url.Values) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id_token": `))
			},
			wantStage: StageDecode,
		},
		{
			name: "missing access token",
			handler: func(w http.ResponseWriter, _ url.Values) {
				writeJSON(w, http.StatusOK, map[string]string{"id_token": "h.p.s"})
			},
			wantStage: StageMissingField,
			wantField: "access_token",
		},
		{
			name: "missing id token",
			handler: func(w http.ResponseWriter, _ url.Values) {
				writeJSON(w, http.StatusOK, map[string]string{"access_token": "access-123"})
			},
			wantStage: StageMissingField,
			wantField: "id_token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := newTokenServer(t, tt.handler)

			_, err := newTestClient(t, issuer).Exchange(context.Background(), "code", "verifier")
			require.Error(t, err)

			var xe *ExchangeError
			require.True(t, errors.As(err, &xe), "expected *ExchangeError, got %T: %v", err, err)
			assert.Equal(t, tt.wantStage, xe.Stage)
			if tt.wantStatus != 0 {
				assert.Equal(t, tt.wantStatus, xe.StatusCode)
			}
			if tt.wantBody != "" {
				assert.Contains(t, xe.Body, tt.wantBody)
			}
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, xe.Field)
			}
		})
	}
}

func TestExchangeConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	issuer := ts.URL
	ts.Close()

	_, err := newTestClient(t, issuer).Exchange(context.Background(), "code", "verifier")

	var xe *ExchangeError
	require.True(t, errors.As(err, &xe), "expected *ExchangeError, got %v", err)
	assert.Equal(t, StageRequest, xe.Stage)
}

func TestExchangeTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		ts.Close()
	})

	c, err := NewClient(ClientConfig{
		Issuer:      ts.URL,
		ClientID:    "test-client",
		RedirectURI: testRedirectURI,
		Timeout:     100 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Exchange(context.Background(), "code", "verifier")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var xe *ExchangeError
	require.True(t, errors.As(err, &xe))
	assert.Equal(t, StageRequest, xe.Stage)
}

func TestExchangeErrorMessages(t *testing.T) {
	assert.Equal(t, "token endpoint returned HTTP 500: boom",
		(&ExchangeError{Stage: StageStatus, StatusCode: 500, Body: "boom"}).Error())
	assert.Equal(t, "token response missing id_token",
		(&ExchangeError{Stage: StageMissingField, Field: "id_token"}).Error())
	assert.Equal(t, "token response missing access_token",
		(&ExchangeError{Stage: StageMissingField, Field: "access_token"}).Error())
	assert.Len(t, truncate(strings.Repeat("x", 5000)), maxErrorBody)
}
