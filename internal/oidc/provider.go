// Package oidc talks to the identity provider: it builds the authorization
// URL, exchanges the authorization code for tokens and extracts identity
// claims from the returned id token.
package oidc

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	authorizePath = "/oauth/authorize"
	tokenPath     = "/oauth/token"

	defaultExchangeTimeout = 30 * time.Second
)

// DefaultScopes are requested on every login.
var DefaultScopes = []string{"openid", "profile", "email", "offline_access"}

// ClientConfig configures a Client for one login attempt.
type ClientConfig struct {
	Issuer      string
	ClientID    string
	RedirectURI string // must match the redirect_uri of the authorization request exactly

	// Timeout bounds the whole token exchange round trip.
	Timeout time.Duration

	// HTTPClient overrides the client used for the token endpoint.
	HTTPClient *http.Client
}

// Client wraps the OAuth2 configuration for a single issuer/redirect pair.
type Client struct {
	oauth2Config *oauth2.Config
	httpClient   *http.Client
	timeout      time.Duration
}

// NewClient creates a client for the given issuer. The issuer's endpoints are
// fixed paths below the base URL; no discovery request is made.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("redirect URI is required")
	}

	issuer := strings.TrimRight(cfg.Issuer, "/")

	oauth2Config := &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  issuer + authorizePath,
			TokenURL: issuer + tokenPath,
			// Public client: client_id travels in the form body, no secret.
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: DefaultScopes,
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultExchangeTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		oauth2Config: oauth2Config,
		httpClient:   httpClient,
		timeout:      timeout,
	}, nil
}

// RedirectURI returns the redirect URI this client exchanges codes for.
func (c *Client) RedirectURI() string {
	return c.oauth2Config.RedirectURL
}

// TokenURL returns the token endpoint.
func (c *Client) TokenURL() string {
	return c.oauth2Config.Endpoint.TokenURL
}
