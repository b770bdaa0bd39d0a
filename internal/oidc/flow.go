package oidc

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// TokenResponse contains the tokens returned from the token endpoint.
type TokenResponse struct {
	// IDToken is the raw three-segment identity token
	IDToken string `json:"-"`

	// AccessToken is the OAuth2 access token
	AccessToken string `json:"-"`

	// RefreshToken is the OAuth2 refresh token (empty when not issued)
	RefreshToken string `json:"-"`

	// Expiry is when the access token expires (zero when not reported)
	Expiry time.Time
}

// AuthURL constructs the authorization URL the browser is sent to.
// It carries the client ID, redirect URI, scopes, CSRF state and the PKCE
// S256 challenge derived from codeVerifier. When allowedWorkspaceID is set
// the provider is asked to restrict the login to that workspace.
func (c *Client) AuthURL(state, codeVerifier, allowedWorkspaceID string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("id_token_add_organizations", "true"),
		oauth2.SetAuthURLParam("codex_cli_simplified_flow", "true"),
	}
	if codeVerifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(codeVerifier))
	}
	if allowedWorkspaceID != "" {
		opts = append(opts, oauth2.SetAuthURLParam("allowed_workspace_id", allowedWorkspaceID))
	}

	return c.oauth2Config.AuthCodeURL(state, opts...)
}

// Exchange exchanges an authorization code for tokens.
// It performs exactly one request to the token endpoint; failures are
// returned as *ExchangeError and never retried here.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	token, err := c.oauth2Config.Exchange(ctx, code, opts...)
	if err != nil {
		xe := classifyExchangeError(err)
		slog.Debug("token exchange failed",
			"stage", xe.Stage,
			"status", xe.StatusCode,
		)
		return nil, xe
	}

	// Extract ID token
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, &ExchangeError{Stage: StageMissingField, Field: "id_token"}
	}

	return &TokenResponse{
		IDToken:      rawIDToken,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}
