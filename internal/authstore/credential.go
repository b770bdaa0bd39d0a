// Package authstore persists the credential produced by a completed login.
package authstore

import (
	"fmt"
	"time"

	"github.com/waskosky/codex/internal/oidc"
)

// Tokens holds the token material returned by the token endpoint.
type Tokens struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	AccountID    string `json:"account_id,omitempty"`
}

// Credential is the persisted result of a successful login.
type Credential struct {
	Issuer      string    `json:"issuer"`
	ClientID    string    `json:"client_id"`
	Tokens      Tokens    `json:"tokens"`
	Email       string    `json:"email"`
	PlanType    string    `json:"plan_type"`
	LastRefresh time.Time `json:"last_refresh"`
}

// NewCredential combines a token response with the claims parsed from its
// id token. Both are required.
func NewCredential(tokens *oidc.TokenResponse, claims *oidc.IdentityClaims, issuer, clientID string, now time.Time) (*Credential, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token response is nil")
	}
	if claims == nil {
		return nil, fmt.Errorf("identity claims are nil")
	}
	if tokens.IDToken == "" || tokens.AccessToken == "" {
		return nil, fmt.Errorf("token response is missing id_token or access_token")
	}

	return &Credential{
		Issuer:   issuer,
		ClientID: clientID,
		Tokens: Tokens{
			IDToken:      tokens.IDToken,
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			AccountID:    claims.AccountID,
		},
		Email:       claims.Email,
		PlanType:    claims.PlanType,
		LastRefresh: now.UTC().Truncate(time.Second),
	}, nil
}
