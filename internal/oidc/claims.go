package oidc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// AuthClaimsNamespace is the claim holding the provider's account data.
const AuthClaimsNamespace = "https://api.openai.com/auth"

// IdentityClaims are the identity facts extracted from an id token.
type IdentityClaims struct {
	Email     string
	PlanType  string // provider-defined, e.g. "free", "plus", "pro"
	AccountID string // workspace/tenant identifier
}

// ParseIDToken extracts identity claims from a raw id token.
// The token must have exactly three dot-separated segments and an unpadded
// base64url JSON object as payload. Header and signature are only required
// to be present; the signature is NOT verified. The token is trusted only
// because it arrived directly from the token endpoint over TLS.
func ParseIDToken(raw string) (*IdentityClaims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, &MalformedTokenError{Reason: fmt.Sprintf("expected 3 segments, got %d", len(parts))}
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, &MalformedTokenError{Reason: "payload is not base64url", Err: err}
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, &MalformedTokenError{Reason: "payload is not a JSON object", Err: err}
	}
	if claims == nil {
		return nil, &MalformedTokenError{Reason: "payload is not a JSON object"}
	}

	email, err := claimString(claims, "email")
	if err != nil {
		return nil, err
	}

	auth, ok := claims[AuthClaimsNamespace].(map[string]interface{})
	if !ok {
		return nil, &MissingClaimError{Field: AuthClaimsNamespace}
	}

	planType, err := claimString(auth, "chatgpt_plan_type")
	if err != nil {
		return nil, err
	}

	accountID, err := claimString(auth, "chatgpt_account_id")
	if err != nil {
		return nil, err
	}

	return &IdentityClaims{
		Email:     email,
		PlanType:  planType,
		AccountID: accountID,
	}, nil
}

// claimString extracts a string claim. Claim names are looked up verbatim;
// namespaced names contain dots, so no path splitting is done.
func claimString(claims map[string]interface{}, name string) (string, error) {
	value, ok := claims[name]
	if !ok {
		return "", &MissingClaimError{Field: name}
	}

	str, ok := value.(string)
	if !ok {
		return "", &MissingClaimError{Field: name}
	}

	return str, nil
}
