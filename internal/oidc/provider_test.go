package oidc

import (
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient(ClientConfig{
		Issuer:      "http://127.0.0.1:8080/",
		ClientID:    "test-client",
		RedirectURI: "http://localhost:1455/auth/callback",
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if got := c.TokenURL(); got != "http://127.0.0.1:8080/oauth/token" {
		t.Errorf("TokenURL = %q", got)
	}
	if got := c.RedirectURI(); got != "http://localhost:1455/auth/callback" {
		t.Errorf("RedirectURI = %q", got)
	}
	if c.timeout != defaultExchangeTimeout {
		t.Errorf("timeout = %s, want %s", c.timeout, defaultExchangeTimeout)
	}
	if c.httpClient.Timeout != defaultExchangeTimeout {
		t.Errorf("http client timeout = %s", c.httpClient.Timeout)
	}
}

func TestNewClientCustomTimeout(t *testing.T) {
	c, err := NewClient(ClientConfig{
		Issuer:      "http://127.0.0.1:8080",
		ClientID:    "test-client",
		RedirectURI: "http://localhost:1455/auth/callback",
		Timeout:     5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.timeout != 5*time.Second {
		t.Errorf("timeout = %s, want 5s", c.timeout)
	}
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
	}{
		{name: "missing issuer", cfg: ClientConfig{ClientID: "c", RedirectURI: "http://localhost/cb"}},
		{name: "missing client id", cfg: ClientConfig{Issuer: "http://x", RedirectURI: "http://localhost/cb"}},
		{name: "missing redirect", cfg: ClientConfig{Issuer: "http://x", ClientID: "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(tt.cfg); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
