package authstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/waskosky/codex/internal/oidc"
)

func testCredential(t *testing.T) *Credential {
	t.Helper()
	cred, err := NewCredential(
		&oidc.TokenResponse{IDToken: "a.b.c", AccessToken: "access", RefreshToken: "refresh"},
		&oidc.IdentityClaims{Email: "user@example.com", PlanType: "pro", AccountID: "acct-1"},
		"https://auth.example.com", "client-1",
		time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC),
	)
	if err != nil {
		t.Fatalf("NewCredential failed: %v", err)
	}
	return cred
}

func TestNewCredential(t *testing.T) {
	cred := testCredential(t)

	if cred.Tokens.AccountID != "acct-1" {
		t.Errorf("expected account id from claims, got %q", cred.Tokens.AccountID)
	}
	if cred.PlanType != "pro" || cred.Email != "user@example.com" {
		t.Errorf("claims not copied: %+v", cred)
	}
	if !cred.LastRefresh.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("unexpected last refresh %v", cred.LastRefresh)
	}
}

func TestNewCredentialRejectsIncompleteInput(t *testing.T) {
	tokens := &oidc.TokenResponse{IDToken: "a.b.c", AccessToken: "access"}
	claims := &oidc.IdentityClaims{Email: "e", PlanType: "p", AccountID: "a"}
	now := time.Now()

	tests := []struct {
		name   string
		tokens *oidc.TokenResponse
		claims *oidc.IdentityClaims
	}{
		{"nil claims", tokens, nil},
		{"nil tokens", nil, claims},
		{"missing access token", &oidc.TokenResponse{IDToken: "a.b.c"}, claims},
		{"missing id token", &oidc.TokenResponse{AccessToken: "x"}, claims},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCredential(tt.tokens, tt.claims, "i", "c", now); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestFileStoreSaveAndLoad(t *testing.T) {
	home := filepath.Join(t.TempDir(), "codex")
	store := &FileStore{Home: home}
	cred := testCredential(t)

	if err := store.Save(cred); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("credential file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected file mode 0600, got %o", perm)
	}

	dirInfo, err := os.Stat(home)
	if err != nil {
		t.Fatal(err)
	}
	if perm := dirInfo.Mode().Perm(); perm != 0700 {
		t.Errorf("expected dir mode 0700, got %o", perm)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Tokens != cred.Tokens || loaded.Email != cred.Email || !loaded.LastRefresh.Equal(cred.LastRefresh) {
		t.Errorf("loaded credential differs: %+v vs %+v", loaded, cred)
	}
}

func TestFileStoreFileLayout(t *testing.T) {
	store := &FileStore{Home: t.TempDir()}
	if err := store.Save(testCredential(t)); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("credential file is not JSON: %v", err)
	}
	for _, key := range []string{"issuer", "client_id", "tokens", "email", "plan_type", "last_refresh"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if raw["last_refresh"] != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected last_refresh %v", raw["last_refresh"])
	}
	tokens, _ := raw["tokens"].(map[string]any)
	if tokens["account_id"] != "acct-1" {
		t.Errorf("unexpected tokens.account_id %v", tokens["account_id"])
	}
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	home := t.TempDir()
	store := &FileStore{Home: home}

	for i := 0; i < 2; i++ {
		if err := store.Save(testCredential(t)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(home)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("expected only %s, got %d entries", FileName, len(entries))
	}
}

func TestFileStoreSaveValidation(t *testing.T) {
	if err := (&FileStore{}).Save(testCredential(t)); err == nil {
		t.Error("expected error for empty home")
	}
	if err := (&FileStore{Home: t.TempDir()}).Save(nil); err == nil {
		t.Error("expected error for nil credential")
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := &FileStore{Home: t.TempDir()}

	_, err := store.Load()
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	store := &FileStore{Home: t.TempDir()}
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := store.Load()
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestFileStoreDelete(t *testing.T) {
	store := &FileStore{Home: t.TempDir()}
	if err := store.Save(testCredential(t)); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Errorf("expected file to be removed, stat err=%v", err)
	}

	// Second delete is a no-op.
	if err := store.Delete(); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}
