package authstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileName is the credential file created under the home directory.
const FileName = "auth.json"

// ErrNotFound is returned by Load when no credential has been saved.
var ErrNotFound = errors.New("no saved credential")

// FileStore keeps the credential in <Home>/auth.json.
type FileStore struct {
	Home string
}

// Path returns the credential file path.
func (s *FileStore) Path() string {
	return filepath.Join(s.Home, FileName)
}

// Save writes the credential atomically with 0600 permissions. The home
// directory is created with 0700 if it does not exist.
func (s *FileStore) Save(cred *Credential) error {
	if s.Home == "" {
		return fmt.Errorf("credential home directory is empty")
	}
	if cred == nil {
		return fmt.Errorf("credential is nil")
	}

	if err := os.MkdirAll(s.Home, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	data = append(data, '\n')

	// Write to a temp file in the same directory, then rename over the
	// target so readers never see a partial file.
	tmp, err := os.CreateTemp(s.Home, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set credential file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}

	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("failed to move credential file into place: %w", err)
	}

	slog.Debug("wrote credential file", "path", s.Path())
	return nil
}

// Load reads the saved credential. It returns ErrNotFound when the file
// does not exist.
func (s *FileStore) Load() (*Credential, error) {
	data, err := os.ReadFile(s.Path()) // #nosec G304 -- path derived from configured home
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	return &cred, nil
}

// Delete removes the saved credential. Removing a missing file is not an error.
func (s *FileStore) Delete() error {
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	slog.Debug("removed credential file", "path", s.Path())
	return nil
}
