package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"client_go/internal/domain"
)

const profileFile = "session.yaml"

// Profile is the on-disk form of a session.
type Profile struct {
	APIURL   string                  `yaml:"api_url"`
	Token    string                  `yaml:"token"`
	User     *domain.User            `yaml:"user,omitempty"`
	LastChat *domain.ConversationRef `yaml:"last_chat,omitempty"`
}

// LoadProfile reads the profile stored in dir. A missing file yields
// domain.ErrUnauthorized.
func LoadProfile(dir string) (*Profile, error) {
	data, err := os.ReadFile(filepath.Join(dir, profileFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no saved session: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if p.Token == "" {
		return nil, fmt.Errorf("session file has no token: %w", domain.ErrUnauthorized)
	}
	return &p, nil
}

// SaveProfile writes p to dir with owner-only permissions.
func SaveProfile(dir string, p *Profile) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, profileFile), data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// ClearProfile removes the saved session. Removing a missing file is not an error.
func ClearProfile(dir string) error {
	err := os.Remove(filepath.Join(dir, profileFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// Open builds a Session from the profile in dir.
func Open(dir string) (*Session, *Profile, error) {
	p, err := LoadProfile(dir)
	if err != nil {
		return nil, nil, err
	}
	s, err := New(p.Token)
	if err != nil {
		return nil, nil, err
	}
	if p.User != nil {
		s.SetUser(*p.User)
	}
	return s, p, nil
}
