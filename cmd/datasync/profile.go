package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/imvu-insight/datasync/internal/insight"
)

// profile is the saved CLI session: which service to talk to and the
// current token pair. Stored with owner-only permissions.
type profile struct {
	BaseURL      string `yaml:"base_url"`
	Username     string `yaml:"username,omitempty"`
	AccessToken  string `yaml:"access_token,omitempty"`
	RefreshToken string `yaml:"refresh_token,omitempty"`
}

const defaultBaseURL = "http://localhost:8080"

func resolveProfilePath() (string, error) {
	if profilePath != "" {
		return profilePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", "datasync", "profile.yaml"), nil
}

// loadProfile reads the session profile; a missing file yields defaults.
func loadProfile() (*profile, error) {
	path, err := resolveProfilePath()
	if err != nil {
		return nil, err
	}

	p := &profile{BaseURL: defaultBaseURL}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.BaseURL == "" {
		p.BaseURL = defaultBaseURL
	}
	return p, nil
}

func saveProfile(p *profile) error {
	path, err := resolveProfilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// newClient builds an API client from the profile and flags. Rotated
// tokens are written back to the profile as they change.
func newClient() (*insight.Client, *profile, error) {
	p, err := loadProfile()
	if err != nil {
		return nil, nil, err
	}
	if baseURL != "" {
		p.BaseURL = baseURL
	}

	client := insight.New(p.BaseURL,
		insight.WithTokens(p.AccessToken, p.RefreshToken),
		insight.WithTokenCallback(func(access, refresh string) {
			p.AccessToken = access
			p.RefreshToken = refresh
			if err := saveProfile(p); err != nil {
				fmt.Fprintln(os.Stderr, "warning: could not save session:", err)
			}
		}),
	)
	return client, p, nil
}
