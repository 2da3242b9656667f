package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	// ServiceName namespaces profiles in the OS credential store.
	ServiceName = "kognic-credentials"

	// DefaultProfile is the profile consulted when no keyring://<profile>
	// reference is given.
	DefaultProfile = "default"
)

// ErrNotFound is returned by Store.Get when nothing is stored under a profile.
var ErrNotFound = errors.New("credentials not found")

// Store persists credential pairs in the OS credential store (macOS Keychain,
// Windows Credential Manager, Linux Secret Service), keyed by profile name.
type Store struct {
	service string
}

// NewStore creates a Store scoped to this application's keyring namespace.
func NewStore() *Store {
	return &Store{service: ServiceName}
}

// Get returns the credentials stored under profile. A missing profile yields
// an error wrapping ErrNotFound so callers can distinguish it from a broken
// backend.
func (s *Store) Get(ctx context.Context, profile string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	stored, err := keyring.Get(s.service, profile)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Credentials{}, fmt.Errorf("profile %q: %w", profile, ErrNotFound)
		}
		return Credentials{}, fmt.Errorf("reading keyring profile %q: %w", profile, err)
	}

	var c Credentials
	if err := json.Unmarshal([]byte(stored), &c); err != nil {
		return Credentials{}, fmt.Errorf("stored credentials for profile %q are corrupt: %w", profile, err)
	}
	if !c.complete() {
		return Credentials{}, fmt.Errorf("stored credentials for profile %q are incomplete", profile)
	}
	c.Source = SourceKeyring
	return c, nil
}

// Set stores the credentials under profile, overwriting any existing value.
func (s *Store) Set(ctx context.Context, profile string, c Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.complete() {
		return fmt.Errorf("refusing to store incomplete credentials for profile %q", profile)
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding credentials for profile %q: %w", profile, err)
	}
	if err := keyring.Set(s.service, profile, string(payload)); err != nil {
		return fmt.Errorf("writing keyring profile %q: %w", profile, err)
	}
	return nil
}

// Delete removes the credentials stored under profile. Deleting a missing
// profile is not an error.
func (s *Store) Delete(ctx context.Context, profile string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := keyring.Delete(s.service, profile)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting keyring profile %q: %w", profile, err)
	}
	return nil
}
