package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Environment variable names are a stable external contract.
const (
	// EnvCredentialsFile names a credentials file path.
	EnvCredentialsFile = "KOGNIC_CREDENTIALS"
	// EnvClientID holds a client id directly.
	EnvClientID = "KOGNIC_CLIENT_ID"
	// EnvClientSecret holds a client secret directly.
	EnvClientSecret = "KOGNIC_CLIENT_SECRET"
)

// ErrNoCredentials is returned when no source yields a complete credential pair.
var ErrNoCredentials = errors.New("no credentials found: provide them explicitly, via " +
	EnvCredentialsFile + ", via " + EnvClientID + "/" + EnvClientSecret +
	", or store them with 'kognic-auth credentials put'")

// Source identifies where a credential pair was resolved from.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceFile     Source = "file"
	SourceEnvVar   Source = "env"
	SourceKeyring  Source = "keyring"
)

// Credentials is a resolved client id/secret pair. Immutable once resolved.
//
// The client secret must never end up in logs or error messages; Credentials
// implements slog.LogValuer to make accidental logging safe.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Email        string `json:"email,omitempty"`
	Issuer       string `json:"issuer,omitempty"`
	Source       Source `json:"-"`
}

var _ slog.LogValuer = Credentials{}

// LogValue renders the credentials with the secret redacted.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client_id", c.ClientID),
		slog.String("source", string(c.Source)),
	)
}

// String implements fmt.Stringer with the secret redacted.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials(client_id=%s, source=%s)", c.ClientID, c.Source)
}

func (c Credentials) complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Parse parses a credentials document: strict JSON with required string
// fields client_id and client_secret. name is used in error messages only.
func Parse(data []byte, name string) (Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("credentials file %s is not valid JSON: %w", name, err)
	}
	if c.ClientID == "" {
		return Credentials{}, fmt.Errorf("credentials file %s: missing required field client_id", name)
	}
	if c.ClientSecret == "" {
		return Credentials{}, fmt.Errorf("credentials file %s: missing required field client_secret", name)
	}
	c.Source = SourceFile
	return c, nil
}

// ParseFile reads and parses a credentials file. A leading ~ expands to the
// caller's home directory.
func ParseFile(path string) (Credentials, error) {
	expanded, err := ExpandHome(path)
	if err != nil {
		return Credentials{}, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, fmt.Errorf("could not find credentials file at %s", path)
		}
		return Credentials{}, fmt.Errorf("reading credentials file %s: %w", path, err)
	}
	return Parse(data, path)
}

// ExpandHome expands a leading ~ to the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
