package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const keyringScheme = "keyring://"

// Locator points at a credential pair without holding the secret itself.
// The concrete variants are Pair, FilePath, and KeyringRef.
type Locator interface {
	resolve(ctx context.Context, r *Resolver) (Credentials, error)
}

// Pair is an inline client id and secret.
type Pair struct {
	ClientID     string
	ClientSecret string
}

// FilePath locates a JSON credentials file on disk.
type FilePath string

// KeyringRef names a profile in the OS credential store.
type KeyringRef string

// ParseLocator interprets a credentials argument as it appears on the command
// line or in an environment config: keyring://<profile> references the OS
// credential store, anything else is a file path.
func ParseLocator(s string) Locator {
	if profile, ok := strings.CutPrefix(s, keyringScheme); ok {
		return KeyringRef(profile)
	}
	return FilePath(s)
}

func (p Pair) resolve(ctx context.Context, r *Resolver) (Credentials, error) {
	c := Credentials{ClientID: p.ClientID, ClientSecret: p.ClientSecret, Source: SourceExplicit}
	if !c.complete() {
		return Credentials{}, fmt.Errorf("explicit credentials are incomplete: both client id and secret are required")
	}
	return c, nil
}

func (f FilePath) resolve(ctx context.Context, r *Resolver) (Credentials, error) {
	return ParseFile(string(f))
}

func (k KeyringRef) resolve(ctx context.Context, r *Resolver) (Credentials, error) {
	c, err := r.store.Get(ctx, string(k))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Credentials{}, fmt.Errorf("no credentials in keyring for profile %q, "+
				"run 'kognic-auth credentials put <file> --env %s' to store them: %w", string(k), string(k), err)
		}
		return Credentials{}, err
	}
	return c, nil
}
