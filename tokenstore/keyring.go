package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"

	"github.com/kognic/kognic-auth-go/tokencache"
)

// KeyringStore caches tokens in the OS credential store.
type KeyringStore struct {
	service string
	logger  *slog.Logger
}

// Compile-time check that KeyringStore implements Store.
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore under this application's namespace.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: serviceName, logger: slog.Default()}
}

// available reports whether a usable keyring backend exists on this system.
func (k *KeyringStore) available() bool {
	_, err := keyring.Get(k.service, "__probe__")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

// Load returns the cached token for key if present and fresh.
func (k *KeyringStore) Load(ctx context.Context, key tokencache.Key) *oauth2.Token {
	if ctx.Err() != nil {
		return nil
	}

	stored, err := keyring.Get(k.service, key.String())
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			k.logger.Debug("failed to load token from keyring", "error", err)
		}
		return nil
	}

	var st storedToken
	if err := json.Unmarshal([]byte(stored), &st); err != nil {
		k.logger.Debug("cached keyring token is corrupt, discarding", "key", key.String())
		return nil
	}
	tok := st.token()
	if !usable(tok) {
		k.logger.Debug("cached keyring token expired, discarding", "key", key.String())
		return nil
	}
	return tok
}

// Save persists the token for key. Failures are logged at debug level.
func (k *KeyringStore) Save(ctx context.Context, key tokencache.Key, tok *oauth2.Token) {
	if ctx.Err() != nil || tok == nil {
		return
	}

	payload, err := json.Marshal(newStoredToken(tok))
	if err != nil {
		k.logger.Debug("failed to encode token for keyring", "error", err)
		return
	}
	if err := keyring.Set(k.service, key.String(), string(payload)); err != nil {
		k.logger.Debug("failed to save token to keyring", "error", err)
	}
}

// Clear removes the cached token for key.
func (k *KeyringStore) Clear(ctx context.Context, key tokencache.Key) {
	if ctx.Err() != nil {
		return
	}

	err := keyring.Delete(k.service, key.String())
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		k.logger.Debug("failed to clear token from keyring", "error", err)
	}
}
