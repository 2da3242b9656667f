package tokenstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"

	"github.com/kognic/kognic-auth-go/tokencache"
)

// serviceName namespaces cached tokens in the OS credential store, distinct
// from the credentials service so clearing one never touches the other.
const serviceName = "kognic-auth"

// Store caches tokens across process invocations.
type Store interface {
	// Load returns a cached token that is still fresh, or nil on a miss.
	Load(ctx context.Context, key tokencache.Key) *oauth2.Token

	// Save persists a token. Failures are logged, never returned.
	Save(ctx context.Context, key tokencache.Key, tok *oauth2.Token)

	// Clear removes a cached token. Missing entries are not an error.
	Clear(ctx context.Context, key tokencache.Key)
}

// Mode selects the persistent cache backend.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeKeyring Mode = "keyring"
	ModeFile    Mode = "file"
	ModeNone    Mode = "none"
)

// New returns the Store for mode, or nil for ModeNone. ModeAuto picks the
// keyring when a usable backend exists and falls back to the cache file.
func New(mode Mode) (Store, error) {
	switch mode {
	case ModeNone:
		return nil, nil
	case ModeFile:
		return NewFileStore(DefaultCachePath())
	case ModeKeyring:
		return NewKeyringStore(), nil
	case ModeAuto:
		ks := NewKeyringStore()
		if ks.available() {
			return ks, nil
		}
		return NewFileStore(DefaultCachePath())
	default:
		return nil, fmt.Errorf("unsupported token cache mode: %s", mode)
	}
}

// DefaultCachePath returns the default cache file location:
// $XDG_CACHE_HOME/kognic-auth/tokens.json, falling back to ~/.cache.
func DefaultCachePath() string {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "kognic-auth", "tokens.json")
}

// storedToken is the wire form of a cached token.
type storedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresAt   int64  `json:"expires_at"`
}

func newStoredToken(tok *oauth2.Token) storedToken {
	st := storedToken{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		st.ExpiresAt = tok.Expiry.Unix()
	}
	return st
}

func (st storedToken) token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken: st.AccessToken,
		TokenType:   st.TokenType,
	}
	if st.ExpiresAt != 0 {
		tok.Expiry = time.Unix(st.ExpiresAt, 0)
	}
	return tok
}

// usable applies the shared freshness rule to a loaded token. Tokens without
// an expiry are discarded: a cache entry that can never go stale is a bug.
func usable(tok *oauth2.Token) bool {
	if tok.Expiry.IsZero() {
		return false
	}
	return tokencache.Fresh(tok, tokencache.ExpiryMargin, time.Now())
}
