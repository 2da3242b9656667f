// Package tokencache holds at most one live access token per
// (auth server, client id) identity and serializes concurrent refreshes.
package tokencache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ExpiryMargin is subtracted from a token's expiry when judging freshness,
// so a token never expires mid-request.
const ExpiryMargin = 30 * time.Second

// Key identifies one token identity.
type Key struct {
	AuthServer string
	ClientID   string
}

// String renders the key in the form shared with the persistent token store.
func (k Key) String() string { return k.AuthServer + ":" + k.ClientID }

// FetchFunc fetches a fresh token for a key.
type FetchFunc func(ctx context.Context) (*oauth2.Token, error)

// Fresh reports whether tok is usable at instant now: non-empty and not
// within margin of its expiry. Tokens without an expiry never go stale.
func Fresh(tok *oauth2.Token, margin time.Duration, now time.Time) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return now.Before(tok.Expiry.Add(-margin))
}

// Cache is a per-key token cache guaranteeing at most one in-flight token
// request per key: concurrent callers for the same key share the result of a
// single fetch. Safe for concurrent use.
type Cache struct {
	margin time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	tokens map[Key]*oauth2.Token

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithExpiryMargin overrides the freshness margin.
func WithExpiryMargin(d time.Duration) Option {
	return func(c *Cache) { c.margin = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		margin: ExpiryMargin,
		now:    time.Now,
		tokens: make(map[Key]*oauth2.Token),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached token for key while it is fresh, fetching a new
// one otherwise. A failed fetch leaves the cache unchanged so the next caller
// retries.
func (c *Cache) Token(ctx context.Context, key Key, fetch FetchFunc) (*oauth2.Token, error) {
	c.mu.RLock()
	tok := c.tokens[key]
	c.mu.RUnlock()
	if Fresh(tok, c.margin, c.now()) {
		return tok, nil
	}
	return c.refresh(ctx, key, fetch, false)
}

// Refresh fetches a new token for key regardless of the cached token's
// freshness, still deduplicating concurrent fetches. Used for 401 recovery.
func (c *Cache) Refresh(ctx context.Context, key Key, fetch FetchFunc) (*oauth2.Token, error) {
	return c.refresh(ctx, key, fetch, true)
}

// Put seeds the cache, e.g. with a token loaded from persistent storage.
func (c *Cache) Put(key Key, tok *oauth2.Token) {
	if tok == nil {
		return
	}
	c.mu.Lock()
	c.tokens[key] = tok
	c.mu.Unlock()
}

func (c *Cache) refresh(ctx context.Context, key Key, fetch FetchFunc, force bool) (*oauth2.Token, error) {
	ch := c.group.DoChan(key.String(), func() (any, error) {
		if !force {
			// Double-check after winning the flight; a caller we were queued
			// behind may have just stored a fresh token.
			c.mu.RLock()
			tok := c.tokens[key]
			c.mu.RUnlock()
			if Fresh(tok, c.margin, c.now()) {
				return tok, nil
			}
		}

		tok, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.tokens[key] = tok
		c.mu.Unlock()
		return tok, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	case <-ctx.Done():
		// The in-flight fetch keeps running for the remaining waiters; this
		// caller just stops waiting for it.
		return nil, ctx.Err()
	}
}
