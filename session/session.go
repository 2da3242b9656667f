package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"

	kognicauth "github.com/kognic/kognic-auth-go"
	"github.com/kognic/kognic-auth-go/credentials"
	"github.com/kognic/kognic-auth-go/internal/version"
	"github.com/kognic/kognic-auth-go/tokencache"
	"github.com/kognic/kognic-auth-go/tokensource"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultRequestTimeout = 60 * time.Second
)

// TokenClient fetches tokens from an auth server. Satisfied by
// *tokensource.Client; tests inject fakes.
type TokenClient interface {
	Fetch(ctx context.Context, authServer string, creds credentials.Credentials) (*oauth2.Token, error)
}

// Session wraps HTTP calls with bearer authentication against one
// (auth server, client) identity. Create one with New and share it; it is
// safe for concurrent use.
type Session struct {
	authServer string
	locator    credentials.Locator
	resolver   *credentials.Resolver
	clientName string

	httpClient *http.Client
	tokens     TokenClient
	cache      *tokencache.Cache
	logger     *slog.Logger

	maxRetries     int
	initialBackoff time.Duration

	initialToken   *oauth2.Token
	onTokenUpdated func(*oauth2.Token)

	// Lazy one-time credential resolution; see credentials().
	credsMu   sync.Mutex
	credsDone bool
	credsVal  credentials.Credentials
	credsErr  error
}

// Option configures a Session.
type Option func(*Session)

// WithAuthServer sets the auth server base URL. Defaults to the production
// Kognic auth server.
func WithAuthServer(u string) Option {
	return func(s *Session) { s.authServer = u }
}

// WithCredentials sets the explicit credentials locator. When nil, the
// resolver's full chain (environment variables, keyring) applies.
func WithCredentials(l credentials.Locator) Option {
	return func(s *Session) { s.locator = l }
}

// WithResolver sets the credential resolver.
func WithResolver(r *credentials.Resolver) Option {
	return func(s *Session) { s.resolver = r }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Session) { s.httpClient = hc }
}

// WithTokenClient sets the token endpoint client.
func WithTokenClient(tc TokenClient) Option {
	return func(s *Session) { s.tokens = tc }
}

// WithTokenCache sets the token cache. Sessions sharing one identity may
// share a cache.
func WithTokenCache(c *tokencache.Cache) Option {
	return func(s *Session) { s.cache = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithClientName appends a client name to the User-Agent header.
func WithClientName(name string) Option {
	return func(s *Session) { s.clientName = name }
}

// WithInitialToken seeds the token cache, e.g. from the persistent token
// store, skipping the initial fetch while the token stays fresh.
func WithInitialToken(tok *oauth2.Token) Option {
	return func(s *Session) { s.initialToken = tok }
}

// WithOnTokenUpdated registers a callback invoked with every freshly fetched
// token, e.g. to write it back to the persistent token store.
func WithOnTokenUpdated(fn func(*oauth2.Token)) Option {
	return func(s *Session) { s.onTokenUpdated = fn }
}

// WithRetryPolicy bounds the 5xx retry loop: maxRetries additional attempts
// with exponential backoff starting at initialBackoff.
func WithRetryPolicy(maxRetries int, initialBackoff time.Duration) Option {
	return func(s *Session) {
		s.maxRetries = maxRetries
		s.initialBackoff = initialBackoff
	}
}

// New creates a Session. No I/O happens until the first call; credentials
// are resolved exactly once, lazily.
func New(opts ...Option) *Session {
	s := &Session{
		authServer:     kognicauth.DefaultAuthServer,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if s.resolver == nil {
		s.resolver = credentials.NewResolver()
	}
	if s.tokens == nil {
		s.tokens = tokensource.New(tokensource.WithUserAgent(version.UserAgent(s.clientName)))
	}
	if s.cache == nil {
		s.cache = tokencache.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// credentials resolves the session identity on first use, under the calling
// request's context so cancellation can interrupt keyring I/O. The outcome is
// memoized; a context cancellation is not, so an aborted first call does not
// poison the session for later callers.
func (s *Session) credentials(ctx context.Context) (credentials.Credentials, error) {
	s.credsMu.Lock()
	defer s.credsMu.Unlock()
	if s.credsDone {
		return s.credsVal, s.credsErr
	}

	creds, err := s.resolver.Resolve(ctx, s.locator)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return credentials.Credentials{}, err
		}
		s.credsDone, s.credsErr = true, err
		return credentials.Credentials{}, err
	}

	if s.initialToken != nil {
		s.cache.Put(s.key(creds), s.initialToken)
	}
	s.logger.Debug("resolved credentials", "credentials", creds)
	s.credsDone, s.credsVal = true, creds
	return creds, nil
}

func (s *Session) key(creds credentials.Credentials) tokencache.Key {
	return tokencache.Key{AuthServer: s.authServer, ClientID: creds.ClientID}
}

// token returns a valid token for the session identity, forcing a refresh
// when force is set (401 recovery).
func (s *Session) token(ctx context.Context, force bool) (*oauth2.Token, error) {
	creds, err := s.credentials(ctx)
	if err != nil {
		return nil, err
	}

	fetch := func(ctx context.Context) (*oauth2.Token, error) {
		tok, err := s.tokens.Fetch(ctx, s.authServer, creds)
		if err != nil {
			return nil, err
		}
		if s.onTokenUpdated != nil {
			s.onTokenUpdated(tok)
		}
		return tok, nil
	}

	if force {
		return s.cache.Refresh(ctx, s.key(creds), fetch)
	}
	return s.cache.Token(ctx, s.key(creds), fetch)
}

// AccessToken returns a valid bearer token for the session identity.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	tok, err := s.token(ctx, false)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// TokenSource adapts the session to oauth2.TokenSource for use with
// oauth2.Transport and generated API clients. The context is captured at
// construction time because the oauth2 interface has no context parameter.
func (s *Session) TokenSource(ctx context.Context) oauth2.TokenSource {
	return contextTokenSource{ctx: ctx, s: s}
}

type contextTokenSource struct {
	ctx context.Context
	s   *Session
}

func (ts contextTokenSource) Token() (*oauth2.Token, error) {
	return ts.s.token(ts.ctx, false)
}

// Get performs an authenticated GET request.
func (s *Session) Get(ctx context.Context, url string) (*http.Response, error) {
	return s.Do(ctx, http.MethodGet, url, nil, nil)
}

// Post performs an authenticated POST request with a JSON body.
func (s *Session) Post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	header := http.Header{"Content-Type": []string{"application/json"}}
	return s.Do(ctx, http.MethodPost, url, body, header)
}

// Do performs an authenticated request and returns the response on 2xx.
//
// Recovery is bounded and local: a 401 forces exactly one token refresh and
// one retried request; 502/503/504 are retried with strictly increasing
// backoff up to the configured ceiling. Every other non-2xx surfaces as
// *APIError with the body attached. Caller-supplied Authorization headers
// are never overwritten.
func (s *Session) Do(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialBackoff
	bo.RandomizationFactor = 0 // strictly increasing intervals
	bo.Multiplier = 2

	var (
		refreshed bool
		retries   int
		force     bool
	)

	for {
		tok, err := s.token(ctx, force)
		if err != nil {
			return nil, err
		}
		force = false

		req, err := s.newRequest(ctx, method, url, body, header, tok)
		if err != nil {
			return nil, err
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, url, err)
		}

		// Before the status dispatch so deprecation signals surface even when
		// the call ends in an error.
		handleSunset(s.logger, resp)

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			drain(resp)
			if refreshed {
				return nil, &AuthenticationError{URL: url}
			}
			s.logger.Debug("got 401, forcing token refresh and retrying once", "url", url)
			refreshed = true
			force = true
			continue

		case isTransient(resp.StatusCode):
			drain(resp)
			if retries >= s.maxRetries {
				return nil, &TransientServiceError{Status: resp.StatusCode, URL: url}
			}
			wait := bo.NextBackOff()
			s.logger.Warn("transient server error, retrying",
				"status", resp.StatusCode, "url", url, "backoff", wait)
			retries++
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			respBody, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, &APIError{Status: resp.StatusCode, URL: url, Body: respBody}
		}

		return resp, nil
	}
}

func (s *Session) newRequest(ctx context.Context, method, url string, body []byte, header http.Header, tok *oauth2.Token) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", version.UserAgent(s.clientName))
	}
	return req, nil
}

func isTransient(status int) bool {
	return status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

// drain discards the body so the underlying connection can be reused by the
// retried request.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
