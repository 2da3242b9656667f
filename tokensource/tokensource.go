package tokensource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/kognic/kognic-auth-go/credentials"
	"github.com/kognic/kognic-auth-go/internal/version"
)

const (
	// TokenEndpointPath is the token endpoint path relative to the auth server.
	TokenEndpointPath = "/v1/auth/oauth/token"

	// DefaultTimeout bounds a single token exchange.
	DefaultTimeout = 30 * time.Second
)

// TokenEndpointError reports a non-2xx or malformed response from the token
// endpoint. Status is zero when the endpoint answered 2xx but the payload
// could not be parsed; Err then carries the parse failure.
type TokenEndpointError struct {
	Status int
	Body   []byte
	Err    error
}

func (e *TokenEndpointError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("malformed token endpoint response: %v", e.Err)
	}
	return fmt.Sprintf("token endpoint returned status=%d: %s", e.Status, e.Body)
}

func (e *TokenEndpointError) Unwrap() error { return e.Err }

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for token requests, e.g. to add a
// custom transport or timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent sent on token requests, e.g. to append a
// client name.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// Client exchanges client credentials for access tokens.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// New creates a token Client with a default 30s timeout.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  version.UserAgent(""),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.userAgent != "" {
		// Copy so a caller-shared client is never mutated.
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		hc := *c.httpClient
		hc.Transport = &userAgentTransport{base: base, agent: c.userAgent}
		c.httpClient = &hc
	}
	return c
}

// userAgentTransport stamps the User-Agent onto token requests, which the
// oauth2 package builds internally and would otherwise send with Go's default.
type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}

// TokenURL returns the full token endpoint URL for an auth server base URL.
func TokenURL(authServer string) string {
	return strings.TrimSuffix(authServer, "/") + TokenEndpointPath
}

// Fetch posts the Client Credentials grant to the auth server's token
// endpoint and returns the resulting token. The token's Expiry is derived
// from the endpoint's expires_in field.
func (c *Client) Fetch(ctx context.Context, authServer string, creds credentials.Credentials) (*oauth2.Token, error) {
	cfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     TokenURL(authServer),
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// The oauth2 package picks up custom HTTP clients from the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := cfg.Token(ctx)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			status := 0
			if rerr.Response != nil {
				status = rerr.Response.StatusCode
			}
			return nil, &TokenEndpointError{Status: status, Body: rerr.Body, Err: err}
		}
		var uerr *url.Error
		if errors.As(err, &uerr) {
			// Network-level failure, the endpoint never answered.
			return nil, fmt.Errorf("token request to %s failed: %w", TokenURL(authServer), err)
		}
		return nil, &TokenEndpointError{Err: err}
	}
	return tok, nil
}
