package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"

	"github.com/kognic/kognic-auth-go/credentials"
)

// fakeTokenClient mints a distinct token per fetch so tests can observe
// refreshes through the Authorization header.
type fakeTokenClient struct {
	calls atomic.Int64
	err   error
}

func (f *fakeTokenClient) Fetch(ctx context.Context, authServer string, creds credentials.Credentials) (*oauth2.Token, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{
		AccessToken: fmt.Sprintf("tok-%d", n),
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}, nil
}

// scriptedServer answers each request with the next scripted status and
// records what it saw. Statuses beyond the script are 200.
type scriptedServer struct {
	*httptest.Server

	mu       sync.Mutex
	statuses []int
	auths    []string
	requests int
}

func newScriptedServer(t *testing.T, statuses ...int) *scriptedServer {
	s := &scriptedServer{statuses: statuses}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.auths = append(s.auths, r.Header.Get("Authorization"))
		status := http.StatusOK
		if s.requests < len(s.statuses) {
			status = s.statuses[s.requests]
		}
		s.requests++
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status": %d}`, status)
	}))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *scriptedServer) seen() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests, append([]string(nil), s.auths...)
}

func newTestSession(tc TokenClient, opts ...Option) *Session {
	base := []Option{
		WithCredentials(credentials.Pair{ClientID: "abc", ClientSecret: "s3cret"}),
		WithTokenClient(tc),
		WithRetryPolicy(2, time.Millisecond),
	}
	return New(append(base, opts...)...)
}

func TestDoInjectsBearerToken(t *testing.T) {
	srv := newScriptedServer(t)
	tc := &fakeTokenClient{}
	sess := newTestSession(tc)

	resp, err := sess.Get(context.Background(), srv.URL+"/v1/things")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	_, auths := srv.seen()
	if auths[0] != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want Bearer tok-1", auths[0])
	}
	if tc.calls.Load() != 1 {
		t.Errorf("token fetched %d times, want 1", tc.calls.Load())
	}
}

func TestDoSetsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	sess := newTestSession(&fakeTokenClient{}, WithClientName("mytool"))
	resp, err := sess.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if !strings.HasPrefix(ua, "kognic-auth-go/") {
		t.Errorf("User-Agent = %q, want kognic-auth-go/ prefix", ua)
	}
	if !strings.Contains(ua, "mytool") {
		t.Errorf("User-Agent = %q, want client name included", ua)
	}
}

func TestDoReusesCachedToken(t *testing.T) {
	srv := newScriptedServer(t)
	tc := &fakeTokenClient{}
	sess := newTestSession(tc)
	ctx := context.Background()

	for range 3 {
		resp, err := sess.Get(ctx, srv.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()
	}

	if tc.calls.Load() != 1 {
		t.Errorf("token fetched %d times across 3 requests, want 1", tc.calls.Load())
	}
}

func TestDoRefreshesOnceOn401(t *testing.T) {
	srv := newScriptedServer(t, http.StatusUnauthorized)
	tc := &fakeTokenClient{}
	sess := newTestSession(tc)

	resp, err := sess.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	requests, auths := srv.seen()
	if requests != 2 {
		t.Fatalf("server saw %d requests, want 2", requests)
	}
	if auths[0] == auths[1] {
		t.Errorf("retry reused the rejected token %q", auths[0])
	}
	if tc.calls.Load() != 2 {
		t.Errorf("token fetched %d times, want 2", tc.calls.Load())
	}
}

func TestDoPersistent401(t *testing.T) {
	srv := newScriptedServer(t, http.StatusUnauthorized, http.StatusUnauthorized)
	sess := newTestSession(&fakeTokenClient{})

	_, err := sess.Get(context.Background(), srv.URL)
	var aerr *AuthenticationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}

	requests, _ := srv.seen()
	if requests != 2 {
		t.Errorf("server saw %d requests, want exactly 2", requests)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	srv := newScriptedServer(t, http.StatusServiceUnavailable, http.StatusBadGateway)
	sess := newTestSession(&fakeTokenClient{})

	resp, err := sess.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	requests, _ := srv.seen()
	if requests != 3 {
		t.Errorf("server saw %d requests, want 3", requests)
	}
}

func TestDoTransientRetryBudgetExhausted(t *testing.T) {
	srv := newScriptedServer(t,
		http.StatusServiceUnavailable,
		http.StatusServiceUnavailable,
		http.StatusServiceUnavailable,
		http.StatusServiceUnavailable,
	)
	sess := newTestSession(&fakeTokenClient{}) // 2 retries

	_, err := sess.Get(context.Background(), srv.URL)
	var terr *TransientServiceError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransientServiceError, got %v", err)
	}
	if terr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", terr.Status)
	}

	requests, _ := srv.seen()
	if requests != 3 {
		t.Errorf("server saw %d requests, want initial + 2 retries", requests)
	}
}

func TestDoAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "no such thing"}`)
	}))
	defer srv.Close()

	sess := newTestSession(&fakeTokenClient{})
	_, err := sess.Get(context.Background(), srv.URL)

	var aerr *APIError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if aerr.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", aerr.Status)
	}
	if !strings.Contains(err.Error(), "no such thing") {
		t.Errorf("error %q should carry the server message", err)
	}
}

func TestDoPreservesCallerAuthorization(t *testing.T) {
	srv := newScriptedServer(t)
	sess := newTestSession(&fakeTokenClient{})

	header := http.Header{}
	header.Set("Authorization", "Bearer caller-token")
	resp, err := sess.Do(context.Background(), http.MethodGet, srv.URL, nil, header)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	_, auths := srv.seen()
	if auths[0] != "Bearer caller-token" {
		t.Errorf("caller Authorization overwritten: %q", auths[0])
	}
}

func TestDoCredentialFailure(t *testing.T) {
	srv := newScriptedServer(t)
	sess := newTestSession(&fakeTokenClient{}, WithCredentials(credentials.Pair{ClientID: "abc"}))

	_, err := sess.Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for incomplete credentials")
	}
	requests, _ := srv.seen()
	if requests != 0 {
		t.Errorf("no request should be sent without credentials, saw %d", requests)
	}
}

func TestAccessToken(t *testing.T) {
	tc := &fakeTokenClient{}
	sess := newTestSession(tc)
	ctx := context.Background()

	first, err := sess.AccessToken(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := sess.AccessToken(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != "tok-1" || second != "tok-1" {
		t.Errorf("expected the cached token both times, got %q and %q", first, second)
	}
	if tc.calls.Load() != 1 {
		t.Errorf("token fetched %d times, want 1", tc.calls.Load())
	}
}

func TestTokenSource(t *testing.T) {
	sess := newTestSession(&fakeTokenClient{})
	tok, err := sess.TokenSource(context.Background()).Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.AccessToken != "tok-1" {
		t.Errorf("unexpected token %q", tok.AccessToken)
	}
}

func TestWithInitialTokenSkipsFetch(t *testing.T) {
	tc := &fakeTokenClient{}
	sess := newTestSession(tc, WithInitialToken(&oauth2.Token{
		AccessToken: "seeded",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))

	got, err := sess.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "seeded" {
		t.Errorf("got %q, want the seeded token", got)
	}
	if tc.calls.Load() != 0 {
		t.Errorf("token fetched %d times despite a fresh seed", tc.calls.Load())
	}
}

func TestTokenRequestsCarryUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "tok-123", "token_type": "Bearer", "expires_in": 3600}`)
	}))
	defer srv.Close()

	sess := New(
		WithAuthServer(srv.URL),
		WithCredentials(credentials.Pair{ClientID: "abc", ClientSecret: "s3cret"}),
		WithClientName("mytool"),
	)

	if _, err := sess.AccessToken(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(ua, "kognic-auth-go/") {
		t.Errorf("token request User-Agent = %q, want kognic-auth-go/ prefix", ua)
	}
	if !strings.Contains(ua, "mytool") {
		t.Errorf("token request User-Agent = %q, want client name included", ua)
	}
}

func TestCanceledResolutionNotMemoized(t *testing.T) {
	keyring.MockInit()
	store := credentials.NewStore()
	if err := store.Set(context.Background(), "staging", credentials.Credentials{ClientID: "abc", ClientSecret: "s3cret"}); err != nil {
		t.Fatal(err)
	}

	tc := &fakeTokenClient{}
	sess := newTestSession(tc,
		WithCredentials(credentials.KeyringRef("staging")),
		WithResolver(credentials.NewResolver(credentials.WithStore(store))),
	)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sess.AccessToken(canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The aborted attempt must not stick; a live context succeeds.
	tok, err := sess.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error after canceled first attempt: %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("unexpected token %q", tok)
	}
}

func TestCredentialsResolvedOnce(t *testing.T) {
	var lookups atomic.Int64
	env := map[string]string{
		credentials.EnvClientID:     "env-id",
		credentials.EnvClientSecret: "env-secret",
	}
	resolver := credentials.NewResolver(credentials.WithGetenv(func(k string) string {
		lookups.Add(1)
		return env[k]
	}))

	sess := newTestSession(&fakeTokenClient{}, WithCredentials(nil), WithResolver(resolver))
	ctx := context.Background()

	if _, err := sess.AccessToken(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := lookups.Load()
	if after == 0 {
		t.Fatal("resolver never consulted the environment")
	}
	if _, err := sess.AccessToken(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lookups.Load() != after {
		t.Errorf("credentials resolved again on the second call (%d -> %d lookups)", after, lookups.Load())
	}
}

func TestWithOnTokenUpdated(t *testing.T) {
	var updates atomic.Int64
	sess := newTestSession(&fakeTokenClient{}, WithOnTokenUpdated(func(tok *oauth2.Token) {
		if tok.AccessToken == "" {
			t.Error("callback got an empty token")
		}
		updates.Add(1)
	}))

	if _, err := sess.AccessToken(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updates.Load() != 1 {
		t.Errorf("callback invoked %d times, want 1", updates.Load())
	}
}
