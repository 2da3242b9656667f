package tokensource_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kognic/kognic-auth-go/credentials"
	"github.com/kognic/kognic-auth-go/tokensource"
)

func TestTokenURL(t *testing.T) {
	tests := []struct {
		authServer string
		want       string
	}{
		{"https://auth.app.kognic.com", "https://auth.app.kognic.com/v1/auth/oauth/token"},
		{"https://auth.app.kognic.com/", "https://auth.app.kognic.com/v1/auth/oauth/token"},
	}
	for _, tt := range tests {
		if got := tokensource.TokenURL(tt.authServer); got != tt.want {
			t.Errorf("TokenURL(%q) = %q, want %q", tt.authServer, got, tt.want)
		}
	}
}

func TestFetch(t *testing.T) {
	var gotForm map[string]string
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != tokensource.TokenEndpointPath {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotUA = r.Header.Get("User-Agent")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		gotForm = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"client_id":     r.PostFormValue("client_id"),
			"client_secret": r.PostFormValue("client_secret"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "tok-123", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer srv.Close()

	creds := credentials.Credentials{ClientID: "abc", ClientSecret: "s3cret"}
	tok, err := tokensource.New().Fetch(context.Background(), srv.URL, creds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotForm["grant_type"] != "client_credentials" {
		t.Errorf("grant_type = %q, want client_credentials", gotForm["grant_type"])
	}
	if gotForm["client_id"] != "abc" || gotForm["client_secret"] != "s3cret" {
		t.Errorf("credentials not sent in request body: %v", gotForm)
	}
	if tok.AccessToken != "tok-123" {
		t.Errorf("access token = %q, want tok-123", tok.AccessToken)
	}
	until := time.Until(tok.Expiry)
	if until < 55*time.Minute || until > 61*time.Minute {
		t.Errorf("expiry not derived from expires_in, %v until expiry", until)
	}
	if !strings.HasPrefix(gotUA, "kognic-auth-go/") {
		t.Errorf("token request User-Agent = %q, want kognic-auth-go/ prefix", gotUA)
	}
}

func TestFetchCustomUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "tok-123", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer srv.Close()

	client := tokensource.New(tokensource.WithUserAgent("kognic-auth-go/1.2.0 go1.25 mytool"))
	creds := credentials.Credentials{ClientID: "abc", ClientSecret: "s3cret"}
	if _, err := client.Fetch(context.Background(), srv.URL, creds); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotUA, "mytool") {
		t.Errorf("token request User-Agent = %q, want the configured value", gotUA)
	}
}

func TestFetchEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid_client"}`))
	}))
	defer srv.Close()

	creds := credentials.Credentials{ClientID: "abc", ClientSecret: "wrong"}
	_, err := tokensource.New().Fetch(context.Background(), srv.URL, creds)

	var eerr *tokensource.TokenEndpointError
	if !errors.As(err, &eerr) {
		t.Fatalf("expected TokenEndpointError, got %v", err)
	}
	if eerr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", eerr.Status)
	}
	if !strings.Contains(string(eerr.Body), "invalid_client") {
		t.Errorf("body not preserved: %q", eerr.Body)
	}
	if strings.Contains(err.Error(), "wrong") {
		t.Errorf("error message leaks the client secret: %q", err)
	}
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	creds := credentials.Credentials{ClientID: "abc", ClientSecret: "s3cret"}
	_, err := tokensource.New().Fetch(context.Background(), srv.URL, creds)
	if err == nil {
		t.Fatal("expected error")
	}
	var eerr *tokensource.TokenEndpointError
	if errors.As(err, &eerr) {
		t.Errorf("network failure should not be a TokenEndpointError, got %v", err)
	}
}
