// Package session decorates outgoing HTTP requests with bearer tokens
// obtained via the OAuth2 Client Credentials grant.
//
// A Session resolves its credentials lazily on first use, keeps the current
// token in a single-flight cache shared by all concurrent callers, retries
// once on 401 after a forced refresh, and retries transient 5xx responses
// with bounded exponential backoff. Deprecation signals (sunset-date headers)
// are logged without altering the response.
//
// Sessions are safe for concurrent use: under N concurrent callers sharing
// one Session, at most one token request is in flight per refresh cycle.
package session
