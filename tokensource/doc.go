// Package tokensource performs the OAuth2 Client Credentials exchange against
// a Kognic auth server.
//
// The Client is stateless and never retries; caching and retry policy live in
// the tokencache and session packages. Token requests post the client id and
// secret in the form body (client_secret_post), matching the auth server's
// token endpoint contract.
package tokensource
