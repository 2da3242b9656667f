// Package tokenstore persists access tokens across process invocations,
// keyed by (auth server, client id).
//
// Two backends with different tradeoffs:
//   - Keyring: OS-native credential storage (macOS Keychain, Windows
//     Credential Manager, Linux Secret Service)
//   - File: a single JSON cache file with atomic writes and 0600 permissions
//
// Load and Save failures are soft: a broken cache must never break token
// acquisition, so backends log at debug level and report a miss instead of
// failing. Loads discard tokens that are within the expiry margin.
package tokenstore
