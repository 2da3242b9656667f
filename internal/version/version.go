// Package version exposes the module version for User-Agent strings and the CLI.
package version

import "runtime"

// Version is the module version, overridden at build time via
// -ldflags "-X github.com/kognic/kognic-auth-go/internal/version.Version=...".
var Version = "0.0.0-dev"

// UserAgent builds the User-Agent header value sent on every outbound request,
// optionally tagged with a client name, e.g. "kognic-auth-go/1.2.0 go1.25.5 MyClient".
func UserAgent(clientName string) string {
	ua := "kognic-auth-go/" + Version + " " + runtime.Version()
	if clientName != "" {
		ua += " " + clientName
	}
	return ua
}
