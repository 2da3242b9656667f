package session

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	// sunsetHeader carries the deprecation date of an endpoint,
	// e.g. 2024-02-22T16:21:20.880547Z.
	sunsetHeader     = "sunset-date"
	sunsetTimeFormat = "2006-01-02T15:04:05.999999Z"

	// Sunsets further out than this are warnings; closer ones are errors.
	sunsetWarnThreshold = 14 * 24 * time.Hour
)

// handleSunset logs a deprecation signal when the response carries a sunset
// header. The response itself is never altered. Unparsable dates are ignored.
func handleSunset(logger *slog.Logger, resp *http.Response) {
	raw := resp.Header.Get(sunsetHeader)
	if raw == "" {
		return
	}
	sunset, err := time.Parse(sunsetTimeFormat, raw)
	if err != nil {
		return
	}

	attrs := []any{
		"sunset", sunset,
		"endpoint", resp.Request.Method + " " + stripQuery(resp.Request.URL),
	}
	const msg = "endpoint has been deprecated and will be removed, please update your client"
	if time.Until(sunset) > sunsetWarnThreshold {
		logger.Warn(msg, attrs...)
	} else {
		logger.Error(msg, attrs...)
	}
}

// stripQuery drops query parameters and fragment from a URL for logging.
func stripQuery(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.Fragment = ""
	return c.String()
}
