package session

import (
	"encoding/json"
	"fmt"
)

// AuthenticationError reports a 401 that persisted after one forced token
// refresh. It is never retried further.
type AuthenticationError struct {
	URL string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed with status=401 in call to %s after token refresh", e.URL)
}

// TransientServiceError reports a 502/503/504 that survived the retry budget.
type TransientServiceError struct {
	Status int
	URL    string
}

func (e *TransientServiceError) Error() string {
	return fmt.Sprintf("server error status=%d in call to %s persisted after retries", e.Status, e.URL)
}

// APIError reports any other non-2xx response. The body is kept so callers
// can diagnose the failure.
type APIError struct {
	Status int
	URL    string
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("got status=%d in call to %s: '%s'", e.Status, e.URL, errMessage(e.Body))
}

// errMessage extracts the server's error message: the "message" field of a
// JSON body when present, the raw body otherwise.
func errMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return string(body)
}
