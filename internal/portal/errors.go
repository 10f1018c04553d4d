package portal

import (
	"errors"
	"fmt"
	"net/http"
)

// CodeTokenExpired is the error code the API sends with a 401 for an
// expired access credential.
const CodeTokenExpired = "TOKEN_EXPIRED"

// APIError is a non-2xx response from the portal API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("portal API error %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("portal API error %d: %s", e.StatusCode, msg)
}

// HTTPStatus returns the response status. The session package uses it to
// tell a rejected refresh credential from an unreachable backend.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// IsTokenExpired reports whether err is a 401 for an expired access credential.
func IsTokenExpired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized && apiErr.Code == CodeTokenExpired
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// IsForbidden reports whether err is a 403 response, which login uses for
// accounts still awaiting approval.
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
