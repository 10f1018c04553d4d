package session

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoRenewalCredential is returned by the coordinator when no refresh
// credential is stored. No network call is attempted in that case.
var ErrNoRenewalCredential = errors.New("no refresh credential stored")

// ErrNotAuthenticated is returned when an operation needs a stored session
// and there is none.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrSessionChanged is returned by a renewal whose session was logged out or
// replaced by a new login while the refresh call was in flight.
var ErrSessionChanged = errors.New("session changed during renewal")

var errEmptyRenewal = errors.New("refresh response carried no access credential")

// RenewalFailure categorizes why a renewal did not produce a new credential.
type RenewalFailure int

const (
	// RenewalUnavailable means the refresh endpoint could not be reached or
	// failed on the server side. The refresh credential may still be good.
	RenewalUnavailable RenewalFailure = iota

	// RenewalRejected means the backend refused the refresh credential
	// (invalid, consumed or expired).
	RenewalRejected
)

// String returns a human-readable name for the failure kind.
func (f RenewalFailure) String() string {
	switch f {
	case RenewalRejected:
		return "rejected"
	default:
		return "unavailable"
	}
}

// RenewalError is the single outcome shared by every caller that waited on a
// failed renewal.
type RenewalError struct {
	Kind RenewalFailure
	Err  error
}

// Error implements the error interface.
func (e *RenewalError) Error() string {
	return fmt.Sprintf("credential renewal %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *RenewalError) Unwrap() error {
	return e.Err
}

// IsRenewalRejected reports whether err is a renewal the backend refused.
func IsRenewalRejected(err error) bool {
	var renewalErr *RenewalError
	return errors.As(err, &renewalErr) && renewalErr.Kind == RenewalRejected
}

// SessionExpiredError is returned from the transport when a request hit a
// 401, the recovery renewal failed and the session was torn down.
type SessionExpiredError struct {
	Err error
}

// Error implements the error interface.
func (e *SessionExpiredError) Error() string {
	return "session expired, please log in again: " + e.Err.Error()
}

// Unwrap returns the renewal error that ended the session.
func (e *SessionExpiredError) Unwrap() error {
	return e.Err
}

// httpStatusError is implemented by backend errors that carry the HTTP status
// of the failed call.
type httpStatusError interface {
	HTTPStatus() int
}

// isRejection reports whether err is a 401 or 403 from the backend.
func isRejection(err error) bool {
	var statusErr httpStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	status := statusErr.HTTPStatus()
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// classifyRenewalError wraps err into a RenewalError, telling a refused
// refresh credential apart from an unreachable backend.
func classifyRenewalError(err error) *RenewalError {
	var renewalErr *RenewalError
	if errors.As(err, &renewalErr) {
		return renewalErr
	}

	kind := RenewalUnavailable
	if errors.Is(err, ErrNoRenewalCredential) {
		kind = RenewalRejected
	}

	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.HTTPStatus() {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			kind = RenewalRejected
		}
	}

	return &RenewalError{Kind: kind, Err: err}
}
