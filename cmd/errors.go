package cmd

import "fmt"

// AuthFailedError reports a login the portal refused: wrong credentials,
// an inactive account or one still awaiting approval.
type AuthFailedError struct {
	Email string
	Err   error
}

// Error implements the error interface.
func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("login as %s refused: %v", e.Email, e.Err)
}

// Unwrap returns the underlying portal error.
func (e *AuthFailedError) Unwrap() error {
	return e.Err
}
