package service

import "fmt"

// AuthError carries the HTTP-facing shape of an authentication failure.
// Failures never distinguish unknown identities from bad secrets.
type AuthError struct {
	Code        string
	Description string
	Status      int
	err         error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *AuthError) Unwrap() error {
	return e.err
}

func newAuthError(code, desc string, status int, err error) *AuthError {
	return &AuthError{Code: code, Description: desc, Status: status, err: err}
}
