package domain

import "errors"

var (
	// ErrInvalidCredentials covers both unknown identities and wrong
	// passwords; callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken covers malformed, expired, revoked, and
	// unknown refresh tokens presented for rotation.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidToken is a structural decode failure: bad signature,
	// malformed payload, expired, or missing required claims.
	ErrInvalidToken = errors.New("invalid token")

	// ErrDuplicateToken signals a unique collision on a signed value or
	// jti at the storage layer.
	ErrDuplicateToken = errors.New("duplicate token")

	// ErrNotFound signals a missing record.
	ErrNotFound = errors.New("not found")

	// ErrUserExists signals a registration conflict on email or username.
	ErrUserExists = errors.New("user already exists")
)
