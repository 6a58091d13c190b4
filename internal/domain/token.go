package domain

import "time"

// AccessToken persists one issued access token. JTI is the claim embedded in
// the signed value and is the handle used for individual revocation.
type AccessToken struct {
	ID        int64
	UserID    int64
	Token     string
	JTI       string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// RefreshToken persists one issued refresh token. A record is revoked either
// by logout-all or by rotation when the token is exchanged.
type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// TokenPair is the result of login and refresh: two freshly minted tokens
// plus the identity they were bound to. It is never persisted as a unit.
type TokenPair struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	Identity     Identity `json:"user"`
}
