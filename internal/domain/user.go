package domain

import "time"

// User represents an end user able to authenticate against the API.
type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the immutable snapshot of a user embedded in issued tokens.
type Identity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Identity derives the token-embeddable snapshot for the user.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role}
}
