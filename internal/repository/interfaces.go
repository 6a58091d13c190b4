package repository

import (
	"context"
	"time"

	"github.com/ezequielvera391/rimovies-api-v2/internal/domain"
)

// TokenStore is the durable record of every issued token. All operations are
// atomic per call; revokes are idempotent flag sets, never read-modify-write.
type TokenStore interface {
	SaveAccess(ctx context.Context, record domain.AccessToken) error
	SaveRefresh(ctx context.Context, record domain.RefreshToken) error

	// FindRefreshActive returns the record only while revoked is false.
	// Expiry is the caller's concern.
	FindRefreshActive(ctx context.Context, token string) (domain.RefreshToken, error)
	FindAccessByJTI(ctx context.Context, jti string) (domain.AccessToken, error)

	// RevokeRefresh flips the revoked flag and reports whether this call
	// was the one that flipped it. Absent and already-revoked rows return
	// false without error, which is how a racing refresh learns it lost.
	RevokeRefresh(ctx context.Context, token string) (bool, error)
	RevokeAccessByJTI(ctx context.Context, jti string) error
	RevokeAllForUser(ctx context.Context, userID int64) error

	// SweepExpired deletes every record of both kinds whose expiry has
	// passed and reports how many rows went away.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserRepository exposes persistence for users.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
}
