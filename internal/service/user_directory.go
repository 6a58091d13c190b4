package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"

	"github.com/ezequielvera391/rimovies-api-v2/internal/domain"
	pw "github.com/ezequielvera391/rimovies-api-v2/internal/password"
	"github.com/ezequielvera391/rimovies-api-v2/internal/repository"
)

// UserDirectory authenticates credentials and resolves identities. The
// session engine depends only on this interface; credential storage lives
// behind it.
type UserDirectory interface {
	GetByCredentials(ctx context.Context, email, password string) (domain.Identity, error)
	GetByID(ctx context.Context, userID int64) (domain.Identity, error)
	Create(ctx context.Context, email, username, password, role string) (domain.Identity, error)
}

// Directory implements UserDirectory over the user repository.
type Directory struct {
	users repository.UserRepository
	node  *snowflake.Node
}

var _ UserDirectory = (*Directory)(nil)

// NewDirectory wires dependencies.
func NewDirectory(users repository.UserRepository, node *snowflake.Node) *Directory {
	return &Directory{users: users, node: node}
}

// GetByCredentials verifies the email/password pair. Unknown emails and
// wrong passwords produce the same error so callers cannot enumerate
// identities.
func (d *Directory) GetByCredentials(ctx context.Context, email, password string) (domain.Identity, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	user, err := d.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, domain.ErrInvalidCredentials
		}
		return domain.Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	if !pw.Verify(password, user.PasswordHash) {
		return domain.Identity{}, domain.ErrInvalidCredentials
	}
	return user.Identity(), nil
}

func (d *Directory) GetByID(ctx context.Context, userID int64) (domain.Identity, error) {
	user, err := d.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, domain.ErrNotFound
		}
		return domain.Identity{}, fmt.Errorf("lookup user by id: %w", err)
	}
	return user.Identity(), nil
}

func (d *Directory) Create(ctx context.Context, email, username, password, role string) (domain.Identity, error) {
	hashed, err := pw.Hash(password)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("hash password: %w", err)
	}
	if role == "" {
		role = "user"
	}
	user := domain.User{
		ID:           d.node.Generate().Int64(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Username:     strings.TrimSpace(username),
		PasswordHash: hashed,
		Role:         role,
	}
	created, err := d.users.Create(ctx, user)
	if err != nil {
		return domain.Identity{}, err
	}
	return created.Identity(), nil
}
