package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ezequielvera391/rimovies-api-v2/internal/domain"
)

// Compile-time interface assertions.
var (
	_ TokenStore     = (*PostgresTokenStore)(nil)
	_ UserRepository = (*PostgresUserRepo)(nil)
)

const uniqueViolation = "23505"

// PostgresTokenStore implements TokenStore on pgx.
type PostgresTokenStore struct {
	db *pgxpool.Pool
}

func NewPostgresTokenStore(pool *pgxpool.Pool) *PostgresTokenStore {
	return &PostgresTokenStore{db: pool}
}

const insertAccessSQL = `INSERT INTO access_tokens (id, user_id, token, jti, expires_at)
VALUES ($1, $2, $3, $4, $5)`

func (s *PostgresTokenStore) SaveAccess(ctx context.Context, record domain.AccessToken) error {
	_, err := s.db.Exec(ctx, insertAccessSQL, record.ID, record.UserID, record.Token, record.JTI, record.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert access token: %w", domain.ErrDuplicateToken)
		}
		return fmt.Errorf("insert access token: %w", err)
	}
	return nil
}

const insertRefreshSQL = `INSERT INTO refresh_tokens (id, user_id, token, expires_at)
VALUES ($1, $2, $3, $4)`

func (s *PostgresTokenStore) SaveRefresh(ctx context.Context, record domain.RefreshToken) error {
	_, err := s.db.Exec(ctx, insertRefreshSQL, record.ID, record.UserID, record.Token, record.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert refresh token: %w", domain.ErrDuplicateToken)
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

const findRefreshActiveSQL = `SELECT id, user_id, token, expires_at, revoked, created_at
FROM refresh_tokens
WHERE token = $1 AND revoked = false
LIMIT 1`

func (s *PostgresTokenStore) FindRefreshActive(ctx context.Context, token string) (domain.RefreshToken, error) {
	var record domain.RefreshToken
	err := s.db.QueryRow(ctx, findRefreshActiveSQL, token).Scan(
		&record.ID,
		&record.UserID,
		&record.Token,
		&record.ExpiresAt,
		&record.Revoked,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RefreshToken{}, fmt.Errorf("find refresh token: %w", domain.ErrNotFound)
		}
		return domain.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	return record, nil
}

const findAccessByJTISQL = `SELECT id, user_id, token, jti, expires_at, revoked, created_at
FROM access_tokens
WHERE jti = $1
LIMIT 1`

func (s *PostgresTokenStore) FindAccessByJTI(ctx context.Context, jti string) (domain.AccessToken, error) {
	var record domain.AccessToken
	err := s.db.QueryRow(ctx, findAccessByJTISQL, jti).Scan(
		&record.ID,
		&record.UserID,
		&record.Token,
		&record.JTI,
		&record.ExpiresAt,
		&record.Revoked,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AccessToken{}, fmt.Errorf("find access token: %w", domain.ErrNotFound)
		}
		return domain.AccessToken{}, fmt.Errorf("find access token: %w", err)
	}
	return record, nil
}

func (s *PostgresTokenStore) RevokeRefresh(ctx context.Context, token string) (bool, error) {
	// The revoked = false predicate makes supersession a single atomic
	// compare-and-set: under concurrent refreshes exactly one caller sees
	// a flipped row.
	tag, err := s.db.Exec(ctx, `UPDATE refresh_tokens SET revoked = true WHERE token = $1 AND revoked = false`, token)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresTokenStore) RevokeAccessByJTI(ctx context.Context, jti string) error {
	_, err := s.db.Exec(ctx, `UPDATE access_tokens SET revoked = true WHERE jti = $1`, jti)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) RevokeAllForUser(ctx context.Context, userID int64) error {
	if _, err := s.db.Exec(ctx, `UPDATE refresh_tokens SET revoked = true WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	if _, err := s.db.Exec(ctx, `UPDATE access_tokens SET revoked = true WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("revoke user access tokens: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	refresh, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep refresh tokens: %w", err)
	}
	access, err := s.db.Exec(ctx, `DELETE FROM access_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return refresh.RowsAffected(), fmt.Errorf("sweep access tokens: %w", err)
	}
	return refresh.RowsAffected() + access.RowsAffected(), nil
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const selectUserSQL = `SELECT id, email, username, password_hash, role, created_at, updated_at
FROM users`

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.scanUser(r.db.QueryRow(ctx, selectUserSQL+` WHERE email = $1 LIMIT 1`, email))
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	return r.scanUser(r.db.QueryRow(ctx, selectUserSQL+` WHERE id = $1 LIMIT 1`, userID))
}

const insertUserSQL = `INSERT INTO users (id, email, username, password_hash, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, email, username, password_hash, role, created_at, updated_at`

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, insertUserSQL, user.ID, user.Email, user.Username, user.PasswordHash, user.Role)
	created, err := r.scanUser(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, fmt.Errorf("create user: %w", err)
		}
		return domain.User{}, err
	}
	return created, nil
}

func (r *PostgresUserRepo) scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("get user: %w", domain.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("create user: %w", domain.ErrUserExists)
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
