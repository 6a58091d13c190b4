package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ezequielvera391/rimovies-api-v2/internal/domain"
	"github.com/ezequielvera391/rimovies-api-v2/internal/repository"
	"github.com/ezequielvera391/rimovies-api-v2/internal/token"
)

// RevocationCache is an optional fast path for revocation checks. Misses and
// errors always fall through to the token store.
type RevocationCache interface {
	MarkRevoked(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) bool
}

// SessionService runs the token lifecycle: issuance, rotation, revocation,
// and the authorization gate. It holds no mutable state between calls; the
// token store resolves every race on its per-row revoked flag.
type SessionService struct {
	users       UserDirectory
	store       repository.TokenStore
	codec       *token.Codec
	revocations RevocationCache
	node        *snowflake.Node
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewSessionService wires dependencies. revocations may be nil when Redis is
// not configured.
func NewSessionService(users UserDirectory, store repository.TokenStore, codec *token.Codec, revocations RevocationCache, node *snowflake.Node, logger *zap.Logger) *SessionService {
	return &SessionService{
		users:       users,
		store:       store,
		codec:       codec,
		revocations: revocations,
		node:        node,
		logger:      logger,
		tracer:      otel.Tracer("github.com/ezequielvera391/rimovies-api-v2/internal/service"),
	}
}

// Login verifies credentials and mints a fresh token pair. No prior session
// state is consulted; each login starts a new refresh chain.
func (s *SessionService) Login(ctx context.Context, email, password string) (domain.TokenPair, error) {
	ctx, span := s.startSpan(ctx, "SessionService.Login")
	defer span.End()

	identity, err := s.users.GetByCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return domain.TokenPair{}, newAuthError("invalid_credentials", "Wrong email or password.", http.StatusUnauthorized, domain.ErrInvalidCredentials)
		}
		span.RecordError(err)
		return domain.TokenPair{}, fmt.Errorf("login verify credentials: %w", err)
	}

	pair, err := s.issuePair(ctx, identity)
	if err == nil {
		s.audit("login.success", "user_id", identity.ID)
	} else {
		span.RecordError(err)
	}
	return pair, err
}

// Register creates the user and immediately issues a token pair.
func (s *SessionService) Register(ctx context.Context, email, username, password string) (domain.TokenPair, error) {
	ctx, span := s.startSpan(ctx, "SessionService.Register")
	defer span.End()

	identity, err := s.users.Create(ctx, email, username, password, "user")
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return domain.TokenPair{}, newAuthError("user_exists", "An account with those details already exists.", http.StatusConflict, domain.ErrUserExists)
		}
		span.RecordError(err)
		return domain.TokenPair{}, fmt.Errorf("register create user: %w", err)
	}

	pair, err := s.issuePair(ctx, identity)
	if err == nil {
		s.audit("register.success", "user_id", identity.ID)
	} else {
		span.RecordError(err)
	}
	return pair, err
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked before the new pair is minted, so it is single-use: replaying it
// fails even while its signature is still valid.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	ctx, span := s.startSpan(ctx, "SessionService.Refresh")
	defer span.End()

	claims, err := s.codec.DecodeRefresh(refreshToken)
	if err != nil {
		s.log().Debug("refresh token decode failed", zap.Error(err))
		return domain.TokenPair{}, s.invalidRefresh()
	}

	record, err := s.store.FindRefreshActive(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Absent or already revoked. A revoked hit on a structurally
			// valid token is the replay signal.
			s.audit("refresh.replay_or_unknown", "user_id", claims.UserID)
			return domain.TokenPair{}, s.invalidRefresh()
		}
		span.RecordError(err)
		return domain.TokenPair{}, fmt.Errorf("refresh lookup: %w", err)
	}

	// Storage expiry is checked independently of the signature expiry the
	// decode already enforced; storage is authoritative for lifecycle.
	if time.Now().After(record.ExpiresAt) {
		return domain.TokenPair{}, s.invalidRefresh()
	}

	identity, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.TokenPair{}, s.invalidRefresh()
		}
		span.RecordError(err)
		return domain.TokenPair{}, fmt.Errorf("refresh load user: %w", err)
	}

	// Supersede first. If the mint below fails the user logs in again;
	// the reverse order would leave a replayable token on a crash. The
	// conditional flip also settles concurrent refreshes: only the caller
	// whose revoke landed proceeds to mint.
	flipped, err := s.store.RevokeRefresh(ctx, refreshToken)
	if err != nil {
		span.RecordError(err)
		return domain.TokenPair{}, fmt.Errorf("refresh supersede: %w", err)
	}
	if !flipped {
		s.audit("refresh.lost_race", "user_id", identity.ID)
		return domain.TokenPair{}, s.invalidRefresh()
	}

	pair, err := s.issuePair(ctx, identity)
	if err == nil {
		s.audit("refresh.success", "user_id", identity.ID)
	} else {
		span.RecordError(err)
	}
	return pair, err
}

// Logout revokes the access token named by the bearer value. Garbage and
// expired tokens are treated as already logged out. The paired refresh token
// deliberately survives until it is rotated or swept.
func (s *SessionService) Logout(ctx context.Context, accessToken string) error {
	ctx, span := s.startSpan(ctx, "SessionService.Logout")
	defer span.End()

	claims, err := s.codec.DecodeAccess(accessToken)
	if err != nil {
		s.log().Debug("logout with undecodable token", zap.Error(err))
		return nil
	}

	if err := s.store.RevokeAccessByJTI(ctx, claims.JTI); err != nil {
		span.RecordError(err)
		return fmt.Errorf("logout revoke access: %w", err)
	}
	s.cacheRevocation(ctx, claims.JTI, claims.ExpiresAt)
	s.audit("logout.success", "user_id", claims.UserID)
	return nil
}

// LogoutAll revokes every access and refresh token the user owns.
func (s *SessionService) LogoutAll(ctx context.Context, userID int64) error {
	ctx, span := s.startSpan(ctx, "SessionService.LogoutAll")
	defer span.End()

	if err := s.store.RevokeAllForUser(ctx, userID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("logout all: %w", err)
	}
	s.audit("logout_all.success", "user_id", userID)
	return nil
}

// AuthorizeAccess is the authorization gate consulted before any decoded
// claim is trusted. The bearer value is parsed exactly once; the claims it
// returns are the ones the revocation check ran against. It fails closed:
// decode failures, unknown records, and storage errors all read as revoked.
func (s *SessionService) AuthorizeAccess(ctx context.Context, accessToken string) (token.Claims, bool) {
	ctx, span := s.startSpan(ctx, "SessionService.AuthorizeAccess")
	defer span.End()

	claims, err := s.codec.DecodeAccess(accessToken)
	if err != nil {
		return token.Claims{}, false
	}

	if s.revocations != nil && s.revocations.IsRevoked(ctx, claims.JTI) {
		return token.Claims{}, false
	}

	record, err := s.store.FindAccessByJTI(ctx, claims.JTI)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			span.RecordError(err)
			s.log().Warn("revocation check failed, denying access", zap.Error(err))
		}
		return token.Claims{}, false
	}
	if record.Revoked {
		return token.Claims{}, false
	}
	return claims, true
}

// IsAccessRevoked reports whether the token fails the authorization gate.
func (s *SessionService) IsAccessRevoked(ctx context.Context, accessToken string) bool {
	_, ok := s.AuthorizeAccess(ctx, accessToken)
	return !ok
}

// Identity resolves the current identity of a user.
func (s *SessionService) Identity(ctx context.Context, userID int64) (domain.Identity, error) {
	identity, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, newAuthError("unauthorized", "Unknown subject.", http.StatusUnauthorized, domain.ErrNotFound)
		}
		return domain.Identity{}, err
	}
	return identity, nil
}

// CleanupExpiredTokens deletes every expired record of both kinds. Revoked
// records that have not yet expired stay behind for replay detection.
func (s *SessionService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	ctx, span := s.startSpan(ctx, "SessionService.CleanupExpiredTokens")
	defer span.End()

	removed, err := s.store.SweepExpired(ctx, time.Now())
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("sweep expired tokens: %w", err)
	}
	if removed > 0 {
		s.audit("sweep.completed", "removed", removed)
	}
	return removed, nil
}

func (s *SessionService) issuePair(ctx context.Context, identity domain.Identity) (domain.TokenPair, error) {
	jti := token.NewJTI()
	access, accessExpiry, err := s.codec.SignAccess(identity, jti)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshExpiry, err := s.codec.SignRefresh(identity)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	// Saves are fail-fast on duplicates. With 128-bit jtis a collision
	// means something is badly wrong; retrying with fresh identifiers
	// here would only mask it.
	if err := s.store.SaveAccess(ctx, domain.AccessToken{
		ID:        s.node.Generate().Int64(),
		UserID:    identity.ID,
		Token:     access,
		JTI:       jti,
		ExpiresAt: accessExpiry,
	}); err != nil {
		return domain.TokenPair{}, fmt.Errorf("persist access token: %w", err)
	}
	if err := s.store.SaveRefresh(ctx, domain.RefreshToken{
		ID:        s.node.Generate().Int64(),
		UserID:    identity.ID,
		Token:     refresh,
		ExpiresAt: refreshExpiry,
	}); err != nil {
		return domain.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		Identity:     identity,
	}, nil
}

func (s *SessionService) invalidRefresh() error {
	return newAuthError("invalid_refresh_token", "Invalid refresh token.", http.StatusUnauthorized, domain.ErrInvalidRefreshToken)
}

func (s *SessionService) cacheRevocation(ctx context.Context, jti string, expiresAt time.Time) {
	if s.revocations == nil {
		return
	}
	if err := s.revocations.MarkRevoked(ctx, jti, expiresAt); err != nil {
		s.log().Warn("revocation cache write failed", zap.Error(err))
	}
}

func (s *SessionService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *SessionService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *SessionService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
