package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ezequielvera391/rimovies-api-v2/internal/config"
	"github.com/ezequielvera391/rimovies-api-v2/internal/domain"
	httptransport "github.com/ezequielvera391/rimovies-api-v2/internal/http"
	"github.com/ezequielvera391/rimovies-api-v2/internal/http/handler"
	httpmiddleware "github.com/ezequielvera391/rimovies-api-v2/internal/http/middleware"
	"github.com/ezequielvera391/rimovies-api-v2/internal/password"
	"github.com/ezequielvera391/rimovies-api-v2/internal/service"
	"github.com/ezequielvera391/rimovies-api-v2/internal/token"
)

func newTestRouter(t *testing.T) (*gin.Engine, *stubTokenStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := password.Hash("password")
	require.NoError(t, err)

	users := &stubUserRepo{users: map[int64]domain.User{
		1: {ID: 1, Email: "a@x.com", Username: "a", PasswordHash: hash, Role: "user"},
	}}
	store := newStubTokenStore()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		Environment:     "development",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		ServiceName:     "auth-test",
	}
	codec := token.NewCodec("access-secret", "refresh-secret", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	sessions := service.NewSessionService(service.NewDirectory(users, node), store, codec, nil, node, zap.NewNop())

	authHandler := handler.NewAuthHandler(sessions, cfg)
	authMiddleware := &httpmiddleware.Auth{Sessions: sessions}
	return httptransport.NewRouter(cfg, authHandler, authMiddleware, nil), store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodePair(t *testing.T, rec *httptest.ResponseRecorder) domain.TokenPair {
	t.Helper()
	var pair domain.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return pair
}

func TestLoginRefreshLogoutFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"email": "a@x.com", "password": "password"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p1 := decodePair(t, rec)
	require.NotEmpty(t, p1.AccessToken)
	require.NotEmpty(t, p1.RefreshToken)

	cookieSet := false
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "refresh_token" {
			require.True(t, cookie.HttpOnly)
			cookieSet = true
		}
	}
	require.True(t, cookieSet)

	rec = doJSON(t, router, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": p1.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p2 := decodePair(t, rec)
	require.NotEqual(t, p1.AccessToken, p2.AccessToken)
	require.NotEqual(t, p1.RefreshToken, p2.RefreshToken)

	rec = doJSON(t, router, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": p1.RefreshToken}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/logout", nil, map[string]string{"Authorization": "Bearer " + p2.AccessToken})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/auth/me", nil, map[string]string{"Authorization": "Bearer " + p2.AccessToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshFromCookie(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"email": "a@x.com", "password": "password"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var refreshCookie *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "refresh_token" && cookie.Value != "" {
			refreshCookie = cookie
		}
	}
	require.NotNil(t, refreshCookie)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(refreshCookie)
	next := httptest.NewRecorder()
	router.ServeHTTP(next, req)
	require.Equal(t, http.StatusOK, next.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"email": "a@x.com", "password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	unknown := doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"email": "ghost@x.com", "password": "password"}, nil)
	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.JSONEq(t, rec.Body.String(), unknown.Body.String())
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/logout", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/logout", nil, map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLogoutClearsCookieEvenWhenRevokeFails(t *testing.T) {
	router, store := newTestRouter(t)

	pair := decodePair(t, doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"email": "a@x.com", "password": "password"}, nil))

	store.failRevokeAccess = true
	rec := doJSON(t, router, http.MethodPost, "/auth/logout", nil, map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	// The cookie contract holds even though the revoke itself failed.
	cleared := false
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "refresh_token" && cookie.Value == "" && cookie.MaxAge < 0 {
			cleared = true
		}
	}
	require.True(t, cleared)
}

func TestRegisterAndMe(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", gin.H{"email": "new@x.com", "username": "new", "password": "password"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	pair := decodePair(t, rec)
	require.Equal(t, "new@x.com", pair.Identity.Email)

	rec = doJSON(t, router, http.MethodGet, "/auth/me", nil, map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)

	var identity domain.Identity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	require.Equal(t, pair.Identity, identity)

	rec = doJSON(t, router, http.MethodPost, "/auth/register", gin.H{"email": "new@x.com", "username": "new", "password": "password"}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogoutAllKillsEverySession(t *testing.T) {
	router, _ := newTestRouter(t)

	first := decodePair(t, doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"email": "a@x.com", "password": "password"}, nil))
	second := decodePair(t, doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"email": "a@x.com", "password": "password"}, nil))

	rec := doJSON(t, router, http.MethodPost, "/auth/logout-all", nil, map[string]string{"Authorization": "Bearer " + second.AccessToken})
	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, pair := range []domain.TokenPair{first, second} {
		rec = doJSON(t, router, http.MethodGet, "/auth/me", nil, map[string]string{"Authorization": "Bearer " + pair.AccessToken})
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = doJSON(t, router, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": pair.RefreshToken}, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

type stubTokenStore struct {
	mu               sync.Mutex
	access           map[string]*domain.AccessToken
	refresh          map[string]*domain.RefreshToken
	failRevokeAccess bool
}

func newStubTokenStore() *stubTokenStore {
	return &stubTokenStore{
		access:  make(map[string]*domain.AccessToken),
		refresh: make(map[string]*domain.RefreshToken),
	}
}

func (s *stubTokenStore) SaveAccess(ctx context.Context, record domain.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.access[record.JTI]; ok {
		return domain.ErrDuplicateToken
	}
	s.access[record.JTI] = &record
	return nil
}

func (s *stubTokenStore) SaveRefresh(ctx context.Context, record domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refresh[record.Token]; ok {
		return domain.ErrDuplicateToken
	}
	s.refresh[record.Token] = &record
	return nil
}

func (s *stubTokenStore) FindRefreshActive(ctx context.Context, tok string) (domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.refresh[tok]
	if !ok || record.Revoked {
		return domain.RefreshToken{}, domain.ErrNotFound
	}
	return *record, nil
}

func (s *stubTokenStore) FindAccessByJTI(ctx context.Context, jti string) (domain.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.access[jti]
	if !ok {
		return domain.AccessToken{}, domain.ErrNotFound
	}
	return *record, nil
}

func (s *stubTokenStore) RevokeRefresh(ctx context.Context, tok string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.refresh[tok]; ok && !record.Revoked {
		record.Revoked = true
		return true, nil
	}
	return false, nil
}

func (s *stubTokenStore) RevokeAccessByJTI(ctx context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRevokeAccess {
		return errors.New("storage unavailable")
	}
	if record, ok := s.access[jti]; ok {
		record.Revoked = true
	}
	return nil
}

func (s *stubTokenStore) RevokeAllForUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.refresh {
		if record.UserID == userID {
			record.Revoked = true
		}
	}
	for _, record := range s.access {
		if record.UserID == userID {
			record.Revoked = true
		}
	}
	return nil
}

func (s *stubTokenStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for tok, record := range s.refresh {
		if record.ExpiresAt.Before(now) {
			delete(s.refresh, tok)
			removed++
		}
	}
	for jti, record := range s.access {
		if record.ExpiresAt.Before(now) {
			delete(s.access, jti)
			removed++
		}
	}
	return removed, nil
}

type stubUserRepo struct {
	mu    sync.Mutex
	users map[int64]domain.User
}

func (s *stubUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (s *stubUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (s *stubUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return domain.User{}, domain.ErrUserExists
		}
	}
	s.users[user.ID] = user
	return user, nil
}
