package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ezequielvera391/rimovies-api-v2/internal/config"
	"github.com/ezequielvera391/rimovies-api-v2/internal/http/middleware"
	"github.com/ezequielvera391/rimovies-api-v2/internal/service"
)

const refreshCookieName = "refresh_token"

// AuthHandler exposes the session lifecycle over HTTP.
type AuthHandler struct {
	Sessions *service.SessionService
	Config   config.Config
}

// NewAuthHandler wires dependencies.
func NewAuthHandler(sessions *service.SessionService, cfg config.Config) *AuthHandler {
	return &AuthHandler{Sessions: sessions, Config: cfg}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Email and password are required."})
		return
	}

	pair, err := h.Sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, pair)
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Email, username, and password are required."})
		return
	}

	pair, err := h.Sessions.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusCreated, pair)
}

// Refresh exchanges a refresh token, taken from the JSON body or from the
// HttpOnly cookie set at login, for a rotated pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)

	presented := strings.TrimSpace(req.RefreshToken)
	if presented == "" {
		if cookie, err := c.Cookie(refreshCookieName); err == nil {
			presented = cookie
		}
	}
	if presented == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_refresh_token", "error_description": "Refresh token missing."})
		return
	}

	pair, err := h.Sessions.Refresh(c.Request.Context(), presented)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, pair)
}

// Logout always answers 204: an undecodable or expired bearer token is
// already logged out as far as the caller is concerned. The cookie is
// cleared before the revoke so the client ends up logged out even when
// storage fails and the revoke must be retried.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.clearRefreshCookie(c)

	bearer, ok := middleware.BearerToken(c)
	if ok {
		if err := h.Sessions.Logout(c.Request.Context(), bearer); err != nil {
			respondAuthError(c, err)
			return
		}
	}

	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) LogoutAll(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing token claims."})
		return
	}

	if err := h.Sessions.LogoutAll(c.Request.Context(), claims.UserID); err != nil {
		respondAuthError(c, err)
		return
	}

	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing token claims."})
		return
	}

	identity, err := h.Sessions.Identity(c.Request.Context(), claims.UserID)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, identity)
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, value string) {
	maxAge := int(h.Config.RefreshTokenTTL.Seconds())
	c.SetCookie(refreshCookieName, value, maxAge, "/auth", "", h.Config.Environment != "development", true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetCookie(refreshCookieName, "", -1, "/auth", "", h.Config.Environment != "development", true)
}

func respondAuthError(c *gin.Context, err error) {
	if authErr, ok := err.(*service.AuthError); ok {
		c.JSON(authErr.Status, gin.H{"error": authErr.Code, "error_description": authErr.Description})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Something went wrong."})
}

// Healthz reports liveness.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
