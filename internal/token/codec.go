package token

import (
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/ezequielvera391/rimovies-api-v2/internal/domain"
)

// Codec signs and verifies bearer tokens. Access and refresh tokens are
// signed with distinct secrets; the codec never consults storage, so a token
// that verifies here may still be revoked.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// Claims is the decoded payload of either token kind. For access tokens JTI
// is the revocation handle; refresh tokens carry a random ID only so that two
// tokens minted in the same second never serialize identically.
type Claims struct {
	UserID    int64
	Email     string
	Role      string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Identity rebuilds the identity snapshot carried by the token.
func (c Claims) Identity() domain.Identity {
	return domain.Identity{ID: c.UserID, Email: c.Email, Role: c.Role}
}

type customClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// NewCodec constructs a codec from the injected signing configuration.
func NewCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// NewJTI generates a collision-resistant identifier for an access token.
func NewJTI() string {
	return uuid.NewString()
}

// SignAccess encodes the identity plus jti into a short-lived access token.
func (c *Codec) SignAccess(identity domain.Identity, jti string) (string, time.Time, error) {
	return c.sign(identity, jti, c.accessSecret, c.accessTTL)
}

// SignRefresh encodes the identity into a long-lived refresh token.
func (c *Codec) SignRefresh(identity domain.Identity) (string, time.Time, error) {
	return c.sign(identity, NewJTI(), c.refreshSecret, c.refreshTTL)
}

// DecodeAccess verifies an access token and returns its claims.
func (c *Codec) DecodeAccess(signed string) (Claims, error) {
	claims, err := c.decode(signed, c.accessSecret)
	if err != nil {
		return Claims{}, err
	}
	if claims.JTI == "" {
		return Claims{}, fmt.Errorf("missing jti claim: %w", domain.ErrInvalidToken)
	}
	return claims, nil
}

// DecodeRefresh verifies a refresh token and returns its claims.
func (c *Codec) DecodeRefresh(signed string) (Claims, error) {
	return c.decode(signed, c.refreshSecret)
}

func (c *Codec) sign(identity domain.Identity, jti string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	expiry := now.Add(ttl)
	std := gojwt.Claims{
		Subject:  strconv.FormatInt(identity.ID, 10),
		ID:       jti,
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(expiry),
	}
	custom := customClaims{Email: identity.Email, Role: identity.Role}

	signed, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("serialize jwt: %w", err)
	}

	return signed, expiry, nil
}

func (c *Codec) decode(signed string, secret []byte) (Claims, error) {
	parsed, err := gojwt.ParseSigned(signed, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", domain.ErrInvalidToken)
	}

	var std gojwt.Claims
	var custom customClaims
	if err := parsed.Claims(secret, &std, &custom); err != nil {
		return Claims{}, fmt.Errorf("verify token: %w", domain.ErrInvalidToken)
	}

	if err := std.Validate(gojwt.Expected{Time: time.Now().UTC()}); err != nil {
		return Claims{}, fmt.Errorf("validate claims: %w", domain.ErrInvalidToken)
	}

	// Tokens are fixed-shape: a payload missing identity claims is
	// rejected here instead of being trusted downstream.
	if std.Subject == "" || custom.Email == "" || custom.Role == "" {
		return Claims{}, fmt.Errorf("missing required claims: %w", domain.ErrInvalidToken)
	}
	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return Claims{}, fmt.Errorf("invalid subject claim: %w", domain.ErrInvalidToken)
	}

	claims := Claims{
		UserID: userID,
		Email:  custom.Email,
		Role:   custom.Role,
		JTI:    std.ID,
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	if std.Expiry != nil {
		claims.ExpiresAt = std.Expiry.Time()
	}
	return claims, nil
}
