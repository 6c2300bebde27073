package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/oidc/repo"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/user/entity"
)

// DefaultRefreshTTL is how long an opaque refresh token stays valid.
const DefaultRefreshTTL = 30 * 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

// RefreshStore persists opaque refresh tokens; *repo.RefreshRepo satisfies it.
type RefreshStore interface {
	Save(ctx context.Context, token string, userID int64, clientID string, expiresAt time.Time) (int64, error)
	Get(ctx context.Context, token string) (*repo.RefreshSession, error)
	Delete(ctx context.Context, token string) error
}

// OIDCService manages the signing key and token issuance.
type OIDCService struct {
	key        *rsa.PrivateKey
	kid        string
	issuer     string
	ttl        time.Duration
	refreshTTL time.Duration
	refresh    RefreshStore
	now        func() time.Time
}

// NewOIDCService generates a fresh RSA key; tokens do not survive a restart.
func NewOIDCService(refresh RefreshStore, issuer string, ttl time.Duration) (*OIDCService, error) {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	// kid is the truncated SHA256 of the modulus
	h := sha256.Sum256(k.PublicKey.N.Bytes())
	kid := base64.RawURLEncoding.EncodeToString(h[:8])
	return &OIDCService{
		key:        k,
		kid:        kid,
		issuer:     issuer,
		ttl:        ttl,
		refreshTTL: DefaultRefreshTTL,
		refresh:    refresh,
		now:        time.Now,
	}, nil
}

func (s *OIDCService) Issuer() string { return s.issuer }

// JWKS returns a minimal JWKS containing the public key.
func (s *OIDCService) JWKS() map[string]any {
	pub := s.key.PublicKey
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": s.kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
	return map[string]any{"keys": []any{jwk}}
}

// PublicKey returns the RSA public key for verification.
func (s *OIDCService) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// IssueTokens signs an access token for u and persists a new refresh token.
// Claim names match what the console reads: unique_name, role, fullname.
func (s *OIDCService) IssueTokens(ctx context.Context, u *entity.MinimalAuthView, audience string) (entity.IssuedTokens, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss":         s.issuer,
		"sub":         strconv.FormatInt(u.ID, 10),
		"aud":         audience,
		"exp":         now.Add(s.ttl).Unix(),
		"iat":         now.Unix(),
		"v":           u.Version,
		"unique_name": u.Username,
		"role":        u.Role,
		"fullname":    u.Fullname,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return entity.IssuedTokens{}, fmt.Errorf("sign access token: %w", err)
	}

	rtBytes := make([]byte, 32)
	if _, err := rand.Read(rtBytes); err != nil {
		return entity.IssuedTokens{}, err
	}
	refresh := base64.RawURLEncoding.EncodeToString(rtBytes)
	if _, err := s.refresh.Save(ctx, refresh, u.ID, audience, now.Add(s.refreshTTL)); err != nil {
		return entity.IssuedTokens{}, fmt.Errorf("save refresh session: %w", err)
	}
	return entity.IssuedTokens{
		AccessToken:  signed,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.ttl / time.Second),
	}, nil
}

// Verify checks signature, algorithm, issuer and expiry of an access token.
func (s *OIDCService) Verify(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.PublicKey(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// ValidateRefreshToken checks an opaque refresh token and returns the session if valid.
func (s *OIDCService) ValidateRefreshToken(ctx context.Context, token string) (*repo.RefreshSession, bool) {
	rs, err := s.refresh.Get(ctx, token)
	if err != nil || rs == nil {
		return nil, false
	}
	if rs.ExpiresAt.Before(s.now()) {
		return nil, false
	}
	return rs, true
}

// RevokeRefreshToken removes a refresh token from store.
func (s *OIDCService) RevokeRefreshToken(ctx context.Context, token string) error {
	return s.refresh.Delete(ctx, token)
}
