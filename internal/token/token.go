// Package token reads the claims of a compact JWS without verifying it.
//
// The console only needs the identity claims for display; trust decisions
// stay with the backend that issued the token.
package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoPayload        = errors.New("token has no payload segment")
	ErrMalformedPayload = errors.New("token payload is malformed")
)

// DecodeSegment decodes a base64url segment. The alphabet is mapped back to
// standard base64 and padding is restored, so segments produced with either
// alphabet and with or without padding decode the same way.
func DecodeSegment(seg string) ([]byte, error) {
	normalized := strings.NewReplacer("-", "+", "_", "/").Replace(seg)
	if rem := len(normalized) % 4; rem != 0 {
		normalized += strings.Repeat("=", 4-rem)
	}
	return base64.StdEncoding.DecodeString(normalized)
}

// EncodeSegment is the inverse of DecodeSegment: base64url without padding.
func EncodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode returns the claims carried in the payload segment of raw.
func Decode(raw string) (claims jwt.MapClaims, err error) {
	defer func() {
		// json and base64 do not panic on bad input, but a token is attacker
		// controlled so keep the no-panic contract explicit.
		if r := recover(); r != nil {
			claims, err = nil, fmt.Errorf("%w: %v", ErrMalformedPayload, r)
		}
	}()

	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) < 2 || parts[1] == "" {
		return nil, ErrNoPayload
	}
	decoded, err := DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var out jwt.MapClaims
	if err := json.Unmarshal(decoded, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if out == nil {
		// "null" unmarshals without error
		return nil, ErrMalformedPayload
	}
	return out, nil
}

// Claims is Decode with every failure collapsed to nil.
func Claims(raw string) jwt.MapClaims {
	c, err := Decode(raw)
	if err != nil {
		return nil
	}
	return c
}

// LooksLikeJWT reports whether raw has the three dot separated segments of a compact JWS.
func LooksLikeJWT(raw string) bool {
	t := strings.TrimSpace(raw)
	if t == "" {
		return false
	}
	return strings.Count(t, ".") >= 2
}

// String returns the first non-empty string claim among keys, in order.
func String(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Expiry returns the exp claim in unix seconds, if present and numeric.
func Expiry(claims jwt.MapClaims) (int64, bool) {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0, false
	}
	return exp.Unix(), true
}
