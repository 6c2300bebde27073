package token

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestDecodeSignedToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	raw := signed(t, jwt.MapClaims{"unique_name": "maria", "role": "Gestor", "exp": exp})

	claims, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "maria", claims["unique_name"])
	assert.Equal(t, "Gestor", String(claims, "perfil", "role"))

	got, ok := Expiry(claims)
	require.True(t, ok)
	assert.Equal(t, exp, got)
}

func TestPayloadRoundTrip(t *testing.T) {
	payloads := []string{
		`{"sub":"1"}`,
		`{"unique_name":"joão","role":"Usuário"}`,
		`{"a":"??>>","b":"~~~"}`,
		`{}`,
	}
	for _, p := range payloads {
		t.Run(p, func(t *testing.T) {
			seg := EncodeSegment([]byte(p))
			raw := "header." + seg + ".signature"

			decoded, err := DecodeSegment(seg)
			require.NoError(t, err)
			assert.Equal(t, p, string(decoded))
			assert.Equal(t, seg, EncodeSegment(decoded))

			_, err = Decode(raw)
			assert.NoError(t, err)
		})
	}
}

func TestDecodeSegmentAcceptsBothAlphabets(t *testing.T) {
	data := []byte{0xfb, 0xff, 0xbf, 0x01}
	padded := base64.StdEncoding.EncodeToString(data)
	raw := base64.RawURLEncoding.EncodeToString(data)

	a, err := DecodeSegment(padded)
	require.NoError(t, err)
	b, err := DecodeSegment(raw)
	require.NoError(t, err)
	assert.Equal(t, data, a)
	assert.Equal(t, a, b)
}

func TestDecodeFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrNoPayload},
		{"single segment", "abc", ErrNoPayload},
		{"empty payload", "abc..sig", ErrNoPayload},
		{"not base64", "h.@@@.s", ErrMalformedPayload},
		{"not json", "h." + EncodeSegment([]byte("not json")) + ".s", ErrMalformedPayload},
		{"json array", "h." + EncodeSegment([]byte(`[1,2]`)) + ".s", ErrMalformedPayload},
		{"json null", "h." + EncodeSegment([]byte(`null`)) + ".s", ErrMalformedPayload},
		{"opaque segments", "abc.def.ghi", ErrMalformedPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				c, err := Decode(tt.raw)
				assert.ErrorIs(t, err, tt.want)
				assert.Nil(t, c)
				assert.Nil(t, Claims(tt.raw))
			})
		})
	}
}

func TestDecodeTwoSegments(t *testing.T) {
	c := Claims("h." + EncodeSegment([]byte(`{"sub":"7"}`)))
	require.NotNil(t, c)
	assert.Equal(t, "7", String(c, "username", "unique_name", "sub"))
}

func TestLooksLikeJWT(t *testing.T) {
	assert.False(t, LooksLikeJWT(" "))
	assert.False(t, LooksLikeJWT("a.b"))
	assert.True(t, LooksLikeJWT("header.payload.signature"))
}

func TestExpiryMissing(t *testing.T) {
	_, ok := Expiry(jwt.MapClaims{"sub": "1"})
	assert.False(t, ok)
	_, ok = Expiry(jwt.MapClaims{"exp": "soon"})
	assert.False(t, ok)
}
