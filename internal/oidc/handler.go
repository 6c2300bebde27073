package oidc

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/user/entity"
)

// Accounts loads the claims projection for a refresh grant.
type Accounts interface {
	GetMinimalAuthView(ctx context.Context, id int64) (*entity.MinimalAuthView, error)
}

type Handler struct {
	svc      *OIDCService
	accounts Accounts
	logger   *zap.SugaredLogger
}

func NewHandler(svc *OIDCService, accounts Accounts, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, accounts: accounts, logger: logger}
}

// Register mounts discovery, key set and token lifecycle endpoints.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /.well-known/openid-configuration", h.Discovery)
	mux.HandleFunc("GET /.well-known/jwks.json", h.JWKS)
	mux.HandleFunc("POST /api/Auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/Auth/revoke", h.Revoke)
	mux.HandleFunc("POST /api/Auth/introspect", h.Introspect)
	mux.Handle("GET /api/Auth/userinfo", h.RequireBearer(http.HandlerFunc(h.Userinfo)))
}

func (h *Handler) Discovery(w http.ResponseWriter, r *http.Request) {
	iss := strings.TrimRight(h.svc.Issuer(), "/")
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                iss,
		"jwks_uri":                              iss + "/.well-known/jwks.json",
		"token_endpoint":                        iss + "/api/Auth/authenticate",
		"userinfo_endpoint":                     iss + "/api/Auth/userinfo",
		"revocation_endpoint":                   iss + "/api/Auth/revoke",
		"introspection_endpoint":                iss + "/api/Auth/introspect",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.JWKS())
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh rotates a refresh token: the old one is revoked and a new pair issued.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Requisição inválida"})
		return
	}
	session, ok := h.svc.ValidateRefreshToken(r.Context(), req.RefreshToken)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Sessão expirada"})
		return
	}
	v, err := h.accounts.GetMinimalAuthView(r.Context(), session.UserID)
	if err != nil {
		h.logger.Debugw("refresh for unknown account", "user_id", session.UserID, "err", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Sessão expirada"})
		return
	}
	// if revoke fails, reject rather than leave two live tokens
	if err := h.svc.RevokeRefreshToken(r.Context(), req.RefreshToken); err != nil {
		h.logger.Warnw("revoke during refresh", "err", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Sessão expirada"})
		return
	}
	tokens, err := h.svc.IssueTokens(r.Context(), v, session.ClientID)
	if err != nil {
		h.logger.Errorw("issue tokens on refresh", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Erro inesperado"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jwtToken":     tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"expiresIn":    tokens.ExpiresIn,
	})
}

// formToken reads `token` from a form body or a JSON object.
func formToken(r *http.Request) (string, bool) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", false
		}
		return body.Token, body.Token != ""
	}
	if err := r.ParseForm(); err != nil {
		return "", false
	}
	t := r.Form.Get("token")
	return t, t != ""
}

// Revoke implements RFC 7009 token revocation for refresh tokens.
// The endpoint returns 200 even if the token is unknown.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	token, ok := formToken(r)
	if !ok {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}
	if err := h.svc.RevokeRefreshToken(r.Context(), token); err != nil {
		h.logger.Debugw("revoke", "err", err)
	}
	w.WriteHeader(http.StatusOK)
}

// Introspect implements RFC 7662 for refresh tokens and access tokens issued here.
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	token, ok := formToken(r)
	if !ok {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}
	if sess, ok := h.svc.ValidateRefreshToken(r.Context(), token); ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"active":     true,
			"client_id":  sess.ClientID,
			"sub":        strconv.FormatInt(sess.UserID, 10),
			"exp":        sess.ExpiresAt.Unix(),
			"token_type": "refresh_token",
		})
		return
	}
	claims, err := h.svc.Verify(token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	out := map[string]any{"active": true, "token_type": "access_token"}
	for _, k := range []string{"sub", "aud", "iss", "exp", "iat", "unique_name", "role"} {
		if v, ok := claims[k]; ok {
			out[k] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Userinfo returns the identity claims of the bearer.
func (h *Handler) Userinfo(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":         claims["sub"],
		"unique_name": claims["unique_name"],
		"role":        claims["role"],
		"fullname":    claims["fullname"],
	})
}

type claimsKey struct{}

// ClaimsFromContext returns the verified claims stored by RequireBearer.
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(jwt.MapClaims)
	return c, ok
}

// RequireBearer rejects requests without a valid `Authorization: Bearer` access token.
func (h *Handler) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if len(auth) < len("bearer ") || !strings.EqualFold(auth[:len("bearer ")], "bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Não autenticado"})
			return
		}
		claims, err := h.svc.Verify(strings.TrimSpace(auth[len("bearer "):]))
		if err != nil {
			h.logger.Debugw("bearer rejected", "path", r.URL.Path, "err", err)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Não autenticado"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
