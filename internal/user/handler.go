package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/user/entity"
)

// Audience stamped on tokens issued through the authenticate endpoint.
const Audience = "processo-console"

// TokenIssuer signs tokens for an authenticated account.
type TokenIssuer interface {
	IssueTokens(ctx context.Context, u *entity.MinimalAuthView, audience string) (entity.IssuedTokens, error)
}

// Handler exposes the credential login endpoint.
type Handler struct {
	svc    *UserService
	issuer TokenIssuer
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, issuer TokenIssuer, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, issuer: issuer, logger: logger}
}

// AuthenticateRequest is the login payload sent by the console.
type AuthenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	ConID    *int   `json:"conId,omitempty"`
}

// AuthenticateResponse carries the signed token under the field name the console reads first.
type AuthenticateResponse struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid authenticate payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Requisição inválida"})
		return
	}
	view, err := h.svc.AuthenticatePassword(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Debugw("authenticate failed", "username", req.Username, "err", err)
		switch {
		case errors.Is(err, ErrBadCredentials):
			h.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Credenciais inválidas"})
		case errors.Is(err, ErrLocked):
			h.writeJSON(w, http.StatusForbidden, map[string]string{"message": "Conta bloqueada. Tente novamente mais tarde."})
		case errors.Is(err, ErrDisabled):
			h.writeJSON(w, http.StatusForbidden, map[string]string{"message": "Conta desativada."})
		default:
			h.logger.Errorw("authenticate error", "err", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Erro inesperado"})
		}
		return
	}
	tokens, err := h.issuer.IssueTokens(r.Context(), view, Audience)
	if err != nil {
		h.logger.Errorw("issue tokens", "user_id", view.ID, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Erro inesperado"})
		return
	}
	h.logger.Infow("authenticated", "user_id", view.ID, "con_id", req.ConID)
	h.writeJSON(w, http.StatusOK, AuthenticateResponse{
		JWTToken:     tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
