// Package auth talks to the remote credential endpoint and to the console's
// same-origin session bridge.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/token"
	"github.com/ovaphlow/pitchfork/service-processo-console/pkg/utilities"
)

const (
	AuthenticatePath = "api/Auth/authenticate"
	SessionPath      = "api/auth/session"

	DefaultUsername           = "Usuário"
	DefaultInvalidCredentials = "Credenciais inválidas"
	DefaultUnexpectedError    = "Erro inesperado"
)

// tokenFields lists the response fields that may carry the token, in priority order.
var tokenFields = []string{"jwtToken", "token", "accessToken", "value"}

var loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "console_login_attempts_total",
	Help: "Login attempts by outcome.",
}, []string{"outcome"})

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the normalized outcome of Login.
type Result struct {
	Success bool
	Token   string
	User    *User
	Message string
}

// Service orchestrates the login and logout calls.
type Service struct {
	authenticateURL string
	sessionURL      string
	client          Doer
	logger          *zap.SugaredLogger
}

// NewService builds a Service. backend is the remote API base and console the
// origin that serves the session bridge; both must end with "/". A nil console
// skips the bridge calls, for callers that set the cookie themselves.
func NewService(backend, console *url.URL, client Doer, logger *zap.SugaredLogger) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = utilities.Nop()
	}
	s := &Service{
		authenticateURL: backend.ResolveReference(&url.URL{Path: AuthenticatePath}).String(),
		client:          client,
		logger:          logger,
	}
	if console != nil {
		s.sessionURL = console.ResolveReference(&url.URL{Path: SessionPath}).String()
	}
	return s
}

// Login authenticates against the remote API. It never returns an error:
// every failure is folded into Result.Message.
func (s *Service) Login(ctx context.Context, creds Credentials) Result {
	body, err := json.Marshal(creds)
	if err != nil {
		return s.failure(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authenticateURL, bytes.NewReader(body))
	if err != nil {
		return s.failure(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return s.failure(err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	decodeErr := json.NewDecoder(resp.Body).Decode(&payload)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		loginAttempts.WithLabelValues("rejected").Inc()
		msg := stringField(payload, "message")
		if msg == "" {
			msg = DefaultInvalidCredentials
		}
		s.logger.Debugw("authenticate rejected", "status", resp.StatusCode, "username", creds.Username)
		return Result{Success: false, Message: msg}
	}
	if decodeErr != nil {
		return s.failure(errors.Wrap(decodeErr, "decode authenticate response"))
	}

	tok := stringField(payload, tokenFields...)
	user := s.resolveUser(payload, tok, creds)

	if tok != "" {
		if err := s.session(ctx, http.MethodPost, map[string]string{"token": tok}); err != nil {
			s.logger.Warnw("failed to establish auth session", "err", err)
		}
	}

	loginAttempts.WithLabelValues("success").Inc()
	return Result{Success: true, Token: tok, User: user}
}

// Logout asks the bridge to drop the session cookie. Failures are only logged.
func (s *Service) Logout(ctx context.Context) {
	if err := s.session(ctx, http.MethodDelete, nil); err != nil {
		s.logger.Warnw("failed to clear auth session", "err", err)
	}
}

func (s *Service) failure(err error) Result {
	loginAttempts.WithLabelValues("error").Inc()
	s.logger.Warnw("authenticate failed", "err", err)
	msg := DefaultUnexpectedError
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Result{Success: false, Message: msg}
}

// resolveUser prefers an inline user object, then name/role fields on the
// response itself, then the token claims.
func (s *Service) resolveUser(payload map[string]any, tok string, creds Credentials) *User {
	if inline, ok := payload["user"].(map[string]any); ok {
		u := userFromMap(inline)
		if u.Username == "" {
			u.Username = creds.Username
		}
		return &u
	}

	if present(payload, "name", "role", "fullname") {
		u := User{
			Username: firstNonEmpty(stringField(payload, "username", "name"), creds.Username),
			Role:     firstNonEmpty(stringField(payload, "role"), DefaultRole),
		}
		for _, k := range []string{"fullname", "refreshToken", "id"} {
			if v, ok := payload[k]; ok && v != nil {
				if u.Extra == nil {
					u.Extra = make(map[string]any)
				}
				u.Extra[k] = v
			}
		}
		return &u
	}

	if tok == "" {
		return &User{Username: creds.Username}
	}
	return s.userFromToken(tok, creds.Username)
}

func (s *Service) userFromToken(tok, fallbackUsername string) *User {
	claims, err := token.Decode(tok)
	if err != nil {
		s.logger.Warnw("failed to decode token payload", "err", err)
	}
	u := User{
		Username: firstNonEmpty(token.String(claims, "username", "unique_name", "sub"), fallbackUsername, DefaultUsername),
		Role:     firstNonEmpty(token.String(claims, "role", "perfil", "Profile"), DefaultRole),
	}
	if exp, ok := token.Expiry(claims); ok {
		u.Exp = &exp
	}
	for k, v := range claims {
		switch k {
		case "username", "exp":
			continue
		case "role":
			if _, ok := v.(string); ok {
				continue
			}
		}
		if u.Extra == nil {
			u.Extra = make(map[string]any, len(claims))
		}
		u.Extra[k] = v
	}
	return &u
}

// session calls the bridge with the given method and optional JSON body.
func (s *Service) session(ctx context.Context, method string, body any) error {
	if s.sessionURL == "" {
		return nil
	}
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode session body")
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.sessionURL, r)
	if err != nil {
		return errors.Wrap(err, "build session request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, s.sessionURL)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("%s %s: status %d", method, s.sessionURL, resp.StatusCode)
	}
	return nil
}

// stringField returns the first non-empty string among keys.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// present reports whether any key holds a truthy value.
func present(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := m[k].(type) {
		case nil:
		case string:
			if v != "" {
				return true
			}
		case bool:
			if v {
				return true
			}
		case float64:
			if v != 0 {
				return true
			}
		default:
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
