// Package session is the same-origin bridge that turns a bearer token into an
// HttpOnly cookie, so page requests carry the session without script ever
// touching the cookie.
package session

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-processo-console/pkg/utilities"
)

const (
	CookieName          = "auth_token"
	DefaultMaxAge       = 60 * 60 * 8
	MissingTokenMessage = "Token não informado."

	maxBodyBytes = 64 << 10
)

var events = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "console_session_events_total",
	Help: "Session bridge calls by event.",
}, []string{"event"})

// Options controls the cookie attributes.
type Options struct {
	CookieName string
	MaxAge     int
	// Secure is enabled for production deployments only.
	Secure bool
}

// Handler serves POST and DELETE on the session path.
type Handler struct {
	opts   Options
	logger *zap.SugaredLogger
}

func NewHandler(opts Options, logger *zap.SugaredLogger) *Handler {
	if opts.CookieName == "" {
		opts.CookieName = CookieName
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = utilities.Nop()
	}
	return &Handler{opts: opts, logger: logger}
}

type establishRequest struct {
	Token any `json:"token"`
}

// Establish sets the session cookie from the token in the body.
func (h *Handler) Establish(w http.ResponseWriter, r *http.Request) {
	var req establishRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid session payload", "err", err)
	}
	tok, _ := req.Token.(string)
	if tok == "" {
		events.WithLabelValues("rejected").Inc()
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"message": MissingTokenMessage})
		return
	}

	h.SetCookie(w, tok)
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetCookie writes the session cookie for tok onto w. Handlers that sign the
// user in on the server side use it instead of the JSON bridge.
func (h *Handler) SetCookie(w http.ResponseWriter, tok string) {
	http.SetCookie(w, h.cookie(tok, h.opts.MaxAge))
	events.WithLabelValues("establish").Inc()
}

// ClearCookie expires the session cookie on w.
func (h *Handler) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie("", -1))
	events.WithLabelValues("clear").Inc()
}

// Clear expires the session cookie. It succeeds whether or not a session exists.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.ClearCookie(w)
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// cookie builds the session cookie; a negative maxAge is sent as Max-Age=0.
func (h *Handler) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.opts.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Register mounts the bridge on mux at path.
func (h *Handler) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc("POST "+path, h.Establish)
	mux.HandleFunc("DELETE "+path, h.Clear)
}
