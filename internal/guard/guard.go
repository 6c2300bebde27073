// Package guard redirects page navigation based on the presence of the
// session cookie. It does not validate the token; the backend does that on
// every data call.
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/session"
	"github.com/ovaphlow/pitchfork/service-processo-console/pkg/utilities"
)

const RedirectParam = "redirectTo"

// Config lists the route prefixes the guard knows about.
type Config struct {
	CookieName string
	Protected  []string
	Public     []string
	// Matcher limits the guard to these prefixes; other paths are not inspected.
	Matcher     []string
	LoginPath   string
	LandingPath string
}

// DefaultConfig is the console's route table.
func DefaultConfig() Config {
	return Config{
		CookieName:  session.CookieName,
		Protected:   []string{"/processos"},
		Public:      []string{"/login", "/auth/login"},
		Matcher:     []string{"/login", "/auth/login", "/processos"},
		LoginPath:   "/login",
		LandingPath: "/processos",
	}
}

// Action is what the guard does with a request.
type Action int

const (
	Pass Action = iota
	RedirectToLogin
	RedirectToLanding
)

func (a Action) String() string {
	switch a {
	case RedirectToLogin:
		return "redirect_login"
	case RedirectToLanding:
		return "redirect_landing"
	default:
		return "pass"
	}
}

// Decide applies the route table to a path.
func (c Config) Decide(path string, hasSession bool) Action {
	if !hasPrefix(path, c.Matcher) {
		return Pass
	}
	if !hasSession && hasPrefix(path, c.Protected) {
		return RedirectToLogin
	}
	if hasSession && hasPrefix(path, c.Public) {
		return RedirectToLanding
	}
	return Pass
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// LoginURL is the login path carrying the original query plus redirectTo.
func (c Config) LoginURL(original *url.URL) string {
	q := original.Query()
	q.Set(RedirectParam, original.Path)
	u := url.URL{Path: c.LoginPath, RawQuery: q.Encode()}
	return u.String()
}

// Middleware wraps next with the guard.
func Middleware(cfg Config, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = utilities.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			action := cfg.Decide(r.URL.Path, hasSession(r, cfg.CookieName))
			switch action {
			case RedirectToLogin:
				logger.Debugw("route guard", "path", r.URL.Path, "action", action)
				http.Redirect(w, r, cfg.LoginURL(r.URL), redirectStatus(r.Method))
			case RedirectToLanding:
				logger.Debugw("route guard", "path", r.URL.Path, "action", action)
				http.Redirect(w, r, cfg.LandingPath, redirectStatus(r.Method))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// redirectStatus keeps the method for navigation and turns a form post into a
// GET, since the target pages only serve GET.
func redirectStatus(method string) int {
	if method == http.MethodGet || method == http.MethodHead {
		return http.StatusTemporaryRedirect
	}
	return http.StatusSeeOther
}

func hasSession(r *http.Request, name string) bool {
	c, err := r.Cookie(name)
	return err == nil && c.Value != ""
}
