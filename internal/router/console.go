package router

import (
	"context"
	"html/template"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/auth"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/console"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/guard"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/session"
)

// SessionPath is where the session cookie bridge is mounted on the console server.
const SessionPath = "/api/auth/session"

const maxFormBytes = 1 << 16

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<title>{{.Title}} | Processos</title>
</head>
<body data-api-base="{{.APIBase}}">
<main>
<h1>{{.Title}}</h1>
{{if .Message}}<p role="alert">{{.Message}}</p>{{end}}
{{if .Login}}
<form id="login" method="post" autocomplete="off">
  <input type="hidden" name="redirectTo" value="{{.RedirectTo}}">
  <label>Usuário <input name="username" value="{{.Username}}" required></label>
  <label>Senha <input name="password" type="password" required></label>
  <button type="submit">Entrar</button>
</form>
{{else}}
<form id="logout" method="post" action="/logout"><button type="submit">Sair</button></form>
<section id="processos" data-path="{{.Path}}"></section>
{{end}}
</main>
</body>
</html>
`))

type pageData struct {
	Title      string
	APIBase    string
	Path       string
	RedirectTo string
	Username   string
	Message    string
	Login      bool
}

// Authenticator checks credentials against the remote backend; *auth.Service
// satisfies it.
type Authenticator interface {
	Login(ctx context.Context, creds auth.Credentials) auth.Result
}

// ConsoleOptions wires the console server.
type ConsoleOptions struct {
	Session *session.Handler
	Guard   guard.Config
	Auth    Authenticator
	// APIBase is exposed to the pages so client code knows where the backend lives.
	APIBase string
}

// RegisterConsoleRoutes builds the console server handler: the session
// bridge, page shells behind the route guard, health and metrics.
func RegisterConsoleRoutes(opts ConsoleOptions, logger *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health)
	mux.Handle("GET /metrics", promhttp.Handler())
	opts.Session.Register(mux, SessionPath)

	login := pageHandler(logger, func(r *http.Request) pageData {
		return pageData{Title: "Login", APIBase: opts.APIBase, Login: true, RedirectTo: r.URL.Query().Get(guard.RedirectParam)}
	})
	mux.Handle("GET /login", login)
	mux.Handle("GET /auth/login", login)
	submit := loginSubmitHandler(opts, logger)
	mux.Handle("POST /login", submit)
	mux.Handle("POST /auth/login", submit)
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		opts.Session.ClearCookie(w)
		http.Redirect(w, r, opts.Guard.LoginPath, http.StatusSeeOther)
	})

	processos := pageHandler(logger, func(r *http.Request) pageData {
		return pageData{Title: "Processos", APIBase: opts.APIBase, Path: r.URL.Path}
	})
	mux.Handle("GET /processos", processos)
	mux.Handle("GET /processos/{path...}", processos)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, opts.Guard.LandingPath, http.StatusTemporaryRedirect)
	})

	return Chain(mux,
		LoggingMiddleware(logger),
		MetricsMiddleware("console"),
		SecurityHeadersMiddleware(),
		guard.Middleware(opts.Guard, logger),
	)
}

func pageHandler(logger *zap.SugaredLogger, data func(*http.Request) pageData) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, r, http.StatusOK, data(r), logger)
	})
}

func renderPage(w http.ResponseWriter, r *http.Request, status int, data pageData, logger *zap.SugaredLogger) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		logger.Errorw("render page", "path", r.URL.Path, "err", err)
	}
}

// loginSubmitHandler is the login form action. It authenticates against the
// backend, sets the session cookie on the browser response and sends the user
// on to redirectTo. Failures re-render the form with the message.
func loginSubmitHandler(opts ConsoleOptions, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			logger.Debugw("invalid login form", "err", err)
		}
		redirectTo := r.PostForm.Get(guard.RedirectParam)
		if redirectTo == "" {
			redirectTo = r.URL.Query().Get(guard.RedirectParam)
		}
		username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
		data := pageData{Title: "Login", APIBase: opts.APIBase, Login: true, RedirectTo: redirectTo, Username: username}

		if username == "" || password == "" {
			data.Message = console.MissingCredentialsMessage
			renderPage(w, r, http.StatusBadRequest, data, logger)
			return
		}
		if opts.Auth == nil {
			logger.Errorw("login submitted but no authenticator is configured")
			data.Message = auth.DefaultUnexpectedError
			renderPage(w, r, http.StatusServiceUnavailable, data, logger)
			return
		}

		conID := 0
		res := opts.Auth.Login(r.Context(), auth.Credentials{Username: username, Password: password, ConID: &conID})
		if !res.Success {
			data.Message = res.Message
			renderPage(w, r, http.StatusUnauthorized, data, logger)
			return
		}
		if res.Token == "" {
			logger.Warnw("login succeeded without a token", "username", username)
			data.Message = auth.DefaultUnexpectedError
			renderPage(w, r, http.StatusBadGateway, data, logger)
			return
		}

		opts.Session.SetCookie(w, res.Token)
		logger.Infow("console login", "username", username)
		http.Redirect(w, r, safeRedirect(redirectTo, opts.Guard.LandingPath), http.StatusSeeOther)
	}
}

// safeRedirect accepts only paths on this origin and falls back otherwise.
func safeRedirect(target, fallback string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	if strings.ContainsAny(target, "\r\n") {
		return fallback
	}
	return target
}
