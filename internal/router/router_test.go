package router

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/apiclient"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/auth"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/console"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/guard"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/oidc"
	oidcrepo "github.com/ovaphlow/pitchfork/service-processo-console/internal/oidc/repo"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/processo"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/processo/entity"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/session"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/user"
	userentity "github.com/ovaphlow/pitchfork/service-processo-console/internal/user/entity"
)

var nop = zap.NewNop().Sugar()

// stubAuth accepts one username/password pair.
type stubAuth struct {
	username, password string
	got                []auth.Credentials
}

func (s *stubAuth) Login(_ context.Context, creds auth.Credentials) auth.Result {
	s.got = append(s.got, creds)
	if creds.Username != s.username || creds.Password != s.password {
		return auth.Result{Message: auth.DefaultInvalidCredentials}
	}
	return auth.Result{Success: true, Token: "abc.def.ghi", User: &auth.User{Username: creds.Username}}
}

func newConsole(t *testing.T) http.Handler {
	t.Helper()
	return newConsoleWith(t, &stubAuth{username: "ana", password: "pw"})
}

func newConsoleWith(t *testing.T, a Authenticator) http.Handler {
	t.Helper()
	return RegisterConsoleRoutes(ConsoleOptions{
		Session: session.NewHandler(session.Options{}, nop),
		Guard:   guard.DefaultConfig(),
		Auth:    a,
		APIBase: "https://localhost:7227/",
	}, nop)
}

func postForm(h http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginFormSetsCookieAndRedirects(t *testing.T) {
	a := &stubAuth{username: "ana", password: "pw"}
	h := newConsoleWith(t, a)

	for _, path := range []string{"/login", "/auth/login"} {
		t.Run(path, func(t *testing.T) {
			rec := postForm(h, path, url.Values{"username": {"ana"}, "password": {"pw"}, "redirectTo": {"/processos/42"}})
			require.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, "/processos/42", rec.Header().Get("Location"))
			cookies := rec.Result().Cookies()
			require.Len(t, cookies, 1)
			assert.Equal(t, session.CookieName, cookies[0].Name)
			assert.Equal(t, "abc.def.ghi", cookies[0].Value)
			assert.True(t, cookies[0].HttpOnly)
		})
	}
	require.NotEmpty(t, a.got)
	require.NotNil(t, a.got[0].ConID)
	assert.Equal(t, 0, *a.got[0].ConID)
}

func TestLoginFormRedirectTarget(t *testing.T) {
	h := newConsole(t)
	cases := map[string]string{
		"":                       "/processos",
		"/processos/7?tab=docs":  "/processos/7?tab=docs",
		"//evil.example/x":       "/processos",
		"/\\evil.example":        "/processos",
		"https://evil.example/x": "/processos",
		"processos":              "/processos",
	}
	for target, want := range cases {
		t.Run(target, func(t *testing.T) {
			rec := postForm(h, "/login", url.Values{"username": {"ana"}, "password": {"pw"}, "redirectTo": {target}})
			require.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, want, rec.Header().Get("Location"))
		})
	}

	// the query string of the form action is honoured when the field is absent
	req := httptest.NewRequest(http.MethodPost, "/login?redirectTo=%2Fprocessos%2F9", strings.NewReader("username=ana&password=pw"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "/processos/9", rec.Header().Get("Location"))
}

func TestLoginFormFailuresRerenderForm(t *testing.T) {
	a := &stubAuth{username: "ana", password: "pw"}
	h := newConsoleWith(t, a)

	rec := postForm(h, "/login", url.Values{"username": {"ana"}, "redirectTo": {"/processos"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Informe usuário e senha.")
	assert.Contains(t, rec.Body.String(), `value="/processos"`)
	assert.Empty(t, rec.Result().Cookies())
	assert.Empty(t, a.got)

	rec = postForm(h, "/login", url.Values{"username": {"ana"}, "password": {"errada"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Credenciais inválidas")
	assert.Contains(t, rec.Body.String(), `value="ana"`)
	assert.Empty(t, rec.Result().Cookies())
}

func TestLogoutFormClearsCookie(t *testing.T) {
	h := newConsole(t)
	rec := postForm(h, "/logout", nil, &http.Cookie{Name: session.CookieName, Value: "abc.def.ghi"})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestConsoleGuardAndPages(t *testing.T) {
	h := newConsole(t)
	cookie := &http.Cookie{Name: session.CookieName, Value: "a.b.c"}

	cases := []struct {
		name     string
		path     string
		cookie   bool
		status   int
		location string
		body     string
	}{
		{"protected without session", "/processos/123", false, http.StatusTemporaryRedirect, "/login?redirectTo=%2Fprocessos%2F123", ""},
		{"protected with session", "/processos/123", true, http.StatusOK, "", `data-path="/processos/123"`},
		{"public with session", "/login", true, http.StatusTemporaryRedirect, "/processos", ""},
		{"public without session", "/auth/login?redirectTo=%2Fprocessos", false, http.StatusOK, "", `value="/processos"`},
		{"health is not guarded", "/health", false, http.StatusOK, "", "ok"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.cookie {
				req.AddCookie(cookie)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.location != "" {
				assert.Equal(t, tc.location, rec.Header().Get("Location"))
			}
			if tc.body != "" {
				assert.Contains(t, rec.Body.String(), tc.body)
			}
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	h := newConsole(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
}

func TestConsoleSessionBridgeAndMetrics(t *testing.T) {
	h := newConsole(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, SessionPath, strings.NewReader(`{"token":"abc.def.ghi"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), session.CookieName+"=abc.def.ghi")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{code="200",route="POST /api/auth/session",server="console"}`)
}

// accounts is a single-account user.Repository.
type accounts struct {
	u *userentity.User
}

func (a *accounts) Create(context.Context, *userentity.User) (int64, error) { return 0, sql.ErrConnDone }
func (a *accounts) GetByUsername(_ context.Context, username string) (*userentity.User, error) {
	if username != a.u.Username {
		return nil, sql.ErrNoRows
	}
	return a.u, nil
}
func (a *accounts) GetMinimalAuthView(context.Context, int64) (*userentity.MinimalAuthView, error) {
	return &userentity.MinimalAuthView{ID: a.u.ID, Username: a.u.Username, Fullname: a.u.Fullname, Role: a.u.Role}, nil
}
func (a *accounts) IncrementFailedLogin(context.Context, int64) (int, error) { return 1, nil }
func (a *accounts) LockIfThreshold(context.Context, int64, int, int) (bool, error) {
	return false, nil
}
func (a *accounts) ResetLoginSuccess(context.Context, int64) error { return nil }
func (a *accounts) UnlockIfExpired(context.Context, int64) (bool, error) { return false, nil }
func (a *accounts) UpdatePassword(context.Context, int64, string, string) error { return nil }

type refreshes struct{}

func (refreshes) Save(context.Context, string, int64, string, time.Time) (int64, error) { return 1, nil }
func (refreshes) Get(context.Context, string) (*oidcrepo.RefreshSession, error) {
	return nil, sql.ErrNoRows
}
func (refreshes) Delete(context.Context, string) error { return nil }

type processos struct {
	items []entity.Processo
}

func (p *processos) List(context.Context, int, int) ([]entity.Processo, error) { return p.items, nil }
func (p *processos) GetByID(_ context.Context, id int64) (*entity.Processo, error) {
	return nil, sql.ErrNoRows
}
func (p *processos) Create(_ context.Context, in *entity.Processo) error {
	p.items = append(p.items, *in)
	return nil
}
func (p *processos) Update(context.Context, *entity.Processo) (int64, error) { return 0, nil }
func (p *processos) Delete(context.Context, int64) (int64, error) { return 0, nil }

type tokenSlot struct{ tok string }

func (s *tokenSlot) Token() (string, bool) { return s.tok, s.tok != "" }

// The console's auth service and API client talking to the real backend
// routes and the real console bridge.
func TestLoginAgainstBackendEndToEnd(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	h := string(hash)
	userSvc := user.NewUserService(&accounts{u: &userentity.User{
		ID: 7, Username: "admin", Fullname: "Administrador", Role: "Admin", PasswordHash: &h, Status: "active",
	}}, user.BcryptHasher{Cost: bcrypt.MinCost})
	issuer, err := oidc.NewOIDCService(refreshes{}, "http://backend.test", time.Minute)
	require.NoError(t, err)

	backend := httptest.NewServer(RegisterAPIRoutes(APIOptions{
		Users:     user.NewHandler(userSvc, issuer, nop),
		OIDC:      oidc.NewHandler(issuer, userSvc, nop),
		Processos: processo.NewHandler(processo.NewService(&processos{}), nop),
	}, nop))
	defer backend.Close()
	apiURL, _ := url.Parse(backend.URL + "/")

	consoleSrv := httptest.NewServer(newConsoleWith(t, auth.NewService(apiURL, nil, nil, nop)))
	defer consoleSrv.Close()
	consoleURL, _ := url.Parse(consoleSrv.URL + "/")

	web := newBrowser(t)
	svc := auth.NewService(apiURL, consoleURL, web, nop)
	assert.Equal(t, http.StatusTemporaryRedirect, getStatus(t, web, consoleSrv.URL+"/processos"))

	bad := svc.Login(context.Background(), auth.Credentials{Username: "admin", Password: "nope"})
	assert.False(t, bad.Success)
	assert.Equal(t, "Credenciais inválidas", bad.Message)

	res := svc.Login(context.Background(), auth.Credentials{Username: "admin", Password: "s3cret"})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "admin", res.User.Username)
	assert.Equal(t, "Admin", res.User.Role)
	require.NotNil(t, res.User.Exp)

	// the bridge cookie landed in the client's jar, so guarded pages open
	assert.Equal(t, http.StatusOK, getStatus(t, web, consoleSrv.URL+"/processos"))

	slot := &tokenSlot{}
	client := apiclient.New(apiURL, nil, slot)
	err = client.Do(context.Background(), http.MethodGet, "processos", nil, nil)
	var se *apiclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)

	slot.tok = res.Token
	body := entity.Payload{Numero: "PRC-1", Assunto: "Teste"}
	var created entity.Processo
	require.NoError(t, client.Do(context.Background(), http.MethodPost, "processos", body, &created))
	assert.Equal(t, "PRC-1", created.Numero)

	var list []entity.Processo
	require.NoError(t, client.Do(context.Background(), http.MethodGet, "processos", nil, &list))
	assert.Len(t, list, 1)
	paged, err := console.NewProcessoClient(client).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, paged, 1)

	svc.Logout(context.Background())
	resp := get(t, web, consoleSrv.URL+"/processos")
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "/login?redirectTo=%2Fprocessos", resp.Header.Get("Location"))

	// the browser form goes through the same backend and lands on the page
	browser := newBrowser(t)
	resp, err = browser.PostForm(consoleSrv.URL+"/login", url.Values{
		"username": {"admin"}, "password": {"s3cret"}, "redirectTo": {"/processos/1"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/processos/1", resp.Header.Get("Location"))
	assert.Equal(t, http.StatusOK, getStatus(t, browser, consoleSrv.URL+"/processos/1"))

	resp, err = browser.PostForm(consoleSrv.URL+"/login", url.Values{"username": {"admin"}, "password": {"nope"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode, "a signed-in browser is sent to the landing page")
}

// newBrowser is a cookie-keeping client that reports redirects instead of
// following them.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, c *http.Client, rawURL string) *http.Response {
	t.Helper()
	resp, err := c.Get(rawURL)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

func getStatus(t *testing.T, c *http.Client, rawURL string) int {
	t.Helper()
	return get(t, c, rawURL).StatusCode
}

func TestAPIHealth(t *testing.T) {
	issuer, err := oidc.NewOIDCService(refreshes{}, "http://backend.test", time.Minute)
	require.NoError(t, err)
	h := RegisterAPIRoutes(APIOptions{
		Users:     user.NewHandler(user.NewUserService(&accounts{u: &userentity.User{}}, nil), issuer, nop),
		OIDC:      oidc.NewHandler(issuer, nil, nop),
		Processos: processo.NewHandler(processo.NewService(&processos{}), nop),
	}, nop)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "ok", string(bytes.TrimSpace(body)))
}
