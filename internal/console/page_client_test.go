package console

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/auth"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/clientstore"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/guard"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/session"
)

// guardedConsole serves the session bridge and one guarded page.
func guardedConsole(t *testing.T) *url.URL {
	t.Helper()
	mux := http.NewServeMux()
	session.NewHandler(session.Options{}, nil).Register(mux, "/api/auth/session")
	mux.HandleFunc("GET /processos", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(guard.Middleware(guard.DefaultConfig(), nil)(mux))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	return u
}

func TestPageClientFollowsBridgeSession(t *testing.T) {
	consoleURL := guardedConsole(t)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"abc.def.ghi","user":{"username":"ana","role":"Gestor"}}`))
	}))
	defer backend.Close()
	apiURL, err := url.Parse(backend.URL + "/")
	require.NoError(t, err)

	storage := clientstore.NewMemoryStorage()
	jar, err := clientstore.NewCookieJar(storage, nil)
	require.NoError(t, err)
	httpClient := &http.Client{Jar: jar}
	store := clientstore.New(storage, nil)
	p := NewAuthProvider(auth.NewService(apiURL, consoleURL, httpClient, nil), store, nil)
	p.Mount()
	pages := NewPageClient(consoleURL, httpClient)
	ctx := context.Background()

	res, err := pages.Open(ctx, "/processos")
	require.NoError(t, err)
	assert.False(t, res.Authenticated())
	assert.Equal(t, "/login?redirectTo=%2Fprocessos", res.Location)

	out := SubmitLogin(ctx, p, "ana", "pw")
	require.True(t, out.Success)
	res, err = pages.Open(ctx, "/processos")
	require.NoError(t, err)
	assert.True(t, res.Authenticated())

	// a later command builds its jar from the same storage
	restored, err := clientstore.NewCookieJar(storage, nil)
	require.NoError(t, err)
	res, err = NewPageClient(consoleURL, &http.Client{Jar: restored}).Open(ctx, "processos")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)

	p.Logout(ctx)
	res, err = pages.Open(ctx, "/processos")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTemporaryRedirect, res.Status)
	_, ok := store.Token()
	assert.False(t, ok)
}
