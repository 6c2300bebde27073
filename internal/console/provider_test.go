package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/auth"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/clientstore"
)

type fakeAuth struct {
	mu      sync.Mutex
	result  auth.Result
	logins  []auth.Credentials
	logouts int
}

func (f *fakeAuth) Login(_ context.Context, creds auth.Credentials) auth.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, creds)
	return f.result
}

func (f *fakeAuth) Logout(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
}

func TestMountRestoresStoredSession(t *testing.T) {
	store := clientstore.New(clientstore.NewMemoryStorage(), nil)
	store.SetToken("a.b.c")
	store.SetUser(&auth.User{Username: "ana", Role: "Gestor"})

	p := NewAuthProvider(&fakeAuth{}, store, nil)
	assert.True(t, p.State().Initializing)

	var seen []State
	cancel := p.Subscribe(func(s State) { seen = append(seen, s) })
	defer cancel()

	p.Mount()
	s := p.State()
	assert.False(t, s.Initializing)
	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, "a.b.c", s.Token)
	assert.Equal(t, "ana", s.User.Username)
	require.Len(t, seen, 1)
	assert.Equal(t, s, seen[0])
}

func TestLoginUpdatesStateAndStore(t *testing.T) {
	store := clientstore.New(clientstore.NewMemoryStorage(), nil)
	svc := &fakeAuth{result: auth.Result{Success: true, Token: "a.b.c", User: &auth.User{Username: "ana", Role: "Gestor"}}}
	p := NewAuthProvider(svc, store, nil)
	p.Mount()

	out := p.Login(context.Background(), auth.Credentials{Username: "ana", Password: "x"})
	assert.True(t, out.Success)
	assert.True(t, p.State().IsAuthenticated)
	tok, ok := store.Token()
	require.True(t, ok)
	assert.Equal(t, "a.b.c", tok)
	u, ok := store.User()
	require.True(t, ok)
	assert.Equal(t, "Gestor", u.Role)
}

func TestLoginFailureLeavesStateUntouched(t *testing.T) {
	cases := []struct {
		name   string
		result auth.Result
		want   string
	}{
		{"rejected", auth.Result{Message: "Credenciais inválidas"}, "Credenciais inválidas"},
		{"no message", auth.Result{}, DefaultLoginFailure},
		{"success without user", auth.Result{Success: true, Token: "a.b.c"}, DefaultLoginFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := clientstore.New(clientstore.NewMemoryStorage(), nil)
			p := NewAuthProvider(&fakeAuth{result: tc.result}, store, nil)
			p.Mount()
			calls := 0
			p.Subscribe(func(State) { calls++ })

			out := p.Login(context.Background(), auth.Credentials{Username: "ana", Password: "x"})
			assert.False(t, out.Success)
			assert.Equal(t, tc.want, out.Message)
			assert.False(t, p.State().IsAuthenticated)
			_, ok := store.Token()
			assert.False(t, ok)
			assert.Zero(t, calls)
		})
	}
}

func TestSubmitLoginValidatesBeforeCalling(t *testing.T) {
	svc := &fakeAuth{result: auth.Result{Success: true, Token: "a.b.c", User: &auth.User{Username: "ana"}}}
	p := NewAuthProvider(svc, clientstore.New(clientstore.NewMemoryStorage(), nil), nil)

	for _, in := range [][2]string{{"", "x"}, {"ana", ""}, {"", ""}} {
		out := SubmitLogin(context.Background(), p, in[0], in[1])
		assert.False(t, out.Success)
		assert.Equal(t, MissingCredentialsMessage, out.Message)
	}
	assert.Empty(t, svc.logins)

	out := SubmitLogin(context.Background(), p, "ana", "x")
	assert.True(t, out.Success)
	require.Len(t, svc.logins, 1)
	require.NotNil(t, svc.logins[0].ConID)
	assert.Equal(t, 0, *svc.logins[0].ConID)
}

func TestUnmountDropsSubscribers(t *testing.T) {
	p := NewAuthProvider(&fakeAuth{}, clientstore.New(nil, nil), nil)
	calls := 0
	p.Subscribe(func(State) { calls++ })
	p.Unmount()
	p.Mount()
	assert.Zero(t, calls)
}

// End to end through auth.Service: the bridge rejects the logout but the
// session is still gone locally.
func TestLogoutClearsEvenWhenBridgeFails(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"unique_name": "ana", "role": "Gestor"}).SignedString([]byte("k"))
	require.NoError(t, err)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"jwtToken": tok})
	}))
	defer api.Close()
	var posts, deletes int
	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		deletes++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bridge.Close()

	apiURL, _ := url.Parse(api.URL + "/")
	consoleURL, _ := url.Parse(bridge.URL + "/")
	store := clientstore.New(clientstore.NewMemoryStorage(), nil)
	p := NewAuthProvider(auth.NewService(apiURL, consoleURL, nil, nil), store, nil)
	p.Mount()

	out := SubmitLogin(context.Background(), p, "ana", "x")
	require.True(t, out.Success)
	assert.Equal(t, "ana", p.State().User.Username)
	assert.Equal(t, 1, posts)

	p.Logout(context.Background())
	assert.Equal(t, 1, deletes)
	s := p.State()
	assert.False(t, s.IsAuthenticated)
	assert.Nil(t, s.User)
	_, ok := store.Token()
	assert.False(t, ok)
	_, ok = store.User()
	assert.False(t, ok)
}
