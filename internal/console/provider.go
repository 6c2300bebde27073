// Package console holds the per-tab client state of the processo console:
// the auth provider, login form submission and the processo board.
package console

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/auth"
	"github.com/ovaphlow/pitchfork/service-processo-console/internal/clientstore"
	"github.com/ovaphlow/pitchfork/service-processo-console/pkg/utilities"
)

const (
	DefaultLoginFailure       = "Falha ao autenticar"
	MissingCredentialsMessage = "Informe usuário e senha."
)

// Authenticator is satisfied by *auth.Service.
type Authenticator interface {
	Login(ctx context.Context, creds auth.Credentials) auth.Result
	Logout(ctx context.Context)
}

// State is a snapshot of the provider.
type State struct {
	IsAuthenticated bool
	Token           string
	User            *auth.User
	Initializing    bool
}

// LoginOutcome is what a login form shows to the user.
type LoginOutcome struct {
	Success bool
	Message string
}

// AuthProvider owns the in-memory auth state of one console instance and
// keeps it in step with the client store.
type AuthProvider struct {
	svc    Authenticator
	store  *clientstore.Store
	logger *zap.SugaredLogger

	mu           sync.Mutex
	token        string
	user         *auth.User
	initializing bool
	subs         map[int]func(State)
	nextSub      int
}

func NewAuthProvider(svc Authenticator, store *clientstore.Store, logger *zap.SugaredLogger) *AuthProvider {
	if logger == nil {
		logger = utilities.Nop()
	}
	return &AuthProvider{
		svc:          svc,
		store:        store,
		logger:       logger,
		initializing: true,
		subs:         map[int]func(State){},
	}
}

// Mount restores token and user from the store and ends initialization.
func (p *AuthProvider) Mount() {
	tok, hasTok := p.store.Token()
	u, hasUser := p.store.User()

	p.mu.Lock()
	if hasTok {
		p.token = tok
	}
	if hasUser {
		p.user = u
	}
	p.initializing = false
	p.mu.Unlock()

	p.logger.Debugw("auth provider mounted", "restored_token", hasTok, "restored_user", hasUser)
	p.publish()
}

// Unmount drops every subscriber.
func (p *AuthProvider) Unmount() {
	p.mu.Lock()
	p.subs = map[int]func(State){}
	p.mu.Unlock()
}

func (p *AuthProvider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *AuthProvider) snapshot() State {
	return State{
		IsAuthenticated: p.token != "",
		Token:           p.token,
		User:            p.user,
		Initializing:    p.initializing,
	}
}

// Subscribe registers fn for every state change. The returned func cancels it.
func (p *AuthProvider) Subscribe(fn func(State)) (cancel func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *AuthProvider) publish() {
	p.mu.Lock()
	s := p.snapshot()
	fns := make([]func(State), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Login authenticates and, only when both a token and a user came back,
// stores them and updates the state.
func (p *AuthProvider) Login(ctx context.Context, creds auth.Credentials) LoginOutcome {
	res := p.svc.Login(ctx, creds)
	if !res.Success || res.Token == "" || res.User == nil {
		msg := res.Message
		if msg == "" {
			msg = DefaultLoginFailure
		}
		return LoginOutcome{Message: msg}
	}

	p.mu.Lock()
	p.token = res.Token
	p.user = res.User
	p.mu.Unlock()
	p.store.SetToken(res.Token)
	p.store.SetUser(res.User)

	p.publish()
	return LoginOutcome{Success: true}
}

// Logout clears the bridge cookie, the store and the state. The store and
// state are cleared even when the bridge call fails.
func (p *AuthProvider) Logout(ctx context.Context) {
	p.svc.Logout(ctx)
	p.store.ClearAll()

	p.mu.Lock()
	p.token = ""
	p.user = nil
	p.mu.Unlock()
	p.publish()
}

// SubmitLogin is the login form action: blank fields are rejected before any
// network call, otherwise it logs in with connection id 0.
func SubmitLogin(ctx context.Context, p *AuthProvider, username, password string) LoginOutcome {
	if username == "" || password == "" {
		return LoginOutcome{Message: MissingCredentialsMessage}
	}
	conID := 0
	return p.Login(ctx, auth.Credentials{Username: username, Password: password, ConID: &conID})
}
