// Package clientstore keeps the console client's token and user profile
// across restarts.
package clientstore

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/auth"
	"github.com/ovaphlow/pitchfork/service-processo-console/pkg/utilities"
)

const (
	TokenKey = "processos.auth.token"
	UserKey  = "processos.auth.user"
)

// Store exposes the token and user slots. Built over a nil Storage every
// operation is a no-op and every getter reports absence. Write failures are
// logged, never returned.
type Store struct {
	storage Storage
	logger  *zap.SugaredLogger
}

func New(storage Storage, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = utilities.Nop()
	}
	return &Store{storage: storage, logger: logger}
}

func (s *Store) available() bool {
	return s != nil && s.storage != nil
}

func (s *Store) Token() (string, bool) {
	if !s.available() {
		return "", false
	}
	v, ok := s.storage.GetItem(TokenKey)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (s *Store) SetToken(token string) {
	if !s.available() {
		return
	}
	if err := s.storage.SetItem(TokenKey, token); err != nil {
		s.logger.Warnw("failed to store token", "err", err)
	}
}

func (s *Store) RemoveToken() {
	s.remove(TokenKey)
}

// User returns the stored profile; a corrupt value reads as no user.
func (s *Store) User() (*auth.User, bool) {
	if !s.available() {
		return nil, false
	}
	raw, ok := s.storage.GetItem(UserKey)
	if !ok || raw == "" {
		return nil, false
	}
	var u auth.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		s.logger.Warnw("failed to parse stored user", "err", err)
		return nil, false
	}
	return &u, true
}

func (s *Store) SetUser(u *auth.User) {
	if !s.available() || u == nil {
		return
	}
	b, err := json.Marshal(u)
	if err != nil {
		s.logger.Warnw("failed to encode user", "err", err)
		return
	}
	if err := s.storage.SetItem(UserKey, string(b)); err != nil {
		s.logger.Warnw("failed to store user", "err", err)
	}
}

func (s *Store) ClearUser() {
	s.remove(UserKey)
}

// ClearAll removes both slots.
func (s *Store) ClearAll() {
	s.remove(TokenKey)
	s.remove(UserKey)
}

func (s *Store) remove(key string) {
	if !s.available() {
		return
	}
	if err := s.storage.RemoveItem(key); err != nil {
		s.logger.Warnw("failed to remove stored item", "key", key, "err", err)
	}
}
