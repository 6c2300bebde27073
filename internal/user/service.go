package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/user/entity"
)

// DefaultRole is assigned to accounts created without an explicit role.
const DefaultRole = "Usuário"

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost())
	if err != nil {
		return "", "", err
	}
	return string(h), "bcrypt:" + strconv.Itoa(b.cost()), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NeedsRehash reports whether the stored hash was produced with a lower cost than configured.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return c < b.cost()
}

// Repository is the account storage used by UserService; *repo.UserRepo satisfies it.
type Repository interface {
	Create(ctx context.Context, u *entity.User) (int64, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	GetMinimalAuthView(ctx context.Context, id int64) (*entity.MinimalAuthView, error)
	IncrementFailedLogin(ctx context.Context, id int64) (int, error)
	LockIfThreshold(ctx context.Context, id int64, threshold int, lockMinutes int) (bool, error)
	ResetLoginSuccess(ctx context.Context, id int64) error
	UnlockIfExpired(ctx context.Context, id int64) (bool, error)
	UpdatePassword(ctx context.Context, id int64, hash, algo string) error
}

// UserService orchestrates authentication and account lifecycle flows.
type UserService struct {
	repo   Repository
	hasher PasswordHasher
	now    func() time.Time
	// configuration knobs
	MaxFailed   int
	LockMinutes int
}

func NewUserService(r Repository, hasher PasswordHasher) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{repo: r, hasher: hasher, now: time.Now, MaxFailed: 6, LockMinutes: 15}
}

var (
	ErrLocked         = errors.New("user locked")
	ErrDisabled       = errors.New("user disabled")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrMissingField   = errors.New("username and password are required")
)

// AuthenticatePassword checks a username/password pair.
// On success resets counters and returns the minimal auth view.
func (s *UserService) AuthenticatePassword(ctx context.Context, username, password string) (*entity.MinimalAuthView, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrBadCredentials
	}

	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		} // avoid user enumeration
		return nil, err
	}

	// Expired lock auto-unlock attempt
	if u.Status == "locked" && u.LockedUntil != nil && u.LockedUntil.Before(s.now()) {
		if unlocked, _ := s.repo.UnlockIfExpired(ctx, u.ID); unlocked {
			u.Status = "active"
			u.LockedUntil = nil
		}
	}

	switch u.Status {
	case "locked":
		return nil, ErrLocked
	case "disabled":
		return nil, ErrDisabled
	}
	if u.PasswordHash == nil || *u.PasswordHash == "" {
		return nil, ErrBadCredentials
	}

	if !s.hasher.Verify(*u.PasswordHash, password) {
		if _, incErr := s.repo.IncrementFailedLogin(ctx, u.ID); incErr == nil {
			_, _ = s.repo.LockIfThreshold(ctx, u.ID, s.MaxFailed, s.LockMinutes)
		}
		return nil, ErrBadCredentials
	}

	if err := s.repo.ResetLoginSuccess(ctx, u.ID); err != nil {
		return nil, err
	}

	if s.hasher.NeedsRehash(*u.PasswordHash) {
		if newHash, algo, hErr := s.hasher.Hash(password); hErr == nil {
			_ = s.repo.UpdatePassword(ctx, u.ID, newHash, algo)
		}
	}

	return s.repo.GetMinimalAuthView(ctx, u.ID)
}

// SignupUser creates an active account, hashing the password.
func (s *UserService) SignupUser(ctx context.Context, username, fullname, role, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, ErrMissingField
	}
	if strings.TrimSpace(role) == "" {
		role = DefaultRole
	}
	hash, algo, err := s.hasher.Hash(password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	u := &entity.User{
		Username:     username,
		Fullname:     strings.TrimSpace(fullname),
		Role:         role,
		PasswordHash: &hash,
		PasswordAlgo: &algo,
		Status:       "active",
		Version:      1,
	}
	return s.repo.Create(ctx, u)
}

// EnsureAccount creates the account unless the username already exists.
// Used to seed a bootstrap admin on startup.
func (s *UserService) EnsureAccount(ctx context.Context, username, fullname, role, password string) (created bool, err error) {
	_, err = s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, err
	}
	if _, err := s.SignupUser(ctx, username, fullname, role, password); err != nil {
		return false, err
	}
	return true, nil
}

// GetMinimalAuthView retrieves the minimal projection for a user by ID.
func (s *UserService) GetMinimalAuthView(ctx context.Context, id int64) (*entity.MinimalAuthView, error) {
	return s.repo.GetMinimalAuthView(ctx, id)
}
