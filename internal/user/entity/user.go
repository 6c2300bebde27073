package entity

import "time"

// User is an account row in the `accounts` table.
type User struct {
	ID                  int64      `db:"id"`
	Username            string     `db:"username"`
	Fullname            string     `db:"fullname"`
	Role                string     `db:"role"`
	PasswordHash        *string    `db:"password_hash"`
	PasswordAlgo        *string    `db:"password_algo"`
	PasswordUpdatedAt   *time.Time `db:"password_updated_at"`
	Status              string     `db:"status"` // active / locked / disabled
	LoginFailedAttempts int        `db:"login_failed_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	Version             int64      `db:"version"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// MinimalAuthView is the projection used to fill token claims.
type MinimalAuthView struct {
	ID       int64  `db:"id"`
	Username string `db:"username"`
	Fullname string `db:"fullname"`
	Role     string `db:"role"`
	Version  int64  `db:"version"`
}

// IssuedTokens is what a successful authentication hands back to the caller.
type IssuedTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds
}
