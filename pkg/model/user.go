package model

import (
	"errors"
	"fmt"
	"time"
)

const MaxUsernameLength = 32

// The reserved system identity. It is seeded by the schema migration, owns
// join/leave notices and tombstoned messages, and can never log in.
const (
	SystemUserID   int64 = 1
	SystemUserName       = "SERVER"
)

var ErrUsernameEmpty = errors.New("username must not be empty")
var ErrUsernameTooLong = fmt.Errorf("username must not exceed %d characters", MaxUsernameLength)
var ErrUsernameInvalidChars = errors.New("username must contain only alphanumeric characters, underscores, or hyphens")
var ErrUsernameReserved = errors.New("username is reserved")

// User represents a registered account.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // argon2id encoding of the client-supplied hash
	IsAdmin      bool      `json:"admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserSummary is one row of the admin user listing.
type UserSummary struct {
	ID      int64  `json:"id"`
	Name    string `json:"username"`
	IsAdmin bool   `json:"admin"`
}

// UserDetails is the moderation view of a single user.
type UserDetails struct {
	ID           int64          `json:"id"`
	Name         string         `json:"username"`
	MessageCount int64          `json:"message_count"`
	IsAdmin      bool           `json:"admin"`
	Reports      []ReportDetail `json:"reports"`
}

// LoginResult is the outcome of a credential check.
type LoginResult struct {
	Valid   bool
	UserID  int64
	IsAdmin bool
}

// ValidateUsername checks that a username is 1-32 ASCII alphanumeric, underscore,
// or hyphen characters and is not the reserved system name.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return ErrUsernameInvalidChars
		}
	}
	if name == SystemUserName {
		return ErrUsernameReserved
	}
	return nil
}
