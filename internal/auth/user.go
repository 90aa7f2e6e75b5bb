// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxUsernameLength is the maximum accepted username length.
const MaxUsernameLength = 20

// User is a registered account. Users are created at signup and are
// never updated or deleted afterwards.
type User struct {
	ID           ulid.ULID
	Username     string
	Email        string // empty when the user signed up without one
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a validated User instance. Field format rules (length,
// character set, email shape) are enforced by the form layer before this
// point; this constructor guards the domain invariants only.
func NewUser(username, email, passwordHash string) (*User, error) {
	if username == "" {
		return nil, oops.Code("USER_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) > MaxUsernameLength {
		return nil, oops.Code("USER_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicateEmail (wrapped) when
	// the email is already registered.
	Create(ctx context.Context, user *User) error

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound (wrapped) if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)
}
