// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes = 32 // 32 bytes = 64 hex chars

	// SessionTTL is the lifetime of a session from its last successful
	// signup or login (and of an anonymous session from creation). The
	// cookie max-age, the stored expiry, and the janitor all derive from
	// the same expires_at value.
	SessionTTL = time.Hour
)

// FailureReason records why the last login attempt on a session failed.
type FailureReason string

// Login failure reasons shown on the next login form render.
const (
	FailureNone     FailureReason = ""
	FailureEmail    FailureReason = "email"
	FailurePassword FailureReason = "password"
)

// SignupEmailTaken marks a session whose last signup attempt hit an
// already-registered email.
const SignupEmailTaken = "email_taken"

// Session is the server-side record of a client's authentication state,
// referenced by the hash of an opaque token carried in a cookie.
type Session struct {
	ID            ulid.ULID
	TokenHash     string
	Authenticated bool
	Username      string // empty while anonymous
	LoginFailed   FailureReason
	SignupFailed  string
	ExpiresAt     time.Time
	CreatedAt     time.Time
	LastSeenAt    time.Time
}

// NewAnonymousSession creates a fresh unauthenticated session.
func NewAnonymousSession(tokenHash string, ttl time.Duration) (*Session, error) {
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.Code("SESSION_INVALID_TTL").Errorf("session ttl must be positive")
	}

	now := time.Now()
	return &Session{
		ID:         ulid.Make(),
		TokenHash:  tokenHash,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		LastSeenAt: now,
	}, nil
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the session would be expired at the given
// time. Useful for testing with deterministic time values.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext token is
// sent to the client; only the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashSessionToken(token)

	return token, hash, nil
}

// HashSessionToken computes the SHA-256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages web session persistence. Implementations
// must be safe for concurrent use.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	// Returns ErrNotFound (wrapped) when no session matches.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// Update persists changed session state (failure annotations,
	// expiry, last-seen timestamp).
	Update(ctx context.Context, session *Session) error

	// Delete removes a session by ID. Returns ErrNotFound (wrapped)
	// when the session does not exist.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteExpired removes all expired sessions and returns the count
	// of deleted records.
	DeleteExpired(ctx context.Context) (int64, error)
}
