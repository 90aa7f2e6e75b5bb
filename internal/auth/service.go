// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Service orchestrates signup, login, logout, and session resolution.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	hasher   PasswordHasher
	ttl      time.Duration
	logger   *slog.Logger
}

// NewService creates a new Service. A non-positive ttl falls back to
// SessionTTL.
func NewService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, ttl time.Duration) (*Service, error) {
	return NewServiceWithLogger(users, sessions, hasher, ttl, slog.Default())
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(users UserRepository, sessions SessionRepository, hasher PasswordHasher, ttl time.Duration, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("logger is required")
	}
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		ttl:      ttl,
		logger:   logger,
	}, nil
}

// dummyPasswordHash is verified against when no user matches the given
// email, so response time does not reveal whether an account exists.
// This is NOT a real credential - it will never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing equalization, not a credential.
const dummyPasswordHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// EnsureSession resolves the session for a request. A valid token loads
// the existing session; a missing, unknown, or expired token mints a
// fresh anonymous session. The returned string is the new plaintext
// token to set on the cookie, empty when the existing session was kept.
func (s *Service) EnsureSession(ctx context.Context, token string) (*Session, string, error) {
	if token != "" {
		session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
		switch {
		case err == nil:
			if !session.IsExpired() {
				session.LastSeenAt = time.Now()
				// Best effort, resolution succeeds regardless
				_ = s.sessions.Update(ctx, session) //nolint:errcheck
				return session, "", nil
			}
			// Expired records are treated as absent; the janitor removes them.
		case !errors.Is(err, ErrNotFound):
			return nil, "", oops.Code("SESSION_LOAD_FAILED").
				With("operation", "get session by token hash").
				Wrap(err)
		}
	}
	return s.createAnonymous(ctx)
}

// SignUp registers a new user and promotes the session to authenticated.
// The user insert is awaited before any session state is trusted; a
// duplicate email leaves the session anonymous, annotated with
// SignupEmailTaken, and returns no error (the caller branches on
// session.Authenticated). Returns the resulting session and, when the
// session rotated, the new plaintext token.
func (s *Service) SignUp(ctx context.Context, session *Session, username, email, password string) (*Session, string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(username, email, hash)
	if err != nil {
		return nil, "", oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "build user").
			Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			session.Authenticated = false
			session.Username = ""
			session.SignupFailed = SignupEmailTaken
			if uerr := s.sessions.Update(ctx, session); uerr != nil {
				s.logger.Warn("failed to record signup failure on session", "error", uerr)
			}
			s.logger.Info("signup rejected: email already registered", "username", username)
			return session, "", nil
		}
		return nil, "", oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create user").
			With("username", username).
			Wrap(err)
	}

	newSession, token, err := s.promote(ctx, session, username)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user signed up", "username", username)
	return newSession, token, nil
}

// LogIn authenticates by email and password. Lookup misses and password
// mismatches are not errors: the session stays anonymous with
// LoginFailed set to FailureEmail or FailurePassword for the next login
// form render, and the caller branches on session.Authenticated. On
// success the session rotates into an authenticated one carrying the
// STORED username.
func (s *Service) LogIn(ctx context.Context, session *Session, email, password string) (*Session, string, error) {
	user, lookupErr := s.users.GetByEmail(ctx, email)
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, "", oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
		// Verify against a dummy hash so unknown emails cost the same
		// as wrong passwords. Result is discarded.
		_, _ = s.hasher.Verify(password, dummyPasswordHash) //nolint:errcheck
		return s.recordLoginFailure(ctx, session, FailureEmail)
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !valid {
		return s.recordLoginFailure(ctx, session, FailurePassword)
	}

	newSession, token, err := s.promote(ctx, session, user.Username)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user logged in", "username", user.Username)
	return newSession, token, nil
}

// LogOut destroys the session entirely. Logging out an already-destroyed
// session is a no-op.
func (s *Service) LogOut(ctx context.Context, session *Session) error {
	err := s.sessions.Delete(ctx, session.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return nil
}

// createAnonymous mints and persists a fresh anonymous session.
func (s *Service) createAnonymous(ctx context.Context) (*Session, string, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewAnonymousSession(tokenHash, s.ttl)
	if err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "build session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}
	return session, token, nil
}

// promote replaces the current session with an authenticated one under a
// fresh token. Rotating the token on privilege change prevents session
// fixation. The old record is deleted best-effort; if deletion fails the
// janitor reaps it at expiry.
func (s *Service) promote(ctx context.Context, old *Session, username string) (*Session, string, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_SESSION_ROTATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	now := time.Now()
	session := &Session{
		ID:            ulid.Make(),
		TokenHash:     tokenHash,
		Authenticated: true,
		Username:      username,
		ExpiresAt:     now.Add(s.ttl),
		CreatedAt:     now,
		LastSeenAt:    now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_ROTATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	_ = s.sessions.Delete(ctx, old.ID) //nolint:errcheck // Best effort, janitor reaps leftovers

	return session, token, nil
}

// recordLoginFailure annotates the session with the failure reason and
// keeps it anonymous.
func (s *Service) recordLoginFailure(ctx context.Context, session *Session, reason FailureReason) (*Session, string, error) {
	session.Authenticated = false
	session.Username = ""
	session.LoginFailed = reason
	if err := s.sessions.Update(ctx, session); err != nil {
		s.logger.Warn("failed to record login failure on session", "error", err)
	}
	s.logger.Info("login rejected", "reason", string(reason))
	return session, "", nil
}

// DestroySession removes a session by ID regardless of its state.
func (s *Service) DestroySession(ctx context.Context, id ulid.ULID) error {
	err := s.sessions.Delete(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_DELETE_FAILED").
			With("session_id", id.String()).
			Wrap(err)
	}
	return nil
}
