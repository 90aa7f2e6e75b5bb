// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/membergate/membergate/internal/auth"
	"github.com/membergate/membergate/internal/auth/mocks"
	"github.com/membergate/membergate/pkg/errutil"
)

func TestNewService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		users       auth.UserRepository
		sessions    auth.SessionRepository
		hasher      auth.PasswordHasher
		expectError string
	}{
		{
			name:        "nil users repository",
			users:       nil,
			sessions:    mocks.NewMockSessionRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			expectError: "users repository is required",
		},
		{
			name:        "nil sessions repository",
			users:       mocks.NewMockUserRepository(t),
			sessions:    nil,
			hasher:      mocks.NewMockPasswordHasher(t),
			expectError: "sessions repository is required",
		},
		{
			name:        "nil password hasher",
			users:       mocks.NewMockUserRepository(t),
			sessions:    mocks.NewMockSessionRepository(t),
			hasher:      nil,
			expectError: "password hasher is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(tt.users, tt.sessions, tt.hasher, time.Hour)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestNewServiceWithLogger_NilLogger(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)

	svc, err := auth.NewServiceWithLogger(users, sessions, hasher, time.Hour, nil)
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.Contains(t, err.Error(), "logger")
}

func newTestService(t *testing.T) (*auth.Service, *mocks.MockUserRepository, *mocks.MockSessionRepository, *mocks.MockPasswordHasher) {
	t.Helper()
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc, err := auth.NewService(users, sessions, hasher, time.Hour)
	require.NoError(t, err)
	return svc, users, sessions, hasher
}

func anonymousSession(t *testing.T) *auth.Session {
	t.Helper()
	session, err := auth.NewAnonymousSession(auth.HashSessionToken("testtoken"), time.Hour)
	require.NoError(t, err)
	return session
}

func TestService_EnsureSession(t *testing.T) {
	ctx := context.Background()

	t.Run("empty token mints anonymous session", func(t *testing.T) {
		svc, _, sessions, _ := newTestService(t)

		sessions.On("Create", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)

		session, token, err := svc.EnsureSession(ctx, "")
		require.NoError(t, err)
		assert.False(t, session.Authenticated)
		assert.Len(t, token, 64)
		assert.Equal(t, auth.HashSessionToken(token), session.TokenHash)
	})

	t.Run("valid token returns existing session without rotation", func(t *testing.T) {
		svc, _, sessions, _ := newTestService(t)

		existing := anonymousSession(t)
		existing.Authenticated = true
		existing.Username = "alice"

		sessions.On("GetByTokenHash", ctx, auth.HashSessionToken("testtoken")).Return(existing, nil)
		sessions.On("Update", ctx, existing).Return(nil)

		session, token, err := svc.EnsureSession(ctx, "testtoken")
		require.NoError(t, err)
		assert.Same(t, existing, session)
		assert.Empty(t, token)
	})

	t.Run("unknown token mints fresh anonymous session", func(t *testing.T) {
		svc, _, sessions, _ := newTestService(t)

		sessions.On("GetByTokenHash", ctx, mock.AnythingOfType("string")).Return(nil, auth.ErrNotFound)
		sessions.On("Create", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)

		session, token, err := svc.EnsureSession(ctx, "unknowntoken")
		require.NoError(t, err)
		assert.False(t, session.Authenticated)
		assert.NotEmpty(t, token)
	})

	t.Run("expired session is replaced by anonymous one", func(t *testing.T) {
		svc, _, sessions, _ := newTestService(t)

		expired := anonymousSession(t)
		expired.Authenticated = true
		expired.Username = "alice"
		expired.ExpiresAt = time.Now().Add(-time.Minute)

		sessions.On("GetByTokenHash", ctx, auth.HashSessionToken("testtoken")).Return(expired, nil)
		sessions.On("Create", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)

		session, token, err := svc.EnsureSession(ctx, "testtoken")
		require.NoError(t, err)
		assert.NotSame(t, expired, session)
		assert.False(t, session.Authenticated)
		assert.NotEmpty(t, token)
	})

	t.Run("repository failure propagates", func(t *testing.T) {
		svc, _, sessions, _ := newTestService(t)

		sessions.On("GetByTokenHash", ctx, mock.AnythingOfType("string")).
			Return(nil, errors.New("connection refused"))

		session, token, err := svc.EnsureSession(ctx, "testtoken")
		require.Error(t, err)
		assert.Nil(t, session)
		assert.Empty(t, token)
		errutil.AssertErrorCode(t, err, "SESSION_LOAD_FAILED")
	})
}

func TestService_SignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("successful signup rotates to authenticated session", func(t *testing.T) {
		svc, users, sessions, hasher := newTestService(t)
		current := anonymousSession(t)

		hasher.On("Hash", "secret").Return("hashedsecret", nil)
		users.On("Create", ctx, mock.MatchedBy(func(u *auth.User) bool {
			return u.Username == "alice" && u.Email == "alice@example.com" && u.PasswordHash == "hashedsecret"
		})).Return(nil)
		sessions.On("Create", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)
		sessions.On("Delete", ctx, current.ID).Return(nil)

		session, token, err := svc.SignUp(ctx, current, "alice", "alice@example.com", "secret")
		require.NoError(t, err)
		assert.True(t, session.Authenticated)
		assert.Equal(t, "alice", session.Username)
		assert.Len(t, token, 64)
		assert.NotEqual(t, current.TokenHash, session.TokenHash)
	})

	t.Run("duplicate email annotates session and stays anonymous", func(t *testing.T) {
		svc, users, sessions, hasher := newTestService(t)
		current := anonymousSession(t)

		hasher.On("Hash", "secret").Return("hashedsecret", nil)
		users.On("Create", ctx, mock.AnythingOfType("*auth.User")).Return(auth.ErrDuplicateEmail)
		sessions.On("Update", ctx, current).Return(nil)

		session, token, err := svc.SignUp(ctx, current, "alice", "taken@example.com", "secret")
		require.NoError(t, err)
		assert.False(t, session.Authenticated)
		assert.Equal(t, auth.SignupEmailTaken, session.SignupFailed)
		assert.Empty(t, token)
	})

	t.Run("hash failure surfaces as signup failure", func(t *testing.T) {
		svc, _, _, hasher := newTestService(t)
		current := anonymousSession(t)

		hasher.On("Hash", "").Return("", auth.ErrEmptyPassword)

		session, token, err := svc.SignUp(ctx, current, "alice", "alice@example.com", "")
		require.Error(t, err)
		assert.Nil(t, session)
		assert.Empty(t, token)
		errutil.AssertErrorCode(t, err, "AUTH_SIGNUP_FAILED")
	})

	t.Run("insert failure surfaces before any session change", func(t *testing.T) {
		svc, users, _, hasher := newTestService(t)
		current := anonymousSession(t)

		hasher.On("Hash", "secret").Return("hashedsecret", nil)
		users.On("Create", ctx, mock.AnythingOfType("*auth.User")).
			Return(errors.New("connection refused"))

		session, token, err := svc.SignUp(ctx, current, "alice", "alice@example.com", "secret")
		require.Error(t, err)
		assert.Nil(t, session)
		assert.Empty(t, token)
		errutil.AssertErrorCode(t, err, "AUTH_SIGNUP_FAILED")
	})
}

func TestService_LogIn(t *testing.T) {
	ctx := context.Background()

	storedUser := func() *auth.User {
		return &auth.User{
			ID:           ulid.Make(),
			Username:     "alice",
			Email:        "alice@example.com",
			PasswordHash: "hashedsecret",
		}
	}

	t.Run("successful login carries stored username", func(t *testing.T) {
		svc, users, sessions, hasher := newTestService(t)
		current := anonymousSession(t)

		users.On("GetByEmail", ctx, "alice@example.com").Return(storedUser(), nil)
		hasher.On("Verify", "secret", "hashedsecret").Return(true, nil)
		sessions.On("Create", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)
		sessions.On("Delete", ctx, current.ID).Return(nil)

		session, token, err := svc.LogIn(ctx, current, "alice@example.com", "secret")
		require.NoError(t, err)
		assert.True(t, session.Authenticated)
		assert.Equal(t, "alice", session.Username)
		assert.Equal(t, auth.FailureNone, session.LoginFailed)
		assert.Len(t, token, 64)
	})

	t.Run("unknown email annotates session and burns a dummy verify", func(t *testing.T) {
		svc, users, sessions, hasher := newTestService(t)
		current := anonymousSession(t)

		users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, auth.ErrNotFound)
		// Timing equalization: verify still runs against a dummy hash.
		hasher.On("Verify", "secret", mock.AnythingOfType("string")).Return(false, nil)
		sessions.On("Update", ctx, current).Return(nil)

		session, token, err := svc.LogIn(ctx, current, "ghost@example.com", "secret")
		require.NoError(t, err)
		assert.False(t, session.Authenticated)
		assert.Equal(t, auth.FailureEmail, session.LoginFailed)
		assert.Empty(t, token)
	})

	t.Run("wrong password annotates session", func(t *testing.T) {
		svc, users, sessions, hasher := newTestService(t)
		current := anonymousSession(t)

		users.On("GetByEmail", ctx, "alice@example.com").Return(storedUser(), nil)
		hasher.On("Verify", "wrongpass", "hashedsecret").Return(false, nil)
		sessions.On("Update", ctx, current).Return(nil)

		session, token, err := svc.LogIn(ctx, current, "alice@example.com", "wrongpass")
		require.NoError(t, err)
		assert.False(t, session.Authenticated)
		assert.Equal(t, auth.FailurePassword, session.LoginFailed)
		assert.Empty(t, token)
	})

	t.Run("success clears previous failure annotation", func(t *testing.T) {
		svc, users, sessions, hasher := newTestService(t)
		current := anonymousSession(t)
		current.LoginFailed = auth.FailurePassword

		users.On("GetByEmail", ctx, "alice@example.com").Return(storedUser(), nil)
		hasher.On("Verify", "secret", "hashedsecret").Return(true, nil)
		sessions.On("Create", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)
		sessions.On("Delete", ctx, current.ID).Return(nil)

		session, _, err := svc.LogIn(ctx, current, "alice@example.com", "secret")
		require.NoError(t, err)
		assert.Equal(t, auth.FailureNone, session.LoginFailed)
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		svc, users, _, _ := newTestService(t)
		current := anonymousSession(t)

		users.On("GetByEmail", ctx, "alice@example.com").
			Return(nil, errors.New("connection refused"))

		session, token, err := svc.LogIn(ctx, current, "alice@example.com", "secret")
		require.Error(t, err)
		assert.Nil(t, session)
		assert.Empty(t, token)
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})

	t.Run("malformed stored hash propagates", func(t *testing.T) {
		svc, users, _, hasher := newTestService(t)
		current := anonymousSession(t)

		users.On("GetByEmail", ctx, "alice@example.com").Return(storedUser(), nil)
		hasher.On("Verify", "secret", "hashedsecret").
			Return(false, errors.New("invalid hash format"))

		_, _, err := svc.LogIn(ctx, current, "alice@example.com", "secret")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})
}

func TestService_LogOut(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes the session", func(t *testing.T) {
		svc, _, sessions, _ := newTestService(t)
		current := anonymousSession(t)

		sessions.On("Delete", ctx, current.ID).Return(nil)

		require.NoError(t, svc.LogOut(ctx, current))
	})

	t.Run("missing session is a no-op", func(t *testing.T) {
		svc, _, sessions, _ := newTestService(t)
		current := anonymousSession(t)

		sessions.On("Delete", ctx, current.ID).Return(auth.ErrNotFound)

		require.NoError(t, svc.LogOut(ctx, current))
	})

	t.Run("repository failure propagates", func(t *testing.T) {
		svc, _, sessions, _ := newTestService(t)
		current := anonymousSession(t)

		sessions.On("Delete", ctx, current.ID).Return(errors.New("connection refused"))

		err := svc.LogOut(ctx, current)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_LOGOUT_FAILED")
	})
}
