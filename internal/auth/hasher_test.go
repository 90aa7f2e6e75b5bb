// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/membergate/membergate/internal/auth"
)

// Tests use the minimum bcrypt cost; the production cost of 12 would
// make the suite unreasonably slow.

func TestHashPassword(t *testing.T) {
	hasher := auth.NewBcryptHasherWithCost(bcrypt.MinCost)

	t.Run("produces valid bcrypt hash", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$2a$"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrEmptyPassword)
	})

	t.Run("default hasher uses production cost", func(t *testing.T) {
		prod := auth.NewBcryptHasher()
		assert.NotNil(t, prod)
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := auth.NewBcryptHasherWithCost(bcrypt.MinCost)

	t.Run("correct password verifies", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password fails without error", func(t *testing.T) {
		hash, err := hasher.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("malformed hash returns error", func(t *testing.T) {
		ok, err := hasher.Verify("password", "not-a-valid-hash")
		require.Error(t, err)
		assert.False(t, ok)
	})

	t.Run("empty password fails against real hash", func(t *testing.T) {
		hash, err := hasher.Hash("somepassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
