// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

//go:build integration

package auth_test

import (
	"errors"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/bcrypt"

	"github.com/membergate/membergate/internal/auth"
	authpg "github.com/membergate/membergate/internal/auth/postgres"
)

func newService(ttl time.Duration) *auth.Service {
	users := authpg.NewUserRepository(env.pool)
	sessions := authpg.NewSessionRepository(env.pool)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := auth.NewServiceWithLogger(users, sessions, auth.NewBcryptHasherWithCost(bcrypt.MinCost), ttl, logger)
	Expect(err).NotTo(HaveOccurred())
	return svc
}

var _ = Describe("User repository", func() {
	var users *authpg.UserRepository

	BeforeEach(func() {
		truncateAll(env.ctx, env.pool)
		users = authpg.NewUserRepository(env.pool)
	})

	It("stores and retrieves a user by email", func() {
		user, err := auth.NewUser("alice", "alice@example.com", "somehash")
		Expect(err).NotTo(HaveOccurred())
		Expect(users.Create(env.ctx, user)).To(Succeed())

		got, err := users.GetByEmail(env.ctx, "alice@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(user.ID))
		Expect(got.Username).To(Equal("alice"))
	})

	It("matches emails case-insensitively", func() {
		user, err := auth.NewUser("alice", "Alice@Example.com", "somehash")
		Expect(err).NotTo(HaveOccurred())
		Expect(users.Create(env.ctx, user)).To(Succeed())

		got, err := users.GetByEmail(env.ctx, "alice@example.COM")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(user.ID))
	})

	It("rejects a duplicate email regardless of case", func() {
		first, err := auth.NewUser("alice", "alice@example.com", "somehash")
		Expect(err).NotTo(HaveOccurred())
		Expect(users.Create(env.ctx, first)).To(Succeed())

		second, err := auth.NewUser("mallory", "ALICE@example.com", "otherhash")
		Expect(err).NotTo(HaveOccurred())
		createErr := users.Create(env.ctx, second)
		Expect(createErr).To(HaveOccurred())
		Expect(errors.Is(createErr, auth.ErrDuplicateEmail)).To(BeTrue())
	})

	It("allows multiple users without an email", func() {
		first, err := auth.NewUser("bob", "", "somehash")
		Expect(err).NotTo(HaveOccurred())
		Expect(users.Create(env.ctx, first)).To(Succeed())

		second, err := auth.NewUser("carol", "", "otherhash")
		Expect(err).NotTo(HaveOccurred())
		Expect(users.Create(env.ctx, second)).To(Succeed())
	})

	It("returns ErrNotFound for an unknown email", func() {
		_, err := users.GetByEmail(env.ctx, "ghost@example.com")
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})
})

var _ = Describe("Authentication flow", func() {
	var svc *auth.Service

	BeforeEach(func() {
		truncateAll(env.ctx, env.pool)
		svc = newService(time.Hour)
	})

	It("mints an anonymous session and resolves it again", func() {
		session, token, err := svc.EnsureSession(env.ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(token).To(HaveLen(64))
		Expect(session.Authenticated).To(BeFalse())

		again, newToken, err := svc.EnsureSession(env.ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(newToken).To(BeEmpty())
		Expect(again.ID).To(Equal(session.ID))
	})

	It("signs up, rotates the session, and can log back in", func() {
		session, _, err := svc.EnsureSession(env.ctx, "")
		Expect(err).NotTo(HaveOccurred())

		authed, token, err := svc.SignUp(env.ctx, session, "alice", "alice@example.com", "secretpass")
		Expect(err).NotTo(HaveOccurred())
		Expect(authed.Authenticated).To(BeTrue())
		Expect(authed.Username).To(Equal("alice"))
		Expect(token).NotTo(BeEmpty())
		Expect(authed.TokenHash).NotTo(Equal(session.TokenHash))

		// The pre-signup session was destroyed during rotation.
		_, _, err = svc.EnsureSession(env.ctx, token)
		Expect(err).NotTo(HaveOccurred())

		Expect(svc.LogOut(env.ctx, authed)).To(Succeed())

		fresh, _, err := svc.EnsureSession(env.ctx, "")
		Expect(err).NotTo(HaveOccurred())

		loggedIn, loginToken, err := svc.LogIn(env.ctx, fresh, "alice@example.com", "secretpass")
		Expect(err).NotTo(HaveOccurred())
		Expect(loggedIn.Authenticated).To(BeTrue())
		Expect(loggedIn.Username).To(Equal("alice"))
		Expect(loginToken).NotTo(BeEmpty())
	})

	It("records failure annotations on the session record", func() {
		session, token, err := svc.EnsureSession(env.ctx, "")
		Expect(err).NotTo(HaveOccurred())

		failed, _, err := svc.LogIn(env.ctx, session, "ghost@example.com", "whatever")
		Expect(err).NotTo(HaveOccurred())
		Expect(failed.Authenticated).To(BeFalse())
		Expect(failed.LoginFailed).To(Equal(auth.FailureEmail))

		// The annotation survives a session reload.
		reloaded, _, err := svc.EnsureSession(env.ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(reloaded.LoginFailed).To(Equal(auth.FailureEmail))
	})

	It("annotates a duplicate-email signup and stays anonymous", func() {
		session, _, err := svc.EnsureSession(env.ctx, "")
		Expect(err).NotTo(HaveOccurred())
		_, _, err = svc.SignUp(env.ctx, session, "alice", "taken@example.com", "secretpass")
		Expect(err).NotTo(HaveOccurred())

		other, _, err := svc.EnsureSession(env.ctx, "")
		Expect(err).NotTo(HaveOccurred())

		rejected, token, err := svc.SignUp(env.ctx, other, "mallory", "taken@example.com", "otherpass")
		Expect(err).NotTo(HaveOccurred())
		Expect(token).To(BeEmpty())
		Expect(rejected.Authenticated).To(BeFalse())
		Expect(rejected.SignupFailed).To(Equal(auth.SignupEmailTaken))
	})

	It("treats an expired session as absent and purges it", func() {
		shortSvc := newService(time.Millisecond)

		session, token, err := shortSvc.EnsureSession(env.ctx, "")
		Expect(err).NotTo(HaveOccurred())

		time.Sleep(10 * time.Millisecond)

		replacement, newToken, err := svc.EnsureSession(env.ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(replacement.ID).NotTo(Equal(session.ID))
		Expect(newToken).NotTo(BeEmpty())

		sessions := authpg.NewSessionRepository(env.pool)
		janitor := auth.NewJanitor(sessions, time.Minute)
		Expect(janitor.RunOnce(env.ctx)).To(Succeed())

		_, err = sessions.GetByTokenHash(env.ctx, auth.HashSessionToken(token))
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})
})
