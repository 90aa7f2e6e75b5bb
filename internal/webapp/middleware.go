// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

package webapp

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/membergate/membergate/internal/auth"
	"github.com/membergate/membergate/pkg/errutil"
)

// CookieName is the name of the session cookie.
const CookieName = "membergate_session"

type contextKey int

const sessionContextKey contextKey = iota

// sessionFrom returns the session placed on the request context by
// withSession. Handlers behind the middleware can rely on it being set.
func sessionFrom(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return session
}

// withSession resolves the request's session before the handler runs.
// Every page gets a session: a missing, unknown, or expired cookie is
// replaced by a fresh anonymous one.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if cookie, err := r.Cookie(CookieName); err == nil {
			token = cookie.Value
		}

		session, newToken, err := s.auth.EnsureSession(r.Context(), token)
		if err != nil {
			s.serverError(w, err)
			return
		}
		if newToken != "" {
			s.setSessionCookie(w, newToken, session.ExpiresAt)
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLog logs each request and counts it in the metrics.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if s.metrics != nil {
			s.metrics.RequestsTotal.WithLabelValues(pathLabel(r.URL.Path), strconv.Itoa(rec.status)).Inc()
		}
	})
}

// pathLabel clamps unknown paths to a single label so the metric
// cardinality stays bounded.
func pathLabel(path string) string {
	switch path {
	case "/", "/signup", "/login", "/members", "/logout":
		return path
	default:
		return "other"
	}
}

// setSessionCookie delivers a freshly minted session token. The cookie
// lifetime matches the stored session expiry.
func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie removes the session cookie from the client.
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// serverError logs the error and responds with a generic 500.
func (s *Server) serverError(w http.ResponseWriter, err error) {
	errutil.LogError(s.logger, "request failed", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
