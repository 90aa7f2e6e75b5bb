// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

package webapp

import (
	"net/http"

	"github.com/membergate/membergate/internal/form"
)

// routes wires the page handlers onto a mux. All pages run behind the
// session middleware; anything outside the known paths is a 404.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /{$}", http.HandlerFunc(s.handleLanding))
	mux.Handle("GET /signup", http.HandlerFunc(s.handleSignupPage))
	mux.Handle("POST /signup", http.HandlerFunc(s.handleSignup))
	mux.Handle("GET /login", http.HandlerFunc(s.handleLoginPage))
	mux.Handle("POST /login", http.HandlerFunc(s.handleLogin))
	mux.Handle("GET /members", http.HandlerFunc(s.handleMembers))
	mux.Handle("GET /logout", http.HandlerFunc(s.handleLogout))
	mux.Handle("/", http.HandlerFunc(s.handleNotFound))

	return s.withRequestLog(s.withSession(mux))
}

// handleLanding renders the landing page. A signed-in visitor sees a
// greeting instead of the signup and login links.
func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	if session.Authenticated {
		s.render(w, "landing_signed_in", PageData{
			Title:    "Still Logged In",
			Username: session.Username,
		})
		return
	}
	s.render(w, "landing_signed_out", PageData{Title: "Landing Page"})
}

// handleSignupPage renders the signup form, annotated when the last
// attempt on this session hit an already-registered email.
func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	s.render(w, "signup", PageData{
		Title:      "Sign up",
		EmailTaken: session.SignupFailed != "",
	})
}

// handleSignup processes a signup submission. Invalid input bounces back
// to the form; a duplicate email leaves the session annotated for the
// next render. Success authenticates the session and lands on the
// members page.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	f, err := form.ValidateSignup(postedFields(r, "username", "email", "password"))
	if err != nil {
		s.logger.Info("signup form rejected", "error", err)
		s.countSignup("invalid")
		http.Redirect(w, r, "/signup", http.StatusFound)
		return
	}

	newSession, token, err := s.auth.SignUp(r.Context(), session, f.Username, f.Email, f.Password)
	if err != nil {
		s.serverError(w, err)
		return
	}

	if !newSession.Authenticated {
		s.countSignup("email_taken")
		http.Redirect(w, r, "/signup", http.StatusFound)
		return
	}

	s.setSessionCookie(w, token, newSession.ExpiresAt)
	s.countSignup("success")
	http.Redirect(w, r, "/members", http.StatusFound)
}

// handleLoginPage renders the login form, annotated with the reason the
// last attempt on this session failed.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	s.render(w, "login", PageData{
		Title:       "Login",
		LoginFailed: string(session.LoginFailed),
	})
}

// handleLogin processes a login submission. Failed attempts bounce back
// to the form with the failure recorded on the session; success rotates
// the session and lands on the members page.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	f, err := form.ValidateLogin(postedFields(r, "email", "password"))
	if err != nil {
		s.logger.Info("login form rejected", "error", err)
		s.countLogin("invalid")
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	newSession, token, err := s.auth.LogIn(r.Context(), session, f.Email, f.Password)
	if err != nil {
		s.serverError(w, err)
		return
	}

	if !newSession.Authenticated {
		s.countLogin("failure_" + string(newSession.LoginFailed))
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	s.setSessionCookie(w, token, newSession.ExpiresAt)
	s.countLogin("success")
	http.Redirect(w, r, "/members", http.StatusFound)
}

// handleMembers renders the members page for authenticated sessions and
// sends everyone else back to the landing page.
func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	if !session.Authenticated {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	s.render(w, "members", PageData{
		Title:    "Members",
		Username: session.Username,
	})
}

// handleLogout destroys the session, clears the cookie, and returns to
// the landing page.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	if err := s.auth.LogOut(r.Context(), session); err != nil {
		s.serverError(w, err)
		return
	}

	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleNotFound answers every unrouted path.
func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	//nolint:errcheck // nothing useful to do if the client is gone
	w.Write([]byte("404 Not Found"))
}

// render executes a page template, degrading to a 500 on failure.
func (s *Server) render(w http.ResponseWriter, page string, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.renderer.Render(w, page, data); err != nil {
		s.serverError(w, err)
	}
}

// postedFields extracts the named fields from the POST body. Fields the
// client did not send stay absent, so optional fields only validate when
// actually submitted.
func postedFields(r *http.Request, names ...string) map[string]string {
	_ = r.ParseForm() //nolint:errcheck // malformed bodies just yield empty fields

	fields := make(map[string]string, len(names))
	for _, name := range names {
		if values, ok := r.PostForm[name]; ok && len(values) > 0 {
			fields[name] = values[0]
		}
	}
	return fields
}

func (s *Server) countSignup(result string) {
	if s.metrics != nil {
		s.metrics.SignupsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Server) countLogin(result string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(result).Inc()
	}
}
