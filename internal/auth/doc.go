// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

// Package auth provides the MemberGate authentication domain: user
// records, server-side web sessions, password hashing, and the service
// orchestrating signup, login, and logout.
//
// Browsers hold only an opaque random token in a cookie. The server
// stores the SHA-256 hash of that token alongside the session state, so
// a leaked session table does not yield usable tokens. Sessions rotate
// their token whenever they gain authentication.
package auth
