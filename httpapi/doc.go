// Package httpapi serves the HTTP surface of the email authentication scheme:
// the login form, the verification endpoint, the waiting page, and logout.
//
// The session cookie is always set Secure, HttpOnly, SameSite=None on path /.
// Verification failures never set a session cookie.
//
// # Architecture boundaries
//
// This package renders pages and translates HTTP parameters into Engine calls.
// It carries no protocol logic; every outcome is decided by emailauth.Engine.
package httpapi
