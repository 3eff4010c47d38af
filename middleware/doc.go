// Package middleware exposes the HTTP request authenticator built on top of
// emailauth.Engine session resolution.
//
// # Guard
//
// [Guard] reads the session cookie, resolves it to an account through the
// Engine, and injects the account id into the request context. Anonymous
// requests are redirected to the login page carrying the originally requested
// URL so the user lands back there after verification.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; session resolution is delegated to
// the Engine, which fails closed on store errors.
//
// # What this package must NOT do
//
//   - Consume verification links or mint sessions.
//   - Access Redis (the Engine handles I/O).
//   - Make policy decisions beyond authenticated/anonymous.
package middleware
