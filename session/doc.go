// Package session provides Redis-backed persistence for opaque login sessions.
//
// A session is a binding from a random identifier to a workspace account id.
// Sessions carry no server-enforced expiry: lifetime is caller-managed and
// removal is explicit (logout).
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and nothing else. It does NOT
// decide who may obtain a session or interpret verification links; those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import the root emailauth package (no upward imports).
//   - Enforce authentication policy.
//   - Expire sessions on its own.
package session
