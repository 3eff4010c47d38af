// Package emailauth provides a passwordless, email-link authentication engine for
// multi-tenant workspace platforms: single-use verification links, Redis-backed
// opaque sessions, just-in-time account and role provisioning, and asynchronous
// verification-mail dispatch.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture
//
//   - The root package owns the Engine (protocol orchestration), the verification
//     link store, the provisioner, configuration, audit, and metrics.
//   - [github.com/krista-software/krista-email-authentication/session] owns opaque
//     session persistence.
//   - [github.com/krista-software/krista-email-authentication/address] owns email
//     and domain validation.
//   - [github.com/krista-software/krista-email-authentication/mailer] owns the
//     outbound mail queue and SMTP transports.
//   - [github.com/krista-software/krista-email-authentication/middleware] gates
//     inbound HTTP requests on a resolved session.
//
// # Protocol
//
// A login attempt moves through Requested, LinkSent, Verified, SessionActive and
// LoggedOut, with Expired and Rejected as terminal failure states. A verification
// link transitions Generated to Used at most once, enforced with an atomic
// compare-and-swap against Redis so concurrent verifications of the same code
// cannot both succeed.
package emailauth
