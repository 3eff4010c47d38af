// Package internal contains helper utilities that are intentionally private to
// the email authentication engine, currently secure verification-secret
// generation and constant-time comparison.
//
// # What this package must NOT do
//
//   - Export types that appear in the public emailauth API.
//   - Be imported by any package outside this module.
package internal
