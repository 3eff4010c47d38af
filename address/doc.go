// Package address provides pure validation and normalization of email addresses
// and domain names.
//
// # Domain grammar
//
// A domain is one or more dot-separated labels followed by an alphabetic top-level
// label of two to six characters. Each label is 1-63 characters of letters, digits
// and hyphens, and may not start or end with a hyphen. Normalization lowercases;
// it never rewrites structure, so it is idempotent.
//
// # Architecture boundaries
//
// This package is a leaf: it performs no I/O, holds no state, and must not import
// any other package of this module.
package address
