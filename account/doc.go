// Package account defines the Account record and the Store interface that
// every persistence backend implements.
//
// # Architecture boundaries
//
// This package owns the data model, its invariants and email
// canonicalization. Backends live under store/ and the authentication engine
// in the root package consumes Store through this interface only.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Hash passwords or generate TOTP secrets.
//   - Import the root package or any store implementation.
package account
