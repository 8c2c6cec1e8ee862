// Package stores holds short-lived Redis records for the login flow: the
// server-side state behind PENDING tokens and the TOTP replay ledger.
//
// # Design
//
// Pending logins are versioned, binary-encoded records with a TTL matching
// the token expiry. Failure counting uses WATCH/MULTI with retry on
// contention; consumption is a single DEL so exactly one caller wins.
// The replay ledger is one SETNX key per accepted (account, counter) pair.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Verify codes or issue tokens.
//   - Store TOTP secrets or codes.
package stores
