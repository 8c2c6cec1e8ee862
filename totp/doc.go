// Package totp generates RFC 6238 secrets and verifies time-based codes.
//
// Secrets are 160 random bits, base32 encoded without padding. Keys are built
// with github.com/pquerna/otp so the provisioning URI and QR image match what
// authenticator apps expect; verification uses an in-package HOTP
// implementation with a symmetric step window and constant-time compare.
//
// # What this package must NOT do
//
//   - Persist secrets or remember used counters. Replay protection belongs to
//     the caller.
//   - Read the clock implicitly inside Verify. Callers pass now.
package totp
