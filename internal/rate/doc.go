// Package rate implements Redis fixed-window failure counters for the
// password and TOTP steps.
//
// # Window semantics
//
// INCR, then EXPIRE on the first hit of a window. Key prefixes:
//   - al:  login failures per canonical email
//   - ali: login failures per client IP
//   - att: TOTP failures per account
//
// # What this package must NOT do
//
//   - Decide what counts as a failure. The engine records them.
//   - Be imported outside this module.
package rate
