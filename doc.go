// Package backDashboard is the authentication and session-issuance core of
// the dashboard backend.
//
// An [Engine] verifies passwords, runs the TOTP second factor, links external
// (OAuth) identities to local accounts and issues signed session tokens in
// one of two phases:
//
//   - PENDING: the password was right but the account has TOTP enabled. The
//     token is only accepted by the second-factor step.
//   - VERIFIED: a full session carrying a snapshot of the account roles.
//
// Access decisions run through an ordered guard chain (validity, then phase,
// then role) that never touches account storage.
//
// # Composition
//
// Engines are assembled with [New] and the Builder:
//
//	engine, err := backDashboard.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithAccountStore(store).
//		WithLogger(logger).
//		Build()
//
// Account storage, mail delivery and HTTP routing are collaborators; see the
// account, notify and middleware packages. cmd/authd wires all of them into a
// server.
package backDashboard
