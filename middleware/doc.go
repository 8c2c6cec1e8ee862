// Package middleware adapts the engine guard chain to net/http.
//
// [Protect] reads the token from the Authorization bearer header or the
// access_token cookie, runs the chain for one operation and injects the
// verified claims into the request context. Failures map to 401 for a
// missing, invalid or wrong-phase token and 403 for a role mismatch.
//
// This package does not parse tokens itself and never touches a store; every
// decision is delegated to the Authorizer.
package middleware
