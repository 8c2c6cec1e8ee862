// Package jwt issues and verifies the signed session tokens handed to clients.
//
// Every token carries an authentication phase. PENDING tokens are minted after
// a correct password for an account with TOTP enabled and are only good for
// the second-factor step; VERIFIED tokens are full sessions. Each phase has its
// own TTL and audience ("<issuer>/pending" and "<issuer>/session"), so a token
// minted for one phase never parses as the other.
//
// Parse failures collapse into three sentinels: [ErrExpired],
// [ErrSignatureInvalid] and [ErrMalformed].
package jwt
