// Package auth carries the authenticated caller's identity through core
// calls and defines the token contract consumed by the excluded
// token-issuance layer.
//
// The caller Context is resolved once at the edge - principal plus
// effective privilege set - and threaded explicitly as an argument, never
// read from ambient state. JWTIssuer provides HS256 token issuance and
// verification keyed by principal id.
package auth
