// Package auth authenticates callers of the actuation API.
//
// Two credential shapes are accepted:
//   - JWT access tokens (HS256) carrying the acting person and their
//     granted actuation scopes
//   - a static service token for trusted internal services, compared
//     in constant time
//
// Tokens are validated by signature and expiry only; there is no
// session store. Scope enforcement happens downstream in the engine,
// which knows which scopes an envelope needs.
package auth
