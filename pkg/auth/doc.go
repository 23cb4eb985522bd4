// Package auth resolves bearer tokens into caller identities.
//
// Access tokens are HS256 JWTs carrying the user id (sub) and organization
// id (org). Passwords are hashed with bcrypt.
//
// # Identity resolution
//
// Resolver verifies the token, then returns the cached Identity for the
// user or loads it through an IdentityLoader (the directory service). The
// loader fails closed, so an identity is only ever built for an active user
// in an active organization holding an active role of that organization.
//
// # Caching
//
// Identities are cached for a short TTL (five minutes by default) in an
// in-process LRU or in Redis. Services call the Invalidator hooks after
// committing changes to a user's role or status, to a role's permissions,
// or to an organization's status, so changes apply on the next request.
package auth
