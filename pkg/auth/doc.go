// Package auth manages users, tenant memberships and refresh sessions.
//
// A session is one row per refresh lineage: each refresh rotates the
// stored hash and expiry in place, so a refresh token works exactly once.
// Rotation is a compare-and-swap on the previous hash; when two carriers
// of the same token race, the loser's swap matches zero rows and is
// rejected as unauthorized. Credential failures never reveal whether the
// user exists, the password was wrong or the account is inactive.
package auth
