// Package store provides persistent storage for lantern using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with multiple
// specialized interfaces:
//
//   - PrincipalStore: Principals, their external identities, passwords
//   - PrivilegeStore: Privilege grants and group membership
//   - DeviceStore: WebAuthn devices and the signature counter
//   - ChallengeStore: Short-lived single-use ceremony challenges
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries.
//
// # Atomicity
//
// Three operations are classic check-then-act hazards under concurrency
// and are therefore implemented as single atomic storage operations, never
// as separate read then write calls:
//
//   - Identity creation: the principal_identities.uri primary key is the
//     uniqueness authority; CreatePrincipalWithIdentity wraps both inserts
//     in one transaction and surfaces ErrDuplicateIdentity to the loser.
//   - Challenge consumption: ConsumeChallenge is one DELETE ... RETURNING
//     statement, so a challenge is observed by at most one caller.
//   - Counter advance: UpdateDeviceCounter is one conditional UPDATE that
//     only succeeds when the new value strictly exceeds the stored one
//     (or the stored value is zero); a failed attempt never writes.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Foreign keys cascade: deleting a principal removes its identities,
// grants, devices, and password rows.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound / ErrPrincipalNotFound: entity does not exist
//   - ErrDuplicateIdentity / ErrDuplicateCredential: uniqueness violation
//   - ErrChallengeNotFound: challenge missing or already consumed
//   - ErrCounterRegression: counter update did not strictly advance
//
// All methods accept context.Context for cancellation support.
package store
