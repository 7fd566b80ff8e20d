// ABOUTME: Package documentation for the WebAuthn multi-factor layer
// ABOUTME: Describes the ceremony manager, verifier boundary, and clone detection

// Package mfa implements WebAuthn registration and authentication
// ceremonies on top of the device and challenge stores.
//
// The package splits each ceremony into two concerns. The Verifier
// (backed by go-webauthn) handles the cryptography: challenge
// generation, attestation checking, and assertion signatures. The
// Manager handles everything stateful: challenges are persisted
// single-use rows consumed atomically on finish, devices are looked up
// by credential id, and the signature counter only ever advances
// through the store's conditional update.
//
// Clone detection follows the WebAuthn spec's signature counter
// semantics. A counter that fails to strictly advance (and is not the
// zero exemption) flags the device for review and fails the ceremony
// with ErrPossibleClone; the stored counter keeps its old value so the
// evidence is preserved.
package mfa
