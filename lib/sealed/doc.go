// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed protects key material at rest with age passphrase
// (scrypt) encryption. It wraps filippo.io/age for the two operations
// the keystore needs: [Seal] a private key before it is written to
// disk, and [Open] it back into a [secret.Buffer] when the store is
// unlocked.
//
// Ciphertext is the raw binary age format; the keystore embeds it in a
// CBOR record, so no text armoring is applied. Passphrases are taken as
// secret.Buffer values and converted to strings only at the age API
// boundary.
//
// The scrypt work factor is recorded in the age header. [Open] accepts
// any work factor up to [MaxWorkFactor]; [Seal] uses the caller's value
// (production uses [DefaultWorkFactor], tests use a small one to stay
// fast).
//
// Depends on lib/secret for secure memory allocation.
package sealed
