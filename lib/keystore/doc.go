// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore holds the custody service's RSA keypair and never
// hands out the private key bytes.
//
// [Store] is the key-store abstraction the service consumes: Unlock,
// CreateKey, PrivateKey, PublicKey, all keyed by an alias. Private keys
// come back as opaque crypto.Decrypter handles. Their PKCS#1 encoding
// lives in a [secret.Buffer] and is parsed only for the duration of a
// Decrypt call.
//
// Two implementations:
//
//   - [MemoryStore] keeps keys in protected memory for the process
//     lifetime. Used for ephemeral deployments and as the test double.
//   - [FileStore] persists one CBOR record per alias. The private key
//     is sealed with an age scrypt passphrase (lib/sealed); the public
//     key is stored in the clear so lookups work while locked.
//
// [Provision] is the startup path: the owning process creates the key
// if missing, every process then looks it up, and any failure to
// obtain both halves is reported as [ErrKeyUnavailable].
package keystore
