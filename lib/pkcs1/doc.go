// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pkcs1 is custody's crypto engine: single-block RSA
// encryption and decryption with PKCS#1 v1.5 padding.
//
// There is no bulk mode. Each call transforms one payload that must
// fit in the key's modulus minus the 11-byte padding overhead
// ([MaxPlaintext]; 245 bytes for a 2048-bit key). Every failure
// (oversized input, malformed ciphertext, wrong key) wraps
// [ErrCryptoFailure] and carries no partial output.
//
// Decryption goes through crypto.Decrypter so callers hand in an opaque
// keystore handle rather than an *rsa.PrivateKey. Nothing here logs,
// and no error message includes key or payload bytes.
package pkcs1
