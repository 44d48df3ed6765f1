// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pkcs1

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
)

// paddingOverhead is the minimum PKCS#1 v1.5 encryption padding:
// 0x00 0x02, at least eight nonzero random bytes, 0x00.
const paddingOverhead = 11

// ErrCryptoFailure is wrapped by every Encrypt and Decrypt error.
var ErrCryptoFailure = errors.New("crypto operation failed")

// MaxPlaintext returns the largest payload Encrypt accepts for pub.
func MaxPlaintext(pub *rsa.PublicKey) int {
	return pub.Size() - paddingOverhead
}

// Encrypt encrypts plaintext to pub.
func Encrypt(plaintext []byte, pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: no public key", ErrCryptoFailure)
	}
	if limit := MaxPlaintext(pub); len(plaintext) > limit {
		return nil, fmt.Errorf("%w: payload is %d bytes, limit is %d", ErrCryptoFailure, len(plaintext), limit)
	}

	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, pub, plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	return ciphertext, nil
}

// Decrypt decrypts ciphertext with priv. The Decrypter must be an RSA
// key (or a handle wrapping one); nil options select PKCS#1 v1.5.
func Decrypt(ciphertext []byte, priv crypto.Decrypter) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: no private key", ErrCryptoFailure)
	}
	pub, ok := priv.Public().(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not RSA", ErrCryptoFailure)
	}
	if len(ciphertext) != pub.Size() {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes, key size is %d", ErrCryptoFailure, len(ciphertext), pub.Size())
	}

	plaintext, err := priv.Decrypt(rand.Reader, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	return plaintext, nil
}
