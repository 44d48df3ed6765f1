// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/custody/lib/secret"
)

// DefaultKeyBits is the RSA modulus size for new keys.
const DefaultKeyBits = 2048

var (
	// ErrKeyNotFound is returned when no key exists under an alias.
	ErrKeyNotFound = errors.New("key not found")

	// ErrLocked is returned by operations that need the private key
	// before Unlock has been called.
	ErrLocked = errors.New("keystore is locked")

	// ErrInvalidAlias is returned for aliases that cannot name a key.
	ErrInvalidAlias = errors.New("invalid key alias")

	// ErrKeyUnavailable is returned by Provision when the public or
	// private half of the keypair cannot be obtained.
	ErrKeyUnavailable = errors.New("keypair unavailable")
)

// Store is a secure key store holding RSA keys by alias. Private key
// material never leaves an implementation except through the returned
// crypto.Decrypter.
type Store interface {
	// Unlock makes private keys usable. The passphrase is borrowed.
	Unlock(passphrase *secret.Buffer) error

	// CreateKey generates a key under alias. If the alias already
	// holds a key, CreateKey leaves it untouched and returns nil.
	CreateKey(alias string) error

	// PrivateKey returns an opaque decryption handle for alias.
	PrivateKey(alias string) (crypto.Decrypter, error)

	// PublicKey returns the public half of alias.
	PublicKey(alias string) (*rsa.PublicKey, error)
}

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]{0,63}$`)

// ValidateAlias reports whether alias is usable as a key name. Aliases
// double as file names in FileStore, so path separators and leading
// dots are rejected.
func ValidateAlias(alias string) error {
	if !aliasPattern.MatchString(alias) {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	return nil
}

// validKeyBits lists the modulus sizes accepted for new keys.
func validKeyBits(bits int) error {
	switch bits {
	case 2048, 3072, 4096:
		return nil
	default:
		return fmt.Errorf("unsupported RSA key size %d (want 2048, 3072 or 4096)", bits)
	}
}

// Fingerprint identifies a public key in logs: BLAKE3-256 over the
// PKIX DER encoding, truncated to 128 bits and hex encoded.
func Fingerprint(pub *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "invalid"
	}
	sum := blake3.Sum256(der)
	return "blake3:" + hex.EncodeToString(sum[:16])
}
