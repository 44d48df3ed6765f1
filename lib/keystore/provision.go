// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"crypto"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
)

// Keypair is the service's key material as seen by everything outside
// the store: the public key and an opaque decryption handle. It is
// built once by Provision and not modified afterwards.
type Keypair struct {
	Alias   string
	Public  *rsa.PublicKey
	Private crypto.Decrypter
}

// Fingerprint returns the public key fingerprint for logs.
func (k *Keypair) Fingerprint() string {
	return Fingerprint(k.Public)
}

// LogValue renders the keypair without the private handle.
func (k *Keypair) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("alias", k.Alias),
		slog.String("fingerprint", k.Fingerprint()),
		slog.Int("bits", k.Public.Size()*8),
	)
}

// Provision obtains the keypair stored under alias. When owner is set
// the key is created first if it does not exist. A create failure is
// not fatal by itself: another process may have created the key, so
// both halves are fetched regardless, and only a failed fetch makes
// Provision fail. The returned error wraps ErrKeyUnavailable and
// carries the create error, if any, alongside the fetch error.
func Provision(store Store, alias string, owner bool) (*Keypair, error) {
	var createErr error
	if owner {
		if err := store.CreateKey(alias); err != nil {
			createErr = fmt.Errorf("creating key %q: %w", alias, err)
		}
	}

	public, err := store.PublicKey(alias)
	if err != nil {
		return nil, unavailable(createErr, fmt.Errorf("fetching public key %q: %w", alias, err))
	}
	private, err := store.PrivateKey(alias)
	if err != nil {
		return nil, unavailable(createErr, fmt.Errorf("fetching private key %q: %w", alias, err))
	}

	handlePublic, ok := private.Public().(*rsa.PublicKey)
	if !ok || !handlePublic.Equal(public) {
		return nil, unavailable(createErr, fmt.Errorf("private key %q does not match its public key", alias))
	}

	return &Keypair{Alias: alias, Public: public, Private: private}, nil
}

func unavailable(createErr, fetchErr error) error {
	return fmt.Errorf("%w: %w", ErrKeyUnavailable, errors.Join(createErr, fetchErr))
}
