// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/bureau-foundation/custody/lib/secret"
)

// MemoryStore keeps keys in protected memory for the lifetime of the
// process. Nothing is persisted; a restart loses every key.
type MemoryStore struct {
	keyBits int

	mu   sync.Mutex
	keys map[string]*privateKey
}

// NewMemoryStore returns an empty store that generates keys of
// keyBits (0 selects DefaultKeyBits).
func NewMemoryStore(keyBits int) (*MemoryStore, error) {
	if keyBits == 0 {
		keyBits = DefaultKeyBits
	}
	if err := validKeyBits(keyBits); err != nil {
		return nil, err
	}
	return &MemoryStore{
		keyBits: keyBits,
		keys:    make(map[string]*privateKey),
	}, nil
}

// Unlock is a no-op: memory keys are never sealed.
func (s *MemoryStore) Unlock(*secret.Buffer) error {
	return nil
}

func (s *MemoryStore) CreateKey(alias string) error {
	if err := ValidateAlias(alias); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[alias]; exists {
		return nil
	}

	handle, err := generate(s.keyBits)
	if err != nil {
		return err
	}
	s.keys[alias] = handle
	return nil
}

// Import places an existing key under alias, replacing nothing: it
// fails if the alias is taken. Tests use it to pin a known keypair.
func (s *MemoryStore) Import(alias string, key *rsa.PrivateKey) error {
	if err := ValidateAlias(alias); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[alias]; exists {
		return fmt.Errorf("alias %q already holds a key", alias)
	}

	der, err := secret.NewFromBytes(x509.MarshalPKCS1PrivateKey(key))
	if err != nil {
		return fmt.Errorf("protecting private key: %w", err)
	}
	handle, err := newPrivateKey(der, &key.PublicKey)
	if err != nil {
		der.Close()
		return err
	}
	s.keys[alias] = handle
	return nil
}

func (s *MemoryStore) PrivateKey(alias string) (crypto.Decrypter, error) {
	handle, err := s.lookup(alias)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (s *MemoryStore) PublicKey(alias string) (*rsa.PublicKey, error) {
	handle, err := s.lookup(alias)
	if err != nil {
		return nil, err
	}
	return handle.public, nil
}

// Close releases every key. Handles obtained earlier become unusable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstError error
	for alias, handle := range s.keys {
		if err := handle.close(); err != nil && firstError == nil {
			firstError = err
		}
		delete(s.keys, alias)
	}
	return firstError
}

func (s *MemoryStore) lookup(alias string) (*privateKey, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	handle, exists := s.keys[alias]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, alias)
	}
	return handle, nil
}

// generate creates a fresh RSA key and moves its PKCS#1 encoding into
// protected memory. The *rsa.PrivateKey itself is heap-allocated by
// crypto/rsa and left for the collector; the secret buffer is the only
// copy the store keeps.
func generate(bits int) (*privateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA-%d key: %w", bits, err)
	}

	der, err := secret.NewFromBytes(x509.MarshalPKCS1PrivateKey(key))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	handle, err := newPrivateKey(der, &key.PublicKey)
	if err != nil {
		der.Close()
		return nil, err
	}
	return handle, nil
}
