// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/custody/lib/secret"
)

// privateKey is the opaque handle returned by Store.PrivateKey. The
// PKCS#1 DER stays in the secret buffer; each Decrypt parses it into a
// request-scoped *rsa.PrivateKey that becomes garbage when the call
// returns.
type privateKey struct {
	der    *secret.Buffer
	public *rsa.PublicKey
}

// newPrivateKey takes ownership of der (PKCS#1) and checks that it
// parses and matches public.
func newPrivateKey(der *secret.Buffer, public *rsa.PublicKey) (*privateKey, error) {
	parsed, err := x509.ParsePKCS1PrivateKey(der.Bytes())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if public != nil && !parsed.PublicKey.Equal(public) {
		return nil, fmt.Errorf("private key does not match stored public key")
	}
	// Copy the public half so the parsed private key is not retained.
	return &privateKey{der: der, public: &rsa.PublicKey{N: parsed.N, E: parsed.E}}, nil
}

func (k *privateKey) Public() crypto.PublicKey {
	return k.public
}

func (k *privateKey) Decrypt(random io.Reader, ciphertext []byte, opts crypto.DecrypterOpts) ([]byte, error) {
	key, err := x509.ParsePKCS1PrivateKey(k.der.Bytes())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return key.Decrypt(random, ciphertext, opts)
}

func (k *privateKey) String() string {
	return "keystore.privateKey(" + Fingerprint(k.public) + ")"
}

func (k *privateKey) LogValue() slog.Value {
	return slog.StringValue(k.String())
}

func (k *privateKey) close() error {
	return k.der.Close()
}
