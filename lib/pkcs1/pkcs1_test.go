// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pkcs1

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"sync"
	"testing"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	otherKey    *rsa.PrivateKey
)

// testKeys returns two distinct 2048-bit keys, generated once per run.
func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		if testKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
		if otherKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
	})
	return testKey, otherKey
}

func TestMaxPlaintext(t *testing.T) {
	key, _ := testKeys(t)
	if got := MaxPlaintext(&key.PublicKey); got != 245 {
		t.Errorf("MaxPlaintext(2048-bit) = %d, want 245", got)
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key, _ := testKeys(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "hello", plaintext: []byte("hello")},
		{name: "empty", plaintext: []byte{}},
		{name: "binary", plaintext: []byte{0x00, 0x01, 0xfe, 0xff, 0x00}},
		{name: "at limit", plaintext: bytes.Repeat([]byte{0x5a}, 245)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ciphertext, err := Encrypt(test.plaintext, &key.PublicKey)
			if err != nil {
				t.Fatalf("Encrypt() error: %v", err)
			}
			if len(ciphertext) != key.Size() {
				t.Errorf("ciphertext is %d bytes, want %d", len(ciphertext), key.Size())
			}

			plaintext, err := Decrypt(ciphertext, key)
			if err != nil {
				t.Fatalf("Decrypt() error: %v", err)
			}
			if !bytes.Equal(plaintext, test.plaintext) {
				t.Errorf("Decrypt() = %x, want %x", plaintext, test.plaintext)
			}
		})
	}
}

func TestEncrypt_Oversized(t *testing.T) {
	key, _ := testKeys(t)

	ciphertext, err := Encrypt(make([]byte, 246), &key.PublicKey)
	if !errors.Is(err, ErrCryptoFailure) {
		t.Fatalf("Encrypt(246 bytes) error = %v, want ErrCryptoFailure", err)
	}
	if ciphertext != nil {
		t.Errorf("Encrypt(246 bytes) returned %d bytes alongside the error", len(ciphertext))
	}
}

func TestDecrypt_Failures(t *testing.T) {
	key, other := testKeys(t)

	ciphertext, err := Encrypt([]byte("hello"), &key.PublicKey)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	tampered := bytes.Clone(ciphertext)
	tampered[0] ^= 0x80

	tests := []struct {
		name       string
		ciphertext []byte
		key        crypto.Decrypter
	}{
		{name: "wrong key", ciphertext: ciphertext, key: other},
		{name: "truncated", ciphertext: ciphertext[:100], key: key},
		{name: "empty", ciphertext: nil, key: key},
		{name: "tampered", ciphertext: tampered, key: key},
		{name: "garbage", ciphertext: bytes.Repeat([]byte{0xff}, key.Size()), key: key},
		{name: "nil key", ciphertext: ciphertext, key: nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			plaintext, err := Decrypt(test.ciphertext, test.key)
			if !errors.Is(err, ErrCryptoFailure) {
				t.Fatalf("Decrypt() error = %v, want ErrCryptoFailure", err)
			}
			if plaintext != nil {
				t.Errorf("Decrypt() returned %d bytes alongside the error", len(plaintext))
			}
		})
	}
}

func TestDecrypt_NonRSAKey(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if _, err := Decrypt(make([]byte, 256), ecdsaDecrypter{ecKey}); !errors.Is(err, ErrCryptoFailure) {
		t.Fatalf("Decrypt() with a non-RSA key: %v, want ErrCryptoFailure", err)
	}
}

// ecdsaDecrypter gives an ECDSA key a Decrypt method so it satisfies
// crypto.Decrypter without being usable for RSA.
type ecdsaDecrypter struct{ key *ecdsa.PrivateKey }

func (d ecdsaDecrypter) Public() crypto.PublicKey { return d.key.Public() }

func (d ecdsaDecrypter) Decrypt(_ io.Reader, _ []byte, _ crypto.DecrypterOpts) ([]byte, error) {
	return nil, errors.New("not an RSA key")
}
