// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bureau-foundation/custody/lib/secret"
)

// testWorkFactor keeps scrypt cheap in tests.
const testWorkFactor = 10

func testPassphrase(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestSealOpen_RoundTrip(t *testing.T) {
	passphrase := testPassphrase(t, "keystore passphrase")
	plaintext := []byte("0\x82\x04\xa4 pretend PKCS#1 DER")

	ciphertext, err := Seal(plaintext, passphrase, testWorkFactor)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext contains the plaintext")
	}

	opened, err := Open(ciphertext, passphrase)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer opened.Close()

	if !opened.Equal(plaintext) {
		t.Errorf("Open() = %q, want %q", opened.String(), plaintext)
	}
}

func TestSeal_NonDeterministic(t *testing.T) {
	passphrase := testPassphrase(t, "keystore passphrase")
	first, err := Seal([]byte("same"), passphrase, testWorkFactor)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	second, err := Seal([]byte("same"), passphrase, testWorkFactor)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Error("sealing the same plaintext twice produced identical ciphertext")
	}
}

func TestOpen_WrongPassphrase(t *testing.T) {
	ciphertext, err := Seal([]byte("material"), testPassphrase(t, "right"), testWorkFactor)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	_, err = Open(ciphertext, testPassphrase(t, "wrong"))
	if !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("Open() with wrong passphrase: got %v, want ErrWrongPassphrase", err)
	}
}

func TestOpen_Corrupted(t *testing.T) {
	passphrase := testPassphrase(t, "right")
	ciphertext, err := Seal([]byte("material"), passphrase, testWorkFactor)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	ciphertext[len(ciphertext)-1] ^= 0xff

	if _, err := Open(ciphertext, passphrase); err == nil {
		t.Fatal("Open() accepted a corrupted payload")
	}
}

func TestSeal_WorkFactorBounds(t *testing.T) {
	passphrase := testPassphrase(t, "right")
	for _, factor := range []int{0, -3, MaxWorkFactor + 1} {
		if _, err := Seal([]byte("material"), passphrase, factor); err == nil {
			t.Errorf("Seal() accepted work factor %d", factor)
		}
	}
}
