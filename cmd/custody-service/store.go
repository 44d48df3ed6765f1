// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/custody/lib/config"
	"github.com/bureau-foundation/custody/lib/keystore"
	"github.com/bureau-foundation/custody/lib/secret"
)

type closableStore interface {
	keystore.Store
	io.Closer
}

// openStore opens the configured key store. For the file backend it
// also reads the passphrase that unlocks it; the caller closes both.
// A memory store holds no key until an owner creates one.
func openStore(cfg config.KeystoreConfig, keyBits int) (closableStore, *secret.Buffer, error) {
	switch cfg.Backend {
	case "memory":
		store, err := keystore.NewMemoryStore(keyBits)
		if err != nil {
			return nil, nil, fmt.Errorf("creating memory key store: %w", err)
		}
		return store, nil, nil

	case "file":
		store, err := keystore.OpenFileStore(cfg.Directory, keystore.FileStoreOptions{
			KeyBits:    keyBits,
			WorkFactor: cfg.ScryptWorkFactor,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening key store: %w", err)
		}
		passphrase, err := readPassphrase(cfg.PassphraseFile, os.Stdin)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, passphrase, nil

	default:
		return nil, nil, fmt.Errorf("unknown keystore backend %q", cfg.Backend)
	}
}

// readPassphrase reads the key store passphrase from path, or "-" for
// stdin. An empty path prompts on the terminal with echo disabled.
func readPassphrase(path string, stdin *os.File) (*secret.Buffer, error) {
	if path != "" {
		passphrase, err := secret.ReadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		return passphrase, nil
	}

	stdinFileDescriptor := int(stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, fmt.Errorf("no terminal available for the passphrase prompt (set keystore.passphrase_file)")
	}

	fmt.Fprint(os.Stderr, "Key store passphrase: ")
	passphraseBytes, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}

	buffer, err := secret.NewFromBytes(passphraseBytes)
	if err != nil {
		secret.Zero(passphraseBytes)
		return nil, err
	}
	return buffer, nil
}
