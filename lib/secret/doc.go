// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds private key material and keystore passphrases
// in memory the Go runtime never sees.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock, and excludes it from core dumps
// via madvise(MADV_DONTDUMP). On Close the memory is zeroed, unlocked,
// and unmapped. The garbage collector cannot copy or relocate it, so
// the custody service's private key never lingers in freed heap pages.
//
// Constructors:
//
//   - [New] -- zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [ReadFromPath] -- reads a passphrase file (or stdin for "-")
//
// [Zero] wipes heap slices that briefly held secret bytes. After Close,
// any access to a Buffer panics. Close is idempotent.
//
// Depends on golang.org/x/sys/unix. No other custody dependencies.
// Imported by lib/sealed and lib/keystore.
package secret
