// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// SocketDir creates a short-named temporary directory in /tmp for Unix
// socket files and removes it when the test completes.
//
// Unix socket paths are limited to 108 bytes (sun_path), which nested
// t.TempDir() paths can exceed.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "custody-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

// SocketPath returns a path for a socket named name inside a fresh
// SocketDir.
func SocketPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(SocketDir(t), name)
}

// AbstractAddress returns an abstract-namespace socket address that no
// other test or process on the machine will pick. Abstract sockets
// vanish with their listener, so there is nothing to clean up.
func AbstractAddress(prefix string) string {
	return fmt.Sprintf("@%s-%d", UniqueID(prefix), os.Getpid())
}
