// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Address returns the listen name of the service running as uid/pid.
func Address(uid, pid int) string {
	return fmt.Sprintf("encrypt_%d_%d", uid, pid)
}

// DefaultAddress is the abstract-namespace socket for this process.
func DefaultAddress() string {
	return "@" + Address(os.Getuid(), os.Getpid())
}

// isAbstract reports whether address names a Linux abstract socket.
// Abstract sockets have no filesystem entry to clean up or chmod.
func isAbstract(address string) bool {
	return strings.HasPrefix(address, "@")
}

// socketMode lets any local account connect to a filesystem socket.
const socketMode = 0666

// listenUnix binds address. A filesystem address has any stale socket
// left by a previous run of this user removed first. The new socket is
// mode 0666: connect(2) needs write permission on the file, and the
// authorized daemon runs under its own account. SO_PEERCRED and the
// Authorizer decide who is served, not the file mode.
func listenUnix(address string) (net.Listener, error) {
	if address == "" || address == "@" {
		return nil, errors.New("empty listen address")
	}
	if isAbstract(address) {
		return net.Listen("unix", address)
	}

	if err := removeStaleSocket(address); err != nil {
		return nil, err
	}
	listener, err := net.Listen("unix", address)
	if err != nil {
		return nil, err
	}
	// Stop Close from unlinking; Serve removes the path itself.
	listener.(*net.UnixListener).SetUnlinkOnClose(false)
	if err := os.Chmod(address, socketMode); err != nil {
		listener.Close()
		os.Remove(address)
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}
	return listener, nil
}

// removeStaleSocket deletes a leftover socket at path. Anything other
// than a socket owned by this user (a symlink, a regular file, another
// user's socket) is refused rather than removed.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking socket path %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("socket path %s is a symlink", path)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("socket path %s exists and is not a socket", path)
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok && stat.Uid != uint32(os.Getuid()) {
		return fmt.Errorf("socket path %s is owned by uid %d", path, stat.Uid)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	return nil
}
