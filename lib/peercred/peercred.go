// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peercred

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Identity is the peer's user, group, and process at connect time.
type Identity struct {
	UID uint32
	GID uint32
	PID int32
}

func (i Identity) String() string {
	return fmt.Sprintf("uid=%d gid=%d pid=%d", i.UID, i.GID, i.PID)
}

// LogValue groups the identity fields for structured logs.
func (i Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("uid", uint64(i.UID)),
		slog.Uint64("gid", uint64(i.GID)),
		slog.Int("pid", int(i.PID)),
	)
}

// ErrNotUnix is returned when the connection is not a Unix socket.
var ErrNotUnix = errors.New("peer credentials require a unix socket connection")

// FromConn returns the SO_PEERCRED credentials of conn's peer.
func FromConn(conn net.Conn) (Identity, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return Identity{}, fmt.Errorf("%w: got %T", ErrNotUnix, conn)
	}
	return fromSyscallConn(unixConn)
}

func fromSyscallConn(conn syscall.Conn) (Identity, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return Identity{}, fmt.Errorf("accessing socket descriptor: %w", err)
	}

	var credentials *unix.Ucred
	var sockoptErr error
	controlErr := raw.Control(func(fd uintptr) {
		credentials, sockoptErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if controlErr != nil {
		return Identity{}, fmt.Errorf("accessing socket descriptor: %w", controlErr)
	}
	if sockoptErr != nil {
		return Identity{}, fmt.Errorf("reading SO_PEERCRED: %w", sockoptErr)
	}

	return Identity{
		UID: credentials.Uid,
		GID: credentials.Gid,
		PID: credentials.Pid,
	}, nil
}
