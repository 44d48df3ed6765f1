// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package peerauth decides whether a connected peer is the one daemon
// process allowed to use the custody service.
//
// The decision depends only on the peer's kernel-attested uid and pid
// and on what the host reports about the expected daemon:
//
//   - the daemon account name resolves to a uid, and the peer's uid
//     must equal it;
//   - exactly one running process must have the daemon executable as
//     its argv[0], and that process must be the peer. No daemon, or
//     more than one, denies every peer;
//   - optionally, the file behind /proc/<pid>/exe must hash to a
//     pinned SHA-256 digest.
//
// Host facilities sit behind the [Host] interface. [HostTable] is the
// production implementation (os/user and a /proc scan); tests supply a
// fake table. Every denial is a [*RejectionError] carrying a [Reason];
// denials are logged through a token bucket so a local process that
// connects in a loop cannot flood the log.
package peerauth
