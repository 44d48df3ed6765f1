// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package peercred reads the kernel-attested identity of the process at
// the other end of a Unix socket connection.
//
// [FromConn] queries SO_PEERCRED on an accepted *net.UnixConn. The
// credentials are the ones the peer held when it called connect(2);
// they are recorded by the kernel and cannot be supplied or altered by
// the peer. The result is an [Identity] value that is captured once per
// connection and passed to the authorizer.
package peercred
