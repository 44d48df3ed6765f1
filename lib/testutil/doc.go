// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for custody packages.
//
// [SocketDir] and [SocketPath] give tests short socket paths in /tmp,
// since t.TempDir() can exceed the 108-byte sun_path limit.
// [AbstractAddress] names a Linux abstract socket unique to the test
// binary.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout safety valve so individual tests do not call
// time.After directly.
//
// [UniqueID] generates increasing identifiers for test disambiguation.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no custody-internal dependencies.
package testutil
