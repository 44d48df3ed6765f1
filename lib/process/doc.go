// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the custody binaries.
// It holds the one raw stderr write that exists outside the structured
// logger: reporting the error that ended run() before or after the
// logger is usable, then exiting.
package process
