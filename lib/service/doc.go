// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service runs the custody socket server.
//
// The server listens on a local Unix socket, by default the abstract
// name "@encrypt_<uid>_<pid>" derived from its own identity (see
// [Address]). Its accept loop is strictly sequential. For each
// connection it:
//
//  1. reads the peer's SO_PEERCRED identity; on failure the connection
//     is dropped and the loop continues;
//  2. arms a read deadline ([DefaultReadTimeout] unless configured);
//  3. asks the [Authorizer]; a refused peer is closed without a byte
//     read or written;
//  4. reads one request with a single Read, performs one PKCS#1 v1.5
//     encrypt or decrypt with the service keypair, writes the framed
//     result, and closes.
//
// Every failure after authorization (read error or timeout, unknown
// opcode, crypto failure) looks the same to the client: the connection
// closes with nothing written. Nothing is retried.
//
// An Accept error ends the loop and [Server.Serve] returns an error
// wrapping [ErrAccept]; restarting is left to the caller. Cancelling
// the context passed to Serve is the clean shutdown path.
//
// [Start] is the one-call entry point used by the binary: unlock the
// key store, provision the keypair, bind, and run the loop on its own
// goroutine. It returns startup errors instead of panicking so that a
// host process can run with the service disabled.
//
// [NewMetrics] registers the accept-loop counters; [MetricsServer]
// serves them over loopback HTTP or a private unix socket, never over
// the custody socket.
package service
