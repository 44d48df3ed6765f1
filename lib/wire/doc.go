// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the custody request/response protocol.
//
// A connection carries exactly one exchange. The request is a single
// write of at most [MaxRequestSize] bytes:
//
//	[opcode: 1 byte][payload: 0..999 bytes]
//
// with opcode 0 for encrypt and 1 for decrypt. The server reads it with
// one Read call and does not wait for more, so clients must send the
// whole request in one write.
//
// The response depends on the [Framing]:
//
//   - [FramingRaw]: the result bytes, terminated by the server closing
//     the connection. A reader cannot tell an empty result from a
//     refused or failed request; both arrive as zero bytes then EOF.
//   - [FramingLengthPrefixed]: a 4-byte big-endian length, then the
//     result. A failed request still closes without writing anything,
//     so zero bytes then EOF always means "no response", and a zero
//     length header means "empty result".
package wire
