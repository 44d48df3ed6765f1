// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides custody's CBOR configuration for on-disk key
// records.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items, so
// rewriting an unchanged record produces identical bytes. The decoder
// rejects duplicate map keys, since a record with two "public_key"
// entries is either corrupt or forged. Input longer than MaxRecordSize
// is refused with ErrRecordTooLarge before decoding starts.
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
// Types serialized here carry `cbor` struct tags only.
package codec
