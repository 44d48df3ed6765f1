// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"testing"
)

type sampleRecord struct {
	Alias   string `cbor:"alias"`
	KeyBits int    `cbor:"key_bits"`
	Public  []byte `cbor:"public_key"`
}

func TestMarshalDeterministic(t *testing.T) {
	record := sampleRecord{Alias: "encrypt", KeyBits: 2048, Public: []byte{1, 2, 3}}

	first, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("encoding is not deterministic:\n%x\n%x", first, second)
	}

	var decoded sampleRecord
	if err := Unmarshal(first, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Alias != record.Alias || decoded.KeyBits != record.KeyBits || !bytes.Equal(decoded.Public, record.Public) {
		t.Errorf("decoded %+v, want %+v", decoded, record)
	}
}

func TestUnmarshalRejectsDuplicateKeys(t *testing.T) {
	// {"alias": "a", "alias": "b"}
	duplicate := []byte{0xa2, 0x65, 'a', 'l', 'i', 'a', 's', 0x61, 'a', 0x65, 'a', 'l', 'i', 'a', 's', 0x61, 'b'}

	var decoded sampleRecord
	if err := Unmarshal(duplicate, &decoded); err == nil {
		t.Fatalf("Unmarshal accepted duplicate map keys, decoded %+v", decoded)
	}
}

func TestUnmarshalRejectsOversizedRecord(t *testing.T) {
	data, err := Marshal(sampleRecord{Public: make([]byte, MaxRecordSize)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) <= MaxRecordSize {
		t.Fatalf("encoded record is %d bytes, want more than %d", len(data), MaxRecordSize)
	}

	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("Unmarshal of %d bytes: got %v, want ErrRecordTooLarge", len(data), err)
	}
}

func TestUnmarshalAcceptsRecordAtLimit(t *testing.T) {
	// Grow the byte string until the whole encoding is exactly at the
	// limit.
	public := make([]byte, MaxRecordSize-64)
	data, err := Marshal(sampleRecord{Public: public})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	public = make([]byte, len(public)+MaxRecordSize-len(data))
	data, err = Marshal(sampleRecord{Public: public})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) != MaxRecordSize {
		t.Fatalf("encoded record is %d bytes, want exactly %d", len(data), MaxRecordSize)
	}

	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal at the limit: %v", err)
	}
	if len(decoded.Public) != len(public) {
		t.Errorf("decoded %d public bytes, want %d", len(decoded.Public), len(public))
	}
}
