// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"syscall"
)

// Opcode selects the operation of a request.
type Opcode byte

const (
	OpEncrypt Opcode = 0
	OpDecrypt Opcode = 1
)

func (o Opcode) String() string {
	switch o {
	case OpEncrypt:
		return "encrypt"
	case OpDecrypt:
		return "decrypt"
	default:
		return fmt.Sprintf("opcode(%d)", byte(o))
	}
}

// MaxRequestSize bounds a request: one opcode byte plus the payload.
const MaxRequestSize = 1000

// MaxPayloadSize is the largest payload a request can carry.
const MaxPayloadSize = MaxRequestSize - 1

var (
	// ErrEmptyRequest is returned for a zero-length request.
	ErrEmptyRequest = errors.New("empty request")

	// ErrUnknownOpcode is returned when the first byte is not a known
	// opcode.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrRequestTooLarge is returned by EncodeRequest for payloads over
	// MaxPayloadSize.
	ErrRequestTooLarge = errors.New("request exceeds maximum size")

	// ErrNoResponse is returned by ReadResponse when the server closed
	// the connection without sending a length header.
	ErrNoResponse = errors.New("connection closed without a response")
)

// Request is one decoded request. Payload aliases the read buffer.
type Request struct {
	Op      Opcode
	Payload []byte
}

// ParseRequest splits data into opcode and payload.
func ParseRequest(data []byte) (Request, error) {
	if len(data) == 0 {
		return Request{}, ErrEmptyRequest
	}
	op := Opcode(data[0])
	if op != OpEncrypt && op != OpDecrypt {
		return Request{Op: op}, fmt.Errorf("%w: %d", ErrUnknownOpcode, data[0])
	}
	return Request{Op: op, Payload: data[1:]}, nil
}

// EncodeRequest returns the single write a client sends.
func EncodeRequest(op Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d-byte payload, limit %d", ErrRequestTooLarge, len(payload), MaxPayloadSize)
	}
	request := make([]byte, 0, 1+len(payload))
	request = append(request, byte(op))
	return append(request, payload...), nil
}

// Framing selects how a response is delimited.
type Framing int

const (
	// FramingRaw writes the result and relies on close as the end.
	FramingRaw Framing = iota

	// FramingLengthPrefixed writes a uint32 big-endian length first.
	FramingLengthPrefixed
)

func (f Framing) String() string {
	switch f {
	case FramingRaw:
		return "raw"
	case FramingLengthPrefixed:
		return "length"
	default:
		return fmt.Sprintf("framing(%d)", int(f))
	}
}

// ParseFraming accepts the configuration spellings of a Framing.
func ParseFraming(name string) (Framing, error) {
	switch name {
	case "", "raw":
		return FramingRaw, nil
	case "length", "length-prefixed":
		return FramingLengthPrefixed, nil
	default:
		return 0, fmt.Errorf("unknown framing %q (want raw or length)", name)
	}
}

// lengthHeaderSize is the size of the FramingLengthPrefixed header.
const lengthHeaderSize = 4

// maxResponseSize bounds what ReadResponse accepts. Results are a
// single RSA block or a plaintext that fit in one.
const maxResponseSize = 64 * 1024

// EncodeResponse frames result for writing in one call.
func (f Framing) EncodeResponse(result []byte) []byte {
	if f != FramingLengthPrefixed {
		return result
	}
	framed := make([]byte, lengthHeaderSize+len(result))
	binary.BigEndian.PutUint32(framed, uint32(len(result)))
	copy(framed[lengthHeaderSize:], result)
	return framed
}

// IsReset reports whether err is the peer closing a Unix socket that
// still held unread data. The server does that whenever it refuses a
// request without reading it, so a reset is a close, not a fault.
func IsReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

// ReadResponse reads one framed response from reader. With FramingRaw
// it reads to EOF; the result may be empty for a refused request. With
// FramingLengthPrefixed, EOF before the header returns ErrNoResponse.
// A connection reset counts as EOF in both.
func (f Framing) ReadResponse(reader io.Reader) ([]byte, error) {
	if f != FramingLengthPrefixed {
		result, err := io.ReadAll(io.LimitReader(reader, maxResponseSize+1))
		if err != nil && !IsReset(err) {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if len(result) > maxResponseSize {
			return nil, fmt.Errorf("response exceeds %d bytes", maxResponseSize)
		}
		return result, nil
	}

	var header [lengthHeaderSize]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		if errors.Is(err, io.EOF) || IsReset(err) {
			return nil, ErrNoResponse
		}
		return nil, fmt.Errorf("reading response length: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxResponseSize {
		return nil, fmt.Errorf("response length %d exceeds %d bytes", length, maxResponseSize)
	}
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, fmt.Errorf("reading %d-byte response: %w", length, err)
	}
	return result, nil
}
