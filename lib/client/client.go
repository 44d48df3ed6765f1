// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client talks to a custody service socket on behalf of the
// authorized daemon. Each call opens a new connection, matching the
// server's one-request-per-connection model.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bureau-foundation/custody/lib/wire"
)

// ErrNoResponse is returned when the service closed the connection
// without a result. The service gives no reason; the request may have
// been refused, malformed, timed out, or failed in the crypto layer.
var ErrNoResponse = wire.ErrNoResponse

// dialTimeout bounds the connect phase only.
const dialTimeout = 5 * time.Second

// DefaultResponseTimeout is how long a call waits for the result
// after sending the request.
const DefaultResponseTimeout = 15 * time.Second

// Client sends encrypt and decrypt requests to one custody service.
type Client struct {
	address string
	framing wire.Framing
	timeout time.Duration
}

// New returns a client for the service at address ("@name" for an
// abstract socket, otherwise a path). framing must match the server.
func New(address string, framing wire.Framing) *Client {
	return &Client{
		address: address,
		framing: framing,
		timeout: DefaultResponseTimeout,
	}
}

// WithTimeout returns a copy of c that waits at most timeout for each
// response.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	copied := *c
	copied.timeout = timeout
	return &copied
}

// Encrypt returns plaintext encrypted under the service public key.
func (c *Client) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	return c.call(ctx, wire.OpEncrypt, plaintext)
}

// Decrypt returns the plaintext of ciphertext. With raw framing an
// empty plaintext cannot be told apart from a refusal and is reported
// as ErrNoResponse.
func (c *Client) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	return c.call(ctx, wire.OpDecrypt, ciphertext)
}

func (c *Client) call(ctx context.Context, op wire.Opcode, payload []byte) ([]byte, error) {
	request, err := wire.EncodeRequest(op, payload)
	if err != nil {
		return nil, err
	}

	result, err := c.send(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%s via %s: %w", op, c.address, err)
	}
	return result, nil
}

// send connects, writes the request in a single write, half-closes,
// and reads the framed response.
func (c *Client) send(ctx context.Context, request []byte) ([]byte, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.address)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write(request); err != nil {
		if wire.IsReset(err) {
			// Refused before the request was read.
			return nil, ErrNoResponse
		}
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	result, err := c.framing.ReadResponse(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if c.framing == wire.FramingRaw && len(result) == 0 {
		return nil, ErrNoResponse
	}
	return result, nil
}
