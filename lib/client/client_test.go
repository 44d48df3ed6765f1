// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/bureau-foundation/custody/lib/testutil"
	"github.com/bureau-foundation/custody/lib/wire"
)

// fakeServer accepts one connection, records the single read it gets,
// and answers with respond(request).
func fakeServer(t *testing.T, respond func(request []byte) []byte) (string, <-chan []byte) {
	t.Helper()
	address := testutil.SocketPath(t, "fake.sock")
	listener, err := net.Listen("unix", address)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	requests := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buffer := make([]byte, wire.MaxRequestSize)
		count, _ := conn.Read(buffer)
		requests <- buffer[:count]
		if response := respond(buffer[:count]); response != nil {
			conn.Write(response)
		}
	}()
	return address, requests
}

func TestEncrypt_SendsOpcodeAndPayload(t *testing.T) {
	address, requests := fakeServer(t, func([]byte) []byte { return []byte("ciphertext") })

	result, err := New(address, wire.FramingRaw).Encrypt(context.Background(), []byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if string(result) != "ciphertext" {
		t.Errorf("Encrypt = %q", result)
	}
	request := testutil.RequireReceive(t, requests, 5*time.Second, "request")
	if !bytes.Equal(request, []byte("\x00hello")) {
		t.Errorf("server read %q, want %q", request, "\x00hello")
	}
}

func TestDecrypt_LengthPrefixed(t *testing.T) {
	address, requests := fakeServer(t, func([]byte) []byte {
		return wire.FramingLengthPrefixed.EncodeResponse(nil)
	})

	result, err := New(address, wire.FramingLengthPrefixed).Decrypt(context.Background(), []byte{0xaa, 0xbb})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("Decrypt = %q, want empty", result)
	}
	request := testutil.RequireReceive(t, requests, 5*time.Second, "request")
	if !bytes.Equal(request, []byte{0x01, 0xaa, 0xbb}) {
		t.Errorf("server read %x", request)
	}
}

func TestCall_NoResponse(t *testing.T) {
	for _, framing := range []wire.Framing{wire.FramingRaw, wire.FramingLengthPrefixed} {
		t.Run(framing.String(), func(t *testing.T) {
			address, _ := fakeServer(t, func([]byte) []byte { return nil })

			_, err := New(address, framing).Encrypt(context.Background(), []byte("hello"))
			if !errors.Is(err, ErrNoResponse) {
				t.Errorf("Encrypt = %v, want ErrNoResponse", err)
			}
		})
	}
}

func TestCall_PayloadTooLarge(t *testing.T) {
	custody := New(testutil.SocketPath(t, "unused.sock"), wire.FramingRaw)
	_, err := custody.Encrypt(context.Background(), make([]byte, wire.MaxPayloadSize+1))
	if !errors.Is(err, wire.ErrRequestTooLarge) {
		t.Errorf("Encrypt = %v, want ErrRequestTooLarge", err)
	}
}

func TestCall_NoServer(t *testing.T) {
	custody := New(testutil.SocketPath(t, "absent.sock"), wire.FramingRaw)
	if _, err := custody.Encrypt(context.Background(), []byte("x")); err == nil {
		t.Error("Encrypt succeeded without a server")
	}
}

func TestCall_ContextCancelWhileWaiting(t *testing.T) {
	address := testutil.SocketPath(t, "silent.sock")
	listener, err := net.Listen("unix", address)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := New(address, wire.FramingRaw).Encrypt(ctx, []byte("hello"))
		result <- err
	}()

	conn := testutil.RequireReceive(t, accepted, 5*time.Second, "accept")
	defer conn.Close()
	cancel()

	if err := testutil.RequireReceive(t, result, 5*time.Second, "Encrypt return"); !errors.Is(err, context.Canceled) {
		t.Errorf("Encrypt after cancel = %v, want context.Canceled", err)
	}
}

func TestWithTimeout(t *testing.T) {
	address := testutil.SocketPath(t, "slow.sock")
	listener, err := net.Listen("unix", address)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()
	release := make(chan struct{})
	defer close(release)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Hold the connection open without answering.
		<-release
	}()

	base := New(address, wire.FramingRaw)
	_, err = base.WithTimeout(50*time.Millisecond).Encrypt(context.Background(), []byte("hello"))
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("Encrypt against a silent server = %v, want ErrDeadlineExceeded", err)
	}
	if base.timeout != DefaultResponseTimeout {
		t.Error("WithTimeout modified the original client")
	}
}
