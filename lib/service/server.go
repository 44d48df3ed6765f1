// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/custody/lib/keystore"
	"github.com/bureau-foundation/custody/lib/peerauth"
	"github.com/bureau-foundation/custody/lib/peercred"
	"github.com/bureau-foundation/custody/lib/pkcs1"
	"github.com/bureau-foundation/custody/lib/secret"
	"github.com/bureau-foundation/custody/lib/wire"
)

var (
	// ErrBind is returned when the listen address cannot be bound.
	ErrBind = errors.New("binding listen address")

	// ErrAccept is returned by Serve when accept fails and the loop
	// stops. The server does not restart itself.
	ErrAccept = errors.New("accepting connection")

	// ErrCredentials marks a connection whose peer credentials could
	// not be read. It is logged; the loop moves on.
	ErrCredentials = errors.New("reading peer credentials")

	// ErrRead marks a connection that sent no request before the read
	// failed or timed out.
	ErrRead = errors.New("reading request")
)

const (
	// DefaultReadTimeout bounds the wait for a request after accept.
	DefaultReadTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds writing the response.
	DefaultWriteTimeout = 10 * time.Second
)

// Authorizer decides whether a peer may be served.
type Authorizer interface {
	Authorize(peer peercred.Identity) error
}

// Config configures a Server.
type Config struct {
	// Address is "@name" for an abstract socket or a filesystem path.
	// Empty selects DefaultAddress.
	Address string

	// Keypair supplies the public key for encrypt and the private
	// handle for decrypt. Required.
	Keypair *keystore.Keypair

	// Authorizer vets every peer before its request is read. Required.
	Authorizer Authorizer

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Framing selects the response format. Zero is FramingRaw.
	Framing wire.Framing

	Logger  *slog.Logger
	Metrics *Metrics
}

// Server runs the custody accept loop. Connections are handled one at
// a time on the goroutine that calls Serve: each is authorized, gets
// one request read, one crypto operation, at most one response, and is
// closed before the next Accept.
type Server struct {
	address      string
	keypair      *keystore.Keypair
	authorizer   Authorizer
	readTimeout  time.Duration
	writeTimeout time.Duration
	framing      wire.Framing
	logger       *slog.Logger
	metrics      *Metrics

	// credentials reads the peer identity of an accepted connection.
	// Tests substitute it to simulate SO_PEERCRED failures.
	credentials func(net.Conn) (peercred.Identity, error)

	mu       sync.Mutex
	listener net.Listener
}

// NewServer validates config and returns a server that is not yet
// listening.
func NewServer(config Config) (*Server, error) {
	if config.Keypair == nil || config.Keypair.Public == nil || config.Keypair.Private == nil {
		return nil, errors.New("service: keypair is required")
	}
	if config.Authorizer == nil {
		return nil, errors.New("service: authorizer is required")
	}
	address := config.Address
	if address == "" {
		address = DefaultAddress()
	}
	readTimeout := config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	writeTimeout := config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		address:      address,
		keypair:      config.Keypair,
		authorizer:   config.Authorizer,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		framing:      config.Framing,
		logger:       logger,
		metrics:      config.Metrics,
		credentials:  peercred.FromConn,
	}, nil
}

// Address returns the address the server binds.
func (s *Server) Address() string {
	return s.address
}

// Listen binds the listen address. It must be called once, before
// Serve.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("%w: %s: already listening", ErrBind, s.address)
	}
	listener, err := listenUnix(s.address)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrBind, s.address, err)
	}
	s.listener = listener
	return nil
}

// Serve accepts and handles connections until ctx is cancelled, which
// returns nil, or Accept fails, which returns an error wrapping
// ErrAccept. Either way the listener is closed and a filesystem socket
// is removed.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("service: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()
	defer func() {
		listener.Close()
		if !isAbstract(s.address) {
			os.Remove(s.address)
		}
	}()

	s.logger.Info("custody server listening",
		"address", s.address,
		"key", s.keypair,
		"framing", s.framing.String(),
		"read_timeout", s.readTimeout,
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("custody server stopped", "address", s.address)
				return nil
			}
			s.logger.Error("accept failed, custody server stopping", "address", s.address, "error", err)
			return fmt.Errorf("%w on %s: %w", ErrAccept, s.address, err)
		}
		s.serveConnection(conn)
	}
}

// serveConnection runs the per-connection gate: credentials, read
// deadline, authorization. Only an authorized peer reaches
// handleConnection; every other path closes the connection unread.
func (s *Server) serveConnection(conn net.Conn) {
	logger := s.logger.With("connection", uuid.NewString())

	peer, err := s.credentials(conn)
	if err != nil {
		conn.Close()
		s.metrics.credentialFailure()
		logger.Warn("dropping connection", "error", fmt.Errorf("%w: %w", ErrCredentials, err))
		return
	}
	logger = logger.With("peer", peer)

	if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		conn.Close()
		logger.Warn("setting read deadline failed", "error", err)
		return
	}

	if err := s.authorizer.Authorize(peer); err != nil {
		conn.Close()
		var rejection *peerauth.RejectionError
		if errors.As(err, &rejection) {
			s.metrics.rejection(rejection.Reason)
		} else {
			s.metrics.rejection(peerauth.ReasonLookup)
		}
		logger.Debug("connection refused", "error", err)
		return
	}

	s.handleConnection(conn, logger)
}

// handleConnection serves one request from an authorized peer and
// closes conn. The request must arrive in a single Read of at most
// wire.MaxRequestSize bytes; nothing further is read. Failures at any
// step end the exchange with no bytes written.
func (s *Server) handleConnection(conn net.Conn, logger *slog.Logger) {
	defer conn.Close()

	data, err := readRequest(conn)
	if err != nil {
		outcome := outcomeReadError
		if errors.Is(err, os.ErrDeadlineExceeded) {
			outcome = outcomeReadTimeout
		}
		s.metrics.request(opNone, outcome)
		logger.Warn("request read failed", "error", err)
		return
	}

	request, err := wire.ParseRequest(data)
	if err != nil {
		s.metrics.request(opNone, outcomeDropped)
		logger.Debug("request dropped", "error", err)
		return
	}
	op := request.Op.String()

	result, err := s.dispatch(request)
	if err != nil {
		s.metrics.request(op, outcomeCryptoError)
		logger.Warn("crypto operation failed", "op", op, "payload_bytes", len(request.Payload), "error", err)
		return
	}
	if request.Op == wire.OpDecrypt {
		defer secret.Zero(result)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		s.metrics.request(op, outcomeWriteError)
		logger.Warn("setting write deadline failed", "error", err)
		return
	}
	if _, err := conn.Write(s.framing.EncodeResponse(result)); err != nil {
		s.metrics.request(op, outcomeWriteError)
		logger.Warn("writing response failed", "op", op, "error", err)
		return
	}

	s.metrics.request(op, outcomeOK)
	logger.Debug("request served", "op", op, "payload_bytes", len(request.Payload), "result_bytes", len(result))
}

func (s *Server) dispatch(request wire.Request) ([]byte, error) {
	switch request.Op {
	case wire.OpEncrypt:
		return pkcs1.Encrypt(request.Payload, s.keypair.Public)
	case wire.OpDecrypt:
		return pkcs1.Decrypt(request.Payload, s.keypair.Private)
	default:
		return nil, fmt.Errorf("%w: %d", wire.ErrUnknownOpcode, byte(request.Op))
	}
}

// readRequest performs the one Read a request gets. A Read that
// returns data alongside an error (typically EOF after the client's
// write side closed) still yields that data.
func readRequest(conn net.Conn) ([]byte, error) {
	buffer := make([]byte, wire.MaxRequestSize)
	count, err := conn.Read(buffer)
	if count > 0 {
		return buffer[:count], nil
	}
	if err == nil {
		err = errors.New("zero-length read")
	}
	return nil, fmt.Errorf("%w: %w", ErrRead, err)
}
