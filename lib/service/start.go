// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/custody/lib/keystore"
	"github.com/bureau-foundation/custody/lib/peerauth"
	"github.com/bureau-foundation/custody/lib/secret"
	"github.com/bureau-foundation/custody/lib/wire"
)

// ErrNotEligible is returned by Start when the service is disabled for
// this process.
var ErrNotEligible = errors.New("custody service is not enabled for this process")

// DefaultAlias names the service keypair in the key store.
const DefaultAlias = "encrypt_key"

// Options configures Start.
type Options struct {
	// Disabled makes Start return ErrNotEligible without touching
	// the key store or the socket.
	Disabled bool

	// Store holds the keypair. Required.
	Store keystore.Store

	// Passphrase, when non-nil, is passed to Store.Unlock before the
	// keypair is provisioned. Borrowed, not closed.
	Passphrase *secret.Buffer

	// Alias names the keypair. Empty selects DefaultAlias.
	Alias string

	// Owner lets this process create the keypair when it is missing.
	Owner bool

	// Policy names the daemon allowed to connect.
	Policy peerauth.Policy

	// Host overrides the authorizer's host facilities. Nil selects
	// peerauth.HostTable{}.
	Host peerauth.Host

	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Framing      wire.Framing
	Logger       *slog.Logger
	Metrics      *Metrics
}

// Service is a running custody server.
type Service struct {
	server  *Server
	keypair *keystore.Keypair
	done    chan struct{}
	err     error
}

// Start provisions the keypair, binds the listen address, and runs the
// accept loop on a new goroutine. It returns once the socket is bound,
// so a client may connect as soon as Start returns.
//
// Startup failures (not eligible, key unavailable, bind failure) are
// returned and nothing is left running. The caller decides whether
// that is fatal; a host process can carry on without the service.
func Start(ctx context.Context, options Options) (*Service, error) {
	if options.Disabled {
		return nil, ErrNotEligible
	}
	if options.Store == nil {
		return nil, errors.New("service: key store is required")
	}
	alias := options.Alias
	if alias == "" {
		alias = DefaultAlias
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	host := options.Host
	if host == nil {
		host = peerauth.HostTable{}
	}

	if options.Passphrase != nil {
		if err := options.Store.Unlock(options.Passphrase); err != nil {
			return nil, fmt.Errorf("%w: unlocking key store: %w", keystore.ErrKeyUnavailable, err)
		}
	}

	keypair, err := keystore.Provision(options.Store, alias, options.Owner)
	if err != nil {
		return nil, err
	}

	authorizer, err := peerauth.New(options.Policy, host, logger)
	if err != nil {
		return nil, fmt.Errorf("configuring peer authorization: %w", err)
	}

	server, err := NewServer(Config{
		Address:      options.Address,
		Keypair:      keypair,
		Authorizer:   authorizer,
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
		Framing:      options.Framing,
		Logger:       logger,
		Metrics:      options.Metrics,
	})
	if err != nil {
		return nil, err
	}
	if err := server.Listen(); err != nil {
		return nil, err
	}

	service := &Service{
		server:  server,
		keypair: keypair,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(service.done)
		service.err = server.Serve(ctx)
	}()
	return service, nil
}

// Address returns the bound listen address.
func (s *Service) Address() string {
	return s.server.Address()
}

// Keypair returns the provisioned keypair.
func (s *Service) Keypair() *keystore.Keypair {
	return s.keypair
}

// Done is closed when the accept loop has stopped.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Err returns why the accept loop stopped: nil after context
// cancellation, an ErrAccept error otherwise. Valid after Done closes.
func (s *Service) Err() error {
	<-s.done
	return s.err
}
