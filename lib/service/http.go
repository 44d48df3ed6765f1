// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes a Prometheus registry at /metrics. It is kept
// off the custody socket: scraping never touches the key or the
// accept loop.
//
// Serve(ctx) blocks until the context is cancelled and in-flight
// scrapes drain, the same lifecycle as Server.
type MetricsServer struct {
	address string
	handler http.Handler
	logger  *slog.Logger

	// shutdownTimeout is the maximum time to wait for active
	// scrapes to complete after the context is cancelled.
	shutdownTimeout time.Duration

	// ready is closed after the listener is bound.
	ready chan struct{}

	// addr is the resolved listen address, available after ready is
	// closed.
	addr net.Addr
}

// MetricsServerConfig configures a MetricsServer.
type MetricsServerConfig struct {
	// Address is a loopback TCP address ("127.0.0.1:9464",
	// "localhost:0") or an absolute unix socket path. Required.
	Address string

	// Gatherer supplies the metrics. Required.
	Gatherer prometheus.Gatherer

	// ShutdownTimeout defaults to 5 seconds if zero.
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// NewMetricsServer validates config and returns a server that is not
// yet listening.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.Address == "" {
		return nil, errors.New("service: metrics address is required")
	}
	if config.Gatherer == nil {
		return nil, errors.New("service: metrics gatherer is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := config.ShutdownTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}))

	return &MetricsServer{
		address:         config.Address,
		handler:         mux,
		logger:          logger,
		shutdownTimeout: timeout,
		ready:           make(chan struct{}),
	}, nil
}

// Ready returns a channel that is closed once the server is bound
// and accepting connections.
func (s *MetricsServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the resolved listen address. Only valid after Ready()
// is closed.
func (s *MetricsServer) Addr() net.Addr {
	return s.addr
}

// Serve binds the address and serves scrapes until ctx is cancelled,
// then shuts down gracefully.
func (s *MetricsServer) Serve(ctx context.Context) error {
	listener, err := listenMetrics(s.address)
	if err != nil {
		return err
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	s.logger.Info("metrics endpoint listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveDone:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	s.logger.Info("metrics endpoint stopped")
	return nil
}

// listenMetrics binds the metrics address. An absolute path is a unix
// socket restricted to mode 0600; anything else must resolve to a
// loopback host so the endpoint is never reachable off the machine.
func listenMetrics(address string) (net.Listener, error) {
	if filepath.IsAbs(address) {
		if err := removeStaleSocket(address); err != nil {
			return nil, err
		}
		listener, err := net.Listen("unix", address)
		if err != nil {
			return nil, fmt.Errorf("binding metrics socket %s: %w", address, err)
		}
		if err := os.Chmod(address, 0600); err != nil {
			listener.Close()
			return nil, fmt.Errorf("restricting metrics socket: %w", err)
		}
		return listener, nil
	}

	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("metrics address: %w", err)
	}
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return nil, fmt.Errorf("metrics address %q is not a loopback address", address)
		}
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("binding metrics listener %s: %w", address, err)
	}
	return listener, nil
}
