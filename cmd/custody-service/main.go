// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Custody-service holds the encrypt keypair and serves PKCS#1 v1.5
// encrypt and decrypt requests to one authorized local daemon over a
// Unix socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/lib/config"
	"github.com/bureau-foundation/custody/lib/peerauth"
	"github.com/bureau-foundation/custody/lib/process"
	"github.com/bureau-foundation/custody/lib/secret"
	"github.com/bureau-foundation/custody/lib/service"
	"github.com/bureau-foundation/custody/lib/version"
	"github.com/bureau-foundation/custody/lib/wire"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	var configPath string
	var owner bool
	var showVersion bool

	flagSet := pflag.NewFlagSet("custody-service", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $CUSTODY_CONFIG)")
	flagSet.BoolVar(&owner, "owner", false, "create the keypair if it does not exist (overrides service.owner)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("custody-service %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("owner") {
		cfg.Service.Owner = owner
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	logger = logger.With("component", "custody", "instance", uuid.NewString())

	logger.Info("starting custody-service",
		"version", version.Info(),
		"environment", cfg.Environment,
		"owner", cfg.Service.Owner,
		"keystore", cfg.Keystore.Backend,
	)

	readTimeout, writeTimeout, err := cfg.Service.Timeouts()
	if err != nil {
		return err
	}
	framing, err := wire.ParseFraming(cfg.Service.Framing)
	if err != nil {
		return err
	}

	// A disabled service never opens the key store, so it never
	// prompts for a passphrase.
	var store closableStore
	var passphrase *secret.Buffer
	if cfg.Service.Enabled {
		store, passphrase, err = openStore(cfg.Keystore, cfg.Service.KeyBits)
		if err != nil {
			return err
		}
		defer store.Close()
		if passphrase != nil {
			defer passphrase.Close()
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := service.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Listen != "" {
		metricsServer, err := service.NewMetricsServer(service.MetricsServerConfig{
			Address:  cfg.Metrics.Listen,
			Gatherer: registry,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		metricsDone := make(chan error, 1)
		go func() { metricsDone <- metricsServer.Serve(ctx) }()
		defer func() {
			if err := <-metricsDone; err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	custody, err := service.Start(ctx, service.Options{
		Disabled:   !cfg.Service.Enabled,
		Store:      store,
		Passphrase: passphrase,
		Alias:      cfg.Service.Alias,
		Owner:      cfg.Service.Owner,
		Policy: peerauth.Policy{
			Account:          cfg.Peer.Account,
			Executable:       cfg.Peer.Executable,
			ExecutableSHA256: cfg.Peer.ExecutableSHA256,
		},
		Address:      cfg.Service.SocketPath,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		Framing:      framing,
		Logger:       logger,
		Metrics:      metrics,
	})
	if errors.Is(err, service.ErrNotEligible) {
		stop()
		logger.Info("custody service disabled in configuration")
		return nil
	}
	if err != nil {
		stop()
		return fmt.Errorf("starting custody service: %w", err)
	}

	logger.Info("custody service running",
		"address", custody.Address(),
		"keypair", custody.Keypair(),
		"framing", framing,
	)

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case <-custody.Done():
	}
	stop()
	<-custody.Done()

	if err := custody.Err(); err != nil {
		return err
	}
	logger.Info("custody service stopped")
	return nil
}

// loadConfig reads the file named by --config, falling back to
// CUSTODY_CONFIG, and validates it.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
