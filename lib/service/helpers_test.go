// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/custody/lib/keystore"
	"github.com/bureau-foundation/custody/lib/peerauth"
	"github.com/bureau-foundation/custody/lib/testutil"
	"github.com/bureau-foundation/custody/lib/wire"
)

const (
	testAccount    = "ecryptfs"
	testExecutable = "/system/bin/ecryptfsd"
)

var (
	sharedKeyOnce sync.Once
	sharedKey     *rsa.PrivateKey
	sharedKeyErr  error
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// testKey returns a 2048-bit key generated once per test binary and
// shared by every test in the package.
func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	sharedKeyOnce.Do(func() {
		sharedKey, sharedKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if sharedKeyErr != nil {
		t.Fatalf("generating test key: %v", sharedKeyErr)
	}
	return sharedKey
}

// testStore returns a memory store holding the test key under
// DefaultAlias.
func testStore(t *testing.T) *keystore.MemoryStore {
	t.Helper()
	store, err := keystore.NewMemoryStore(0)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Import(DefaultAlias, testKey(t)); err != nil {
		t.Fatalf("Import: %v", err)
	}
	return store
}

func testKeypair(t *testing.T) *keystore.Keypair {
	t.Helper()
	keypair, err := keystore.Provision(testStore(t), DefaultAlias, false)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return keypair
}

// selfHost is a peerauth.Host in which the test process itself runs as
// the daemon account. pids is what the process scan reports.
type selfHost struct {
	uid  uint32
	pids []int32
}

func newSelfHost(pids ...int32) selfHost {
	return selfHost{uid: uint32(os.Getuid()), pids: pids}
}

func (h selfHost) LookupUID(account string) (uint32, error) {
	if account != testAccount {
		return 0, errors.New("unknown account " + account)
	}
	return h.uid, nil
}

func (h selfHost) PIDsForExecutable(path string) ([]int32, error) {
	if path != testExecutable {
		return nil, nil
	}
	return h.pids, nil
}

func (h selfHost) ExecutableDigest(int32) ([32]byte, error) {
	return [32]byte{}, errors.New("no digest in selfHost")
}

func testPolicy() peerauth.Policy {
	return peerauth.Policy{Account: testAccount, Executable: testExecutable}
}

func selfPID() int32 {
	return int32(os.Getpid())
}

func newAuthorizer(t *testing.T, host peerauth.Host) *peerauth.Authorizer {
	t.Helper()
	authorizer, err := peerauth.New(testPolicy(), host, testLogger())
	if err != nil {
		t.Fatalf("peerauth.New: %v", err)
	}
	return authorizer
}

// baseConfig is a filesystem-socket server that authorizes the test
// process.
func baseConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Address:     testutil.SocketPath(t, "custody.sock"),
		Keypair:     testKeypair(t),
		Authorizer:  newAuthorizer(t, newSelfHost(selfPID())),
		ReadTimeout: 5 * time.Second,
		Logger:      testLogger(),
	}
}

type testServer struct {
	server  *Server
	address string
	metrics *Metrics
	cancel  context.CancelFunc
	done    chan error

	once sync.Once
	err  error
}

// startTestServer listens and runs Serve on a goroutine. prepare, if
// non-nil, runs after NewServer and before Listen.
func startTestServer(t *testing.T, config Config, prepare func(*Server)) *testServer {
	t.Helper()

	if config.Metrics == nil {
		metrics, err := NewMetrics(prometheus.NewRegistry())
		if err != nil {
			t.Fatalf("NewMetrics: %v", err)
		}
		config.Metrics = metrics
	}

	server, err := NewServer(config)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if prepare != nil {
		prepare(server)
	}
	if err := server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		server:  server,
		address: server.Address(),
		metrics: config.Metrics,
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go func() {
		ts.done <- server.Serve(ctx)
	}()
	t.Cleanup(func() { ts.stop(t) })
	return ts
}

// wait returns Serve's result once it has returned.
func (ts *testServer) wait(t *testing.T) error {
	t.Helper()
	ts.once.Do(func() {
		ts.err = testutil.RequireReceive(t, ts.done, 5*time.Second, "waiting for Serve to return")
	})
	return ts.err
}

func (ts *testServer) stop(t *testing.T) error {
	t.Helper()
	ts.cancel()
	return ts.wait(t)
}

// exchange sends request in one write and returns everything the
// server wrote before closing.
func exchange(t *testing.T, address string, request []byte) []byte {
	t.Helper()
	conn, err := net.DialTimeout("unix", address, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v", address, err)
	}
	defer conn.Close()

	if _, err := conn.Write(request); err != nil && !wire.IsReset(err) {
		t.Fatalf("writing request: %v", err)
	}
	return testutil.ReadUntilClose(t, conn, 10*time.Second)
}

func encryptRequest(payload []byte) []byte {
	return append([]byte{byte(wire.OpEncrypt)}, payload...)
}

func decryptRequest(payload []byte) []byte {
	return append([]byte{byte(wire.OpDecrypt)}, payload...)
}
