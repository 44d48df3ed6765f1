// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"net"
	"os"
	"strings"
	"testing"
	"time"
)

func TestUniqueID_Increasing(t *testing.T) {
	first := UniqueID("id")
	second := UniqueID("id")
	if first == second {
		t.Fatalf("UniqueID returned %q twice", first)
	}
	if !strings.HasPrefix(first, "id-") {
		t.Errorf("UniqueID = %q, want id- prefix", first)
	}
}

func TestSocketPath_Listenable(t *testing.T) {
	path := SocketPath(t, "probe.sock")
	if len(path) >= 108 {
		t.Fatalf("socket path %q is %d bytes", path, len(path))
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen(%s): %v", path, err)
	}
	listener.Close()
	if _, err := os.Stat(strings.TrimSuffix(path, "/probe.sock")); err != nil {
		t.Errorf("socket directory missing: %v", err)
	}
}

func TestAbstractAddress_Listenable(t *testing.T) {
	address := AbstractAddress("probe")
	if !strings.HasPrefix(address, "@probe-") {
		t.Fatalf("AbstractAddress = %q", address)
	}
	listener, err := net.Listen("unix", address)
	if err != nil {
		t.Fatalf("Listen(%s): %v", address, err)
	}
	listener.Close()
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "buffered value"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}

	done := make(chan struct{})
	close(done)
	RequireClosed(t, done, time.Second, "closed channel")
}
