// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peerauth

import (
	"bytes"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

// DefaultProcRoot is where HostTable looks for process entries.
const DefaultProcRoot = "/proc"

// HostTable is the Host backed by the system account database and the
// proc filesystem.
type HostTable struct {
	// ProcRoot overrides DefaultProcRoot. Tests point it at a
	// directory laid out like /proc.
	ProcRoot string

	// Users overrides the account lookup. Nil uses os/user.
	Users func(account string) (string, error)
}

func (h HostTable) procRoot() string {
	if h.ProcRoot == "" {
		return DefaultProcRoot
	}
	return h.ProcRoot
}

func (h HostTable) LookupUID(account string) (uint32, error) {
	var uidString string
	if h.Users != nil {
		value, err := h.Users(account)
		if err != nil {
			return 0, err
		}
		uidString = value
	} else {
		entry, err := user.Lookup(account)
		if err != nil {
			return 0, fmt.Errorf("looking up account %q: %w", account, err)
		}
		uidString = entry.Uid
	}

	uid, err := strconv.ParseUint(uidString, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("account %q has non-numeric uid %q", account, uidString)
	}
	return uint32(uid), nil
}

// PIDsForExecutable scans every numeric entry under the proc root and
// returns those whose cmdline starts with path. Entries that vanish or
// cannot be read mid-scan are skipped; only failure to list the proc
// root itself is an error.
func (h HostTable) PIDsForExecutable(path string) ([]int32, error) {
	root := h.procRoot()
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}

	want := []byte(path)
	var pids []int32
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.ParseInt(entry.Name(), 10, 32)
		if err != nil || pid <= 0 {
			continue
		}
		cmdline, err := os.ReadFile(filepath.Join(root, entry.Name(), "cmdline"))
		if err != nil || len(cmdline) == 0 {
			// Exited, a kernel thread, or hidden by hidepid.
			continue
		}
		argv0, _, _ := bytes.Cut(cmdline, []byte{0})
		if bytes.Equal(argv0, want) {
			pids = append(pids, int32(pid))
		}
	}
	return pids, nil
}

// ExecutableDigest hashes the file behind <proc root>/<pid>/exe. The
// link is opened, not resolved by name, so a binary replaced on disk
// after the daemon started is still hashed as the running image.
func (h HostTable) ExecutableDigest(pid int32) ([32]byte, error) {
	return HashFile(filepath.Join(h.procRoot(), strconv.Itoa(int(pid)), "exe"))
}
