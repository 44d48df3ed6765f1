// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func setVars(t *testing.T, commit, dirty, built string) {
	t.Helper()
	saved := [3]string{GitCommit, GitDirty, BuildTime}
	GitCommit, GitDirty, BuildTime = commit, dirty, built
	t.Cleanup(func() { GitCommit, GitDirty, BuildTime = saved[0], saved[1], saved[2] })
}

func TestInfo_Ldflags(t *testing.T) {
	setVars(t, "abc1234", "true", "2026-10-01T00:00:00Z")

	want := Version + " (abc1234-dirty, 2026-10-01T00:00:00Z)"
	if got := Info(); got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
}

func TestInfo_BuildInfoFallback(t *testing.T) {
	setVars(t, "unknown", "false", "unknown")
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.modified", Value: "false"},
			{Key: "vcs.time", Value: "2026-09-30T12:00:00Z"},
		}}, true
	}
	t.Cleanup(func() { readBuildInfo = debug.ReadBuildInfo })

	want := Version + " (0123456789ab, 2026-09-30T12:00:00Z)"
	if got := Info(); got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
}

func TestInfo_NoBuildInfo(t *testing.T) {
	setVars(t, "unknown", "false", "unknown")
	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }
	t.Cleanup(func() { readBuildInfo = debug.ReadBuildInfo })

	want := Version + " (unknown, unknown)"
	if got := Info(); got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
}

func TestFull(t *testing.T) {
	full := Full()
	if !strings.Contains(full, "Go: ") || !strings.Contains(full, "Platform: ") {
		t.Errorf("Full() = %q, missing Go or platform line", full)
	}
}
