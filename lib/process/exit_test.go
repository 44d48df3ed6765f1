// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReport(t *testing.T) {
	var output bytes.Buffer
	report(&output, errors.New("key unavailable"))

	want := filepath.Base(os.Args[0]) + ": error: key unavailable\n"
	if output.String() != want {
		t.Errorf("report() wrote %q, want %q", output.String(), want)
	}
}

func TestFatal_ExitsWithOne(t *testing.T) {
	var code int
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = os.Exit })

	Fatal(errors.New("bind failed"))
	if code != 1 {
		t.Errorf("Fatal() exit code = %d, want 1", code)
	}
}
