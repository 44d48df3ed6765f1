// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// exit is replaced in tests.
var exit = os.Exit

// Fatal writes "<program>: error: err" to stderr and exits with code 1.
// Use it in main() for errors from run(), where the structured logger
// may not be initialized.
func Fatal(err error) {
	report(os.Stderr, err)
	exit(1)
}

func report(w io.Writer, err error) {
	fmt.Fprintf(w, "%s: error: %v\n", filepath.Base(os.Args[0]), err)
}
