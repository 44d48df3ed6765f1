// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Custody is the command-line client for custody-service. It sends one
// encrypt or decrypt request per invocation and writes the raw result.
// Only the daemon the service authorizes gets an answer; any other
// caller sees the connection closed without a response.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/lib/client"
	"github.com/bureau-foundation/custody/lib/process"
	"github.com/bureau-foundation/custody/lib/service"
	"github.com/bureau-foundation/custody/lib/version"
	"github.com/bureau-foundation/custody/lib/wire"
)

const usage = `Usage:
  custody encrypt --address ADDR [--framing raw|length] [--in FILE] [--out FILE]
  custody decrypt --address ADDR [--framing raw|length] [--in FILE] [--out FILE]
  custody address --uid N --pid N
  custody version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		stop()
		process.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}

	switch command, rest := args[0], args[1:]; command {
	case "encrypt":
		return runCall(ctx, wire.OpEncrypt, rest, stdin, stdout)
	case "decrypt":
		return runCall(ctx, wire.OpDecrypt, rest, stdin, stdout)
	case "address":
		return runAddress(rest, stdout)
	case "version", "--version":
		fmt.Fprintf(stdout, "custody %s\n", version.Info())
		return nil
	case "help", "--help", "-h":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func runCall(ctx context.Context, op wire.Opcode, args []string, stdin io.Reader, stdout io.Writer) error {
	var address, framingName, inPath, outPath string
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("custody "+op.String(), pflag.ContinueOnError)
	flagSet.StringVar(&address, "address", "", `service address ("@encrypt_<uid>_<pid>" or a socket path)`)
	flagSet.StringVar(&framingName, "framing", "raw", "response framing: raw or length (must match the service)")
	flagSet.StringVar(&inPath, "in", "-", "input file (- for stdin)")
	flagSet.StringVar(&outPath, "out", "-", "output file (- for stdout)")
	flagSet.DurationVar(&timeout, "timeout", client.DefaultResponseTimeout, "how long to wait for the response")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if address == "" {
		return errors.New("--address is required")
	}
	framing, err := wire.ParseFraming(framingName)
	if err != nil {
		return err
	}

	input, err := readInput(inPath, stdin)
	if err != nil {
		return err
	}
	if len(input) > wire.MaxPayloadSize {
		return fmt.Errorf("input is %d bytes, the service accepts at most %d", len(input), wire.MaxPayloadSize)
	}

	custody := client.New(address, framing).WithTimeout(timeout)
	var result []byte
	switch op {
	case wire.OpEncrypt:
		result, err = custody.Encrypt(ctx, input)
	case wire.OpDecrypt:
		result, err = custody.Decrypt(ctx, input)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return writeOutput(outPath, stdout, result)
}

func runAddress(args []string, stdout io.Writer) error {
	var uid, pid int

	flagSet := pflag.NewFlagSet("custody address", pflag.ContinueOnError)
	flagSet.IntVar(&uid, "uid", os.Getuid(), "uid of the service process")
	flagSet.IntVar(&pid, "pid", 0, "pid of the service process")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if pid <= 0 {
		return errors.New("--pid is required")
	}

	fmt.Fprintf(stdout, "@%s\n", service.Address(uid, pid))
	return nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	// One byte past the limit is enough to report oversized input.
	limit := int64(wire.MaxPayloadSize + 1)
	if path == "-" {
		return io.ReadAll(io.LimitReader(stdin, limit))
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, limit))
}

func writeOutput(path string, stdout io.Writer, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0600)
}
