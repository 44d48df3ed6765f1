// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peerauth

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/custody/lib/peercred"
)

// ErrUnauthorized matches every *RejectionError via errors.Is.
var ErrUnauthorized = errors.New("peer is not authorized")

// Reason classifies a denial.
type Reason string

const (
	ReasonUID             Reason = "uid_mismatch"
	ReasonNoDaemon        Reason = "no_daemon"
	ReasonAmbiguousDaemon Reason = "ambiguous_daemon"
	ReasonPID             Reason = "pid_mismatch"
	ReasonDigest          Reason = "digest_mismatch"
	ReasonLookup          Reason = "lookup_failed"
)

// Reasons lists every Reason, for pre-registering metric labels.
var Reasons = []Reason{ReasonUID, ReasonNoDaemon, ReasonAmbiguousDaemon, ReasonPID, ReasonDigest, ReasonLookup}

// RejectionError describes why a peer was denied.
type RejectionError struct {
	Reason Reason
	Peer   peercred.Identity
	Detail string
	Err    error
}

func (e *RejectionError) Error() string {
	message := fmt.Sprintf("peer %s unauthorized (%s)", e.Peer, e.Reason)
	if e.Detail != "" {
		message += ": " + e.Detail
	}
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}
	return message
}

func (e *RejectionError) Unwrap() error { return e.Err }

func (e *RejectionError) Is(target error) bool { return target == ErrUnauthorized }

// Host is the set of host facilities authorization depends on.
type Host interface {
	// LookupUID resolves an account name to its uid.
	LookupUID(account string) (uint32, error)

	// PIDsForExecutable lists running processes whose argv[0] is path.
	PIDsForExecutable(path string) ([]int32, error)

	// ExecutableDigest hashes the executable image of pid.
	ExecutableDigest(pid int32) ([32]byte, error)
}

// Policy names the daemon that is allowed to connect.
type Policy struct {
	// Account is the daemon's user account.
	Account string

	// Executable is the daemon's argv[0].
	Executable string

	// ExecutableSHA256, when non-empty, is the hex SHA-256 digest the
	// daemon's executable must hash to.
	ExecutableSHA256 string
}

// Validate checks that the policy can be enforced.
func (p Policy) Validate() error {
	var errs []error
	if p.Account == "" {
		errs = append(errs, errors.New("peer account is required"))
	}
	if p.Executable == "" {
		errs = append(errs, errors.New("peer executable is required"))
	}
	if p.ExecutableSHA256 != "" {
		if _, err := ParseDigest(p.ExecutableSHA256); err != nil {
			errs = append(errs, fmt.Errorf("peer executable_sha256: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Rejection log throttle: a short burst, then one line per second.
const (
	rejectLogInterval = time.Second
	rejectLogBurst    = 5
)

// Authorizer applies a Policy to connecting peers. It is safe for
// concurrent use, although the service calls it from one goroutine.
type Authorizer struct {
	policy Policy
	digest [32]byte
	pinned bool
	host   Host
	logger *slog.Logger

	rejectLog  *rate.Limiter
	suppressed atomic.Uint64
}

// New returns an Authorizer for policy. logger may be nil.
func New(policy Policy, host Host, logger *slog.Logger) (*Authorizer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if host == nil {
		return nil, errors.New("peerauth: nil host")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	authorizer := &Authorizer{
		policy:    policy,
		host:      host,
		logger:    logger,
		rejectLog: rate.NewLimiter(rate.Every(rejectLogInterval), rejectLogBurst),
	}
	if policy.ExecutableSHA256 != "" {
		authorizer.digest, _ = ParseDigest(policy.ExecutableSHA256)
		authorizer.pinned = true
	}
	return authorizer, nil
}

// IsAuthorized reports whether peer may use the service.
func (a *Authorizer) IsAuthorized(peer peercred.Identity) bool {
	return a.Authorize(peer) == nil
}

// Authorize returns nil when peer is the daemon, or a *RejectionError.
func (a *Authorizer) Authorize(peer peercred.Identity) error {
	rejection := a.decide(peer)
	if rejection == nil {
		return nil
	}
	a.logRejection(rejection)
	return rejection
}

func (a *Authorizer) decide(peer peercred.Identity) *RejectionError {
	reject := func(reason Reason, detail string, err error) *RejectionError {
		return &RejectionError{Reason: reason, Peer: peer, Detail: detail, Err: err}
	}

	expectedUID, err := a.host.LookupUID(a.policy.Account)
	if err != nil {
		return reject(ReasonLookup, fmt.Sprintf("resolving account %q", a.policy.Account), err)
	}
	if peer.UID != expectedUID {
		return reject(ReasonUID, fmt.Sprintf("account %q is uid %d", a.policy.Account, expectedUID), nil)
	}

	pids, err := a.host.PIDsForExecutable(a.policy.Executable)
	if err != nil {
		return reject(ReasonLookup, fmt.Sprintf("listing processes for %s", a.policy.Executable), err)
	}
	switch len(pids) {
	case 0:
		return reject(ReasonNoDaemon, fmt.Sprintf("no process running %s", a.policy.Executable), nil)
	case 1:
	default:
		return reject(ReasonAmbiguousDaemon, fmt.Sprintf("%d processes running %s", len(pids), a.policy.Executable), nil)
	}
	if pids[0] != peer.PID {
		return reject(ReasonPID, fmt.Sprintf("daemon is pid %d", pids[0]), nil)
	}

	if a.pinned {
		digest, err := a.host.ExecutableDigest(peer.PID)
		if err != nil {
			return reject(ReasonLookup, "hashing daemon executable", err)
		}
		if digest != a.digest {
			return reject(ReasonDigest, fmt.Sprintf("executable hashes to %s", FormatDigest(digest)), nil)
		}
	}
	return nil
}

func (a *Authorizer) logRejection(err *RejectionError) {
	if !a.rejectLog.Allow() {
		a.suppressed.Add(1)
		return
	}
	attrs := []any{
		"peer", err.Peer,
		"reason", string(err.Reason),
		"error", err,
	}
	if suppressed := a.suppressed.Swap(0); suppressed > 0 {
		attrs = append(attrs, "suppressed", suppressed)
	}
	a.logger.Warn("peer rejected", attrs...)
}
