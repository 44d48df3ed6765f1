// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/custody/lib/peerauth"
	"github.com/bureau-foundation/custody/lib/wire"
)

// Request outcomes recorded in custody_requests_total.
const (
	outcomeOK          = "ok"
	outcomeReadError   = "read_error"
	outcomeReadTimeout = "read_timeout"
	outcomeDropped     = "dropped"
	outcomeCryptoError = "crypto_error"
	outcomeWriteError  = "write_error"
)

// opNone labels requests that never produced an opcode.
const opNone = "none"

// Metrics counts what the accept loop does with each connection. A nil
// *Metrics records nothing.
type Metrics struct {
	requests           *prometheus.CounterVec
	rejections         *prometheus.CounterVec
	credentialFailures prometheus.Counter
}

// NewMetrics creates the service counters and registers them with
// registerer. Every label combination is initialized to zero so that
// dashboards see the series before the first event.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "requests_total",
			Help:      "Requests from authorized peers, by operation and outcome.",
		}, []string{"op", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "rejections_total",
			Help:      "Connections refused by peer authorization, by reason.",
		}, []string{"reason"}),
		credentialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "credential_failures_total",
			Help:      "Accepted connections whose peer credentials could not be read.",
		}),
	}

	for _, collector := range []prometheus.Collector{metrics.requests, metrics.rejections, metrics.credentialFailures} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}

	for _, op := range []string{wire.OpEncrypt.String(), wire.OpDecrypt.String()} {
		for _, outcome := range []string{outcomeOK, outcomeCryptoError, outcomeWriteError} {
			metrics.requests.WithLabelValues(op, outcome)
		}
	}
	for _, outcome := range []string{outcomeReadError, outcomeReadTimeout, outcomeDropped} {
		metrics.requests.WithLabelValues(opNone, outcome)
	}
	for _, reason := range peerauth.Reasons {
		metrics.rejections.WithLabelValues(string(reason))
	}
	return metrics, nil
}

func (m *Metrics) request(op, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) rejection(reason peerauth.Reason) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) credentialFailure() {
	if m == nil {
		return
	}
	m.credentialFailures.Inc()
}
