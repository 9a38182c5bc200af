// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package metrics wires github.com/prometheus/client_golang around the
// apply engine: a counter of applies per command kind, a histogram of
// apply latency, and a counter of transaction branch outcomes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors a StateMachine updates on every apply. A
// nil *Metrics is valid and every method is a no-op, so embedding it
// never forces a caller to register anything.
type Metrics struct {
	appliesTotal  *prometheus.CounterVec
	applyDuration prometheus.Histogram
	txnOutcomes   *prometheus.CounterVec
}

// New registers its collectors against reg. Pass prometheus.NewRegistry()
// for an isolated registry, or prometheus.DefaultRegisterer to join the
// process-wide one.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		appliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metasm_applies_total",
			Help: "Entries applied to the state machine, by command kind.",
		}, []string{"cmd"}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "metasm_apply_duration_seconds",
			Help:    "Time spent inside StateMachine.Apply, including the storage commit.",
			Buckets: prometheus.DefBuckets,
		}),
		txnOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metasm_txn_branch_total",
			Help: "Transaction evaluations, by which branch ran.",
		}, []string{"branch"}),
	}
	if reg != nil {
		reg.MustRegister(m.appliesTotal, m.applyDuration, m.txnOutcomes)
	}
	return m
}

func (m *Metrics) ObserveApply(cmd string, seconds float64) {
	if m == nil {
		return
	}
	m.appliesTotal.WithLabelValues(cmd).Inc()
	m.applyDuration.Observe(seconds)
}

func (m *Metrics) ObserveTxnBranch(success bool) {
	if m == nil {
		return
	}
	branch := "else_then"
	if success {
		branch = "if_then"
	}
	m.txnOutcomes.WithLabelValues(branch).Inc()
}
