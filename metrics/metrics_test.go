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

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsObserveMethodsAreNoops(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveApply("upsert_kv", 0.01)
		m.ObserveTxnBranch(true)
	})
}

func TestNewRegistersAgainstAnIsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.ObserveApply("upsert_kv", 0.05)
	m.ObserveTxnBranch(false)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["metasm_applies_total"])
	require.True(t, names["metasm_apply_duration_seconds"])
	require.True(t, names["metasm_txn_branch_total"])
}

func TestNewWithNilRegistererSkipsRegistration(t *testing.T) {
	require.NotPanics(t, func() {
		m := New(nil)
		m.ObserveApply("incr_seq", 0.001)
	})
}

// sanity check that promhttp can serve whatever New() registers.
func TestMetricsCollectorsAreValidForPromhttp(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = New(reg)
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
