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

package statemachine

import (
	"path/filepath"
	"testing"

	"github.com/erigontech/metasm/kv"
)

// testClock lets a test move wall time forward deterministically instead
// of racing real time, for TTL scenarios.
type testClock struct{ now uint64 }

func (c *testClock) Now() uint64    { return c.now }
func (c *testClock) Set(now uint64) { c.now = now }

// openTestMachine opens a StateMachine over a fresh bbolt file in t's
// scratch directory, with the wall clock pinned to clockSeconds so TTL
// scenarios don't race real time.
func openTestMachine(t *testing.T, clockSeconds uint64) (*StateMachine, *testClock) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sm.db")
	store, err := kv.OpenBolt(path, "state_machine", nil)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clock := &testClock{now: clockSeconds}
	sm, err := Open(store, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open state machine: %v", err)
	}
	return sm, clock
}

func mustApply(t *testing.T, sm *StateMachine, e Entry) AppliedState {
	t.Helper()
	r, err := sm.Apply(e)
	if err != nil {
		t.Fatalf("apply %v: %v", e.LogID, err)
	}
	return r
}
