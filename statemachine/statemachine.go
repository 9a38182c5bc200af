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
	"time"

	"go.uber.org/zap"

	"github.com/erigontech/metasm/kv"
	"github.com/erigontech/metasm/metrics"
	"github.com/erigontech/metasm/watch"
)

// StateMachine is the apply engine plus every collaborator it
// dispatches through: the keyspace router, an optional watcher bus, an
// optional metrics sink, and a logger. Reads (Get*, BuildSnapshot,
// Membership) may run concurrently with a single in-flight Apply; Apply
// itself is never called concurrently with itself by a well-behaved
// caller — Apply is single-writer, strictly sequential.
type StateMachine struct {
	store kv.Storage
	ks    *keyspaces

	log     *zap.Logger
	metrics *metrics.Metrics
	bus     *watch.Bus
	clock   func() uint64
}

// Option configures optional StateMachine collaborators.
type Option func(*StateMachine)

func WithLogger(l *zap.Logger) Option { return func(sm *StateMachine) { sm.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(sm *StateMachine) { sm.metrics = m } }
func WithWatchBus(b *watch.Bus) Option { return func(sm *StateMachine) { sm.bus = b } }

// WithClock overrides the wall-clock source used for TTL filtering.
// Production callers should never need this; it exists so tests can pin
// "now" instead of racing real time (TTL is the
// only time-dependent decision in apply, and it must be read, never
// mutated, from wall time).
func WithClock(now func() uint64) Option { return func(sm *StateMachine) { sm.clock = now } }

// Open opens (or resumes) a state machine over store. Initialization is
// idempotent: a fresh store gets exactly one Initialized=true record
// written; an already-initialized store is untouched.
func Open(store kv.Storage, opts ...Option) (*StateMachine, error) {
	sm := &StateMachine{
		store: store,
		ks:    newKeyspaces(),
		log:   zap.NewNop(),
		clock: func() uint64 { return uint64(time.Now().Unix()) },
	}
	for _, opt := range opts {
		opt(sm)
	}

	err := store.Txn(true, func(tx kv.RawTx) error {
		inited, err := getInitialized(tx, sm.ks.meta)
		if err != nil {
			return err
		}
		if inited {
			return nil
		}
		return setInitialized(tx, sm.ks.meta)
	})
	if err != nil {
		return nil, err
	}
	sm.log.Info("state machine opened")
	return sm, nil
}

func (sm *StateMachine) Close() error { return sm.store.Close() }

// LastApplied returns the most recently applied LogId, or nil if no
// entry has ever been applied.
func (sm *StateMachine) LastApplied() (*LogId, error) {
	var id *LogId
	err := sm.store.Txn(false, func(tx kv.RawTx) error {
		v, err := getLastApplied(tx, sm.ks.meta)
		id = v
		return err
	})
	return id, err
}

// Membership returns the most recently recorded EffectiveMembership, or
// nil if none has ever been recorded.
func (sm *StateMachine) Membership() (*Membership, error) {
	var m *Membership
	err := sm.store.Txn(false, func(tx kv.RawTx) error {
		v, err := getLastMembership(tx, sm.ks.meta)
		m = v
		return err
	})
	return m, err
}

// GetKV reads the current value of key, applying the same TTL filter
// Upsert does. A nil result means the key is absent or expired.
func (sm *StateMachine) GetKV(key string) (*SeqV[[]byte], error) {
	var v *SeqV[[]byte]
	err := sm.store.Txn(false, func(tx kv.RawTx) error {
		sv, err := getUnexpired(tx, sm.ks, key, sm.clock())
		v = sv
		return err
	})
	return v, err
}

// GetNode reads a single node by id.
func (sm *StateMachine) GetNode(id NodeId) (*Node, error) {
	var n *Node
	err := sm.store.Txn(false, func(tx kv.RawTx) error {
		v, ok, err := sm.ks.nodes.Get(tx, id)
		if err != nil || !ok {
			return err
		}
		n = &v
		return nil
	})
	return n, err
}

// Nodes returns every registered node keyed by NodeId. The result is a
// map, so it carries no iteration order.
func (sm *StateMachine) Nodes() (map[NodeId]Node, error) {
	out := make(map[NodeId]Node)
	err := sm.store.Txn(false, func(tx kv.RawTx) error {
		return sm.ks.nodes.Range(tx, func(id NodeId, n Node) (bool, error) {
			out[id] = n
			return true, nil
		})
	})
	return out, err
}

// NodeIDs returns every registered node id, in order.
func (sm *StateMachine) NodeIDs() ([]NodeId, error) {
	var ids []NodeId
	err := sm.store.Txn(false, func(tx kv.RawTx) error {
		return sm.ks.nodes.Range(tx, func(id NodeId, _ Node) (bool, error) {
			ids = append(ids, id)
			return true, nil
		})
	})
	return ids, err
}

// GetClientLastResp returns (0, AppliedState.None, false) for a client
// never seen, rather than a bare "not found", matching the original
// state machine's dedup-cache lookup surface. everSeen lets callers that
// care distinguish the cases that surface conflates.
func (sm *StateMachine) GetClientLastResp(client string) (serial uint64, resp AppliedState, everSeen bool, err error) {
	err = sm.store.Txn(false, func(tx kv.RawTx) error {
		v, seen, e := getClientLastResp(tx, sm.ks, client)
		serial, resp, everSeen = v.ReqSerial, v.Response, seen
		return e
	})
	return serial, resp, everSeen, err
}
