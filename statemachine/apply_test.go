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
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/metasm/kv"
	"github.com/erigontech/metasm/watch"
)

func TestRepeatedTxidReturnsCachedResponseWithoutNewSeq(t *testing.T) {
	sm, _ := openTestMachine(t, 0)

	entry := NormalEntry(LogId{Term: 1, Index: 1}, LogEntry{
		TxId: &TxId{Client: "c1", Serial: 7},
		Cmd:  UpsertKVCmd("a", AnySeq(), UpdateOp([]byte("v1")), nil),
	})

	first := mustApply(t, sm, entry)
	require.Equal(t, ASKV, first.Kind)
	require.NotNil(t, first.KVChange.Result)
	require.Equal(t, uint64(1), first.KVChange.Result.Seq)

	repeat := NormalEntry(LogId{Term: 1, Index: 2}, *entry.Normal)
	second := mustApply(t, sm, repeat)
	require.Equal(t, first, second, "a repeated txid must return the first apply's response unchanged")

	v, err := sm.GetKV("a")
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, uint64(1), v.Seq)
	require.Equal(t, []byte("v1"), v.Data)

	last, err := sm.LastApplied()
	require.NoError(t, err)
	require.Equal(t, LogId{Term: 1, Index: 2}, *last)
}

func TestConditionalUpdateRejectedLeavesStateAndSeqUntouched(t *testing.T) {
	sm, _ := openTestMachine(t, 0)

	mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 1}, LogEntry{
		TxId: &TxId{Client: "c1", Serial: 1},
		Cmd:  UpsertKVCmd("a", AnySeq(), UpdateOp([]byte("v1")), nil),
	}))

	rejected := mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 2}, LogEntry{
		TxId: &TxId{Client: "c1", Serial: 2},
		Cmd:  UpsertKVCmd("a", EqSeq(99), UpdateOp([]byte("v2")), nil),
	}))
	require.Equal(t, ASKV, rejected.Kind)
	require.Equal(t, rejected.KVChange.Prev, rejected.KVChange.Result, "a failed MatchSeq precondition must be a no-op")
	require.Equal(t, uint64(1), rejected.KVChange.Prev.Seq)

	next := mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 3}, LogEntry{
		TxId: &TxId{Client: "c1", Serial: 3},
		Cmd:  UpsertKVCmd("a", AnySeq(), UpdateOp([]byte("v3")), nil),
	}))
	require.Equal(t, uint64(2), next.KVChange.Result.Seq, "the rejected write must not have consumed a sequence tick")
}

func TestTransactionBranchOnMatchingValue(t *testing.T) {
	sm, _ := openTestMachine(t, 0)

	mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 1}, LogEntry{
		Cmd: UpsertKVCmd("a", AnySeq(), UpdateOp([]byte("v1")), nil),
	}))

	reply := mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 2}, LogEntry{
		Cmd: TransactionCmd(TxnRequest{
			Condition: []Cond{ValueCond("a", Eq, []byte("v1"))},
			IfThen:    []TxnOp{PutOp("b", []byte("x"), true)},
			ElseThen:  []TxnOp{PutOp("b", []byte("y"), true)},
		}),
	}))
	require.Equal(t, ASTxnReply, reply.Kind)
	require.True(t, reply.Txn.Success)
	require.Len(t, reply.Txn.Responses, 1)
	require.Nil(t, reply.Txn.Responses[0].PutPrevValue)

	v, err := sm.GetKV("b")
	require.NoError(t, err)
	require.Equal(t, uint64(2), v.Seq)
	require.Equal(t, []byte("x"), v.Data)
}

func TestTransactionConditionOnMissingKeyComparesSeqZero(t *testing.T) {
	sm, _ := openTestMachine(t, 0)

	reply := mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 1}, LogEntry{
		Cmd: TransactionCmd(TxnRequest{
			Condition: []Cond{SeqCond("k", Eq, 0)},
			IfThen:    []TxnOp{PutOp("k", []byte("v"), false)},
		}),
	}))
	require.True(t, reply.Txn.Success)

	v, err := sm.GetKV("k")
	require.NoError(t, err)
	require.Equal(t, uint64(1), v.Seq)
	require.Equal(t, []byte("v"), v.Data)
}

func TestExpiredRecordHiddenFromReadsButKeptOnDisk(t *testing.T) {
	sm, clock := openTestMachine(t, 50)

	expireAt := uint64(100)
	mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 1}, LogEntry{
		Cmd: UpsertKVCmd("t", AnySeq(), UpdateOp([]byte("x")), &KVMeta{ExpireAt: &expireAt}),
	}))

	v, err := sm.GetKV("t")
	require.NoError(t, err)
	require.NotNil(t, v, "read before expiry must still see the value")

	clock.Set(150)
	v, err = sm.GetKV("t")
	require.NoError(t, err)
	require.Nil(t, v, "read at or after expire_at must hide the value")

	snap, err := sm.BuildSnapshot()
	require.NoError(t, err)

	sm2, clock2 := openTestMachine(t, 50)
	require.NoError(t, sm2.Restore(snap.Bytes))
	restored, err := sm2.GetKV("t")
	require.NoError(t, err)
	require.NotNil(t, restored, "the expired record must still be physically present after a snapshot round trip")
	require.Equal(t, []byte("x"), restored.Data)

	clock2.Set(150)
	restored, err = sm2.GetKV("t")
	require.NoError(t, err)
	require.Nil(t, restored, "it is still filtered by the same TTL rule after restore")
}

func TestAddNodeIsIdempotentKeepingFirstWrite(t *testing.T) {
	sm, _ := openTestMachine(t, 0)

	n1 := Node{Name: "n1", RaftEndpoint: "1:1", RPCEndpoint: "1:2"}
	n2 := Node{Name: "n2", RaftEndpoint: "2:1", RPCEndpoint: "2:2"}

	first := mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 1}, LogEntry{
		Cmd: AddNodeCmd(1, n1),
	}))
	require.Equal(t, ASNode, first.Kind)
	require.Nil(t, first.NodeChange.Prev)
	require.Equal(t, n1, *first.NodeChange.Result)

	second := mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 2}, LogEntry{
		Cmd: AddNodeCmd(1, n2),
	}))
	require.Equal(t, n1, *second.NodeChange.Prev)
	require.Nil(t, second.NodeChange.Result)

	got, err := sm.GetNode(1)
	require.NoError(t, err)
	require.Equal(t, n1, *got)
}

func TestDeleteDoesNotConsumeASequenceTick(t *testing.T) {
	sm, _ := openTestMachine(t, 0)

	mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 1}, LogEntry{
		Cmd: UpsertKVCmd("a", AnySeq(), UpdateOp([]byte("v1")), nil),
	}))
	mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 2}, LogEntry{
		Cmd: UpsertKVCmd("a", AnySeq(), DeleteOp(), nil),
	}))

	v, err := sm.GetKV("a")
	require.NoError(t, err)
	require.Nil(t, v)

	next := mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 3}, LogEntry{
		Cmd: UpsertKVCmd("b", AnySeq(), UpdateOp([]byte("v2")), nil),
	}))
	require.Equal(t, uint64(2), next.KVChange.Result.Seq, "Delete must not have advanced the shared sequence counter")
}

func TestLastAppliedStrictlyIncreasesAcrossApplies(t *testing.T) {
	sm, _ := openTestMachine(t, 0)

	var prev *LogId
	for i := uint64(1); i <= 5; i++ {
		mustApply(t, sm, BlankEntry(LogId{Term: 1, Index: i}))
		got, err := sm.LastApplied()
		require.NoError(t, err)
		if prev != nil {
			require.True(t, prev.Less(*got))
		}
		prev = got
	}
}

func TestSnapshotRoundTripsAndPreservesLastApplied(t *testing.T) {
	sm, _ := openTestMachine(t, 0)

	mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 1}, LogEntry{
		Cmd: UpsertKVCmd("a", AnySeq(), UpdateOp([]byte("v1")), nil),
	}))
	mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 2}, LogEntry{
		Cmd: AddNodeCmd(1, Node{Name: "n1"}),
	}))

	snap, err := sm.BuildSnapshot()
	require.NoError(t, err)
	require.Equal(t, LogId{Term: 1, Index: 2}, snap.LastApplied)

	sm2, _ := openTestMachine(t, 0)
	require.NoError(t, sm2.Restore(snap.Bytes))

	got, err := sm2.LastApplied()
	require.NoError(t, err)
	require.Equal(t, snap.LastApplied, *got)

	v, err := sm2.GetKV("a")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v.Data)

	n, err := sm2.GetNode(1)
	require.NoError(t, err)
	require.Equal(t, "n1", n.Name)
}

func TestReplayingSameLogPrefixProducesByteIdenticalSnapshots(t *testing.T) {
	apply := func(t *testing.T) []byte {
		sm, _ := openTestMachine(t, 0)
		mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 1}, LogEntry{
			Cmd: UpsertKVCmd("a", AnySeq(), UpdateOp([]byte("v1")), nil),
		}))
		mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 2}, LogEntry{
			Cmd: UpsertKVCmd("b", AnySeq(), UpdateOp([]byte("v2")), nil),
		}))
		snap, err := sm.BuildSnapshot()
		require.NoError(t, err)
		return snap.Bytes
	}

	a := apply(t)
	b := apply(t)
	require.Equal(t, a, b, "replaying an identical log prefix must yield byte-identical snapshots")
}

func TestBuildSnapshotRequiresAnAppliedEntry(t *testing.T) {
	sm, _ := openTestMachine(t, 0)
	_, err := sm.BuildSnapshot()
	require.Error(t, err)
}

func TestWatchBusObservesCommittedKVChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sm.db")
	store, err := kv.OpenBolt(path, "state_machine", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := watch.NewBus()
	ch := make(chan watch.Notification, 1)
	bus.Subscribe(ch)

	sm, err := Open(store, WithWatchBus(bus))
	require.NoError(t, err)

	mustApply(t, sm, NormalEntry(LogId{Term: 1, Index: 1}, LogEntry{
		Cmd: UpsertKVCmd("a", AnySeq(), UpdateOp([]byte("v1")), nil),
	}))

	select {
	case n := <-ch:
		require.Equal(t, "a", n.Key)
		require.Nil(t, n.Prev)
		require.Equal(t, []byte("v1"), n.Result)
	case <-time.After(time.Second):
		t.Fatal("watcher never received the kv_changed notification")
	}
}
