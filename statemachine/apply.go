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
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erigontech/metasm/kv"
	"github.com/erigontech/metasm/watch"
)

// Apply is the single entry point of the apply engine: it opens one
// batch, always records LastApplied first, dispatches on the entry
// payload, commits, and only then fires watcher notifications — commit
// and notification are never ordered the other way, so a watcher never
// observes a change that didn't durably commit.
//
// Apply is not cancellable: the consensus layer has already committed
// entry and expects durable persistence.
func (sm *StateMachine) Apply(entry Entry) (AppliedState, error) {
	start := time.Now()
	now := sm.clock()

	var pending []watch.Notification
	var result AppliedState

	txErr := sm.store.Txn(true, func(tx kv.RawTx) error {
		if err := setLastApplied(tx, sm.ks.meta, entry.LogID); err != nil {
			return err
		}

		switch entry.Kind {
		case PayloadBlank:
			result = NoneState()
			return nil

		case PayloadNormal:
			r, notif, err := sm.applyNormal(tx, *entry.Normal, now)
			if err != nil {
				return err
			}
			result = r
			pending = notif
			return nil

		case PayloadMembership:
			if err := setLastMembership(tx, sm.ks.meta, *entry.Membership); err != nil {
				return err
			}
			result = NoneState()
			return nil

		default:
			return fmt.Errorf("statemachine: unknown entry payload kind %d", entry.Kind)
		}
	})

	if txErr != nil {
		if cause, ok := kv.IsAppError(txErr); ok {
			// The aborted batch took its LastApplied write with it; record
			// it on its own so an app error still advances LastApplied.
			if err := sm.store.Txn(true, func(tx kv.RawTx) error {
				return setLastApplied(tx, sm.ks.meta, entry.LogID)
			}); err != nil {
				return AppliedState{}, err
			}
			sm.log.Debug("apply produced an app error", zap.Error(cause), zap.Stringer("log_id", entry.LogID))
			return AppErrorState(cause.Error()), nil
		}
		return AppliedState{}, txErr
	}

	for _, n := range pending {
		sm.bus.Notify(n)
	}

	sm.metrics.ObserveApply(cmdLabel(entry), time.Since(start).Seconds())
	sm.log.Debug("applied entry", zap.Stringer("log_id", entry.LogID))
	return result, nil
}

func cmdLabel(e Entry) string {
	switch e.Kind {
	case PayloadBlank:
		return "blank"
	case PayloadMembership:
		return "membership"
	case PayloadNormal:
		switch e.Normal.Cmd.Kind {
		case CmdIncrSeq:
			return "incr_seq"
		case CmdAddNode:
			return "add_node"
		case CmdRemoveNode:
			return "remove_node"
		case CmdUpsertKV:
			return "upsert_kv"
		case CmdTransaction:
			return "transaction"
		}
	}
	return "unknown"
}

func (sm *StateMachine) applyNormal(tx kv.RawTx, entry LogEntry, now uint64) (AppliedState, []watch.Notification, error) {
	var notif []watch.Notification
	result, err := applyWithDedupCollectingNotifications(tx, sm, entry, now, &notif)
	return result, notif, err
}

// applyWithDedupCollectingNotifications is the dedup-cache check plus
// collection of the kv_changed notification Upsert produces, so Apply
// can fire it only after the enclosing batch has committed.
func applyWithDedupCollectingNotifications(tx kv.RawTx, sm *StateMachine, entry LogEntry, now uint64, notif *[]watch.Notification) (AppliedState, error) {
	if entry.TxId != nil {
		last, everSeen, err := getClientLastResp(tx, sm.ks, entry.TxId.Client)
		if err != nil {
			return AppliedState{}, err
		}
		if everSeen && last.ReqSerial == entry.TxId.Serial {
			return last.Response, nil
		}
	}

	result, err := sm.applyCmd(tx, entry.Cmd, now, notif)
	if err != nil {
		return AppliedState{}, err
	}

	if entry.TxId != nil {
		if err := putClientLastResp(tx, sm.ks, entry.TxId.Client, entry.TxId.Serial, result); err != nil {
			return AppliedState{}, err
		}
	}

	return result, nil
}

// applyCmd dispatches a single command to its handler. Storage
// errors propagate as Go errors and abort the batch; any future
// application-level rule violation would instead return an
// AppliedState{Kind: ASAppError} value here, keeping Apply total.
func (sm *StateMachine) applyCmd(tx kv.RawTx, cmd Cmd, now uint64, notif *[]watch.Notification) (AppliedState, error) {
	switch cmd.Kind {
	case CmdIncrSeq:
		v, err := incrSeq(tx, sm.ks.sequences, cmd.SeqName)
		if err != nil {
			return AppliedState{}, err
		}
		return SeqState(v), nil

	case CmdAddNode:
		c, err := addNode(tx, sm.ks, cmd.NodeID, cmd.Node)
		if err != nil {
			return AppliedState{}, err
		}
		return NodeState(c), nil

	case CmdRemoveNode:
		c, err := removeNode(tx, sm.ks, cmd.NodeID)
		if err != nil {
			return AppliedState{}, err
		}
		return NodeState(c), nil

	case CmdUpsertKV:
		c, err := upsert(tx, sm.ks, cmd.Key, cmd.MatchSeq, cmd.ValueOp, cmd.ValueMeta, now)
		if err != nil {
			return AppliedState{}, err
		}
		if notif != nil {
			*notif = append(*notif, watch.Notification{
				Key:    cmd.Key,
				Prev:   dataOf(c.Prev),
				Result: dataOf(c.Result),
			})
		}
		return KVState(c), nil

	case CmdTransaction:
		reply, err := evalTxn(tx, sm.ks, cmd.Txn, now, notif)
		if err != nil {
			return AppliedState{}, err
		}
		sm.metrics.ObserveTxnBranch(reply.Success)
		return TxnState(reply), nil

	default:
		return AppErrorState(fmt.Sprintf("unknown command kind %d", cmd.Kind)), nil
	}
}

func dataOf(v *SeqV[[]byte]) []byte {
	if v == nil {
		return nil
	}
	return v.Data
}
