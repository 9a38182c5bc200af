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
	"github.com/erigontech/metasm/kv"
	"github.com/erigontech/metasm/watch"
)

func evalCond(tx kv.RawTx, ks *keyspaces, cond Cond, now uint64) (bool, error) {
	sv, err := getUnexpired(tx, ks, cond.Key, now)
	if err != nil {
		return false, err
	}

	switch cond.TargetKind {
	case TargetSeq:
		seq := uint64(0)
		if sv != nil {
			seq = sv.Seq
		}
		return evalCmp(cond.Expected, seq, cond.TargetSeq), nil
	case TargetValue:
		if sv == nil {
			return false, nil
		}
		return evalBytesCmp(cond.Expected, sv.Data, cond.TargetValue), nil
	default:
		return false, nil
	}
}

func evalCondition(tx kv.RawTx, ks *keyspaces, conds []Cond, now uint64) (bool, error) {
	for _, c := range conds {
		ok, err := evalCond(tx, ks, c, now)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// execTxnOp runs one Op against the GenericKV store. Transactional
// puts/deletes always use MatchSeq::Any — they do not honour seq
// preconditions, the condition block already gated the branch.
func execTxnOp(tx kv.RawTx, ks *keyspaces, op TxnOp, now uint64, notif *[]watch.Notification) (TxnOpResponse, error) {
	switch op.Kind {
	case TxnOpGet:
		sv, err := getUnexpired(tx, ks, op.Key, now)
		if err != nil {
			return TxnOpResponse{}, err
		}
		return TxnOpResponse{Kind: TxnOpGet, Key: op.Key, GetValue: sv}, nil

	case TxnOpPut:
		change, err := upsert(tx, ks, op.Key, AnySeq(), UpdateOp(op.Value), nil, now)
		if err != nil {
			return TxnOpResponse{}, err
		}
		if notif != nil {
			*notif = append(*notif, watch.Notification{Key: op.Key, Prev: dataOf(change.Prev), Result: dataOf(change.Result)})
		}
		resp := TxnOpResponse{Kind: TxnOpPut, Key: op.Key}
		if op.ReturnPrev {
			resp.PutPrevValue = change.Prev
		}
		return resp, nil

	case TxnOpDelete:
		change, err := upsert(tx, ks, op.Key, AnySeq(), DeleteOp(), nil, now)
		if err != nil {
			return TxnOpResponse{}, err
		}
		if notif != nil && change.Prev != nil {
			*notif = append(*notif, watch.Notification{Key: op.Key, Prev: dataOf(change.Prev), Result: nil})
		}
		resp := TxnOpResponse{Kind: TxnOpDelete, Key: op.Key, DeleteSuccess: change.Prev != nil}
		if op.ReturnPrev {
			resp.DeletePrevValue = change.Prev
		}
		return resp, nil

	default:
		return TxnOpResponse{}, nil
	}
}

// evalTxn evaluates the condition block, picks the branch, runs its ops
// in order inside the same batch, and replies with which branch ran.
// success reflects branch selection only, never per-op outcome.
func evalTxn(tx kv.RawTx, ks *keyspaces, req TxnRequest, now uint64, notif *[]watch.Notification) (TxnReply, error) {
	success, err := evalCondition(tx, ks, req.Condition, now)
	if err != nil {
		return TxnReply{}, err
	}

	ops := req.ElseThen
	if success {
		ops = req.IfThen
	}

	reply := TxnReply{Success: success, Responses: make([]TxnOpResponse, 0, len(ops))}
	for _, op := range ops {
		resp, err := execTxnOp(tx, ks, op, now, notif)
		if err != nil {
			return TxnReply{}, err
		}
		reply.Responses = append(reply.Responses, resp)
	}
	return reply, nil
}
