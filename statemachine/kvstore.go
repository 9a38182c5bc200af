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

import "github.com/erigontech/metasm/kv"

// getUnexpired reads key from the GenericKV keyspace and hides it if it
// is expired as of wall-clock second now. The expired record is left on
// disk untouched — this is a read-time filter only, never a mutation.
func getUnexpired(tx kv.RawTx, ks *keyspaces, key string, now uint64) (*SeqV[[]byte], error) {
	v, ok, err := ks.genericKV.Get(tx, key)
	if err != nil || !ok {
		return nil, err
	}
	if v.expiredAt(now) {
		return nil, nil
	}
	return &v, nil
}

// upsert is the central write primitive: evaluate matchSeq against the
// (expiry-filtered) current record, then apply op if it matched.
func upsert(tx kv.RawTx, ks *keyspaces, key string, matchSeq MatchSeq, op Operation, meta *KVMeta, now uint64) (Change[[]byte], error) {
	prev, err := getUnexpired(tx, ks, key, now)
	if err != nil {
		return Change[[]byte]{}, err
	}

	if !matchSeq.matches(prev) {
		return Change[[]byte]{Prev: prev, Result: prev}, nil
	}

	var result *SeqV[[]byte]
	switch op.Kind {
	case OpUpdate:
		seq, err := incrSeq(tx, ks.sequences, seqCounterName)
		if err != nil {
			return Change[[]byte]{}, err
		}
		v := SeqV[[]byte]{Seq: seq, Meta: meta, Data: op.Value}
		if err := ks.genericKV.Put(tx, key, v); err != nil {
			return Change[[]byte]{}, err
		}
		result = &v
	case OpDelete:
		if err := ks.genericKV.Delete(tx, key); err != nil {
			return Change[[]byte]{}, err
		}
		result = nil
	case OpAsIs:
		if prev == nil {
			result = nil
		} else {
			seq, err := incrSeq(tx, ks.sequences, seqCounterName)
			if err != nil {
				return Change[[]byte]{}, err
			}
			v := SeqV[[]byte]{Seq: seq, Meta: meta, Data: prev.Data}
			if err := ks.genericKV.Put(tx, key, v); err != nil {
				return Change[[]byte]{}, err
			}
			result = &v
		}
	}

	return Change[[]byte]{Prev: prev, Result: result}, nil
}
