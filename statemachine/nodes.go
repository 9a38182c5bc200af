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

// addNode is idempotent: re-adding an existing id is a no-op that
// reports Result == nil to signal "not inserted".
func addNode(tx kv.RawTx, ks *keyspaces, id NodeId, n Node) (Change[Node], error) {
	prev, ok, err := ks.nodes.Get(tx, id)
	if err != nil {
		return Change[Node]{}, err
	}
	if ok {
		return Change[Node]{Prev: &prev, Result: nil}, nil
	}
	if err := ks.nodes.Put(tx, id, n); err != nil {
		return Change[Node]{}, err
	}
	return Change[Node]{Prev: nil, Result: &n}, nil
}

func removeNode(tx kv.RawTx, ks *keyspaces, id NodeId) (Change[Node], error) {
	prev, ok, err := ks.nodes.Get(tx, id)
	if err != nil {
		return Change[Node]{}, err
	}
	if !ok {
		return Change[Node]{}, nil
	}
	if err := ks.nodes.Delete(tx, id); err != nil {
		return Change[Node]{}, err
	}
	return Change[Node]{Prev: &prev, Result: nil}, nil
}
