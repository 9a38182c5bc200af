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
	"encoding/binary"
	"encoding/json"

	"github.com/erigontech/metasm/kv"
)

// StateMachineMeta tags for the singleton meta records.
const (
	metaInitialized    byte = 1
	metaLastApplied    byte = 2
	metaLastMembership byte = 3
)

func encodeLogId(id LogId) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], id.Term)
	binary.BigEndian.PutUint64(b[8:16], id.Index)
	return b
}

func decodeLogId(b []byte) LogId {
	return LogId{Term: binary.BigEndian.Uint64(b[0:8]), Index: binary.BigEndian.Uint64(b[8:16])}
}

func getInitialized(tx kv.RawTx, ks *kv.Keyspace[byte, []byte]) (bool, error) {
	_, ok, err := ks.Get(tx, metaInitialized)
	return ok, err
}

func setInitialized(tx kv.RawTx, ks *kv.Keyspace[byte, []byte]) error {
	return ks.Put(tx, metaInitialized, []byte{1})
}

func getLastApplied(tx kv.RawTx, ks *kv.Keyspace[byte, []byte]) (*LogId, error) {
	raw, ok, err := ks.Get(tx, metaLastApplied)
	if err != nil || !ok {
		return nil, err
	}
	id := decodeLogId(raw)
	return &id, nil
}

func setLastApplied(tx kv.RawTx, ks *kv.Keyspace[byte, []byte], id LogId) error {
	return ks.Put(tx, metaLastApplied, encodeLogId(id))
}

func getLastMembership(tx kv.RawTx, ks *kv.Keyspace[byte, []byte]) (*Membership, error) {
	raw, ok, err := ks.Get(tx, metaLastMembership)
	if err != nil || !ok {
		return nil, err
	}
	var m Membership
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func setLastMembership(tx kv.RawTx, ks *kv.Keyspace[byte, []byte], m Membership) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return ks.Put(tx, metaLastMembership, raw)
}
