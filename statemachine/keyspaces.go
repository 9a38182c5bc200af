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
	"fmt"

	"github.com/erigontech/metasm/kv"
)

// Keyspace prefixes, one fixed byte per logical tree sharing the
// physical store.
const (
	prefixSequences        = 0x01
	prefixStateMachineMeta = 0x02
	prefixNodes            = 0x03
	prefixGenericKV        = 0x04
	prefixClientLastResps  = 0x05
)

// seqCounterName is the single sequence counter every GenericKV mutation
// consumes a tick from.
const seqCounterName = "generic-kv"

func stringKeyCodec() (func(string) []byte, func([]byte) (string, error)) {
	return func(s string) []byte { return []byte(s) },
		func(b []byte) (string, error) { return string(b), nil }
}

func u64BEKeyCodec[T ~uint64]() (func(T) []byte, func([]byte) (T, error)) {
	enc := func(v T) []byte {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v))
		return b
	}
	dec := func(b []byte) (T, error) {
		if len(b) != 8 {
			return 0, fmt.Errorf("keyspace: want 8-byte key, got %d", len(b))
		}
		return T(binary.BigEndian.Uint64(b)), nil
	}
	return enc, dec
}

func u64Value() (func(uint64) ([]byte, error), func([]byte) (uint64, error)) {
	enc := func(v uint64) ([]byte, error) {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, v)
		return b, nil
	}
	dec := func(b []byte) (uint64, error) {
		if len(b) != 8 {
			return 0, fmt.Errorf("keyspace: want 8-byte value, got %d", len(b))
		}
		return binary.BigEndian.Uint64(b), nil
	}
	return enc, dec
}

func jsonValue[V any]() (func(V) ([]byte, error), func([]byte) (V, error)) {
	enc := func(v V) ([]byte, error) { return json.Marshal(v) }
	dec := func(b []byte) (V, error) {
		var v V
		err := json.Unmarshal(b, &v)
		return v, err
	}
	return enc, dec
}

// rawBytesValue is the identity codec, used for StateMachineMeta whose
// entries carry heterogeneous payloads that the caller encodes itself.
func rawBytesValue() (func([]byte) ([]byte, error), func([]byte) ([]byte, error)) {
	id := func(b []byte) ([]byte, error) { return b, nil }
	return id, id
}

func encodeSeqV(v SeqV[[]byte]) ([]byte, error) {
	hasExpire := byte(0)
	var expireAt uint64
	if v.Meta != nil && v.Meta.ExpireAt != nil {
		hasExpire = 1
		expireAt = *v.Meta.ExpireAt
	}
	buf := make([]byte, 8+1, 9+8+len(v.Data))
	binary.BigEndian.PutUint64(buf[0:8], v.Seq)
	buf[8] = hasExpire
	if hasExpire == 1 {
		exp := make([]byte, 8)
		binary.BigEndian.PutUint64(exp, expireAt)
		buf = append(buf, exp...)
	}
	buf = append(buf, v.Data...)
	return buf, nil
}

func decodeSeqV(b []byte) (SeqV[[]byte], error) {
	if len(b) < 9 {
		return SeqV[[]byte]{}, fmt.Errorf("statemachine: seqv encoding too short (%d bytes)", len(b))
	}
	seq := binary.BigEndian.Uint64(b[0:8])
	hasExpire := b[8]
	rest := b[9:]
	var meta *KVMeta
	if hasExpire == 1 {
		if len(rest) < 8 {
			return SeqV[[]byte]{}, fmt.Errorf("statemachine: seqv missing expire_at")
		}
		exp := binary.BigEndian.Uint64(rest[0:8])
		meta = &KVMeta{ExpireAt: &exp}
		rest = rest[8:]
	}
	data := append([]byte(nil), rest...)
	return SeqV[[]byte]{Seq: seq, Meta: meta, Data: data}, nil
}

// keyspaces bundles the five keyspace routers a StateMachine dispatches
// through; each owns its own key/value encoding over the one physical
// tree (kv.Storage), the way erigon-lib/kv/tables.go documents one
// key/value layout per table constant.
type keyspaces struct {
	sequences       *kv.Keyspace[string, uint64]
	meta            *kv.Keyspace[byte, []byte]
	nodes           *kv.Keyspace[NodeId, Node]
	genericKV       *kv.Keyspace[string, SeqV[[]byte]]
	clientLastResps *kv.Keyspace[string, ClientLastResp]
}

func newKeyspaces() *keyspaces {
	strEnc, strDec := stringKeyCodec()
	nodeKeyEnc, nodeKeyDec := u64BEKeyCodec[NodeId]()
	u64Enc, u64Dec := u64Value()
	rawEnc, rawDec := rawBytesValue()
	nodeValEnc, nodeValDec := jsonValue[Node]()
	clientValEnc, clientValDec := jsonValue[ClientLastResp]()

	return &keyspaces{
		sequences: &kv.Keyspace[string, uint64]{
			Prefix: prefixSequences, Name: "sequences",
			EncodeKey: strEnc, DecodeKey: strDec,
			EncodeValue: u64Enc, DecodeValue: u64Dec,
		},
		meta: &kv.Keyspace[byte, []byte]{
			Prefix: prefixStateMachineMeta, Name: "state_machine_meta",
			EncodeKey:   func(tag byte) []byte { return []byte{tag} },
			DecodeKey:   func(b []byte) (byte, error) { return b[0], nil },
			EncodeValue: rawEnc, DecodeValue: rawDec,
		},
		nodes: &kv.Keyspace[NodeId, Node]{
			Prefix: prefixNodes, Name: "nodes",
			EncodeKey: nodeKeyEnc, DecodeKey: nodeKeyDec,
			EncodeValue: nodeValEnc, DecodeValue: nodeValDec,
		},
		genericKV: &kv.Keyspace[string, SeqV[[]byte]]{
			Prefix: prefixGenericKV, Name: "generic_kv",
			EncodeKey: strEnc, DecodeKey: strDec,
			EncodeValue: encodeSeqV, DecodeValue: decodeSeqV,
		},
		clientLastResps: &kv.Keyspace[string, ClientLastResp]{
			Prefix: prefixClientLastResps, Name: "client_last_resps",
			EncodeKey: strEnc, DecodeKey: strDec,
			EncodeValue: clientValEnc, DecodeValue: clientValDec,
		},
	}
}
