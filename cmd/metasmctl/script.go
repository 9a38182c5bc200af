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

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/erigontech/metasm/statemachine"
)

// scriptEntry is the on-disk shape of one entry in a replay script: a
// flat, human-writable stand-in for the LogEntry union the consensus
// layer would otherwise submit. toLogEntry translates it into the real
// command types statemachine.Apply expects.
type scriptEntry struct {
	Client string `json:"client,omitempty"`
	Serial uint64 `json:"serial,omitempty"`

	Op string `json:"op"`

	Key      string  `json:"key,omitempty"`
	Value    string  `json:"value,omitempty"`
	ExpireAt *uint64 `json:"expire_at,omitempty"`

	MatchSeq string `json:"match_seq,omitempty"` // "any" (default), "eq", "ge"
	SeqN     uint64 `json:"seq_n,omitempty"`

	SeqName string `json:"seq_name,omitempty"`

	NodeID       uint64            `json:"node_id,omitempty"`
	Name         string            `json:"name,omitempty"`
	RaftEndpoint string            `json:"raft_endpoint,omitempty"`
	RPCEndpoint  string            `json:"rpc_endpoint,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// readScript decodes a JSON array of objects, one per log entry, from
// r. Input that does not start with '[' (a bare sequence of objects or
// JSON Lines, for example) is rejected.
func readScript(r io.Reader) ([]scriptEntry, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("script must be a JSON array of entries")
	}

	var entries []scriptEntry
	for dec.More() {
		var e scriptEntry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("decoding entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func matchSeqFromScript(kind string, n uint64) statemachine.MatchSeq {
	switch kind {
	case "eq":
		return statemachine.EqSeq(n)
	case "ge":
		return statemachine.GESeq(n)
	default:
		return statemachine.AnySeq()
	}
}

// toLogEntry builds the Cmd this scriptEntry describes. Only mutating
// ops are recognised; any other op (such as "get" or "snapshot") is
// returned as an "unknown op" error.
func (e scriptEntry) toLogEntry() (statemachine.LogEntry, error) {
	var cmd statemachine.Cmd
	switch e.Op {
	case "put":
		var meta *statemachine.KVMeta
		if e.ExpireAt != nil {
			meta = &statemachine.KVMeta{ExpireAt: e.ExpireAt}
		}
		cmd = statemachine.UpsertKVCmd(e.Key, matchSeqFromScript(e.MatchSeq, e.SeqN), statemachine.UpdateOp([]byte(e.Value)), meta)
	case "delete":
		cmd = statemachine.UpsertKVCmd(e.Key, matchSeqFromScript(e.MatchSeq, e.SeqN), statemachine.DeleteOp(), nil)
	case "incr_seq":
		cmd = statemachine.IncrSeqCmd(e.SeqName)
	case "add_node":
		cmd = statemachine.AddNodeCmd(statemachine.NodeId(e.NodeID), statemachine.Node{
			Name:         e.Name,
			RaftEndpoint: e.RaftEndpoint,
			RPCEndpoint:  e.RPCEndpoint,
			Attributes:   e.Attributes,
		})
	case "remove_node":
		cmd = statemachine.RemoveNodeCmd(statemachine.NodeId(e.NodeID))
	default:
		return statemachine.LogEntry{}, fmt.Errorf("unknown op %q", e.Op)
	}

	entry := statemachine.LogEntry{Cmd: cmd}
	if e.Client != "" {
		entry.TxId = &statemachine.TxId{Client: e.Client, Serial: e.Serial}
	}
	return entry, nil
}
