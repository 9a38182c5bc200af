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

// Package config is the typed configuration every storage-opening call
// needs: where the physical tree lives and how it names itself. Loading
// these values from a file or flags is left to callers — this package
// only defines the struct and its defaults.
package config

import "fmt"

// Config mirrors the shape original_source's RaftConfig.tree_name /
// is_sync() give the state machine: a naming prefix shared by every
// tree the surrounding service opens, and a durability knob.
type Config struct {
	// TreePrefix namespaces this cluster's trees from any other cluster
	// sharing the same storage backend.
	TreePrefix string
	// StateMachineID distinguishes state machine instances under the
	// same prefix (multiple SMs are a surrounding-service concept; the
	// core just needs a stable name to open).
	StateMachineID uint64
	// Sync is the durability mode flag; Default() leaves it false. No
	// code in this module reads it: kv.OpenBolt does not take it, and
	// bbolt's default of an fsync on every commit applies either way.
	Sync bool
}

// Default returns a Config for state machine id 0 under prefix "metasm".
func Default() Config {
	return Config{TreePrefix: "metasm", StateMachineID: 0, Sync: false}
}

// TreeName is the physical tree name, "<prefix>/state_machine/<sm_id>".
func (c Config) TreeName() string {
	return fmt.Sprintf("%s/state_machine/%d", c.TreePrefix, c.StateMachineID)
}
