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

	"github.com/erigontech/metasm/internal/numeric"
	"github.com/erigontech/metasm/kv"
)

// incrSeq atomically reads the prior value of counter name (0 if absent),
// writes value+1, and returns value+1. Counters are dense, never reset,
// and never decrement.
func incrSeq(tx kv.RawTx, ks *kv.Keyspace[string, uint64], name string) (uint64, error) {
	next, err := ks.UpdateAndFetch(tx, name, func(old uint64, existed bool) (uint64, error) {
		sum, overflow := numeric.SafeAdd(old, 1)
		if overflow {
			// Sequence exhaustion is fatal; it is not a condition the
			// core is required to recover from.
			panic(fmt.Sprintf("statemachine: sequence counter %q exhausted uint64 range", name))
		}
		return sum, nil
	})
	return next, err
}
