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

// Package kv is the storage engine abstraction: a keyed, ordered, durable
// byte store with batch transactions, and the keyspace router that
// partitions one physical tree into logical namespaces by key prefix.
//
// It plays the role erigon-lib/kv plays over MDBX, here over bbolt: one
// physical bucket per state-machine instance, sub-divided by a one-byte
// keyspace prefix the way erigon-lib/kv/tables.go sub-divides its tables
// by a documented key/value layout per constant.
package kv

import "errors"

// ErrStopIteration lets a Range callback end iteration early without
// surfacing an error to the caller.
var ErrStopIteration = errors.New("kv: stop iteration")

// RawTx is the byte-level view a transaction exposes to a Keyspace. It is
// intentionally minimal: keyspaces own all structure above raw bytes.
type RawTx interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// ForEachPrefix visits every key/value pair whose key starts with
	// prefix, in key order, stopping early if fn returns
	// ErrStopIteration.
	ForEachPrefix(prefix []byte, fn func(k, v []byte) error) error
}

// Storage is the engine abstraction: open/drop a named physical
// tree, iterate it in full for snapshotting, and run atomic batches
// against it. The RSM never observes a partially-applied batch: Txn
// either commits every write the closure made or none of them.
type Storage interface {
	// Txn runs fn inside a single atomic batch. A non-nil return from fn
	// aborts the batch; StorageError values of Kind AppError still abort
	// the underlying write but are returned to the caller verbatim so the
	// apply engine can turn them into AppliedState.AppError instead of a
	// storage-level failure.
	Txn(writable bool, fn func(tx RawTx) error) error

	// IterAll visits every key/value pair in the physical tree, in key
	// order, for snapshot export. It runs inside its own read
	// transaction.
	IterAll(fn func(k, v []byte) error) error

	// Drop removes the physical tree and recreates it empty, for
	// snapshot restore.
	Drop() error

	Close() error
}
