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

package kv

// Keyspace partitions one physical tree into a logical namespace by a
// fixed one-byte prefix, the way erigon-lib/kv/tables.go documents one
// key/value layout per named table. Each keyspace owns its own key and
// value encoding; batched operations across keyspaces still commit
// atomically because they all run inside the same RawTx.
type Keyspace[K any, V any] struct {
	Prefix      byte
	Name        string
	EncodeKey   func(K) []byte
	DecodeKey   func([]byte) (K, error)
	EncodeValue func(V) ([]byte, error)
	DecodeValue func([]byte) (V, error)
}

func (ks *Keyspace[K, V]) physicalKey(key K) []byte {
	enc := ks.EncodeKey(key)
	out := make([]byte, 1+len(enc))
	out[0] = ks.Prefix
	copy(out[1:], enc)
	return out
}

// Get returns the decoded value for key, and whether it was present.
func (ks *Keyspace[K, V]) Get(tx RawTx, key K) (V, bool, error) {
	var zero V
	raw, err := tx.Get(ks.physicalKey(key))
	if err != nil {
		return zero, false, err
	}
	if raw == nil {
		return zero, false, nil
	}
	v, err := ks.DecodeValue(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (ks *Keyspace[K, V]) Put(tx RawTx, key K, value V) error {
	raw, err := ks.EncodeValue(value)
	if err != nil {
		return err
	}
	return tx.Put(ks.physicalKey(key), raw)
}

func (ks *Keyspace[K, V]) Delete(tx RawTx, key K) error {
	return tx.Delete(ks.physicalKey(key))
}

// UpdateAndFetch reads the current value (existed is false and old is
// the zero value if absent), lets fn compute the replacement, writes it,
// and returns it. Used by the sequence allocator's read-increment-write.
func (ks *Keyspace[K, V]) UpdateAndFetch(tx RawTx, key K, fn func(old V, existed bool) (V, error)) (V, error) {
	var zero V
	old, existed, err := ks.Get(tx, key)
	if err != nil {
		return zero, err
	}
	next, err := fn(old, existed)
	if err != nil {
		return zero, err
	}
	if err := ks.Put(tx, key, next); err != nil {
		return zero, err
	}
	return next, nil
}

// Range visits every key/value pair in the keyspace in key order. fn
// returns false to stop early.
func (ks *Keyspace[K, V]) Range(tx RawTx, fn func(key K, value V) (bool, error)) error {
	prefix := []byte{ks.Prefix}
	var rangeErr error
	err := tx.ForEachPrefix(prefix, func(k, v []byte) error {
		key, err := ks.DecodeKey(k[1:])
		if err != nil {
			return err
		}
		value, err := ks.DecodeValue(v)
		if err != nil {
			return err
		}
		cont, err := fn(key, value)
		if err != nil {
			rangeErr = err
			return err
		}
		if !cont {
			return ErrStopIteration
		}
		return nil
	})
	if rangeErr != nil {
		return rangeErr
	}
	return err
}
