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

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStorage(t *testing.T) *BoltStorage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenBolt(path, "state_machine", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltStoragePutGetDelete(t *testing.T) {
	s := openTestStorage(t)

	err := s.Txn(true, func(tx RawTx) error {
		return tx.Put([]byte("a"), []byte("1"))
	})
	require.NoError(t, err)

	var got []byte
	err = s.Txn(false, func(tx RawTx) error {
		v, err := tx.Get([]byte("a"))
		got = v
		return err
	})
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	err = s.Txn(true, func(tx RawTx) error {
		return tx.Delete([]byte("a"))
	})
	require.NoError(t, err)

	err = s.Txn(false, func(tx RawTx) error {
		v, err := tx.Get([]byte("a"))
		got = v
		return err
	})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestBoltStorageTxnRollsBackOnError(t *testing.T) {
	s := openTestStorage(t)

	boom := errors.New("boom")
	err := s.Txn(true, func(tx RawTx) error {
		if err := tx.Put([]byte("k"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	require.Error(t, err)

	var got []byte
	err = s.Txn(false, func(tx RawTx) error {
		v, err := tx.Get([]byte("k"))
		got = v
		return err
	})
	require.NoError(t, err)
	require.Nil(t, got, "a batch that errors must not leave partial writes visible")
}

func TestBoltStorageAppErrorPassesThroughUnconverted(t *testing.T) {
	s := openTestStorage(t)

	cause := errors.New("application rule violated")
	err := s.Txn(true, func(tx RawTx) error {
		return NewAppError(cause)
	})
	require.Error(t, err)
	got, ok := IsAppError(err)
	require.True(t, ok)
	require.Equal(t, cause, got)
}

func TestBoltStorageForEachPrefix(t *testing.T) {
	s := openTestStorage(t)

	err := s.Txn(true, func(tx RawTx) error {
		for _, k := range []string{"\x01a", "\x01b", "\x02a"} {
			if err := tx.Put([]byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var seen []string
	err = s.Txn(false, func(tx RawTx) error {
		return tx.ForEachPrefix([]byte("\x01"), func(k, v []byte) error {
			seen = append(seen, string(k))
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, []string{"\x01a", "\x01b"}, seen)
}

func TestBoltStorageForEachPrefixStopsEarly(t *testing.T) {
	s := openTestStorage(t)

	err := s.Txn(true, func(tx RawTx) error {
		for _, k := range []string{"\x01a", "\x01b", "\x01c"} {
			if err := tx.Put([]byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var seen []string
	err = s.Txn(false, func(tx RawTx) error {
		return tx.ForEachPrefix([]byte("\x01"), func(k, v []byte) error {
			seen = append(seen, string(k))
			return ErrStopIteration
		})
	})
	require.NoError(t, err)
	require.Equal(t, []string{"\x01a"}, seen)
}

func TestBoltStorageDropClearsEverything(t *testing.T) {
	s := openTestStorage(t)

	require.NoError(t, s.Txn(true, func(tx RawTx) error {
		return tx.Put([]byte("a"), []byte("1"))
	}))
	require.NoError(t, s.Drop())

	var pairs int
	require.NoError(t, s.IterAll(func(k, v []byte) error {
		pairs++
		return nil
	}))
	require.Zero(t, pairs)
}

func TestBoltStorageIterAllVisitsEveryKeyInOrder(t *testing.T) {
	s := openTestStorage(t)

	keys := []string{"\x01a", "\x01b", "\x02a", "\x02z"}
	require.NoError(t, s.Txn(true, func(tx RawTx) error {
		for _, k := range keys {
			if err := tx.Put([]byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	}))

	var seen []string
	require.NoError(t, s.IterAll(func(k, v []byte) error {
		seen = append(seen, string(k))
		return nil
	}))
	require.Equal(t, keys, seen)
}
