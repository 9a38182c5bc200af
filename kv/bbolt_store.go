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
	"bytes"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// BoltStorage implements Storage over a single bbolt bucket, named after
// the logical tree ("<config-prefix>/state_machine/<sm_id>"). bbolt gives
// an ordered, durable, batch-transactional byte store without the cgo
// dependency MDBX would bring.
type BoltStorage struct {
	db         *bolt.DB
	bucketName []byte
	log        *zap.Logger
}

// OpenBolt opens (creating if absent) the bbolt file at path and ensures
// bucketName exists.
func OpenBolt(path string, bucketName string, log *zap.Logger) (*BoltStorage, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, NewIOError("open bbolt file", err)
	}
	name := []byte(bucketName)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, NewIOError("create bucket", err)
	}
	log.Info("opened storage tree", zap.String("bucket", bucketName))
	return &BoltStorage{db: db, bucketName: name, log: log}, nil
}

func (s *BoltStorage) Txn(writable bool, fn func(tx RawTx) error) error {
	run := func(btx *bolt.Tx) error {
		b := btx.Bucket(s.bucketName)
		if b == nil {
			return NewCorruptionError("missing state machine bucket")
		}
		return fn(&boltRawTx{b: b})
	}
	var err error
	if writable {
		err = s.db.Update(run)
	} else {
		err = s.db.View(run)
	}
	if err == nil {
		return nil
	}
	if cause, ok := IsAppError(err); ok {
		return NewAppError(cause)
	}
	var se *StorageError
	if errors.As(err, &se) {
		return se
	}
	return NewIOError("txn", err)
}

func (s *BoltStorage) IterAll(fn func(k, v []byte) error) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucketName)
		if b == nil {
			return NewCorruptionError("missing state machine bucket")
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := fn(append([]byte(nil), k...), append([]byte(nil), v...)); err != nil {
				if errors.Is(err, ErrStopIteration) {
					return nil
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return NewIOError("iterate", err)
	}
	return nil
}

func (s *BoltStorage) Drop() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(s.bucketName) != nil {
			if err := tx.DeleteBucket(s.bucketName); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket(s.bucketName)
		return err
	})
	if err != nil {
		return NewIOError("drop", err)
	}
	return nil
}

func (s *BoltStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return NewIOError("close", err)
	}
	return nil
}

type boltRawTx struct {
	b *bolt.Bucket
}

func (t *boltRawTx) Get(key []byte) ([]byte, error) {
	v := t.b.Get(key)
	if v == nil {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (t *boltRawTx) Put(key, value []byte) error {
	return t.b.Put(key, value)
}

func (t *boltRawTx) Delete(key []byte) error {
	return t.b.Delete(key)
}

func (t *boltRawTx) ForEachPrefix(prefix []byte, fn func(k, v []byte) error) error {
	c := t.b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			if errors.Is(err, ErrStopIteration) {
				return nil
			}
			return err
		}
	}
	return nil
}
