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

// Package watch is the watcher subscriber bus: a small registry of sinks
// receiving (key, prev, result) notifications after a batch commits.
// Delivery runs on a separate goroutine per notification via
// golang.org/x/sync/errgroup so a slow subscriber never blocks apply;
// losing a notification violates no invariant (best-effort).
package watch

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/btree"
	"golang.org/x/sync/errgroup"
)

// Notification is one kv_changed event: key's value went from Prev to
// Result inside a committed batch. Both may be nil (e.g. Prev nil means
// the key didn't previously exist; Result nil means it was deleted).
type Notification struct {
	Key    string
	Prev   []byte
	Result []byte
}

// Bus fans a Notify out to every currently-subscribed sink, plus any
// sink subscribed to a prefix of the notified key. The zero value is
// ready to use.
type Bus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]chan<- Notification

	// prefixSubs is keyed by the watched prefix and ordered so Notify can
	// stop scanning as soon as it passes every prefix the key could
	// possibly match — a plain map would need a full scan every time.
	prefixSubs btree.Map[string, map[uuid.UUID]chan<- Notification]
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uuid.UUID]chan<- Notification)}
}

// Subscribe registers ch to receive future notifications and returns a
// handle to later Unsubscribe it. ch should be buffered; a full channel
// causes that subscriber's notification to be dropped rather than
// blocking the sender.
func (b *Bus) Subscribe(ch chan<- Notification) uuid.UUID {
	id := uuid.New()
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[uuid.UUID]chan<- Notification)
	}
	b.subs[id] = ch
	b.mu.Unlock()
	return id
}

func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// SubscribePrefix registers ch to receive notifications for any key
// starting with prefix (an empty prefix matches every key, like
// Subscribe). Returns a handle for UnsubscribePrefix.
func (b *Bus) SubscribePrefix(prefix string, ch chan<- Notification) uuid.UUID {
	id := uuid.New()
	b.mu.Lock()
	subs, ok := b.prefixSubs.Get(prefix)
	if !ok {
		subs = make(map[uuid.UUID]chan<- Notification)
	}
	subs[id] = ch
	b.prefixSubs.Set(prefix, subs)
	b.mu.Unlock()
	return id
}

func (b *Bus) UnsubscribePrefix(prefix string, id uuid.UUID) {
	b.mu.Lock()
	if subs, ok := b.prefixSubs.Get(prefix); ok {
		delete(subs, id)
		if len(subs) == 0 {
			b.prefixSubs.Delete(prefix)
		} else {
			b.prefixSubs.Set(prefix, subs)
		}
	}
	b.mu.Unlock()
}

// Notify dispatches n to every subscriber concurrently and returns once
// all deliveries have been attempted. A full subscriber channel never
// blocks the sender — its notification is simply dropped.
func (b *Bus) Notify(n Notification) {
	if b == nil {
		return
	}
	b.mu.RLock()
	sinks := make([]chan<- Notification, 0, len(b.subs))
	for _, ch := range b.subs {
		sinks = append(sinks, ch)
	}
	b.prefixSubs.Ascend("", func(prefix string, subs map[uuid.UUID]chan<- Notification) bool {
		if prefix > n.Key {
			return false
		}
		if strings.HasPrefix(n.Key, prefix) {
			for _, ch := range subs {
				sinks = append(sinks, ch)
			}
		}
		return true
	})
	b.mu.RUnlock()
	if len(sinks) == 0 {
		return
	}

	var g errgroup.Group
	for _, ch := range sinks {
		ch := ch
		g.Go(func() error {
			select {
			case ch <- n:
			default:
				// subscriber is behind; drop rather than block.
			}
			return nil
		})
	}
	_ = g.Wait()
}
