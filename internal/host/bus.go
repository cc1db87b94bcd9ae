// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package host

import (
	"log/slog"
	"slices"
	"sync"
)

type subscription[P any] struct {
	id uint64
	fn func(P)
}

// bus distributes final pipeline values to subscribers. Subscribers are
// called synchronously, in subscription order, on the emitting goroutine.
type bus[P any] struct {
	mu     sync.RWMutex
	next   uint64
	subs   []subscription[P]
	kind   string
	logger *slog.Logger
}

// subscribe registers fn and returns a function that removes it again.
// Calling the returned function more than once is harmless.
func (b *bus[P]) subscribe(fn func(P)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.subs = append(b.subs, subscription[P]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *bus[P]) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = slices.DeleteFunc(b.subs, func(s subscription[P]) bool {
		return s.id == id
	})
}

// emit calls every subscriber with v and reports whether there was at
// least one. The subscriber list is snapshotted, so a subscriber may
// subscribe or cancel from inside its callback.
func (b *bus[P]) emit(v P) bool {
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, v)
	}
	return len(subs) > 0
}

func (b *bus[P]) deliver(s subscription[P], v P) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.logger.Error("listener panicked",
				"kind", b.kind,
				"subscription", s.id,
				"panic", recovered,
			)
		}
	}()
	s.fn(v)
}

func (b *bus[P]) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
