// Copyright 2025 samber.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://github.com/samber/ro/blob/main/licenses/LICENSE.apache.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rstream

import "sync"

// chunkedQueue is the Unbounded strategy's growable substrate: a linked
// list of fixed-size array chunks. The tail chunk is appended to (never
// resized) when it fills, so growth never invalidates indices a concurrent
// reader may be holding. Exhausted head chunks are returned to a pool.
//
// Safe for any ChannelType: all access is serialized by a single mutex.
// Unbounded buffering is already unbounded memory; trading lock-freedom for
// simplicity here is the cheaper axis to compromise on.
type chunkedQueue[T any] struct {
	mu        sync.Mutex
	chunkSize int
	pool      sync.Pool

	head      *queueChunk[T]
	headIndex int
	tail      *queueChunk[T]
	size      int
}

type queueChunk[T any] struct {
	items []T
	next  *queueChunk[T]
}

func newChunkedQueue[T any](chunkSize int) *chunkedQueue[T] {
	chunkSize = nextPowerOfTwo(chunkSize)

	q := &chunkedQueue[T]{chunkSize: chunkSize}
	q.pool.New = func() any {
		return &queueChunk[T]{items: make([]T, 0, chunkSize)}
	}

	first := q.newChunk()
	q.head = first
	q.tail = first
	return q
}

func (q *chunkedQueue[T]) newChunk() *queueChunk[T] {
	c := q.pool.Get().(*queueChunk[T])
	c.items = c.items[:0]
	c.next = nil
	return c
}

func (q *chunkedQueue[T]) Cap() int { return 0 }

func (q *chunkedQueue[T]) Offer(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tail.items) == cap(q.tail.items) {
		next := q.newChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.items = append(q.tail.items, v)
	q.size++
	return true
}

func (q *chunkedQueue[T]) Poll() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pollLocked()
}

func (q *chunkedQueue[T]) pollLocked() (T, bool) {
	var zero T
	if q.headIndex >= len(q.head.items) {
		if q.head == q.tail {
			return zero, false
		}
		exhausted := q.head
		q.head = q.head.next
		q.headIndex = 0
		exhausted.next = nil
		q.pool.Put(exhausted)
		if q.headIndex >= len(q.head.items) {
			return zero, false
		}
	}

	v := q.head.items[q.headIndex]
	q.head.items[q.headIndex] = zero
	q.headIndex++
	q.size--
	return v, true
}

func (q *chunkedQueue[T]) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size == 0
}

func (q *chunkedQueue[T]) DrainTo(buf []T, limit int) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for n < limit && n < len(buf) {
		v, ok := q.pollLocked()
		if !ok {
			break
		}
		buf[n] = v
		n++
	}
	return n
}

func (q *chunkedQueue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.size
	first := q.newChunk()
	q.head = first
	q.tail = first
	q.headIndex = 0
	q.size = 0
	return n
}

// FenceOffer and FencePoll are no-ops: the mutex already provides the
// needed ordering.
func (q *chunkedQueue[T]) FenceOffer() {}
func (q *chunkedQueue[T]) FencePoll() {}

var _ Queue[int] = (*chunkedQueue[int])(nil)
