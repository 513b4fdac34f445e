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

import (
	"context"

	"github.com/flowcore/rstream/internal/xsync"
)

// ConcurrencyMode selects the locking discipline BufferedSync uses to
// serialize producer calls. It mirrors the teacher library's notion of a
// caller-asserted concurrency contract rather than always paying for a
// real mutex.
type ConcurrencyMode uint8

const (
	// Safe assumes producers may call concurrently from multiple
	// goroutines; calls are serialized by a real mutex.
	Safe ConcurrencyMode = iota
	// SingleProducer asserts the caller never calls from more than one
	// goroutine at a time, so the serialization lock becomes a no-op.
	// Passing this when the assertion doesn't hold is a data race.
	SingleProducer
)

// BufferedSync is the lock-protected fast path for downstream Observers
// that are known to always resolve their Ack synchronously: it serializes
// producers with a mutex instead of the atomic handshake and Trampoline
// that Buffered needs, and never returns a pending Ack of its own. If the
// downstream breaks that promise and does return a pending Ack, BufferedSync
// panics with a ProtocolError rather than silently losing the
// notification.
func BufferedSync[T any](downstream Observer[T], strategy OverflowStrategy[T], mode ...ConcurrencyMode) Observer[T] {
	m := Safe
	if len(mode) > 0 {
		m = mode[0]
	}

	var q Queue[T]
	if strategy.Kind() == OverflowUnbounded {
		q = NewUnboundedQueue[T](DefaultConfig().RecommendedBufferChunkSize)
	} else {
		q = NewQueue[T](strategy.Capacity(), MPSC)
	}

	var mu xsync.Mutex
	if m == SingleProducer {
		mu = xsync.NewMutexWithoutLock()
	} else {
		mu = xsync.NewMutexWithLock()
	}

	return &bufferedSyncSubscriber[T]{
		mu:         mu,
		downstream: downstream,
		strategy:   strategy,
		queue:      q,
	}
}

type bufferedSyncSubscriber[T any] struct {
	mu xsync.Mutex

	downstream Observer[T]
	strategy   OverflowStrategy[T]
	queue      Queue[T]

	upstreamIsComplete bool
	downstreamIsDone   bool
	errorThrown        error
	droppedCount       int
}

var _ Observer[int] = (*bufferedSyncSubscriber[int])(nil)

func (s *bufferedSyncSubscriber[T]) Next(value T) Ack {
	return s.NextWithContext(context.Background(), value)
}

func (s *bufferedSyncSubscriber[T]) NextWithContext(_ context.Context, value T) Ack {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.upstreamIsComplete || s.downstreamIsDone {
		return Stop
	}

	if !s.queue.Offer(value) {
		switch s.strategy.Kind() {
		case OverflowFail:
			s.errorThrown = &BufferOverflowError{Capacity: s.strategy.Capacity()}
			s.upstreamIsComplete = true
			return s.drainLocked()
		case OverflowBackPressure:
			panic(&ProtocolError{Message: "buffered.sync: BackPressure overflowed; a synchronous downstream cannot be throttled without blocking, use Buffered instead"})
		case OverflowDropNew, OverflowDropNewAndSignal:
			s.droppedCount++
		case OverflowDropOld, OverflowDropOldAndSignal:
			s.queue.Poll()
			s.droppedCount++
			s.queue.Offer(value)
		case OverflowClearBuffer, OverflowClearBufferAndSignal:
			s.droppedCount += s.queue.Clear()
			s.queue.Offer(value)
		}
	}

	return s.drainLocked()
}

// drainLocked processes every currently queued item (plus any pending
// drop-signal) synchronously, returning the Ack from the last thing it
// delivered — or Continue if the queue emptied out without a terminal.
// Caller must hold s.mu.
func (s *bufferedSyncSubscriber[T]) drainLocked() Ack {
	for {
		if s.droppedCount > 0 && s.strategy.HasSignal() {
			dropped := s.droppedCount
			s.droppedCount = 0
			if ack, stop := s.deliverLocked(s.strategy.Signal(dropped)); stop {
				return ack
			}
			continue
		}

		item, ok := s.queue.Poll()
		if !ok {
			if s.upstreamIsComplete && s.queue.IsEmpty() {
				if s.errorThrown != nil {
					s.downstream.Error(s.errorThrown)
				} else {
					s.downstream.Complete()
				}
				s.downstreamIsDone = true
				return Stop
			}
			return Continue
		}

		if ack, stop := s.deliverLocked(item); stop {
			return ack
		}
	}
}

func (s *bufferedSyncSubscriber[T]) deliverLocked(v T) (Ack, bool) {
	ack := s.downstream.Next(v)
	if ack.IsPending() {
		panic(&ProtocolError{Message: "buffered.sync: downstream returned a pending Ack, violating the synchronous contract"})
	}
	val, _ := ack.Value()
	if val == AckStop {
		s.downstreamIsDone = true
		return Stop, true
	}
	return Continue, false
}

func (s *bufferedSyncSubscriber[T]) Error(err error) {
	s.ErrorWithContext(context.Background(), err)
}

func (s *bufferedSyncSubscriber[T]) ErrorWithContext(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upstreamIsComplete {
		return
	}
	s.errorThrown = err
	s.upstreamIsComplete = true
	s.drainLocked()
}

func (s *bufferedSyncSubscriber[T]) Complete() {
	s.CompleteWithContext(context.Background())
}

func (s *bufferedSyncSubscriber[T]) CompleteWithContext(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upstreamIsComplete {
		return
	}
	s.upstreamIsComplete = true
	s.drainLocked()
}

func (s *bufferedSyncSubscriber[T]) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downstreamIsDone || s.upstreamIsComplete
}

func (s *bufferedSyncSubscriber[T]) HasThrown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorThrown != nil
}

func (s *bufferedSyncSubscriber[T]) IsCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstreamIsComplete && s.errorThrown == nil
}
