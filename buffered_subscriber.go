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
	"sync"
	"sync/atomic"
)

// errorBox carries the pending terminal error in an atomic.Value slot.
// atomic.Value requires every Store to use one consistent concrete type,
// which a bare `error` interface can't guarantee across call sites, so the
// box normalizes it to a single struct type.
type errorBox struct{ err error }

// backpressureWaiter is a producer call parked on BackPressure overflow:
// its value hasn't been enqueued yet, and resolve settles the Ack returned
// to that specific caller. Using one waiter per caller (rather than the
// single shared slot the source permits) avoids the stale-ack race noted
// as an open question: see DESIGN.md.
type backpressureWaiter[T any] struct {
	value   T
	resolve func(AckValue)
}

// Buffered linearizes concurrent producer calls into downstream's serial
// Observer contract, buffering under strategy and draining through a
// Trampoline scheduled on executor. This is the asynchronous path: safe
// for any downstream, including one that returns pending Acks.
//
// An optional Cancelable links the subscriber's lifecycle to an external
// resource: when Config.AutoCancelableRunLoops is set (the default), the
// two become mutually idempotent — canceling it abandons the drain loop
// exactly like a downstream Stop would, and the drain loop reaching a
// terminal state cancels it in turn, so whichever side finishes first
// tears down the other.
func Buffered[T any](downstream Observer[T], strategy OverflowStrategy[T], executor Executor, cancelable ...Cancelable) Observer[T] {
	if executor == nil {
		executor = DefaultExecutor
	}

	cfg := DefaultConfig()

	var q Queue[T]
	if strategy.Kind() == OverflowUnbounded {
		q = NewUnboundedQueue[T](cfg.RecommendedBufferChunkSize)
	} else {
		q = NewQueue[T](strategy.Capacity(), MPSC)
	}

	b := &bufferedSubscriber[T]{
		downstream: downstream,
		strategy:   strategy,
		trampoline: NewTrampolineWithConfig(executor, cfg),
		config:     cfg,
		queue:      q,
	}

	if len(cancelable) > 0 && cancelable[0] != nil && cfg.AutoCancelableRunLoops {
		b.cancelable = cancelable[0]
		b.cancelable.Add(b.finalizeStop)
	}

	return b
}

type bufferedSubscriber[T any] struct {
	downstream Observer[T]
	strategy   OverflowStrategy[T]
	trampoline *Trampoline
	config     Config
	queue      Queue[T]
	cancelable Cancelable

	// queueMu serializes the designated consumer's Poll (drainLoop) against
	// the DropOld/ClearBuffer strategies' producer-side eviction, which
	// otherwise calls the same single-consumer Poll/Clear concurrently with
	// drainLoop on an MPSC queue. Offer stays lock-free; only the poll/clear
	// side needs this, since the ring's offer side already tolerates
	// multiple concurrent producers on its own.
	queueMu sync.Mutex

	// itemsToPush: positive means a wakeup is owed to the drain loop (it
	// may or may not still reflect exactly the current backlog once
	// batching is involved — see drainLoop), 0 means idle, -1 means
	// terminated and fully drained.
	itemsToPush atomic.Int64

	upstreamIsComplete atomic.Bool
	downstreamIsDone   atomic.Bool
	errorThrown        atomic.Value // errorBox
	droppedCount       atomic.Int64

	backpressureMu      sync.Mutex
	backpressureWaiters []backpressureWaiter[T]
}

var _ Observer[int] = (*bufferedSubscriber[int])(nil)

func (b *bufferedSubscriber[T]) Next(value T) Ack {
	return b.NextWithContext(context.Background(), value)
}

func (b *bufferedSubscriber[T]) NextWithContext(_ context.Context, value T) Ack {
	if b.upstreamIsComplete.Load() || b.downstreamIsDone.Load() {
		return Stop
	}

	if b.queue.Offer(value) {
		return b.afterAccept()
	}

	switch b.strategy.Kind() {
	case OverflowFail:
		b.failWithOverflow()
		return Stop
	case OverflowBackPressure:
		return b.beginBackPressureWait(value)
	case OverflowDropNew, OverflowDropNewAndSignal:
		b.droppedCount.Add(1)
		return Continue
	case OverflowDropOld, OverflowDropOldAndSignal:
		b.queueMu.Lock()
		b.queue.Poll()
		b.queueMu.Unlock()
		b.droppedCount.Add(1)
		if b.queue.Offer(value) {
			return b.afterAccept()
		}
		return Continue
	case OverflowClearBuffer, OverflowClearBufferAndSignal:
		b.queueMu.Lock()
		cleared := b.queue.Clear()
		b.queueMu.Unlock()
		b.droppedCount.Add(int64(cleared))
		if b.queue.Offer(value) {
			return b.afterAccept()
		}
		return Continue
	default:
		// Unbounded never rejects an offer.
		return Continue
	}
}

func (b *bufferedSubscriber[T]) afterAccept() Ack {
	b.queue.FenceOffer()
	b.signalConsumer()
	return Continue
}

// signalConsumer implements the 0-to-1 scheduling handshake: only the
// caller that brings itemsToPush from 0 up to 1 schedules the drain loop,
// so exactly one drain loop instance is ever active per subscriber.
func (b *bufferedSubscriber[T]) signalConsumer() {
	if b.itemsToPush.Add(1) == 1 {
		b.trampoline.Execute(b.drainLoop)
	}
}

func (b *bufferedSubscriber[T]) failWithOverflow() {
	if !b.upstreamIsComplete.CompareAndSwap(false, true) {
		return
	}
	b.errorThrown.Store(errorBox{err: &BufferOverflowError{Capacity: b.strategy.Capacity()}})
	b.signalConsumer()
}

func (b *bufferedSubscriber[T]) beginBackPressureWait(value T) Ack {
	resolve, ack := NewPendingAck()

	b.backpressureMu.Lock()
	b.backpressureWaiters = append(b.backpressureWaiters, backpressureWaiter[T]{value: value, resolve: resolve})
	b.backpressureMu.Unlock()

	b.retryBackPressureWaiters()
	return ack
}

// retryBackPressureWaiters offers each parked producer's value in FIFO
// order, stopping at the first one the queue still can't accept. Called
// whenever a slot might have opened: right after a waiter is parked, and
// after every item the drain loop successfully forwards downstream.
func (b *bufferedSubscriber[T]) retryBackPressureWaiters() {
	for {
		b.backpressureMu.Lock()
		if len(b.backpressureWaiters) == 0 {
			b.backpressureMu.Unlock()
			return
		}
		w := b.backpressureWaiters[0]

		if b.upstreamIsComplete.Load() || b.downstreamIsDone.Load() {
			b.backpressureWaiters = b.backpressureWaiters[1:]
			b.backpressureMu.Unlock()
			w.resolve(AckStop)
			continue
		}

		// Offer and pop under the same lock, so two concurrent retries
		// can never both enqueue the same head waiter.
		if !b.queue.Offer(w.value) {
			b.backpressureMu.Unlock()
			return
		}
		b.backpressureWaiters = b.backpressureWaiters[1:]
		b.backpressureMu.Unlock()

		b.afterAccept()
		w.resolve(AckContinue)
	}
}

func (b *bufferedSubscriber[T]) popBackPressureWaiter() {
	b.backpressureMu.Lock()
	if len(b.backpressureWaiters) > 0 {
		b.backpressureWaiters = b.backpressureWaiters[1:]
	}
	b.backpressureMu.Unlock()
}

func (b *bufferedSubscriber[T]) failAllBackPressureWaiters() {
	b.backpressureMu.Lock()
	waiters := b.backpressureWaiters
	b.backpressureWaiters = nil
	b.backpressureMu.Unlock()

	for _, w := range waiters {
		w.resolve(AckStop)
	}
}

func (b *bufferedSubscriber[T]) Error(err error) {
	b.ErrorWithContext(context.Background(), err)
}

func (b *bufferedSubscriber[T]) ErrorWithContext(_ context.Context, err error) {
	if !b.upstreamIsComplete.CompareAndSwap(false, true) {
		return
	}
	b.errorThrown.Store(errorBox{err: err})
	b.signalConsumer()
}

func (b *bufferedSubscriber[T]) Complete() {
	b.CompleteWithContext(context.Background())
}

func (b *bufferedSubscriber[T]) CompleteWithContext(_ context.Context) {
	if !b.upstreamIsComplete.CompareAndSwap(false, true) {
		return
	}
	b.signalConsumer()
}

func (b *bufferedSubscriber[T]) IsClosed() bool {
	return b.downstreamIsDone.Load() || b.upstreamIsComplete.Load()
}

func (b *bufferedSubscriber[T]) HasThrown() bool {
	box, _ := b.errorThrown.Load().(errorBox)
	return box.err != nil
}

func (b *bufferedSubscriber[T]) IsCompleted() bool {
	return b.upstreamIsComplete.Load() && !b.HasThrown()
}

// drainLoop is the consumer loop's entry point, scheduled through the
// Trampoline. It drains the queue to empty, then settles its outstanding
// "missed" accounting against itemsToPush; a nonzero remainder means a
// producer signaled again while draining, so it loops. This is the
// standard non-blocking drain idiom: itemsToPush is a wakeup counter, not
// a literal queue-length mirror, so the accounting stays correct across
// voluntary batch yields even though those don't settle it themselves.
func (b *bufferedSubscriber[T]) drainLoop() {
	missed := int64(1)
	batch := 0

	for {
		for {
			if b.downstreamIsDone.Load() {
				return
			}

			if dropped := b.droppedCount.Swap(0); dropped > 0 && b.strategy.HasSignal() {
				if !b.deliverAndContinue(b.strategy.Signal(int(dropped))) {
					return
				}
				continue
			}

			b.queue.FencePoll()
			b.queueMu.Lock()
			item, ok := b.queue.Poll()
			b.queueMu.Unlock()
			if !ok {
				if b.tryEmitTerminal() {
					return
				}
				break
			}

			if !b.deliverAndContinue(item) {
				return
			}

			batch++
			if batch >= b.config.RecommendedBatchSize {
				b.trampoline.Yield(b.drainLoop)
				return
			}
		}

		missed = b.itemsToPush.Add(-missed)
		if missed <= 0 {
			return
		}
	}
}

// deliverAndContinue forwards v downstream and handles the resulting Ack.
// It returns true when the caller's loop should keep going on this
// goroutine, false when it must return immediately — either because
// downstream said Stop (already finalized), or because the Ack is still
// pending and a continuation has been registered to resume the loop later.
func (b *bufferedSubscriber[T]) deliverAndContinue(v T) bool {
	ack := b.downstream.Next(v)
	if val, resolved := ack.Value(); resolved {
		return b.onAckResolved(val)
	}

	ack.OnResolve(func(val AckValue) {
		if b.onAckResolved(val) {
			b.trampoline.Yield(b.drainLoop)
		}
	})
	return false
}

func (b *bufferedSubscriber[T]) onAckResolved(val AckValue) bool {
	if val == AckStop {
		b.finalizeStop()
		return false
	}
	b.retryBackPressureWaiters()
	return true
}

func (b *bufferedSubscriber[T]) tryEmitTerminal() bool {
	if !b.upstreamIsComplete.Load() || !b.queue.IsEmpty() {
		return false
	}

	box, _ := b.errorThrown.Load().(errorBox)
	if box.err != nil {
		b.downstream.Error(box.err)
	} else {
		b.downstream.Complete()
	}
	b.finalizeStop()
	return true
}

func (b *bufferedSubscriber[T]) finalizeStop() {
	if !b.downstreamIsDone.CompareAndSwap(false, true) {
		return
	}
	b.itemsToPush.Store(-1)
	b.failAllBackPressureWaiters()
	b.downstream = nil
	if b.cancelable != nil {
		b.cancelable.Cancel()
	}
}
