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

// Subscription is the minimal Reactive Streams Subscription surface: a
// consumer signals demand with Request and withdraws with Cancel. Both
// must be safe to call from any goroutine, any number of times; Cancel is
// idempotent.
type Subscription interface {
	Request(n int64)
	Cancel()
}

// Subscriber is the minimal Reactive Streams Subscriber surface. A
// compliant Publisher calls OnSubscribe at most once, then any number of
// OnNext up to cumulative requested demand, then at most one of
// OnError/OnComplete.
type Subscriber[T any] interface {
	OnSubscribe(s Subscription)
	OnNext(value T)
	OnError(err error)
	OnComplete()
}

// Publisher is the minimal Reactive Streams Publisher surface.
type Publisher[T any] interface {
	Subscribe(s Subscriber[T])
}

// synchronousMarker is implemented by observers wrapped with
// AssumeSynchronous, telling ToReactiveSubscriber it may skip the
// Unbounded-strategy BufferedSubscriber it would otherwise interpose to
// guarantee the Reactive Streams non-blocking-onNext requirement.
type synchronousMarker interface{ assumedSynchronous() }

type syncObserverWrapper[T any] struct{ Observer[T] }

func (syncObserverWrapper[T]) assumedSynchronous() {}

// AssumeSynchronous marks an Observer as one that always resolves Next's
// Ack before returning (never a pending Ack). ToReactiveSubscriber uses
// this to skip interposing a buffering layer.
func AssumeSynchronous[T any](o Observer[T]) Observer[T] {
	return syncObserverWrapper[T]{Observer: o}
}

// ToReactiveSubscriber adapts observer into a standards Subscriber,
// requesting requestCount elements at a time (default 128 if omitted).
// requestCount must be positive. Observers not known to be synchronous are
// wrapped in an Unbounded Buffered first, since a Subscriber's onNext must
// not block or reject.
func ToReactiveSubscriber[T any](observer Observer[T], requestCount ...int) Subscriber[T] {
	rc := 128
	if len(requestCount) > 0 {
		rc = requestCount[0]
	}
	if rc <= 0 {
		panic(&ProtocolError{Message: "toReactiveSubscriber: requestCount must be positive"})
	}

	wrapped := observer
	var bufferLifecycle Cancelable
	if _, ok := observer.(synchronousMarker); !ok {
		bufferLifecycle = NewCancelable(nil)
		wrapped = Buffered[T](observer, UnboundedStrategy[T](), DefaultExecutor, bufferLifecycle)
	}

	return &rsSubscriberBridge[T]{
		observer:        wrapped,
		requestCount:    rc,
		bufferLifecycle: bufferLifecycle,
	}
}

type rsSubscriberBridge[T any] struct {
	observer     Observer[T]
	requestCount int

	// bufferLifecycle mirrors the lifecycle of the Unbounded Buffered
	// interposed for a non-synchronous observer (nil otherwise). Wiring the
	// upstream Subscription's Cancel into it closes the loop the Buffered
	// layer otherwise leaves open: Buffered answers the element it accepts
	// with Continue even when downstream answers that element with Stop, so
	// without this the Reactive Streams Subscription would only be canceled
	// once the publisher sent another element and got Stop back.
	bufferLifecycle Cancelable

	mu             sync.Mutex
	subscription   Subscription
	expectingCount int
	isCanceled     bool
}

var _ Subscriber[int] = (*rsSubscriberBridge[int])(nil)

func (b *rsSubscriberBridge[T]) OnSubscribe(s Subscription) {
	if s == nil {
		return
	}

	b.mu.Lock()
	if b.subscription != nil || b.isCanceled {
		b.mu.Unlock()
		s.Cancel()
		return
	}
	b.subscription = s
	b.expectingCount = b.requestCount
	b.mu.Unlock()

	if b.bufferLifecycle != nil {
		b.bufferLifecycle.Add(s.Cancel)
	}

	s.Request(int64(b.requestCount))
}

func (b *rsSubscriberBridge[T]) OnNext(value T) {
	b.mu.Lock()
	if b.isCanceled {
		b.mu.Unlock()
		return
	}
	b.expectingCount--
	sub := b.subscription
	b.mu.Unlock()

	ack := b.observer.Next(value)
	if val, resolved := ack.Value(); resolved {
		b.afterAck(val, sub)
		return
	}
	ack.OnResolve(func(val AckValue) { b.afterAck(val, sub) })
}

func (b *rsSubscriberBridge[T]) afterAck(val AckValue, sub Subscription) {
	if val == AckStop {
		b.mu.Lock()
		if b.isCanceled {
			b.mu.Unlock()
			return
		}
		b.isCanceled = true
		b.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
		return
	}

	b.mu.Lock()
	refill := false
	if !b.isCanceled && b.expectingCount == 0 {
		b.expectingCount = b.requestCount
		refill = true
	}
	b.mu.Unlock()

	if refill && sub != nil {
		sub.Request(int64(b.requestCount))
	}
}

func (b *rsSubscriberBridge[T]) OnError(err error) {
	b.mu.Lock()
	if b.isCanceled {
		b.mu.Unlock()
		return
	}
	b.isCanceled = true
	b.mu.Unlock()

	if err != nil {
		b.observer.Error(err)
	}
}

func (b *rsSubscriberBridge[T]) OnComplete() {
	b.mu.Lock()
	if b.isCanceled {
		b.mu.Unlock()
		return
	}
	b.isCanceled = true
	b.mu.Unlock()

	b.observer.Complete()
}

// CancelableFromSubscription adapts a standards Subscription into a
// Cancelable: cancellation passes straight through, and repeated Cancel
// calls are idempotent because Subscription.Cancel already must be.
func CancelableFromSubscription(s Subscription) Cancelable {
	return NewCancelable(func() { s.Cancel() })
}
