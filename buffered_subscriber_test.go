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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuffered_ProgressDeliversAllThenComplete(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	downstream := NewObserver(
		func(v int) Ack {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
			return Continue
		},
		func(error) {},
		func() { close(done) },
	)

	b := Buffered[int](downstream, UnboundedStrategy[int](), GoroutineExecutor{})

	const n = 5000
	for i := 0; i < n; i++ {
		is.Equal(Continue, b.Next(i))
	}
	b.Complete()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("completion never observed")
	}

	mu.Lock()
	defer mu.Unlock()
	is.Len(got, n)
	for i, v := range got {
		is.Equal(i, v)
	}
}

func TestBuffered_FailStrategy_OverflowTerminatesOnce(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	resume := make(chan AckValue)
	started := make(chan struct{})

	var mu sync.Mutex
	var got []int
	var gotErr error
	errDone := make(chan struct{})

	downstream := NewObserver(
		func(v int) Ack {
			mu.Lock()
			got = append(got, v)
			first := len(got) == 1
			mu.Unlock()

			if first {
				close(started)
				v := <-resume
				return Ack{value: v}
			}
			return Continue
		},
		func(err error) {
			mu.Lock()
			gotErr = err
			mu.Unlock()
			close(errDone)
		},
		func() {},
	)

	strategy := FailStrategy[int](4)
	b := Buffered[int](downstream, strategy, GoroutineExecutor{})

	go func() {
		is.Equal(Continue, b.Next(1))
	}()
	<-started // first item is now blocking inside downstream.Next

	// Fill the capacity-4 ring, then push it into overflow.
	for i := 2; i <= 5; i++ {
		is.Equal(Continue, b.Next(i))
	}
	ack := b.Next(6)
	is.Equal(Stop, ack)

	// Subsequent calls also get Stop without delivery.
	is.Equal(Stop, b.Next(7))

	resume <- AckContinue

	select {
	case <-errDone:
	case <-time.After(5 * time.Second):
		t.Fatal("onError never observed")
	}

	mu.Lock()
	defer mu.Unlock()
	is.Equal([]int{1, 2, 3, 4, 5}, got)
	var overflow *BufferOverflowError
	is.ErrorAs(gotErr, &overflow)
	is.Equal(4, overflow.Capacity)
}

func TestBuffered_DropOldAndSignal_AccountingInvariant(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	type event struct {
		isSignal bool
		value    int
		dropped  int
	}

	const capacity = 4
	const total = 20

	resume := make(chan struct{})
	started := make(chan struct{})

	var mu sync.Mutex
	var got []event
	done := make(chan struct{})

	downstream := NewObserver(
		func(v event) Ack {
			mu.Lock()
			got = append(got, v)
			first := len(got) == 1
			mu.Unlock()

			if first {
				close(started)
				<-resume
			}
			return Continue
		},
		func(error) {},
		func() { close(done) },
	)

	signal := func(dropped int) event { return event{isSignal: true, dropped: dropped} }
	strategy := DropOldAndSignalStrategy[event](capacity, signal)
	b := Buffered[event](downstream, strategy, GoroutineExecutor{})

	go func() {
		b.Next(event{value: 1})
	}()
	<-started

	for i := 2; i <= total; i++ {
		b.Next(event{value: i})
	}
	b.Complete()
	close(resume)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("completion never observed")
	}

	mu.Lock()
	defer mu.Unlock()

	is.True(len(got) >= 2)
	is.Equal(event{value: 1}, got[0])

	var signalEvt *event
	var tail []event
	for i := 1; i < len(got); i++ {
		if got[i].isSignal {
			is.Nil(signalEvt, "signal must be emitted exactly once")
			e := got[i]
			signalEvt = &e
			continue
		}
		tail = append(tail, got[i])
	}

	is.NotNil(signalEvt)
	// Invariant: every call beyond the first either survived into tail or
	// was accounted for in the drop signal.
	is.Equal(total-1, signalEvt.dropped+len(tail))

	expectedTail := make([]event, 0, capacity)
	for i := total - capacity + 1; i <= total; i++ {
		expectedTail = append(expectedTail, event{value: i})
	}
	is.Equal(expectedTail, tail)
}

// TestBuffered_DropOldConcurrentProducersAndConsumerDontCorruptRing drives
// many producer goroutines evicting under DropOld concurrently with a
// non-blocking downstream, so drainLoop's own Poll genuinely overlaps with
// the producer-side eviction Poll instead of one side being parked. Before
// queueMu serialized the two, this raced on the MPSC ring's single-consumer
// poll path: two concurrent pollers can claim the same cell, which shows up
// here as either a duplicate delivered value or a broken dropped+delivered
// accounting invariant.
func TestBuffered_DropOldConcurrentProducersAndConsumerDontCorruptRing(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	const capacity = 4
	const producers = 8
	const perProducer = 250
	const total = producers * perProducer

	var mu sync.Mutex
	got := make([]int, 0, total)
	done := make(chan struct{})

	downstream := NewObserver(
		func(v int) Ack {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
			return Continue
		},
		func(error) {},
		func() { close(done) },
	)

	obs := Buffered[int](downstream, DropOldStrategy[int](capacity), GoroutineExecutor{})
	b := obs.(*bufferedSubscriber[int])

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				b.Next(base*perProducer + j)
			}
		}(p)
	}
	wg.Wait()
	b.Complete()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("completion never observed")
	}

	mu.Lock()
	defer mu.Unlock()

	is.True(len(got) > 0)
	is.True(len(got) <= total)

	seen := make(map[int]struct{}, len(got))
	for _, v := range got {
		_, dup := seen[v]
		is.False(dup, "value %d delivered more than once: corrupted ring read", v)
		is.True(v >= 0 && v < total, "value %d outside the valid domain: corrupted ring read", v)
		seen[v] = struct{}{}
	}
}

func TestBuffered_BackPressure_NoProducerStaysPendingForever(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var mu sync.Mutex
	var got []int
	const n = 200

	downstream := NewObserver(
		func(v int) Ack {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
			return Continue
		},
		func(error) {},
		func() {},
	)

	strategy := BackPressureStrategy[int](4)
	b := Buffered[int](downstream, strategy, GoroutineExecutor{})

	var wg sync.WaitGroup
	const producers = 4
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < n/producers; i++ {
				ack := b.Next(base*1000 + i)
				if ack.IsPending() {
					resolved := make(chan AckValue, 1)
					ack.OnResolve(func(v AckValue) { resolved <- v })
					select {
					case <-resolved:
					case <-time.After(5 * time.Second):
						t.Errorf("producer %d stayed pending indefinitely", base)
						return
					}
				}
			}
		}(p)
	}

	wg.Wait()

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		count := len(got)
		mu.Unlock()
		if count == n {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected %d items eventually, got %d", n, count)
		case <-time.After(10 * time.Millisecond):
		}
	}

	is.Len(got, n)
}

// TestBuffered_CancelableExternalCancelAbandonsLoop confirms that canceling
// a Cancelable passed into Buffered abandons the drain loop: once canceled,
// further producer calls get Stop and nothing more reaches downstream.
func TestBuffered_CancelableExternalCancelAbandonsLoop(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var mu sync.Mutex
	var got []int
	downstream := NewObserver(
		func(v int) Ack {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
			return Continue
		},
		func(error) {},
		func() {},
	)

	lifecycle := NewCancelable(nil)
	b := Buffered[int](downstream, UnboundedStrategy[int](), InlineExecutor{}, lifecycle)

	b.Next(1)
	b.Next(2)
	lifecycle.Cancel()
	b.Next(3)

	mu.Lock()
	defer mu.Unlock()
	is.Equal([]int{1, 2}, got)
	is.True(b.IsClosed())
}

// TestBuffered_CancelableCanceledWhenDownstreamStops confirms the reverse
// direction: the drain loop reaching a terminal Stop cancels the attached
// Cancelable in turn.
func TestBuffered_CancelableCanceledWhenDownstreamStops(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	downstream := NewObserver(
		func(v int) Ack {
			if v == 2 {
				return Stop
			}
			return Continue
		},
		func(error) {},
		func() {},
	)

	var teardownCalled bool
	lifecycle := NewCancelable(func() { teardownCalled = true })
	b := Buffered[int](downstream, UnboundedStrategy[int](), InlineExecutor{}, lifecycle)

	b.Next(1)
	b.Next(2)

	is.True(teardownCalled)
	is.True(lifecycle.IsCanceled())
}

func TestBuffered_StopFromDownstreamEndsDelivery(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var mu sync.Mutex
	var got []int
	downstream := NewObserver(
		func(v int) Ack {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, v)
			if v == 3 {
				return Stop
			}
			return Continue
		},
		func(error) {},
		func() {},
	)

	b := Buffered[int](downstream, UnboundedStrategy[int](), InlineExecutor{})
	for i := 1; i <= 10; i++ {
		b.Next(i)
	}

	mu.Lock()
	defer mu.Unlock()
	is.Equal([]int{1, 2, 3}, got)
}
