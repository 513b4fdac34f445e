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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferedSync_DeliversInlineInOrder(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var got []int
	var completed bool
	downstream := NewObserver(
		func(v int) Ack {
			got = append(got, v)
			return Continue
		},
		func(error) {},
		func() { completed = true },
	)

	s := BufferedSync[int](downstream, UnboundedStrategy[int]())
	for i := 0; i < 10; i++ {
		is.Equal(Continue, s.Next(i))
	}
	s.Complete()

	is.Equal([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	is.True(completed)
	is.True(s.IsClosed())
	is.True(s.IsCompleted())
}

func TestBufferedSync_PendingAckFromDownstreamPanics(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	downstream := NewObserver(
		func(v int) Ack {
			_, ack := NewPendingAck()
			return ack
		},
		func(error) {},
		func() {},
	)

	s := BufferedSync[int](downstream, UnboundedStrategy[int]())
	is.Panics(func() { s.Next(1) })
}

// TestBufferedSync_FailStrategy_OverflowOnceQueueIsFull exercises the Fail
// branch directly: BufferedSync's drain loop always empties the queue
// before returning to a well-behaved synchronous caller, so the only way
// to observe the queue actually full is to pre-load it below the public
// Next path, the same way a stalled downstream reached via recursion would.
func TestBufferedSync_FailStrategy_OverflowOnceQueueIsFull(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var gotErr error
	downstream := NewObserver(
		func(v int) Ack { return Continue },
		func(err error) { gotErr = err },
		func() {},
	)

	obs := BufferedSync[int](downstream, FailStrategy[int](2))
	s := obs.(*bufferedSyncSubscriber[int])

	s.mu.Lock()
	is.True(s.queue.Offer(1))
	is.True(s.queue.Offer(2))
	s.mu.Unlock()

	ack := s.Next(3)
	is.Equal(Stop, ack)

	var overflow *BufferOverflowError
	is.ErrorAs(gotErr, &overflow)
	is.Equal(2, overflow.Capacity)
	is.True(s.HasThrown())
}

func TestBufferedSync_BackPressureOverflowPanics(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	downstream := NewObserver(func(int) Ack { return Continue }, func(error) {}, func() {})

	obs := BufferedSync[int](downstream, BackPressureStrategy[int](1))
	s := obs.(*bufferedSyncSubscriber[int])

	s.mu.Lock()
	is.True(s.queue.Offer(1))
	s.mu.Unlock()

	is.Panics(func() { s.Next(2) })
}

func TestBufferedSync_DropOldEvictsOldestThenDeliversRemainder(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var got []int
	downstream := NewObserver(
		func(v int) Ack {
			got = append(got, v)
			return Continue
		},
		func(error) {},
		func() {},
	)

	obs := BufferedSync[int](downstream, DropOldStrategy[int](2))
	s := obs.(*bufferedSyncSubscriber[int])

	s.mu.Lock()
	is.True(s.queue.Offer(1))
	is.True(s.queue.Offer(2))
	s.mu.Unlock()

	is.Equal(Continue, s.Next(3))
	// 1 was evicted to make room; drain then delivers whatever remains in
	// FIFO order, followed by the newly accepted value.
	is.Equal([]int{2, 3}, got)
}

func TestBufferedSync_SingleProducerModeSkipsLocking(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var got []int
	downstream := NewObserver(
		func(v int) Ack {
			got = append(got, v)
			return Continue
		},
		func(error) {},
		func() {},
	)

	s := BufferedSync[int](downstream, UnboundedStrategy[int](), SingleProducer)
	for i := 0; i < 5; i++ {
		is.Equal(Continue, s.Next(i))
	}
	is.Equal([]int{0, 1, 2, 3, 4}, got)
}
