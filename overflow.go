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

// OverflowKind names one of the nine overflow behaviors a BufferedSubscriber
// can apply once its queue reaches capacity.
type OverflowKind uint8

const (
	OverflowUnbounded OverflowKind = iota
	OverflowFail
	OverflowBackPressure
	OverflowDropNew
	OverflowDropNewAndSignal
	OverflowDropOld
	OverflowDropOldAndSignal
	OverflowClearBuffer
	OverflowClearBufferAndSignal
)

func (k OverflowKind) String() string {
	switch k {
	case OverflowUnbounded:
		return "Unbounded"
	case OverflowFail:
		return "Fail"
	case OverflowBackPressure:
		return "BackPressure"
	case OverflowDropNew:
		return "DropNew"
	case OverflowDropNewAndSignal:
		return "DropNewAndSignal"
	case OverflowDropOld:
		return "DropOld"
	case OverflowDropOldAndSignal:
		return "DropOldAndSignal"
	case OverflowClearBuffer:
		return "ClearBuffer"
	case OverflowClearBufferAndSignal:
		return "ClearBufferAndSignal"
	default:
		return "Unknown"
	}
}

// OverflowStrategy configures what a BufferedSubscriber does when its
// bounded queue is full. Construct one with the package-level constructors
// below; the zero value is not valid.
type OverflowStrategy[T any] struct {
	kind     OverflowKind
	capacity int
	signal   func(dropped int) T
}

func (s OverflowStrategy[T]) Kind() OverflowKind { return s.kind }
func (s OverflowStrategy[T]) Capacity() int      { return s.capacity }
func (s OverflowStrategy[T]) HasSignal() bool    { return s.signal != nil }

// Signal computes the synthetic drop-notification element. Only valid when
// HasSignal reports true.
func (s OverflowStrategy[T]) Signal(dropped int) T { return s.signal(dropped) }

// UnboundedStrategy never rejects an offer: the BufferedSubscriber backs
// it with the chunked growable queue instead of a fixed-capacity ring.
func UnboundedStrategy[T any]() OverflowStrategy[T] {
	return OverflowStrategy[T]{kind: OverflowUnbounded}
}

// FailStrategy terminates the stream with a BufferOverflowError as soon as
// an offer is rejected.
func FailStrategy[T any](capacity int) OverflowStrategy[T] {
	return OverflowStrategy[T]{kind: OverflowFail, capacity: capacity}
}

// BackPressureStrategy makes a producer observe a pending Ack until the
// consumer has drained room for it.
func BackPressureStrategy[T any](capacity int) OverflowStrategy[T] {
	return OverflowStrategy[T]{kind: OverflowBackPressure, capacity: capacity}
}

// DropNewStrategy silently discards the incoming element when full.
func DropNewStrategy[T any](capacity int) OverflowStrategy[T] {
	return OverflowStrategy[T]{kind: OverflowDropNew, capacity: capacity}
}

// DropNewAndSignalStrategy discards the incoming element when full, and
// emits signal(droppedCount) downstream once the drop run ends.
func DropNewAndSignalStrategy[T any](capacity int, signal func(dropped int) T) OverflowStrategy[T] {
	return OverflowStrategy[T]{kind: OverflowDropNewAndSignal, capacity: capacity, signal: signal}
}

// DropOldStrategy evicts the oldest queued element to make room for the
// new one.
func DropOldStrategy[T any](capacity int) OverflowStrategy[T] {
	return OverflowStrategy[T]{kind: OverflowDropOld, capacity: capacity}
}

// DropOldAndSignalStrategy evicts the oldest queued element and emits
// signal(droppedCount) downstream once the drop run ends.
func DropOldAndSignalStrategy[T any](capacity int, signal func(dropped int) T) OverflowStrategy[T] {
	return OverflowStrategy[T]{kind: OverflowDropOldAndSignal, capacity: capacity, signal: signal}
}

// ClearBufferStrategy discards everything currently queued, then enqueues
// the new element.
func ClearBufferStrategy[T any](capacity int) OverflowStrategy[T] {
	return OverflowStrategy[T]{kind: OverflowClearBuffer, capacity: capacity}
}

// ClearBufferAndSignalStrategy discards everything queued and emits
// signal(clearedCount) downstream once the clear run ends.
func ClearBufferAndSignalStrategy[T any](capacity int, signal func(dropped int) T) OverflowStrategy[T] {
	return OverflowStrategy[T]{kind: OverflowClearBufferAndSignal, capacity: capacity, signal: signal}
}

func (s OverflowStrategy[T]) isDropFamily() bool {
	switch s.kind {
	case OverflowDropNew, OverflowDropNewAndSignal,
		OverflowDropOld, OverflowDropOldAndSignal,
		OverflowClearBuffer, OverflowClearBufferAndSignal:
		return true
	default:
		return false
	}
}
