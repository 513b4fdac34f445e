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
)

// Trampoline runs submitted work iteratively rather than recursively: a
// nested Execute call made from within a running runnable never grows the
// call stack, it only appends to the pending queue for the active loop to
// pick up. One Trampoline is meant to be owned by a single logical
// consumer (BufferedSubscriber's drain loop); concurrent Execute callers
// are safe, but the loop itself only ever runs on one goroutine at a time.
type Trampoline struct {
	executor      Executor
	maxStackDepth int

	mu         sync.Mutex
	withinLoop bool
	queue      []func()
}

// NewTrampoline creates a Trampoline backed by executor, using the package
// default fusion depth (Config.FusionMaxStackDepth). A nil executor falls
// back to DefaultExecutor.
func NewTrampoline(executor Executor) *Trampoline {
	return NewTrampolineWithConfig(executor, DefaultConfig())
}

// NewTrampolineWithConfig creates a Trampoline backed by executor, using
// cfg.FusionMaxStackDepth as the self-fork threshold: a non-positive value
// disables the threshold and lets drain run until the queue is exhausted or
// a panic forks it.
func NewTrampolineWithConfig(executor Executor, cfg Config) *Trampoline {
	if executor == nil {
		executor = DefaultExecutor
	}
	return &Trampoline{executor: executor, maxStackDepth: cfg.FusionMaxStackDepth}
}

// Execute enqueues r. If no loop is currently active on this Trampoline,
// the calling goroutine becomes the loop and drains r plus anything
// appended reentrantly, FIFO, until the queue is empty. Otherwise r is
// picked up by whichever goroutine is already draining.
func (t *Trampoline) Execute(r func()) {
	t.mu.Lock()
	t.queue = append(t.queue, r)
	if t.withinLoop {
		t.mu.Unlock()
		return
	}
	t.withinLoop = true
	t.mu.Unlock()

	t.drain()
}

// Yield submits r to the backing executor as a fresh Trampoline entry
// point, rather than running it as part of the current loop. This is the
// voluntary cooperative yield a long synchronous run uses to hand the
// thread back after its batch budget, as opposed to Execute's run-inline-
// when-possible behavior.
func (t *Trampoline) Yield(r func()) {
	t.executor.Execute(func() {
		t.Execute(r)
	})
}

func (t *Trampoline) drain() {
	depth := 0
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.withinLoop = false
			t.mu.Unlock()
			return
		}
		next := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()

		if !t.runOne(next) {
			// A panic forked the remainder to the backing executor; this
			// goroutine's loop ends here.
			return
		}

		depth++
		if t.maxStackDepth > 0 && depth >= t.maxStackDepth {
			// Fusion threshold reached: fork whatever remains to the
			// backing executor instead of continuing to drain on this
			// call stack indefinitely, the same way a panic would, but
			// voluntarily.
			t.forkRemainder()
			return
		}
	}
}

// runOne runs r under panic recovery. Non-fatal panics are reported
// through OnUnhandledError and fork whatever remains in the queue to the
// backing executor, returning false so drain stops on this goroutine.
// Returning true means r completed normally and drain should keep going.
func (t *Trampoline) runOne(r func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			OnUnhandledError(context.Background(), newTrampolinePanicError(recoverValueToError(rec)))
			t.forkRemainder()
			ok = false
		}
	}()
	r()
	return true
}

func (t *Trampoline) forkRemainder() {
	t.mu.Lock()
	hasMore := len(t.queue) > 0
	if !hasMore {
		t.withinLoop = false
	}
	t.mu.Unlock()

	if hasMore {
		t.executor.Execute(t.drain)
	}
}
