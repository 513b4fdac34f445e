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

// Executor runs a unit of work, possibly asynchronously. The Trampoline
// uses it as the backing scheduler it forks to when a drain loop panics or
// voluntarily yields after its batch budget.
type Executor interface {
	Execute(task func())
}

// GoroutineExecutor runs each task on its own goroutine. This is the
// default backing Executor: it guarantees forward progress (a panicking
// drain loop never wedges the caller) at the cost of losing the ordering
// guarantee across separately submitted tasks.
type GoroutineExecutor struct{}

func (GoroutineExecutor) Execute(task func()) {
	go task()
}

var _ Executor = GoroutineExecutor{}

// InlineExecutor runs the task synchronously on the calling goroutine.
// Useful for tests and for single-threaded embedders that want
// deterministic, synchronous fan-out with no extra goroutines.
type InlineExecutor struct{}

func (InlineExecutor) Execute(task func()) {
	task()
}

var _ Executor = InlineExecutor{}

// DefaultExecutor is the Executor used when none is supplied explicitly.
var DefaultExecutor Executor = GoroutineExecutor{}
