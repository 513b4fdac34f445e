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

	"github.com/flowcore/rstream/internal/xerrors"
	"github.com/samber/lo"
)

// Teardown cleans up a resource held by a Cancelable. Called at most once,
// when the Cancelable is canceled.
type Teardown func()
type TeardownWithContext func(ctx context.Context)

// Cancelable is an idempotent, one-shot, composable resource release. It
// models component C7: cancellation is cooperative and may be triggered
// either by the holder of the Cancelable or by a downstream Stop ack.
type Cancelable interface {
	Cancel()
	CancelWithContext(ctx context.Context)

	// Add registers a teardown to run on cancellation. If already
	// canceled, teardown runs immediately.
	Add(teardown Teardown)
	AddWithContext(teardown TeardownWithContext)
	// AddCancelable composes another Cancelable so canceling this one also
	// cancels it.
	AddCancelable(other Cancelable)

	IsCanceled() bool
	// Wait blocks until canceled. Discouraged outside of tests.
	Wait()
}

type cancelableImpl struct {
	mu            sync.Mutex
	done          bool
	finalizers    []Teardown
	ctxFinalizers []TeardownWithContext
}

var _ Cancelable = (*cancelableImpl)(nil)

// NewCancelable creates a Cancelable. When teardown is nil, nothing is
// added.
func NewCancelable(teardown Teardown) Cancelable {
	c := &cancelableImpl{}
	if teardown != nil {
		c.finalizers = append(c.finalizers, teardown)
	}
	return c
}

// NewCancelableWithContext creates a Cancelable whose teardown receives a
// context at cancellation time.
func NewCancelableWithContext(teardown TeardownWithContext) Cancelable {
	c := &cancelableImpl{}
	if teardown != nil {
		c.ctxFinalizers = append(c.ctxFinalizers, teardown)
	}
	return c
}

func (c *cancelableImpl) Add(teardown Teardown) {
	if teardown == nil {
		return
	}

	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		_ = execTeardown(teardown)
		return
	}
	c.finalizers = append(c.finalizers, teardown)
	c.mu.Unlock()
}

func (c *cancelableImpl) AddWithContext(teardown TeardownWithContext) {
	if teardown == nil {
		return
	}

	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		_ = execTeardownWithContext(teardown, context.Background())
		return
	}
	c.ctxFinalizers = append(c.ctxFinalizers, teardown)
	c.mu.Unlock()
}

func (c *cancelableImpl) AddCancelable(other Cancelable) {
	if other == nil {
		return
	}
	c.Add(other.Cancel)
}

func (c *cancelableImpl) Cancel() {
	c.CancelWithContext(context.Background())
}

func (c *cancelableImpl) CancelWithContext(ctx context.Context) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	finals := c.finalizers
	ctxFinals := c.ctxFinalizers
	c.finalizers = nil
	c.ctxFinalizers = nil
	c.mu.Unlock()

	var errs []error
	for _, f := range finals {
		if err := execTeardown(f); err != nil {
			errs = append(errs, err)
		}
	}
	for _, f := range ctxFinals {
		if err := execTeardownWithContext(f, ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		if joined := xerrors.Join(errs...); joined != nil {
			panic(joined)
		}
	}
}

func (c *cancelableImpl) IsCanceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *cancelableImpl) Wait() {
	ch := make(chan struct{}, 1)
	c.Add(func() { ch <- struct{}{} })
	<-ch
	close(ch)
}

func execTeardown(teardown Teardown) (err error) {
	lo.TryCatchWithErrorValue(
		func() error {
			teardown()
			return nil
		},
		func(e any) {
			err = newUnsubscriptionError(recoverValueToError(e))
		},
	)
	return err
}

func execTeardownWithContext(teardown TeardownWithContext, ctx context.Context) (err error) {
	lo.TryCatchWithErrorValue(
		func() error {
			teardown(ctx)
			return nil
		},
		func(e any) {
			err = newUnsubscriptionError(recoverValueToError(e))
		},
	)
	return err
}
