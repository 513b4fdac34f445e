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
	"fmt"
	"sync/atomic"

	"github.com/flowcore/rstream/internal/xerrors"
	"github.com/samber/lo"
)

// observerPanicCaptureDisabledKeyType is an unexported context key type to
// avoid collisions with user-defined context keys.
type observerPanicCaptureDisabledKeyType struct{}

var observerPanicCaptureDisabledKey observerPanicCaptureDisabledKeyType

// WithObserverPanicCaptureDisabled returns a derived context that disables
// wrapping observer callbacks with panic-capture for the subscription using
// this context. Intended for latency-sensitive pipelines; by default the
// library captures panics and routes them through the failure reporter.
func WithObserverPanicCaptureDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, observerPanicCaptureDisabledKey, true)
}

func isObserverPanicCaptureDisabled(ctx context.Context) bool {
	v := ctx.Value(observerPanicCaptureDisabledKey)
	b, ok := v.(bool)
	return ok && b
}

// Observer is the consumer of a push-style producer. It receives
// notifications: Next, Error, and Complete.
//
// Contract: the caller must wait for the previous Next call's Ack to
// resolve before issuing the next call; after a Stop ack, or after any
// terminal (Error/Complete), no further calls may be made. Next may be
// called zero or more times; Error and Complete are each called at most
// once, and never both.
type Observer[T any] interface {
	// Next delivers the next value and returns an Ack describing whether
	// the caller should continue.
	Next(value T) Ack
	NextWithContext(ctx context.Context, value T) Ack

	// Error delivers a terminal error. Called at most once.
	Error(err error)
	ErrorWithContext(ctx context.Context, err error)

	// Complete delivers a terminal completion. Called at most once.
	Complete()
	CompleteWithContext(ctx context.Context)

	// IsClosed reports whether a terminal has already been delivered.
	IsClosed() bool
	// HasThrown reports whether the terminal was an error.
	HasThrown() bool
	// IsCompleted reports whether the terminal was a completion.
	IsCompleted() bool
}

var _ Observer[int] = (*observerImpl[int])(nil)

// NewObserver creates an Observer from plain callbacks, with panic capture
// enabled. No context is threaded through to the callbacks.
func NewObserver[T any](onNext func(value T) Ack, onError func(err error), onComplete func()) Observer[T] {
	return &observerImpl[T]{
		capturePanics: true,
		onNext: func(ctx context.Context, value T) Ack {
			return onNext(value)
		},
		onError: func(ctx context.Context, err error) {
			onError(err)
		},
		onComplete: func(ctx context.Context) {
			onComplete()
		},
	}
}

// NewObserverWithContext creates an Observer whose callbacks receive a
// context, with panic capture enabled.
func NewObserverWithContext[T any](onNext func(ctx context.Context, value T) Ack, onError func(ctx context.Context, err error), onComplete func(ctx context.Context)) Observer[T] {
	return &observerImpl[T]{
		capturePanics: true,
		onNext:        onNext,
		onError:       onError,
		onComplete:    onComplete,
	}
}

// NewUnsafeObserver creates an Observer that does NOT wrap callbacks with
// panic recovery. Use only where callers guarantee no panics, or want
// panics to propagate to the caller.
func NewUnsafeObserver[T any](onNext func(value T) Ack, onError func(err error), onComplete func()) Observer[T] {
	return &observerImpl[T]{
		capturePanics: false,
		onNext: func(ctx context.Context, value T) Ack {
			return onNext(value)
		},
		onError: func(ctx context.Context, err error) {
			onError(err)
		},
		onComplete: func(ctx context.Context) {
			onComplete()
		},
	}
}

// NewObserverWithContextUnsafe creates a context-aware Observer that does
// NOT wrap callbacks with panic recovery.
func NewObserverWithContextUnsafe[T any](onNext func(ctx context.Context, value T) Ack, onError func(ctx context.Context, err error), onComplete func(ctx context.Context)) Observer[T] {
	return &observerImpl[T]{
		capturePanics: false,
		onNext:        onNext,
		onError:       onError,
		onComplete:    onComplete,
	}
}

type observerImpl[T any] struct {
	// 0: active, 1: errored, 2: completed
	status        int32
	capturePanics bool
	onNext        func(context.Context, T) Ack
	onError       func(context.Context, error)
	onComplete    func(context.Context)
}

func (o *observerImpl[T]) Next(value T) Ack {
	return o.NextWithContext(context.Background(), value)
}

func (o *observerImpl[T]) NextWithContext(ctx context.Context, value T) Ack {
	if o.onNext == nil || atomic.LoadInt32(&o.status) != 0 {
		OnDroppedNotification(ctx, DroppedNotification{Kind: KindNext, Value: value})
		return Stop
	}

	return o.tryNext(ctx, value)
}

func (o *observerImpl[T]) Error(err error) {
	o.ErrorWithContext(context.Background(), err)
}

func (o *observerImpl[T]) ErrorWithContext(ctx context.Context, err error) {
	if o.onError == nil || !atomic.CompareAndSwapInt32(&o.status, 0, 1) {
		OnDroppedNotification(ctx, DroppedNotification{Kind: KindError, Err: err})
		return
	}

	o.tryError(ctx, err)
}

func (o *observerImpl[T]) Complete() {
	o.CompleteWithContext(context.Background())
}

func (o *observerImpl[T]) CompleteWithContext(ctx context.Context) {
	if o.onComplete == nil || !atomic.CompareAndSwapInt32(&o.status, 0, 2) {
		OnDroppedNotification(ctx, DroppedNotification{Kind: KindComplete})
		return
	}

	o.tryComplete(ctx)
}

func (o *observerImpl[T]) tryNext(ctx context.Context, value T) Ack {
	if !o.capturePanics || isObserverPanicCaptureDisabled(ctx) {
		return o.onNext(ctx, value)
	}

	var ack Ack
	lo.TryCatchWithErrorValue(
		func() error {
			ack = o.onNext(ctx, value)
			return nil
		},
		func(e any) {
			err := newObserverError(recoverValueToError(e))
			if o.onError == nil {
				OnUnhandledError(ctx, err)
			} else {
				o.tryError(ctx, err)
			}
			ack = Stop
		},
	)
	return ack
}

func (o *observerImpl[T]) tryError(ctx context.Context, err error) {
	if !o.capturePanics || isObserverPanicCaptureDisabled(ctx) {
		o.onError(ctx, err)
		return
	}

	lo.TryCatchWithErrorValue(
		func() error {
			o.onError(ctx, err)
			return nil
		},
		func(e any) {
			OnUnhandledError(ctx, xerrors.Join(err, newObserverError(recoverValueToError(e))))
		},
	)
}

func (o *observerImpl[T]) tryComplete(ctx context.Context) {
	if !o.capturePanics || isObserverPanicCaptureDisabled(ctx) {
		o.onComplete(ctx)
		return
	}

	lo.TryCatchWithErrorValue(
		func() error {
			o.onComplete(ctx)
			return nil
		},
		func(e any) {
			OnUnhandledError(ctx, newObserverError(recoverValueToError(e)))
		},
	)
}

func (o *observerImpl[T]) IsClosed() bool    { return atomic.LoadInt32(&o.status) != 0 }
func (o *observerImpl[T]) HasThrown() bool   { return atomic.LoadInt32(&o.status) == 1 }
func (o *observerImpl[T]) IsCompleted() bool { return atomic.LoadInt32(&o.status) == 2 }

/*********************
 * Partial Observers *
 *********************/

// OnNext is a partial Observer with only Next implemented; errors and
// completion are silently ignored.
func OnNext[T any](onNext func(value T) Ack) Observer[T] {
	return NewObserver(onNext, func(err error) {}, func() {})
}

// OnError is a partial Observer with only Error implemented.
func OnError[T any](onError func(err error)) Observer[T] {
	return NewObserver(func(T) Ack { return Continue }, onError, func() {})
}

// OnComplete is a partial Observer with only Complete implemented.
func OnComplete[T any](onComplete func()) Observer[T] {
	return NewObserver(func(T) Ack { return Continue }, func(err error) {}, onComplete)
}

// NoopObserver does nothing and always returns Continue.
func NoopObserver[T any]() Observer[T] {
	return NewObserver(func(T) Ack { return Continue }, func(err error) {}, func() {})
}

// PrintObserver dumps notifications for debug purposes.
func PrintObserver[T any]() Observer[T] {
	return NewObserver(
		func(value T) Ack {
			fmt.Printf("Next: %v\n", value)
			return Continue
		},
		func(err error) {
			fmt.Printf("Error: %s\n", err.Error())
		},
		func() {
			fmt.Printf("Completed\n")
		},
	)
}
