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
	"log"
	"sync/atomic"
)

var (
	// onUnhandledError stores the current handler for errors that have no
	// other destination (e.g. a panic while delivering a terminal, or a
	// panic inside a Trampoline runnable). Accessed via atomic.Value for concurrent readers
	// and writers without data races.
	onUnhandledError atomic.Value // func(context.Context, error)

	// onDroppedNotification stores the current handler for notifications
	// that an Observer could not deliver because it was already closed or
	// has no callback for them. Elements discarded by an overflow strategy
	// are not reported here.
	onDroppedNotification atomic.Value // func(context.Context, DroppedNotification)
)

func init() {
	onUnhandledError.Store(IgnoreOnUnhandledError)
	onDroppedNotification.Store(IgnoreOnDroppedNotification)
}

// SetOnUnhandledError sets the handler invoked for errors with no other
// destination. Passing nil restores the default (ignore).
func SetOnUnhandledError(fn func(ctx context.Context, err error)) {
	if fn == nil {
		fn = IgnoreOnUnhandledError
	}
	onUnhandledError.Store(fn)
}

// GetOnUnhandledError returns the currently configured unhandled-error handler.
func GetOnUnhandledError() func(ctx context.Context, err error) {
	return onUnhandledError.Load().(func(context.Context, error))
}

// OnUnhandledError invokes the currently configured unhandled-error handler.
func OnUnhandledError(ctx context.Context, err error) {
	GetOnUnhandledError()(ctx, err)
}

// DroppedNotification describes a single dropped onNext/onError/onComplete.
type DroppedNotification struct {
	Kind  Kind
	Value any
	Err   error
}

func (n DroppedNotification) String() string {
	switch n.Kind {
	case KindNext:
		return "Next(dropped)"
	case KindError:
		return "Error(dropped)"
	case KindComplete:
		return "Complete(dropped)"
	}
	return "Unknown(dropped)"
}

// SetOnDroppedNotification sets the handler invoked when a notification is
// dropped. Passing nil restores the default (ignore).
func SetOnDroppedNotification(fn func(ctx context.Context, notification DroppedNotification)) {
	if fn == nil {
		fn = IgnoreOnDroppedNotification
	}
	onDroppedNotification.Store(fn)
}

// GetOnDroppedNotification returns the currently configured dropped-notification handler.
func GetOnDroppedNotification() func(ctx context.Context, notification DroppedNotification) {
	return onDroppedNotification.Load().(func(context.Context, DroppedNotification))
}

// OnDroppedNotification invokes the currently configured dropped-notification handler.
func OnDroppedNotification(ctx context.Context, notification DroppedNotification) {
	GetOnDroppedNotification()(ctx, notification)
}

// IgnoreOnUnhandledError is the default unhandled-error handler: it does nothing.
func IgnoreOnUnhandledError(ctx context.Context, err error) {}

// IgnoreOnDroppedNotification is the default dropped-notification handler: it does nothing.
func IgnoreOnDroppedNotification(ctx context.Context, notification DroppedNotification) {}

// DefaultOnUnhandledError logs the error. Install with SetOnUnhandledError
// for pipelines that want visibility instead of silence.
func DefaultOnUnhandledError(ctx context.Context, err error) {
	if err != nil {
		// bearer:disable go_lang_logger_leak
		log.Printf("rstream: unhandled error: %s\n", err.Error())
	}
}

// DefaultOnDroppedNotification logs the dropped notification.
func DefaultOnDroppedNotification(ctx context.Context, notification DroppedNotification) {
	// bearer:disable go_lang_logger_leak
	log.Printf("rstream: dropped notification: %s\n", notification.String())
}

// Kind identifies which of the three Observer callbacks a Notification represents.
type Kind uint8

const (
	KindNext Kind = iota
	KindError
	KindComplete
)

func (k Kind) String() string {
	switch k {
	case KindNext:
		return "Next"
	case KindError:
		return "Error"
	case KindComplete:
		return "Complete"
	}
	return "Unknown"
}
