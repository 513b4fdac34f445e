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

import "fmt"

// BufferOverflowError is the terminal error delivered downstream when a
// Fail-strategy queue rejects an offer.
type BufferOverflowError struct {
	Capacity int
}

func (e *BufferOverflowError) Error() string {
	return fmt.Sprintf("rstream: buffer overflow, capacity %d exceeded", e.Capacity)
}

// ProtocolError reports a caller contract violation: a non-positive request
// count passed to ToReactiveSubscriber, or a pending Ack or BackPressure
// overflow inside BufferedSync.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "rstream: protocol violation: " + e.Message
}

// ObserverError wraps a panic recovered from a downstream Observer
// callback (onNext/onError/onComplete).
type ObserverError struct {
	Cause error
}

func (e *ObserverError) Error() string {
	return "rstream: observer callback panicked: " + e.Cause.Error()
}

func (e *ObserverError) Unwrap() error { return e.Cause }

func newObserverError(cause error) *ObserverError {
	return &ObserverError{Cause: cause}
}

// UnsubscriptionError wraps a panic recovered from a Cancelable teardown
// callback.
type UnsubscriptionError struct {
	Cause error
}

func (e *UnsubscriptionError) Error() string {
	return "rstream: teardown panicked: " + e.Cause.Error()
}

func (e *UnsubscriptionError) Unwrap() error { return e.Cause }

func newUnsubscriptionError(cause error) *UnsubscriptionError {
	return &UnsubscriptionError{Cause: cause}
}

// TrampolinePanicError wraps a panic recovered while draining a
// Trampoline's run loop.
type TrampolinePanicError struct {
	Cause error
}

func (e *TrampolinePanicError) Error() string {
	return "rstream: trampoline runnable panicked: " + e.Cause.Error()
}

func (e *TrampolinePanicError) Unwrap() error { return e.Cause }

func newTrampolinePanicError(cause error) *TrampolinePanicError {
	return &TrampolinePanicError{Cause: cause}
}

// recoverValueToError normalizes a recover() value into an error.
func recoverValueToError(v any) error {
	switch e := v.(type) {
	case error:
		return e
	case string:
		return fmt.Errorf("%s", e)
	default:
		return fmt.Errorf("%v", e)
	}
}
