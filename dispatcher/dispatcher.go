// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dispatcher provides a minimal scheduling surface that shunt
// workers and elements use to defer work — post an idle callback, run
// something after a delay — without depending on a particular event
// loop. It replaces the host library's per-thread main-context: Go
// elements run their own goroutines, so "idle" here means "run
// concurrently, off the calling stack" rather than "next main-loop
// iteration".
package dispatcher

import "time"

// Dispatcher schedules callbacks to run asynchronously relative to the
// calling goroutine.
type Dispatcher interface {
	// PostIdle schedules fn to run as soon as possible, off the calling
	// stack. It returns a Source that can cancel it before it runs.
	PostIdle(fn func()) Source

	// AddTimer schedules fn to run once, after d elapses. It returns a
	// Source that can cancel it before it fires.
	AddTimer(d time.Duration, fn func()) Source
}

// Source represents one scheduled callback.
type Source interface {
	// Cancel prevents the callback from running, if it hasn't already
	// started. It is safe to call more than once and after the
	// callback has already fired.
	Cancel()
}

// Default is a Dispatcher backed by a single goroutine draining a work
// channel — every idle callback and every fired timer runs serialized
// on that goroutine, giving callers ordering guarantees similar to a
// single-threaded main context without actually requiring one.
type Default struct {
	work chan func()
	done chan struct{}
}

// NewDefault starts a Default dispatcher's drain loop and returns it.
// Call Close to stop the loop once it is no longer needed.
func NewDefault() *Default {
	d := &Default{
		work: make(chan func(), 64),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Default) run() {
	for {
		select {
		case fn := <-d.work:
			fn()
		case <-d.done:
			return
		}
	}
}

// Close stops the dispatcher's drain loop. Pending callbacks that
// haven't been picked up yet are dropped.
func (d *Default) Close() {
	close(d.done)
}

type source struct {
	cancel chan struct{}
	once   func()
}

func (s *source) Cancel() {
	s.once()
}

// PostIdle implements Dispatcher.
func (d *Default) PostIdle(fn func()) Source {
	cancelled := make(chan struct{})
	var cancelOnce func()
	cancelOnce = func() {
		select {
		case <-cancelled:
		default:
			close(cancelled)
		}
	}

	go func() {
		select {
		case <-cancelled:
			return
		case d.work <- func() {
			select {
			case <-cancelled:
			default:
				fn()
			}
		}:
		case <-d.done:
		}
	}()

	return &source{cancel: cancelled, once: cancelOnce}
}

// AddTimer implements Dispatcher.
func (d *Default) AddTimer(delay time.Duration, fn func()) Source {
	cancelled := make(chan struct{})
	var cancelOnce func()
	cancelOnce = func() {
		select {
		case <-cancelled:
		default:
			close(cancelled)
		}
	}

	timer := time.AfterFunc(delay, func() {
		select {
		case <-cancelled:
			return
		case d.work <- func() {
			select {
			case <-cancelled:
			default:
				fn()
			}
		}:
		case <-d.done:
		}
	})

	return &source{cancel: cancelled, once: func() {
		timer.Stop()
		cancelOnce()
	}}
}
