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

// Package shunt is the asynchronous I/O substrate that bridges files,
// pipes, TCP, UDP, and worker/process transports to the pipeline's
// packet model, presenting every one of them as a bidirectional
// stream of read/write callbacks.
//
// Rather than a single global watcher thread polling every active
// shunt's file descriptor (the original's epoll-based design, needed
// because a GMainContext only has one thread to give it), each Shunt
// here runs its own reader/writer goroutines performing blocking I/O;
// Go's netpoller already multiplexes those goroutines' blocking calls
// underneath the runtime scheduler, so there is no separate watcher to
// write. A shared Runtime still plays the role of the original's
// global mutex and dispatch thread: it serializes user-callback
// delivery through one dispatcher so read_func/write_func observe a
// consistent, single-threaded view of a shunt even though the
// underlying I/O is concurrent.
package shunt

import (
	"sync"

	"github.com/flowd/flow/dispatcher"
)

// Runtime tracks every live shunt and owns the dispatcher their
// read/write callbacks are delivered through.
type Runtime struct {
	mu     sync.Mutex
	shunts map[*Shunt]struct{}
	disp   *dispatcher.Default
}

// NewRuntime starts a Runtime's dispatcher. Call Shutdown to release
// it once every shunt created against it has been destroyed.
func NewRuntime() *Runtime {
	return &Runtime{
		shunts: make(map[*Shunt]struct{}),
		disp:   dispatcher.NewDefault(),
	}
}

func (r *Runtime) track(s *Shunt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shunts[s] = struct{}{}
}

func (r *Runtime) untrack(s *Shunt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.shunts, s)
}

// ActiveCount returns how many shunts created against r are still
// tracked (not yet destroyed and finalized).
func (r *Runtime) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shunts)
}

// Shutdown releases the Runtime's dispatcher. It does not destroy
// shunts still using it — callers destroy those explicitly first, the
// same ordering flow_shutdown_shunts expects of its caller.
func (r *Runtime) Shutdown() {
	r.disp.Close()
}
