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

package element

import (
	"sync"

	"github.com/flowd/flow/packet"
	"github.com/flowd/flow/pad"
)

// UserAdapter lets arbitrary Go code sit inside a pipeline: packets
// arriving from the pipeline land in an inbound queue a consumer drains
// with Read, and packets a producer hands to Write are queued for
// delivery to the pipeline's output pad as soon as it is unblocked.
//
// Unlike the other element kinds, UserAdapter's queues are also
// accessed from outside the pad-dispatch machinery (by whatever
// goroutine is driving the user side), so access to them is
// synchronized with a mutex rather than relying on dispatch-depth
// serialization alone.
type UserAdapter struct {
	Element

	in  *pad.InputPad
	out *pad.OutputPad

	mu         sync.Mutex
	toUser     *packet.Queue
	fromUser   *packet.Queue
	notifyFunc func()
}

// NewUserAdapter returns a UserAdapter with its pads and queues
// initialized.
func NewUserAdapter() *UserAdapter {
	u := &UserAdapter{
		toUser:   packet.NewQueue(),
		fromUser: packet.NewQueue(),
	}
	u.Init(u)
	u.in = u.addInputPad()
	u.out = u.addOutputPad()
	return u
}

// SetNotifyFunc registers a callback invoked whenever a packet becomes
// available to Read. If queued input already exists, it fires
// immediately so a late subscriber doesn't miss a pending notification.
func (u *UserAdapter) SetNotifyFunc(f func()) {
	u.mu.Lock()
	u.notifyFunc = f
	pending := u.toUser.LengthPackets() > 0
	u.mu.Unlock()

	if f != nil && pending {
		f()
	}
}

func (u *UserAdapter) notify() {
	u.mu.Lock()
	f := u.notifyFunc
	u.mu.Unlock()
	if f != nil {
		f()
	}
}

// Read removes and returns the next packet delivered from the pipeline,
// or nil if none is queued.
func (u *UserAdapter) Read() *packet.Packet {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.toUser.PopPacket()
}

// Write queues p for delivery to the pipeline and immediately attempts
// to push it onward if the output pad is unblocked.
func (u *UserAdapter) Write(p *packet.Packet) {
	u.mu.Lock()
	u.fromUser.Push(p)
	u.mu.Unlock()

	u.pushFromUser()
}

// Push re-attempts delivery of any backlog queued by Write. Call this
// after Write if the output pad was blocked at the time and you want to
// retry without waiting for an unblock notification.
func (u *UserAdapter) Push() {
	u.pushFromUser()
}

func (u *UserAdapter) pushFromUser() {
	for !u.out.IsBlocked() {
		u.mu.Lock()
		p := u.fromUser.PopPacket()
		u.mu.Unlock()

		if p == nil {
			break
		}

		HandleUniversalEvent(p)
		u.out.Push(p)
	}
}

// Block blocks the element's input pad, halting delivery from the
// pipeline into the inbound queue.
func (u *UserAdapter) Block() { u.in.Block() }

// Unblock unblocks the element's input pad.
func (u *UserAdapter) Unblock() { u.in.Unblock() }

// ProcessInput implements Handler by moving every queued packet into
// the inbound user queue and notifying the registered callback.
func (u *UserAdapter) ProcessInput(in *pad.InputPad) {
	any := false

	for {
		p := in.QueuedPacket()
		if p == nil {
			break
		}
		HandleUniversalEvent(p)

		u.mu.Lock()
		u.toUser.Push(p)
		u.mu.Unlock()
		any = true
	}

	if any {
		u.notify()
	}
}

// OutputPadBlocked implements Handler; a blocked output simply means
// Write's backlog accumulates in fromUser until unblocked.
func (u *UserAdapter) OutputPadBlocked(*pad.OutputPad) {}

// OutputPadUnblocked implements Handler by draining any backlog queued
// by Write while the output was blocked.
func (u *UserAdapter) OutputPadUnblocked(*pad.OutputPad) {
	u.pushFromUser()
}
