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

// Package pad implements the connectors elements use to exchange
// packets: InputPad on the receiving side, OutputPad on the sending
// side, joined by Connect into a push chain.
//
// Both pad kinds share the re-entrant-destruction pattern: a pad may be
// disposed of from inside a callback it is itself driving (an element
// tearing down its own pads mid-push, say). Disposal during dispatch
// quiesces the pad immediately — its queue is dropped and its peer
// link severed — but final cleanup waits until the outermost dispatch
// frame returns, so no caller ever observes a half-torn-down pad.
package pad

import "github.com/flowd/flow/packet"

// Owner is implemented by the element a pad belongs to. A pad calls
// back into its owner to deliver input and to report blocked-state
// transitions on its outputs; the owner is also responsible for its own
// dispatch-depth bookkeeping, exposed here as EnterDispatch/LeaveDispatch
// so a pad can bracket owner callbacks the same way the owner brackets
// pad callbacks.
type Owner interface {
	// DispatchInput is invoked when pad may have data to hand the
	// element. Implementations must not re-enter the element's input
	// processing: if the element is already dispatching another pad's
	// input, the implementation queues pad for a follow-up pass instead
	// of nesting the call.
	DispatchInput(pad *InputPad)

	// DispatchOutputBlocked and DispatchOutputUnblocked report a change
	// in pad's blocked state to the owning element.
	DispatchOutputBlocked(pad *OutputPad)
	DispatchOutputUnblocked(pad *OutputPad)

	// EnterDispatch and LeaveDispatch bracket any call a pad makes into
	// its owner, so the owner can defer its own destruction the same
	// way a Pad defers its.
	EnterDispatch()
	LeaveDispatch()
}

// Pusher is the common surface both InputPad and OutputPad expose, so
// either kind can serve as the other's peer.
type Pusher interface {
	Push(p *packet.Packet)
	Block()
	Unblock()
	IsBlocked() bool
}

// peerSetter is satisfied by both pad kinds via the embedded Pad; it is
// unexported so only this package's own pad types can be Connected.
type peerSetter interface {
	setPeer(Pusher)
}

// Pad holds the state common to InputPad and OutputPad: the owning
// element, the connected peer, the blocked flag, the optional packet
// queue, and the dispatch-depth guard.
type Pad struct {
	owner Owner
	peer  Pusher
	queue *packet.Queue

	isBlocked     bool
	dispatchDepth int
	wasDisposed   bool
	onFinalize    func()
}

func newPad(owner Owner) Pad {
	if owner == nil {
		panic("pad: created with a nil owner")
	}
	return Pad{owner: owner}
}

// Owner returns the element this pad belongs to.
func (p *Pad) Owner() Owner { return p.owner }

// Peer returns the pad this one is connected to, or nil.
func (p *Pad) Peer() Pusher { return p.peer }

// IsBlocked reports whether the pad has been explicitly blocked.
func (p *Pad) IsBlocked() bool { return p.isBlocked }

// QueueLength reports how many packets are currently queued on this
// pad. Used by elements and metrics to observe backpressure.
func (p *Pad) QueueLength() int {
	if p.queue == nil {
		return 0
	}
	return p.queue.LengthPackets()
}

func (p *Pad) setPeer(peer Pusher) { p.peer = peer }

func (p *Pad) dispatchEnter() { p.dispatchDepth++ }

func (p *Pad) dispatchLeave() {
	p.dispatchDepth--
	if p.wasDisposed && p.dispatchDepth == 0 {
		p.finalize()
	}
}

func (p *Pad) finalize() {
	p.queue = nil
	if p.onFinalize != nil {
		f := p.onFinalize
		p.onFinalize = nil
		f()
	}
}

// SetOnFinalize registers a callback invoked exactly once, at the
// moment this pad's state is torn down — immediately if Dispose is
// called outside of any dispatch, or deferred until the outermost
// dispatch frame exits if called from within one.
func (p *Pad) SetOnFinalize(f func()) { p.onFinalize = f }

// Dispose tears this pad down: its queue is dropped and its peer link
// severed. If a callback originating from this pad is on the stack
// (dispatchDepth > 0), those effects happen now but onFinalize is
// deferred until dispatch unwinds to depth zero; otherwise it fires
// immediately.
func (p *Pad) Dispose() {
	if p.queue != nil {
		p.queue.Clear()
	}
	p.peer = nil

	if p.dispatchDepth > 0 {
		p.wasDisposed = true
		return
	}

	p.finalize()
}

func (p *Pad) blockGuard(fn func()) {
	if p.isBlocked {
		return
	}
	p.isBlocked = true
	fn()
}

func (p *Pad) unblockGuard(fn func()) {
	if !p.isBlocked {
		return
	}
	p.isBlocked = false
	fn()
}

// Connect wires a and b as each other's peer and then stimulates data
// flow across the new connection by pushing a nil packet in each
// direction, so a side with already-queued output starts draining
// without waiting for its next natural push.
func Connect(a, b Pusher) {
	a.(peerSetter).setPeer(b)
	b.(peerSetter).setPeer(a)

	a.Push(nil)
	b.Push(nil)
}

// Disconnect severs pad's link to its peer, if any.
func Disconnect(p Pusher) {
	p.(peerSetter).setPeer(nil)
}
