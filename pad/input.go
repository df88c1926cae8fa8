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

package pad

import (
	"github.com/flowd/flow/metrics"
	"github.com/flowd/flow/packet"
)

// InputPad is the connector an element receives packets on.
type InputPad struct {
	Pad
}

// NewInputPad returns an input pad owned by owner.
func NewInputPad(owner Owner) *InputPad {
	return &InputPad{Pad: newPad(owner)}
}

// processOutput hands queued data to the owner, unless the pad is
// currently blocked.
func (ip *InputPad) processOutput() {
	if ip.queue == nil {
		return
	}
	if ip.isBlocked {
		return
	}
	ip.owner.DispatchInput(ip)
}

// Push enqueues packet (if non-nil) and attempts immediate delivery to
// the owning element.
func (ip *InputPad) Push(p *packet.Packet) {
	ip.owner.EnterDispatch()
	ip.dispatchEnter()

	if p != nil {
		if ip.queue == nil {
			ip.queue = packet.NewQueue()
		}
		ip.queue.Push(p)
	}

	ip.processOutput()

	ip.dispatchLeave()
	ip.owner.LeaveDispatch()
}

// Block marks this pad blocked and propagates the block to its peer.
func (ip *InputPad) Block() {
	ip.owner.EnterDispatch()

	ip.blockGuard(func() {
		metrics.PadBlocked("input")
		if ip.peer != nil {
			ip.peer.Block()
		}
	})

	ip.owner.LeaveDispatch()
}

// Unblock marks this pad unblocked, propagates to its peer, and then
// attempts to drain any queued input into the owning element.
func (ip *InputPad) Unblock() {
	ip.owner.EnterDispatch()

	ip.unblockGuard(func() {
		ip.dispatchEnter()

		metrics.PadUnblocked("input")
		if ip.peer != nil {
			ip.peer.Unblock()
		}
		ip.processOutput()

		ip.dispatchLeave()
	})

	ip.owner.LeaveDispatch()
}

// QueuedPacket removes and returns the next packet from this pad's
// queue, or nil if it is empty. Elements call this from DispatchInput
// to pull the packet(s) that triggered it.
func (ip *InputPad) QueuedPacket() *packet.Packet {
	if ip.queue == nil {
		return nil
	}
	return ip.queue.PopPacket()
}

// Queue exposes the pad's packet queue directly, creating one if none
// exists yet. Elements that need byte-level dequeue (PopBytes,
// PopBytesExact, ByteIterInit) on accumulated input use this.
func (ip *InputPad) Queue() *packet.Queue {
	if ip.queue == nil {
		ip.queue = packet.NewQueue()
	}
	return ip.queue
}
