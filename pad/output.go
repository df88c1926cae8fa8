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

// OutputPad is the connector an element sends packets out on.
type OutputPad struct {
	Pad
}

// NewOutputPad returns an output pad owned by owner.
func NewOutputPad(owner Owner) *OutputPad {
	return &OutputPad{Pad: newPad(owner)}
}

// tryPushToConnected drains any queued packets to the peer while
// unblocked and connected. An output pad accumulates packets only when
// blocked or disconnected, so once neither is true the queue empties
// and is discarded — there is no point keeping an empty queue object
// alive between uses.
func (op *OutputPad) tryPushToConnected() {
	if op.queue == nil {
		return
	}

	op.dispatchEnter()

	for !op.isBlocked && op.peer != nil {
		p := op.queue.PopPacket()
		if p == nil {
			op.queue = nil
			break
		}
		op.peer.Push(p)
	}

	op.dispatchLeave()
}

// Push sends packet downstream immediately if the pad is unblocked and
// connected; otherwise it is queued for later delivery. Push(nil)
// instead attempts to drain any already-queued backlog — used both
// directly and as Connect's stimulation call.
func (op *OutputPad) Push(p *packet.Packet) {
	op.owner.EnterDispatch()

	switch {
	case p == nil:
		op.tryPushToConnected()
	case !op.isBlocked && op.peer != nil:
		op.peer.Push(p)
	default:
		if op.queue == nil {
			op.queue = packet.NewQueue()
		}
		op.queue.Push(p)
	}

	op.owner.LeaveDispatch()
}

// Block marks this pad blocked and notifies the owner.
func (op *OutputPad) Block() {
	op.owner.EnterDispatch()

	op.blockGuard(func() {
		metrics.PadBlocked("output")
		op.owner.DispatchOutputBlocked(op)
	})

	op.owner.LeaveDispatch()
}

// Unblock marks this pad unblocked, notifies the owner, and drains any
// queued backlog to the peer.
func (op *OutputPad) Unblock() {
	op.owner.EnterDispatch()

	op.unblockGuard(func() {
		op.dispatchEnter()

		metrics.PadUnblocked("output")
		op.owner.DispatchOutputUnblocked(op)
		op.tryPushToConnected()

		op.dispatchLeave()
	})

	op.owner.LeaveDispatch()
}
