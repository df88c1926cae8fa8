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

// Package element implements the pipeline processing node and the
// family of concrete node shapes built on it: Simplex and Duplex
// pass-throughs, Splitter/Joiner fan-out/fan-in, Collector/Emitter
// endpoints, and UserAdapter for bridging arbitrary Go code into a
// pipeline.
package element

import (
	"github.com/flowd/flow/event"
	"github.com/flowd/flow/packet"
	"github.com/flowd/flow/pad"
)

// Handler implements one element kind's reaction to input arrival and
// to output backpressure. Every concrete element type embeds Element
// and supplies a Handler (usually itself) via Init.
type Handler interface {
	ProcessInput(in *pad.InputPad)
	OutputPadBlocked(out *pad.OutputPad)
	OutputPadUnblocked(out *pad.OutputPad)
}

// Element is embedded by every concrete element kind. It owns the
// element's pads and implements pad.Owner: the dispatch-depth guard
// that makes destruction safe from inside a callback the element
// itself triggered, and the current-input/pending-inputs bookkeeping
// that keeps a recursive Push from reentering ProcessInput.
type Element struct {
	handler Handler

	inputPads  []*pad.InputPad
	outputPads []*pad.OutputPad

	dispatchDepth int
	wasDisposed   bool

	currentInput  *pad.InputPad
	pendingInputs []*pad.InputPad

	inputPadRemoved  bool
	outputPadRemoved bool
}

// Init wires in the Handler implementing this element's behavior. Every
// concrete constructor must call it before the element is connected to
// anything.
func (e *Element) Init(h Handler) {
	e.handler = h
}

// InputPads returns the element's live input pads, in index order.
func (e *Element) InputPads() []*pad.InputPad {
	return compactedInputs(e.inputPads)
}

// OutputPads returns the element's live output pads, in index order.
func (e *Element) OutputPads() []*pad.OutputPad {
	return compactedOutputs(e.outputPads)
}

func compactedInputs(pads []*pad.InputPad) []*pad.InputPad {
	live := make([]*pad.InputPad, 0, len(pads))
	for _, p := range pads {
		if p != nil {
			live = append(live, p)
		}
	}
	return live
}

func compactedOutputs(pads []*pad.OutputPad) []*pad.OutputPad {
	live := make([]*pad.OutputPad, 0, len(pads))
	for _, p := range pads {
		if p != nil {
			live = append(live, p)
		}
	}
	return live
}

func (e *Element) addInputPad() *pad.InputPad {
	p := pad.NewInputPad(e)
	e.inputPads = append(e.inputPads, p)
	return p
}

func (e *Element) addOutputPad() *pad.OutputPad {
	p := pad.NewOutputPad(e)
	e.outputPads = append(e.outputPads, p)
	return p
}

// AddOutputPad appends a new output pad, safe to call during dispatch
// (Splitter.AddOutputPad uses this).
func (e *Element) AddOutputPad() *pad.OutputPad {
	return e.addOutputPad()
}

// AddInputPad appends a new input pad, safe to call during dispatch
// (Joiner.AddInputPad uses this).
func (e *Element) AddInputPad() *pad.InputPad {
	return e.addInputPad()
}

// RemoveOutputPad detaches p from the element. During dispatch the slot
// is left as a hole (so any in-flight iteration over output pads keeps
// valid indices) and compacted once dispatch unwinds; otherwise it is
// removed immediately.
func (e *Element) RemoveOutputPad(p *pad.OutputPad) bool {
	for i, cur := range e.outputPads {
		if cur != p {
			continue
		}
		if e.dispatchDepth > 0 {
			e.outputPads[i] = nil
			e.outputPadRemoved = true
		} else {
			e.outputPads = append(e.outputPads[:i], e.outputPads[i+1:]...)
		}
		p.Dispose()
		return true
	}
	return false
}

// RemoveInputPad detaches p from the element, with the same
// dispatch-safe hole-then-compact behavior as RemoveOutputPad.
func (e *Element) RemoveInputPad(p *pad.InputPad) bool {
	for i, cur := range e.inputPads {
		if cur != p {
			continue
		}
		if e.dispatchDepth > 0 {
			e.inputPads[i] = nil
			e.inputPadRemoved = true
		} else {
			e.inputPads = append(e.inputPads[:i], e.inputPads[i+1:]...)
		}
		for j, pending := range e.pendingInputs {
			if pending == p {
				e.pendingInputs = append(e.pendingInputs[:j], e.pendingInputs[j+1:]...)
				break
			}
		}
		p.Dispose()
		return true
	}
	return false
}

// EnterDispatch implements pad.Owner.
func (e *Element) EnterDispatch() { e.dispatchDepth++ }

// LeaveDispatch implements pad.Owner. It compacts any pad-removal holes
// and runs deferred finalization once dispatch unwinds to depth zero.
func (e *Element) LeaveDispatch() {
	e.dispatchDepth--
	if e.dispatchDepth > 0 {
		return
	}

	if e.inputPadRemoved {
		e.inputPads = compactedInputs(e.inputPads)
		e.inputPadRemoved = false
	}
	if e.outputPadRemoved {
		e.outputPads = compactedOutputs(e.outputPads)
		e.outputPadRemoved = false
	}

	if e.wasDisposed {
		e.finalize()
	}
}

func (e *Element) finalize() {
	e.inputPads = nil
	e.outputPads = nil
}

// Dispose tears this element down: every pad is disconnected so it
// generates no further output. If a callback originating from one of
// the element's own pads is on the stack, the element stays alive
// until dispatch unwinds to depth zero.
func (e *Element) Dispose() {
	e.pendingInputs = nil

	for _, p := range e.inputPads {
		if p != nil {
			pad.Disconnect(p)
		}
	}
	for _, p := range e.outputPads {
		if p != nil {
			pad.Disconnect(p)
		}
	}

	if e.dispatchDepth > 0 {
		e.wasDisposed = true
		return
	}

	e.finalize()
}

// DispatchOutputBlocked implements pad.Owner by forwarding to the
// element's Handler.
func (e *Element) DispatchOutputBlocked(out *pad.OutputPad) {
	if e.handler != nil {
		e.handler.OutputPadBlocked(out)
	}
}

// DispatchOutputUnblocked implements pad.Owner by forwarding to the
// element's Handler.
func (e *Element) DispatchOutputUnblocked(out *pad.OutputPad) {
	if e.handler != nil {
		e.handler.OutputPadUnblocked(out)
	}
}

// DispatchInput implements pad.Owner. If the element is already
// processing this same input pad, the call returns without doing
// anything; if it is processing another input pad, in is deferred to a
// pending list instead of recursing into Handler.ProcessInput;
// otherwise it is processed now, followed by any pads queued during
// that processing.
func (e *Element) DispatchInput(in *pad.InputPad) {
	if e.currentInput != nil {
		if e.currentInput == in {
			return
		}
		for _, pending := range e.pendingInputs {
			if pending == in {
				return
			}
		}
		e.pendingInputs = append(e.pendingInputs, in)
		return
	}

	e.dispatchToHandler(in)

	for len(e.pendingInputs) > 0 {
		next := e.pendingInputs[0]
		e.pendingInputs = e.pendingInputs[1:]
		if next.QueueLength() > 0 {
			e.dispatchToHandler(next)
		}
	}

	e.currentInput = nil
}

func (e *Element) dispatchToHandler(in *pad.InputPad) {
	e.currentInput = in
	if e.handler != nil {
		e.handler.ProcessInput(in)
	}
}

// HandleUniversalEvent inspects p for a stream-lifecycle event that
// every pass-through element recognizes identically. Elements that need
// to react to one (e.g. a connector tracking stream.end to flip its
// connectivity state) check for it ahead of calling this; elements that
// merely forward such events call this first so future additions to
// the universal vocabulary have one place to land. It reports whether p
// carried a recognized universal event.
func HandleUniversalEvent(p *packet.Packet) bool {
	if p.Format() != packet.Object {
		return false
	}
	switch p.Object().(type) {
	case event.Begin, event.End, event.EndConverse,
		event.SegmentBeginEvent, event.SegmentEndEvent, event.Denied:
		return true
	default:
		return false
	}
}
