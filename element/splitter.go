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

import "github.com/flowd/flow/pad"

// Splitter is a one-to-many fan-out element: every packet arriving on
// its single input is duplicated to every output pad.
type Splitter struct {
	Element

	in *pad.InputPad
}

// NewSplitter returns a Splitter with its input pad created; output
// pads are added on demand with AddOutputPad.
func NewSplitter() *Splitter {
	s := &Splitter{}
	s.Init(s)
	s.in = s.addInputPad()
	return s
}

// InputPad returns the splitter's single input pad.
func (s *Splitter) InputPad() *pad.InputPad { return s.in }

// AddOutputPad appends a new output pad and returns it.
func (s *Splitter) AddOutputPad() *pad.OutputPad {
	return s.Element.AddOutputPad()
}

// RemoveOutputPad detaches out from the splitter.
func (s *Splitter) RemoveOutputPad(out *pad.OutputPad) bool {
	return s.Element.RemoveOutputPad(out)
}

// ProcessInput implements Handler. For each queued packet, it pushes a
// copy to every output pad but the first, and the original packet to
// the first — last, since that call may free it (its reference count
// may drop to zero once every output has taken its copy).
func (s *Splitter) ProcessInput(in *pad.InputPad) {
	for {
		p := in.QueuedPacket()
		if p == nil {
			break
		}

		HandleUniversalEvent(p)

		outputs := s.OutputPads()
		if len(outputs) == 0 {
			p.Unref()
			continue
		}

		for i := 1; i < len(outputs); i++ {
			outputs[i].Push(p.Ref())
		}
		outputs[0].Push(p)
	}
}

// OutputPadBlocked implements Handler: any output going blocked blocks
// the single input, since a Splitter cannot hold back some fan-out
// targets while feeding others.
func (s *Splitter) OutputPadBlocked(_ *pad.OutputPad) {
	if !s.in.IsBlocked() {
		s.in.Block()
	}
}

// OutputPadUnblocked implements Handler: the input unblocks only once
// every output pad is unblocked.
//
// This is an O(outputs) scan on every unblock, matching the original's
// own trade-off: a blocked-output counter would be faster, but
// fan-out counts are small enough in practice that it isn't worth the
// bookkeeping.
func (s *Splitter) OutputPadUnblocked(_ *pad.OutputPad) {
	for _, out := range s.OutputPads() {
		if out.IsBlocked() {
			return
		}
	}

	if s.in.IsBlocked() {
		s.in.Unblock()
	}
}
