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

// Simplex is a one-input, one-output pass-through element: every
// packet arriving on its input pad is pushed to its output pad, and
// blocking on the output propagates straight back to the input.
//
// It is usually embedded by a more specific element (a protocol codec,
// a filter) that overrides ProcessInput via its own Handler while
// reusing Simplex's pad wiring and backpressure behavior.
type Simplex struct {
	Element

	in  *pad.InputPad
	out *pad.OutputPad
}

// NewSimplex returns a Simplex with its input and output pad created
// and wired to itself as Handler.
func NewSimplex() *Simplex {
	s := &Simplex{}
	s.Init(s)
	s.in = s.addInputPad()
	s.out = s.addOutputPad()
	return s
}

// InputPad returns the element's single input pad.
func (s *Simplex) InputPad() *pad.InputPad { return s.in }

// OutputPad returns the element's single output pad.
func (s *Simplex) OutputPad() *pad.OutputPad { return s.out }

// ProcessInput implements Handler by forwarding every queued packet
// to the output pad unmodified.
func (s *Simplex) ProcessInput(in *pad.InputPad) {
	for {
		p := in.QueuedPacket()
		if p == nil {
			break
		}
		s.out.Push(p)
	}
}

// OutputPadBlocked implements Handler by blocking the input pad.
func (s *Simplex) OutputPadBlocked(_ *pad.OutputPad) {
	s.in.Block()
}

// OutputPadUnblocked implements Handler by unblocking the input pad.
func (s *Simplex) OutputPadUnblocked(_ *pad.OutputPad) {
	s.in.Unblock()
}
