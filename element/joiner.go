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

// Joiner is a many-to-one fan-in element: packets arriving on any of
// its input pads are forwarded, unmodified and in arrival order, to
// its single output pad.
type Joiner struct {
	Element

	out *pad.OutputPad
}

// NewJoiner returns a Joiner with its output pad created; input pads
// are added on demand with AddInputPad.
func NewJoiner() *Joiner {
	j := &Joiner{}
	j.Init(j)
	j.out = j.addOutputPad()
	return j
}

// OutputPad returns the joiner's single output pad.
func (j *Joiner) OutputPad() *pad.OutputPad { return j.out }

// AddInputPad appends a new input pad and returns it.
func (j *Joiner) AddInputPad() *pad.InputPad {
	return j.Element.AddInputPad()
}

// RemoveInputPad detaches in from the joiner.
func (j *Joiner) RemoveInputPad(in *pad.InputPad) bool {
	return j.Element.RemoveInputPad(in)
}

// ProcessInput implements Handler by forwarding every queued packet
// straight to the output pad.
func (j *Joiner) ProcessInput(in *pad.InputPad) {
	for {
		p := in.QueuedPacket()
		if p == nil {
			break
		}
		HandleUniversalEvent(p)
		j.out.Push(p)
	}
}

// OutputPadBlocked implements Handler: the single output blocking
// blocks every input.
func (j *Joiner) OutputPadBlocked(_ *pad.OutputPad) {
	for _, in := range j.InputPads() {
		in.Block()
	}
}

// OutputPadUnblocked implements Handler: the single output unblocking
// unblocks every input.
func (j *Joiner) OutputPadUnblocked(_ *pad.OutputPad) {
	for _, in := range j.InputPads() {
		in.Unblock()
	}
}
