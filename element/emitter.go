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

// Emitter is a packet source: it has a single output pad and no
// inputs. Concrete sources (shunt-backed connectors, synthetic test
// generators) embed Emitter and push onto its OutputPad directly —
// there is no ProcessInput to implement since nothing ever feeds it.
type Emitter struct {
	Element

	out *pad.OutputPad
}

// NewEmitter returns an Emitter with its output pad created.
func NewEmitter() *Emitter {
	e := &Emitter{}
	e.Init(e)
	e.out = e.addOutputPad()
	return e
}

// OutputPad returns the emitter's single output pad.
func (e *Emitter) OutputPad() *pad.OutputPad { return e.out }

// ProcessInput implements Handler; an Emitter has no inputs, so this is
// never called, but the Handler interface requires it.
func (e *Emitter) ProcessInput(*pad.InputPad) {}

// OutputPadBlocked implements Handler. Subclasses that care about
// backpressure (e.g. to stop reading from a shunt) override this by not
// embedding Emitter directly but composing their own Handler around it;
// the base behavior is a no-op since a bare Emitter has nothing upstream
// to block.
func (e *Emitter) OutputPadBlocked(*pad.OutputPad) {}

// OutputPadUnblocked implements Handler; see OutputPadBlocked.
func (e *Emitter) OutputPadUnblocked(*pad.OutputPad) {}
