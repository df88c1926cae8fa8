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

// Collector is a packet sink: it has a single input pad and no
// outputs, dropping every packet it receives after inspecting it for
// universal events. It terminates a pipeline branch whose data is not
// otherwise consumed — a /dev/null element.
type Collector struct {
	Element

	in *pad.InputPad
}

// NewCollector returns a Collector with its input pad created.
func NewCollector() *Collector {
	c := &Collector{}
	c.Init(c)
	c.in = c.addInputPad()
	return c
}

// InputPad returns the collector's single input pad.
func (c *Collector) InputPad() *pad.InputPad { return c.in }

// ProcessInput implements Handler by draining and discarding every
// queued packet.
func (c *Collector) ProcessInput(in *pad.InputPad) {
	for {
		p := in.QueuedPacket()
		if p == nil {
			break
		}
		HandleUniversalEvent(p)
		p.Unref()
	}
}

// OutputPadBlocked implements Handler; a Collector has no outputs, so
// this is never called, but the Handler interface requires it.
func (c *Collector) OutputPadBlocked(*pad.OutputPad) {}

// OutputPadUnblocked implements Handler; see OutputPadBlocked.
func (c *Collector) OutputPadUnblocked(*pad.OutputPad) {}
