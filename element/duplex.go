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

// Duplex is a two-way pass-through element with an upstream and a
// downstream side, each carrying an input and an output pad. Data
// arriving on the upstream input is pushed to the downstream output,
// and vice versa; this is the shape protocol elements like tlsproto's
// TLS codec build on, interposing translation between the two
// directions instead of pure pass-through.
type Duplex struct {
	Element

	upstreamIn    *pad.InputPad
	upstreamOut   *pad.OutputPad
	downstreamIn  *pad.InputPad
	downstreamOut *pad.OutputPad
}

// NewDuplex returns a Duplex with all four pads created and wired to
// itself as Handler.
func NewDuplex() *Duplex {
	d := &Duplex{}
	d.Init(d)
	d.upstreamIn = d.addInputPad()
	d.downstreamIn = d.addInputPad()
	d.upstreamOut = d.addOutputPad()
	d.downstreamOut = d.addOutputPad()
	return d
}

// UpstreamInputPad returns the pad facing the element closer to the
// origin of the stream.
func (d *Duplex) UpstreamInputPad() *pad.InputPad { return d.upstreamIn }

// UpstreamOutputPad returns the output pad facing upstream.
func (d *Duplex) UpstreamOutputPad() *pad.OutputPad { return d.upstreamOut }

// DownstreamInputPad returns the pad facing the element closer to the
// stream's ultimate consumer.
func (d *Duplex) DownstreamInputPad() *pad.InputPad { return d.downstreamIn }

// DownstreamOutputPad returns the output pad facing downstream.
func (d *Duplex) DownstreamOutputPad() *pad.OutputPad { return d.downstreamOut }

// ProcessInput implements Handler by forwarding every queued packet to
// the pad on the opposite side of the element.
func (d *Duplex) ProcessInput(in *pad.InputPad) {
	out := d.downstreamOut
	if in == d.downstreamIn {
		out = d.upstreamOut
	}

	for {
		p := in.QueuedPacket()
		if p == nil {
			break
		}
		out.Push(p)
	}
}

// OutputPadBlocked implements Handler by blocking the input pad on the
// opposite side.
func (d *Duplex) OutputPadBlocked(out *pad.OutputPad) {
	if out == d.upstreamOut {
		d.downstreamIn.Block()
	} else {
		d.upstreamIn.Block()
	}
}

// OutputPadUnblocked implements Handler by unblocking the input pad on
// the opposite side.
func (d *Duplex) OutputPadUnblocked(out *pad.OutputPad) {
	if out == d.upstreamOut {
		d.downstreamIn.Unblock()
	} else {
		d.upstreamIn.Unblock()
	}
}
