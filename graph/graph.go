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

// Package graph provides the small set of wiring helpers a host uses
// to assemble elements into a pipeline: simplex/duplex connect, splice
// insertion, and whole-element replacement.
package graph

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/flowd/flow/pad"
)

// Simplex is anything exposing one input and one output pad — a
// element.Simplex, a connector.Connector, or any other single-stream
// element.
type Simplex interface {
	InputPad() *pad.InputPad
	OutputPad() *pad.OutputPad
}

// Duplex is anything exposing the upstream/downstream pad quartet an
// element.Duplex (or tlsproto.TlsProto) does.
type Duplex interface {
	UpstreamInputPad() *pad.InputPad
	UpstreamOutputPad() *pad.OutputPad
	DownstreamInputPad() *pad.InputPad
	DownstreamOutputPad() *pad.OutputPad
}

// ConnectSimplexSimplex wires a's output to b's input.
func ConnectSimplexSimplex(a, b Simplex) {
	pad.Connect(a.OutputPad(), b.InputPad())
}

// ConnectDuplexDuplex wires both halves of a and b together: a's
// downstream to b's upstream, so b sits further from the stream's
// origin than a.
func ConnectDuplexDuplex(a, b Duplex) {
	pad.Connect(a.DownstreamOutputPad(), b.UpstreamInputPad())
	pad.Connect(b.UpstreamOutputPad(), a.DownstreamInputPad())
}

// InsertSimplexBetween splices mid into an existing a→b simplex
// connection: disconnects a from b and reconnects a→mid→b. a and b
// need not currently be connected to each other; whatever a's output
// and b's input were wired to before is not reconnected, and only a's
// and b's own side of those old links is cleared.
func InsertSimplexBetween(a, mid, b Simplex) {
	pad.Disconnect(a.OutputPad())
	pad.Disconnect(b.InputPad())
	ConnectSimplexSimplex(a, mid)
	ConnectSimplexSimplex(mid, b)
}

// InsertDuplexBetween splices mid into an existing a↔b duplex
// connection, the duplex analogue of InsertSimplexBetween.
func InsertDuplexBetween(a, mid, b Duplex) {
	pad.Disconnect(a.DownstreamOutputPad())
	pad.Disconnect(b.UpstreamInputPad())
	ConnectDuplexDuplex(a, mid)
	ConnectDuplexDuplex(mid, b)
}

// ReplaceElement swaps old for new in place: every pad old's input
// pads and output pads were connected to is reconnected to new's
// correspondingly indexed pad, then old is left with no peers at all.
// old and new must have the same number of input pads and the same
// number of output pads, checked up front so a mismatched replacement
// fails loudly instead of silently dropping a connection.
func ReplaceElement(old, new Element) error {
	oldIn, newIn := old.InputPads(), new.InputPads()
	oldOut, newOut := old.OutputPads(), new.OutputPads()

	var errs error
	if len(oldIn) != len(newIn) {
		errs = multierror.Append(errs, fmt.Errorf(
			"graph: input pad count mismatch: old has %d, new has %d", len(oldIn), len(newIn)))
	}
	if len(oldOut) != len(newOut) {
		errs = multierror.Append(errs, fmt.Errorf(
			"graph: output pad count mismatch: old has %d, new has %d", len(oldOut), len(newOut)))
	}
	if errs != nil {
		return errs
	}

	for i, in := range oldIn {
		peer := in.Peer()
		pad.Disconnect(in)
		if peer != nil {
			pad.Disconnect(peer)
			pad.Connect(peer, newIn[i])
		}
	}
	for i, out := range oldOut {
		peer := out.Peer()
		pad.Disconnect(out)
		if peer != nil {
			pad.Disconnect(peer)
			pad.Connect(peer, newOut[i])
		}
	}

	return nil
}

// Element is the pad-introspection surface element.Element already
// provides, named here so graph doesn't need to import element (which
// would be the only user of graph's own exported helpers importing it
// back) — any type exposing its raw pad slices this way can be
// replaced.
type Element interface {
	InputPads() []*pad.InputPad
	OutputPads() []*pad.OutputPad
}
