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

// Package bin groups a pipeline's elements under names for life-cycle
// management. A Bin is not itself on the data path — it never wires
// pads together — it just lets callers look an element up by name, tear
// a whole group down together, and discover which of a pipeline's pads
// are left unconnected.
package bin

import (
	"fmt"

	"github.com/flowd/flow/pad"
)

// Element is the surface a Bin needs from anything it manages. Every
// concrete element.Element-embedding type satisfies it automatically.
type Element interface {
	InputPads() []*pad.InputPad
	OutputPads() []*pad.OutputPad
}

// Disposer is implemented by elements that need explicit teardown;
// Bin calls Dispose on every member when the Bin itself is disposed.
type Disposer interface {
	Dispose()
}

// Bin is a named registry of elements.
type Bin struct {
	byName map[string]Element
	order  []string
}

// New returns an empty Bin.
func New() *Bin {
	return &Bin{byName: make(map[string]Element)}
}

// Add registers element under name. It returns an error if name is
// already taken, since silently replacing a live pipeline element would
// leak its pads.
func (b *Bin) Add(name string, element Element) error {
	if _, exists := b.byName[name]; exists {
		return fmt.Errorf("bin: element %q already registered", name)
	}
	b.byName[name] = element
	b.order = append(b.order, name)
	return nil
}

// Remove unregisters the element called name. It reports whether an
// element by that name was found.
func (b *Bin) Remove(name string) bool {
	if _, exists := b.byName[name]; !exists {
		return false
	}
	delete(b.byName, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the element called name, or nil if none is registered.
func (b *Bin) Get(name string) Element {
	return b.byName[name]
}

// Names returns every registered name in the order elements were
// added.
func (b *Bin) Names() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Elements returns every registered element in the order they were
// added.
func (b *Bin) Elements() []Element {
	out := make([]Element, 0, len(b.order))
	for _, n := range b.order {
		out = append(out, b.byName[n])
	}
	return out
}

// UnconnectedInputPads returns every input pad, across every element in
// the bin, that has no peer. Useful for validating a constructed
// pipeline exposes exactly the boundary pads the caller expects to wire
// up externally.
func (b *Bin) UnconnectedInputPads() []*pad.InputPad {
	var out []*pad.InputPad
	for _, n := range b.order {
		for _, p := range b.byName[n].InputPads() {
			if p.Peer() == nil {
				out = append(out, p)
			}
		}
	}
	return out
}

// UnconnectedOutputPads returns every output pad, across every element
// in the bin, that has no peer.
func (b *Bin) UnconnectedOutputPads() []*pad.OutputPad {
	var out []*pad.OutputPad
	for _, n := range b.order {
		for _, p := range b.byName[n].OutputPads() {
			if p.Peer() == nil {
				out = append(out, p)
			}
		}
	}
	return out
}

// Dispose tears down every registered element that implements Disposer,
// then clears the registry.
func (b *Bin) Dispose() {
	for _, n := range b.order {
		if d, ok := b.byName[n].(Disposer); ok {
			d.Dispose()
		}
	}
	b.byName = make(map[string]Element)
	b.order = nil
}
