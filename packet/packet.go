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

// Package packet implements the pipeline's immutable traffic unit and the
// FIFO queue elements use to accumulate it.
//
// A Packet is either a buffer of bytes or a boxed control event; never
// both. Packets are reference-counted so the same buffer can be fanned
// out to many output pads (see element.Splitter) without copying.
package packet

import "sync/atomic"

// Format identifies which of a Packet's two variants is populated.
type Format uint8

const (
	// Buffer packets carry a byte range.
	Buffer Format = iota
	// Object packets carry exactly one control event.
	Object
)

func (f Format) String() string {
	if f == Object {
		return "object"
	}
	return "buffer"
}

// Packet is the pipeline's atomic unit of traffic.
//
// Construct with NewBuffer or NewObject; never build one by hand, since
// both the refcount and the size bookkeeping must start consistent.
type Packet struct {
	format Format
	data   []byte
	object any

	refs int32
}

// NewBuffer copies data into packet-owned storage and returns a Packet
// with a single reference.
func NewBuffer(data []byte) *Packet {
	owned := make([]byte, len(data))
	copy(owned, data)
	return &Packet{format: Buffer, data: owned, refs: 1}
}

// NewBufferNoCopy wraps data without copying it. The caller must not
// mutate data after this call; it is for zero-copy producers that
// already own an immutable range.
func NewBufferNoCopy(data []byte) *Packet {
	return &Packet{format: Buffer, data: data, refs: 1}
}

// NewObject boxes a single control event. obj is never copied nor
// mutated after construction; see Object.
func NewObject(obj any) *Packet {
	return &Packet{format: Object, object: obj, refs: 1}
}

// Format reports which variant this packet holds.
func (p *Packet) Format() Format {
	return p.format
}

// Size returns the byte length of a buffer packet; object packets are
// always zero-contributing to byte accounting.
func (p *Packet) Size() int {
	if p.format != Buffer {
		return 0
	}
	return len(p.data)
}

// Data returns the byte range of a buffer packet. Callers must treat it
// as read-only; the packet may be shared via Ref.
func (p *Packet) Data() []byte {
	return p.data
}

// Object returns the boxed control event of an object packet, or nil for
// a buffer packet.
func (p *Packet) Object() any {
	return p.object
}

// Ref increments the reference count and returns p, so calls can be
// chained at the push site (e.g. element.Splitter fanning one packet to
// N outputs).
func (p *Packet) Ref() *Packet {
	atomic.AddInt32(&p.refs, 1)
	return p
}

// Unref decrements the reference count. It reports whether this was the
// final reference; the caller that observes true is responsible for
// treating the packet as gone (Go's GC reclaims the memory once no more
// pointers exist, but callers tracking §8's ref-balance invariant use
// the return value to detect use-after-unref bugs in tests).
func (p *Packet) Unref() bool {
	return atomic.AddInt32(&p.refs, -1) == 0
}

// RefCount returns the current reference count. Intended for tests that
// assert ref-balance invariants, not for production control flow.
func (p *Packet) RefCount() int32 {
	return atomic.LoadInt32(&p.refs)
}

// sliceFrom returns a new buffer packet over data[from:], used to
// synthesize the remainder of a partially-consumed head packet. It
// starts with a single reference, as though freshly constructed.
func sliceFrom(p *Packet, from int) *Packet {
	return &Packet{format: Buffer, data: p.data[from:], refs: 1}
}
