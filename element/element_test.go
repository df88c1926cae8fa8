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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flow/packet"
	"github.com/flowd/flow/pad"
)

func TestSimplexForwardsAndBackpressures(t *testing.T) {
	src := NewEmitter()
	mid := NewSimplex()
	dst := NewCollector()

	pad.Connect(src.OutputPad(), mid.InputPad())
	pad.Connect(mid.OutputPad(), dst.InputPad())

	dst.InputPad().Block()
	src.OutputPad().Push(packet.NewBuffer([]byte("one")))

	assert.True(t, mid.InputPad().IsBlocked(), "backpressure from dst must propagate through mid to src's peer")

	dst.InputPad().Unblock()
	// No panic and no deadlock is the main assertion here; delivery
	// happened synchronously during Unblock's drain.
}

func TestSplitterDuplicatesToAllOutputs(t *testing.T) {
	s := NewSplitter()

	collectors := make([]*Collector, 3)
	for i := range collectors {
		c := NewCollector()
		collectors[i] = c
		out := s.AddOutputPad()
		pad.Connect(out, c.InputPad())
	}

	src := NewEmitter()
	pad.Connect(src.OutputPad(), s.InputPad())

	p := packet.NewBuffer([]byte("fanout"))
	require.Equal(t, int32(1), p.RefCount())

	src.OutputPad().Push(p)

	// Every collector drained its copy; none leave anything queued.
	for _, c := range collectors {
		assert.Equal(t, 0, c.InputPad().QueueLength())
	}
}

func TestSplitterRefcountBalancesAcrossFanout(t *testing.T) {
	s := NewSplitter()

	type countingCollector struct {
		*Collector
		seen int
	}
	const n = 4
	cs := make([]*countingCollector, n)
	for i := 0; i < n; i++ {
		cs[i] = &countingCollector{Collector: NewCollector()}
		out := s.AddOutputPad()
		pad.Connect(out, cs[i].InputPad())
	}

	src := NewEmitter()
	pad.Connect(src.OutputPad(), s.InputPad())

	p := packet.NewBuffer([]byte("dup-me"))
	p.Ref() // the test's own reference, so the count can be read afterwards
	src.OutputPad().Push(p)
	// If Collector.ProcessInput ran for each duplicate, every
	// Collector's input pad queue is now empty (each packet is
	// delivered and unreffed synchronously under blocking I/O-free
	// test conditions).
	for _, c := range cs {
		assert.Equal(t, 0, c.InputPad().QueueLength())
	}
	// The splitter added one reference per extra output and each
	// collector dropped the one it received, leaving only the test's.
	assert.Equal(t, int32(1), p.RefCount())
}

func TestJoinerForwardsFromAnyInput(t *testing.T) {
	j := NewJoiner()
	dst := NewCollector()
	pad.Connect(j.OutputPad(), dst.InputPad())

	a := NewEmitter()
	b := NewEmitter()

	inA := j.AddInputPad()
	inB := j.AddInputPad()
	pad.Connect(a.OutputPad(), inA)
	pad.Connect(b.OutputPad(), inB)

	a.OutputPad().Push(packet.NewBuffer([]byte("from-a")))
	b.OutputPad().Push(packet.NewBuffer([]byte("from-b")))

	assert.Equal(t, 0, dst.InputPad().QueueLength())
}

// selfDestructingCollector disposes of itself from inside ProcessInput,
// exercising the re-entrant-destruction path: the dispose must not tear
// down state while the callback it triggered from is still running.
type selfDestructingCollector struct {
	Element
	in         *pad.InputPad
	disposed   bool
	afterCount int
}

func newSelfDestructingCollector() *selfDestructingCollector {
	c := &selfDestructingCollector{}
	c.Init(c)
	c.in = c.addInputPad()
	return c
}

func (c *selfDestructingCollector) ProcessInput(in *pad.InputPad) {
	p := in.QueuedPacket()
	if p != nil {
		p.Unref()
	}
	c.Dispose()
	c.disposed = true
	// Code after Dispose in this same callback still runs normally.
	c.afterCount++
}

func (c *selfDestructingCollector) OutputPadBlocked(*pad.OutputPad)   {}
func (c *selfDestructingCollector) OutputPadUnblocked(*pad.OutputPad) {}

func TestElementDisposeDuringDispatchDefersCleanup(t *testing.T) {
	c := newSelfDestructingCollector()

	assert.NotPanics(t, func() {
		c.in.Push(packet.NewBuffer([]byte("boom")))
	})
	assert.True(t, c.disposed)
	assert.Equal(t, 1, c.afterCount)
	// Pads were disconnected as part of Dispose.
	assert.Nil(t, c.in.Peer())
}
