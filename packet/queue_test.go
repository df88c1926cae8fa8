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

package packet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRoundTrip(t *testing.T) {
	q := NewQueue()
	chunks := [][]byte{[]byte("hello "), []byte("cruel "), []byte("world")}
	var want []byte
	for _, c := range chunks {
		q.Push(NewBuffer(c))
		want = append(want, c...)
	}

	var got []byte
	for _, k := range []int{3, 1, 100, 7} {
		buf := make([]byte, k)
		n := q.PopBytes(buf)
		got = append(got, buf[:n]...)
		if n < k {
			break
		}
	}

	assert.Equal(t, want, got)
	assert.Equal(t, 0, q.LengthPackets())
	assert.Equal(t, int64(0), q.LengthDataBytes())
}

func TestPopBytesExactAtomicity(t *testing.T) {
	q := NewQueue()
	q.Push(NewBuffer([]byte("abc")))
	q.Push(NewObject("marker"))
	q.Push(NewBuffer([]byte("def")))

	// "abcdef" is not contiguous: an object packet sits in the middle.
	buf := make([]byte, 6)
	ok := q.PopBytesExact(buf)
	require.False(t, ok)
	assert.Equal(t, 3, q.LengthPackets())

	buf3 := make([]byte, 3)
	ok = q.PopBytesExact(buf3)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), buf3)
	assert.Equal(t, 2, q.LengthPackets())
}

func TestPartialPacketSynthesis(t *testing.T) {
	q := NewQueue()
	q.Push(NewBuffer([]byte("0123456789")))

	buf := make([]byte, 4)
	n := q.PopBytes(buf)
	require.Equal(t, 4, n)
	assert.Equal(t, []byte("0123"), buf)

	p := q.PopPacket()
	require.NotNil(t, p)
	assert.Equal(t, Buffer, p.Format())
	assert.Equal(t, []byte("456789"), p.Data())
	assert.Equal(t, 0, q.LengthPackets())
}

func TestPushToHeadConsolidatesPartialHead(t *testing.T) {
	q := NewQueue()
	q.Push(NewBuffer([]byte("0123456789")))

	buf := make([]byte, 4)
	q.PopBytes(buf)

	q.PushToHead(NewBuffer([]byte("XY")))

	out := make([]byte, 8)
	n := q.PopBytes(out)
	require.Equal(t, 8, n)
	assert.Equal(t, []byte("XY456789"), out)
}

func TestFirstObjectHelpers(t *testing.T) {
	q := NewQueue()
	q.Push(NewBuffer([]byte("ab")))
	q.Push(NewBuffer([]byte("cd")))
	q.Push(NewObject("eof"))
	q.Push(NewBuffer([]byte("tail")))

	obj := q.PeekFirstObject()
	require.NotNil(t, obj)
	assert.Equal(t, "eof", obj.Object())
	assert.Equal(t, 4, q.LengthPackets())

	popped := q.PopFirstObject()
	require.NotNil(t, popped)
	assert.Equal(t, "eof", popped.Object())
	assert.Equal(t, 3, q.LengthPackets())

	buf := make([]byte, 4)
	require.True(t, q.PopBytesExact(buf))
	assert.Equal(t, []byte("abcd"), buf)
}

func TestSkipPastFirstObject(t *testing.T) {
	q := NewQueue()
	q.Push(NewBuffer([]byte("garbage")))
	q.Push(NewObject("resync"))
	q.Push(NewBuffer([]byte("good")))

	ok := q.SkipPastFirstObject()
	require.True(t, ok)
	assert.Equal(t, 1, q.LengthPackets())

	buf := make([]byte, 4)
	q.PopBytes(buf)
	assert.Equal(t, []byte("good"), buf)
}

func TestZeroSizeBufferPacketDropped(t *testing.T) {
	q := NewQueue()
	p := NewBuffer(nil)
	require.Equal(t, int32(1), p.RefCount())
	q.Push(p)
	assert.Equal(t, 0, q.LengthPackets())
}

func TestByteIterBackOutLeavesQueueUnchanged(t *testing.T) {
	q := NewQueue()
	q.Push(NewBuffer([]byte("12")))
	q.Push(NewBuffer([]byte("34")))

	it := q.ByteIterInit()
	buf := make([]byte, 10)
	n := it.Peek(buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("1234"), buf[:4])

	// Peek never mutates the queue; a fresh pop sees everything.
	out := make([]byte, 4)
	got := q.PopBytes(out)
	assert.Equal(t, 4, got)
	assert.Equal(t, []byte("1234"), out)
}

func TestByteIterDropPrecedingData(t *testing.T) {
	q := NewQueue()
	q.Push(NewBuffer([]byte("head")))
	q.Push(NewBuffer([]byte("tail")))

	it := q.ByteIterInit()
	advanced := it.Advance(4)
	require.Equal(t, 4, advanced)
	it.DropPrecedingData()

	out := make([]byte, 4)
	n := q.PopBytes(out)
	require.Equal(t, 4, n)
	assert.True(t, bytes.Equal(out, []byte("tail")))
}
