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

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flow/packet"
)

func TestDetailedMatches(t *testing.T) {
	d := NewDetailed("connection refused by peer",
		Pair{DomainSocket, SocketConnectionRefused},
		Pair{DomainStream, StreamPhysicalError},
	)

	assert.True(t, d.Matches(DomainSocket, SocketConnectionRefused))
	assert.True(t, d.Matches(DomainStream, StreamPhysicalError))
	assert.False(t, d.Matches(DomainFile, FileDoesNotExist))
}

func TestBeginEndPacketsRoundTripThroughObjectPacket(t *testing.T) {
	p := BeginPacket()
	require.Equal(t, packet.Object, p.Format())
	_, ok := p.Object().(Begin)
	assert.True(t, ok)

	p2 := EndPacket()
	_, ok = p2.Object().(End)
	assert.True(t, ok)
}

func TestDeniedPacketCarriesDetailed(t *testing.T) {
	d := NewDetailed("no such file", Pair{DomainFile, FileDoesNotExist})
	p := DeniedPacket(d)

	denied, ok := p.Object().(Denied)
	require.True(t, ok)
	assert.True(t, denied.Matches(DomainFile, FileDoesNotExist))
	assert.Equal(t, "no such file", denied.Error())
}

func TestAnonymousReleaseInvokesDestroyOnce(t *testing.T) {
	calls := 0
	var released any
	a := NewAnonymous(42, func(v any) {
		calls++
		released = v
	})

	a.Release()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 42, released)
}

func TestAnonymousReleaseNilDestroyIsNoop(t *testing.T) {
	a := NewAnonymous("payload", nil)
	assert.NotPanics(t, func() { a.Release() })
}

func TestSegmentRequestNegativeLengthMeansToEOF(t *testing.T) {
	sr := SegmentRequest{Length: -1}
	assert.Less(t, sr.Length, int64(0))
}
