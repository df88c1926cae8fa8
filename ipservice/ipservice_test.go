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

package ipservice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressClassification(t *testing.T) {
	loopback, ok := ParseAddress("127.0.0.1")
	require.True(t, ok)
	assert.True(t, loopback.IsLoopback())
	assert.False(t, loopback.IsGlobalUnicast())

	private, ok := ParseAddress("192.168.1.1")
	require.True(t, ok)
	assert.True(t, private.IsPrivate())
	assert.False(t, private.IsGlobalUnicast())

	public, ok := ParseAddress("8.8.8.8")
	require.True(t, ok)
	assert.True(t, public.IsGlobalUnicast())

	_, ok = ParseAddress("not-an-address")
	assert.False(t, ok)
}

func TestServiceAddressList(t *testing.T) {
	s := NewService("example", 443)
	assert.True(t, s.HaveName())
	assert.Equal(t, 443, s.Port())

	v4 := NewAddress(net.ParseIP("93.184.216.34"))
	v6 := NewAddress(net.ParseIP("2606:2800:220:1:248:1893:25c8:1946"))
	s.AddAddress(v4)
	s.AddAddress(v6)
	require.Equal(t, 2, s.NumAddresses())

	found, ok := s.FindAddress(true)
	require.True(t, ok)
	assert.Equal(t, v6.IP.String(), found.IP.String())

	s.RemoveAddress(v4)
	assert.Equal(t, 1, s.NumAddresses())

	assert.Equal(t, "example:443", s.String())
}

func TestServiceStringFallsBackToAddress(t *testing.T) {
	s := NewService("", 22)
	s.AddAddress(NewAddress(net.ParseIP("10.0.0.5")))
	assert.Equal(t, "10.0.0.5:22", s.String())
}
