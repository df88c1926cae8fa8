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

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flow/element"
)

func TestConnectSimplexSimplexWiresPeers(t *testing.T) {
	a := element.NewSimplex()
	b := element.NewSimplex()

	ConnectSimplexSimplex(a, b)

	assert.Equal(t, b.InputPad(), a.OutputPad().Peer())
	assert.Equal(t, a.OutputPad(), b.InputPad().Peer())
}

func TestInsertSimplexBetweenSplicesElementIn(t *testing.T) {
	a := element.NewSimplex()
	b := element.NewSimplex()
	mid := element.NewSimplex()

	ConnectSimplexSimplex(a, b)
	InsertSimplexBetween(a, mid, b)

	assert.Equal(t, mid.InputPad(), a.OutputPad().Peer())
	assert.Equal(t, mid.OutputPad(), b.InputPad().Peer())
}

func TestReplaceElementRewiresPeers(t *testing.T) {
	a := element.NewSimplex()
	oldMid := element.NewSimplex()
	newMid := element.NewSimplex()
	b := element.NewSimplex()

	ConnectSimplexSimplex(a, oldMid)
	ConnectSimplexSimplex(oldMid, b)

	require.NoError(t, ReplaceElement(oldMid, newMid))

	assert.Equal(t, newMid.InputPad(), a.OutputPad().Peer())
	assert.Equal(t, newMid.OutputPad(), b.InputPad().Peer())
	assert.Nil(t, oldMid.InputPad().Peer())
	assert.Nil(t, oldMid.OutputPad().Peer())
}

func TestReplaceElementRejectsPadCountMismatch(t *testing.T) {
	a := element.NewSimplex()
	j := element.NewJoiner()

	err := ReplaceElement(a, j)
	assert.Error(t, err)
}
