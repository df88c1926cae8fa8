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

package bin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flow/element"
	"github.com/flowd/flow/pad"
)

func TestAddGetRemove(t *testing.T) {
	b := New()
	src := element.NewEmitter()

	require.NoError(t, b.Add("src", src))
	assert.Equal(t, Element(src), b.Get("src"))

	err := b.Add("src", src)
	assert.Error(t, err)

	assert.True(t, b.Remove("src"))
	assert.Nil(t, b.Get("src"))
	assert.False(t, b.Remove("src"))
}

func TestUnconnectedPads(t *testing.T) {
	b := New()
	simplex := element.NewSimplex()
	require.NoError(t, b.Add("mid", simplex))

	ins := b.UnconnectedInputPads()
	outs := b.UnconnectedOutputPads()
	require.Len(t, ins, 1)
	require.Len(t, outs, 1)

	src := element.NewEmitter()
	pad.Connect(src.OutputPad(), simplex.InputPad())

	ins = b.UnconnectedInputPads()
	assert.Empty(t, ins)
}
