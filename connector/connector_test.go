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

package connector

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd/flow/event"
	"github.com/flowd/flow/ipservice"
	"github.com/flowd/flow/packet"
	"github.com/flowd/flow/pad"
	"github.com/flowd/flow/shunt"
)

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

// sink is a minimal pad.Owner that just hands every arriving packet to
// onPacket, for wiring a Connector's output pad to a plain collector
// in tests without a second real element.
type sink struct {
	in       *pad.InputPad
	onPacket func(*packet.Packet)
}

func newSink(onPacket func(*packet.Packet)) *sink {
	s := &sink{onPacket: onPacket}
	s.in = pad.NewInputPad(s)
	return s
}

func (s *sink) DispatchInput(in *pad.InputPad) {
	for {
		p := in.QueuedPacket()
		if p == nil {
			return
		}
		s.onPacket(p)
	}
}

func (s *sink) DispatchOutputBlocked(*pad.OutputPad)   {}
func (s *sink) DispatchOutputUnblocked(*pad.OutputPad) {}
func (s *sink) EnterDispatch()                         {}
func (s *sink) LeaveDispatch()                         {}

func TestConnectorFileReadCycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	rt := shunt.NewRuntime()
	defer rt.Shutdown()

	c := NewConnector(rt)

	var states []ConnectivityState
	c.SetConnectivityChangedFunc(func(_, new ConnectivityState) {
		states = append(states, new)
	})

	var collected []byte
	done := make(chan struct{})
	sk := newSink(func(p *packet.Packet) {
		if p.Format() == packet.Buffer {
			collected = append(collected, p.Data()...)
		}
		if ev, ok := p.Object().(event.Detailed); ok && ev.Matches(event.DomainFile, event.FileReachedEnd) {
			close(done)
		}
		p.Unref()
	})
	pad.Connect(c.OutputPad(), sk.in)

	c.InputPad().Push(event.Packet(event.FileConnectOp{Path: path, AccessMode: event.AccessReadOnly}))
	c.InputPad().Push(event.BeginPacket())
	c.InputPad().Push(event.Packet(event.SegmentRequest{Length: -1}))

	waitFor(t, done)
	assert.Equal(t, "hello", string(collected))
	assert.Contains(t, states, Connecting)
	assert.Contains(t, states, Connected)
}

func TestConnectorAdoptShuntFromListener(t *testing.T) {
	rt := shunt.NewRuntime()
	defer rt.Shutdown()

	local := ipservice.NewService("", 0)
	ln := ListenTCP(rt, local, 4)
	defer ln.Close()

	port := ln.LocalAddr().(*net.TCPAddr).Port
	remote := ipservice.NewService("", port)
	remote.AddAddress(ipservice.NewAddress(net.ParseIP("127.0.0.1")))

	client := NewConnector(rt)
	client.InputPad().Push(event.Packet(event.TcpConnectOp{Remote: remote}))
	client.InputPad().Push(event.BeginPacket())

	var server *shunt.Shunt
	select {
	case server = <-ln.Accept():
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted a connection")
	}

	serverSide := NewConnector(rt)
	serverSide.AdoptShunt(server)

	serverSink := newSink(func(p *packet.Packet) {
		if p.Format() == packet.Buffer {
			echoed := append([]byte(nil), p.Data()...)
			p.Unref()
			serverSide.InputPad().Push(packet.NewBuffer(echoed))
			return
		}
		p.Unref()
	})
	pad.Connect(serverSide.OutputPad(), serverSink.in)

	clientGotEcho := make(chan struct{})
	clientSink := newSink(func(p *packet.Packet) {
		if p.Format() == packet.Buffer && string(p.Data()) == "ping" {
			close(clientGotEcho)
		}
		p.Unref()
	})
	pad.Connect(client.OutputPad(), clientSink.in)

	client.InputPad().Push(packet.NewBuffer([]byte("ping")))

	waitFor(t, clientGotEcho)
}
