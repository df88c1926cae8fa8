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

package shunt

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
)

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFileShuntReadsWholeFileThenEnds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello, flow"), 0644))

	rt := NewRuntime()
	defer rt.Shutdown()

	s := OpenFile(rt, path, event.AccessReadOnly)

	var got []byte
	sawBegin := false
	done := make(chan struct{})
	s.SetReadFunc(func(_ *Shunt, p *packet.Packet) {
		switch p.Format() {
		case packet.Buffer:
			got = append(got, p.Data()...)
		case packet.Object:
			switch p.Object().(type) {
			case event.Begin:
				sawBegin = true
			}
			if ev, ok := p.Object().(event.Detailed); ok && ev.Matches(event.DomainFile, event.FileReachedEnd) {
				close(done)
			}
		}
		p.Unref()
	})

	// A file shunt never reads unsolicited: a segment_request with a
	// negative length asks for everything up to EOF.
	s.SetWriteFunc(func(_ *Shunt) *packet.Packet {
		s.SetWriteFunc(func(_ *Shunt) *packet.Packet { return nil })
		return event.Packet(event.SegmentRequest{Length: -1})
	})
	s.writeStateChanged()

	waitFor(t, done)
	assert.True(t, sawBegin)
	assert.Equal(t, "hello, flow", string(got))
}

func TestFileShuntDeniedOnMissingPath(t *testing.T) {
	rt := NewRuntime()
	defer rt.Shutdown()

	s := OpenFile(rt, "/nonexistent/path/for/flow/test", event.AccessReadOnly)

	denied := make(chan struct{})
	s.SetReadFunc(func(_ *Shunt, p *packet.Packet) {
		if p.Format() == packet.Object {
			if _, ok := p.Object().(event.Denied); ok {
				close(denied)
			}
		}
		p.Unref()
	})

	waitFor(t, denied)
}

func TestTCPListenerAndConnectExchangeData(t *testing.T) {
	rt := NewRuntime()
	defer rt.Shutdown()

	local := ipservice.NewService("", 0)
	ln := OpenTCPListener(rt, local)
	require.Equal(t, KindTCPListener, ln.Kind())

	accepted := make(chan *Shunt, 1)
	ln.SetReadFunc(func(_ *Shunt, p *packet.Packet) {
		if p.Format() == packet.Object {
			if a, ok := p.Object().(event.Anonymous); ok {
				accepted <- a.Payload.(*Shunt)
			}
		}
		p.Unref()
	})

	port := ln.LocalAddr().(*net.TCPAddr).Port

	remote := ipservice.NewService("", port)
	remote.AddAddress(ipservice.NewAddress(net.ParseIP("127.0.0.1")))
	client := ConnectTCP(rt, remote, 0)

	clientGotEcho := make(chan struct{})
	client.SetReadFunc(func(_ *Shunt, p *packet.Packet) {
		if p.Format() == packet.Buffer && string(p.Data()) == "ping" {
			close(clientGotEcho)
		}
		p.Unref()
	})
	client.SetWriteFunc(func(_ *Shunt) *packet.Packet {
		return nil
	})

	var server *Shunt
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted a connection")
	}

	server.SetWriteFunc(func(_ *Shunt) *packet.Packet {
		return nil
	})
	server.SetReadFunc(func(s *Shunt, p *packet.Packet) {
		if p.Format() == packet.Buffer {
			echoed := packet.NewBuffer(append([]byte(nil), p.Data()...))
			s.SetWriteFunc(func(_ *Shunt) *packet.Packet {
				s.SetWriteFunc(func(_ *Shunt) *packet.Packet { return nil })
				return echoed
			})
			s.writeStateChanged()
		}
		p.Unref()
	})

	client.SetWriteFunc(func(s *Shunt) *packet.Packet {
		s.SetWriteFunc(func(_ *Shunt) *packet.Packet { return nil })
		return packet.NewBuffer([]byte("ping"))
	})
	client.writeStateChanged()

	waitFor(t, clientGotEcho)
}

func TestFileShuntSegmentRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segmented.txt")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	rt := NewRuntime()
	defer rt.Shutdown()

	s := OpenFile(rt, path, event.AccessReadOnly)

	var got []byte
	segmentEnds := 0
	done := make(chan struct{})
	s.SetReadFunc(func(_ *Shunt, p *packet.Packet) {
		if p.Format() == packet.Buffer {
			got = append(got, p.Data()...)
		} else if ev, ok := p.Object().(event.SegmentEndEvent); ok {
			_ = ev
			segmentEnds++
			if segmentEnds == 1 {
				close(done)
			}
		}
		p.Unref()
	})

	// Requesting only 4 bytes should yield exactly "0123" then a
	// segment_end, and pause further reads until another request.
	s.SetWriteFunc(func(_ *Shunt) *packet.Packet {
		s.SetWriteFunc(func(_ *Shunt) *packet.Packet { return nil })
		return event.Packet(event.SegmentRequest{Length: 4})
	})
	s.writeStateChanged()

	waitFor(t, done)
	assert.Equal(t, "0123", string(got))
}

func TestSpawnWorkerSyncShuntRoundTrip(t *testing.T) {
	rt := NewRuntime()
	defer rt.Shutdown()

	s := SpawnWorker(rt, func(ss *SyncShunt) {
		p, ok := ss.Read()
		if !ok {
			return
		}
		upper := []byte(string(p.Data()))
		p.Unref()
		for i, c := range upper {
			if c >= 'a' && c <= 'z' {
				upper[i] = c - 'a' + 'A'
			}
		}
		ss.Write(packet.NewBuffer(upper))
	})

	got := make(chan string, 1)
	s.SetReadFunc(func(_ *Shunt, p *packet.Packet) {
		if p.Format() == packet.Buffer {
			got <- string(p.Data())
		}
		p.Unref()
	})
	s.SetWriteFunc(func(_ *Shunt) *packet.Packet {
		s.SetWriteFunc(func(_ *Shunt) *packet.Packet { return nil })
		return packet.NewBuffer([]byte("shout"))
	})
	s.writeStateChanged()

	select {
	case line := <-got:
		assert.Equal(t, "SHOUT", line)
	case <-time.After(2 * time.Second):
		t.Fatal("worker never echoed uppercased data")
	}
}
