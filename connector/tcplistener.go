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

	"github.com/flowd/flow/event"
	"github.com/flowd/flow/ipservice"
	"github.com/flowd/flow/packet"
	"github.com/flowd/flow/shunt"
)

// TCPListener is not a pipeline element: it has no pads of its own. It
// wraps a listening shunt and hands each accepted connection's shunt
// off on a channel, replacing the accept-queue-plus-signal shape with
// an idiomatic Go receive.
type TCPListener struct {
	ln *shunt.Shunt

	accepted chan *shunt.Shunt
}

// ListenTCP binds local and returns a TCPListener whose Accept channel
// receives one *shunt.Shunt per inbound connection. backlog bounds how
// many accepted-but-not-yet-claimed connections queue up before a new
// one is dropped (its shunt destroyed) rather than blocking the
// listener's own read dispatch.
func ListenTCP(rt *shunt.Runtime, local *ipservice.Service, backlog int) *TCPListener {
	if backlog < 1 {
		backlog = 1
	}
	l := &TCPListener{
		ln:       shunt.OpenTCPListener(rt, local),
		accepted: make(chan *shunt.Shunt, backlog),
	}
	l.ln.SetReadFunc(l.handleRead)
	return l
}

// LocalAddr reports the address the listener is bound to.
func (l *TCPListener) LocalAddr() net.Addr {
	return l.ln.LocalAddr()
}

// Accept returns the channel of freshly accepted shunts. A caller
// typically ranges over it, wiring each one to a fresh Connector via
// AdoptShunt.
func (l *TCPListener) Accept() <-chan *shunt.Shunt {
	return l.accepted
}

// Close stops accepting and destroys the underlying listening shunt.
// Any shunts still sitting unclaimed on the Accept channel are left
// for the caller to drain and destroy.
func (l *TCPListener) Close() {
	l.ln.Destroy()
}

func (l *TCPListener) handleRead(_ *shunt.Shunt, p *packet.Packet) {
	defer p.Unref()
	if p.Format() != packet.Object {
		return
	}
	a, ok := p.Object().(event.Anonymous)
	if !ok {
		return
	}
	child := a.Payload.(*shunt.Shunt)
	select {
	case l.accepted <- child:
	default:
		child.Destroy()
	}
}
