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

// Package connector adapts a shunt so it appears as an ordinary
// pass-through element in a pipeline, and tracks the connection's
// lifecycle as a small state machine a host can observe.
package connector

import (
	"os"
	"sync"

	"github.com/flowd/flow/element"
	"github.com/flowd/flow/event"
	"github.com/flowd/flow/logger"
	"github.com/flowd/flow/metrics"
	"github.com/flowd/flow/packet"
	"github.com/flowd/flow/pad"
	"github.com/flowd/flow/shunt"
)

// ConnectivityState tracks where a Connector is in its connect/
// disconnect cycle.
type ConnectivityState int

const (
	Disconnected ConnectivityState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnectivityState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// maxBufferPackets caps how many packets a Connector lets accumulate on
// its input pad before blocking it, mirroring the file connector's
// MAX_BUFFER_PACKETS and the UDP connector's own smaller bound.
const maxBufferPackets = 32

// Connector is a SimplexElement that owns a shunt: its input pad drives
// the shunt's write side and consumes FileConnectOp/TcpConnectOp/
// UdpConnectOp configuration packets, and its output pad emits
// whatever the shunt reads. It does not pass data straight through like
// a plain Simplex — opening the transport is gated on an explicit
// stream.begin arriving on the input, matching a host that wants to
// stage configuration before committing to connect.
type Connector struct {
	element.Element

	in  *pad.InputPad
	out *pad.OutputPad

	runtime *shunt.Runtime

	name string

	mu               sync.Mutex
	state            ConnectivityState
	lastState        ConnectivityState
	connectivityFunc func(old, new ConnectivityState)

	sh     *shunt.Shunt
	op     connectOp
	nextOp connectOp

	writeQueueLimit int64
}

// connectOp is whichever configuration packet was most recently
// delivered; exactly one of its fields is non-nil.
type connectOp struct {
	file *event.FileConnectOp
	tcp  *event.TcpConnectOp
	udp  *event.UdpConnectOp
}

func (op connectOp) isZero() bool {
	return op.file == nil && op.tcp == nil && op.udp == nil
}

// NewConnector returns a Connector with its pads wired and ready to
// receive a connect op followed by a stream.begin.
func NewConnector(rt *shunt.Runtime) *Connector {
	c := &Connector{runtime: rt, writeQueueLimit: 1 << 20, name: "connector"}
	c.Init(c)
	c.in = c.AddInputPad()
	c.out = c.AddOutputPad()
	return c
}

// SetName gives the connector a label used in logs and in the
// connector_state metric; it defaults to "connector".
func (c *Connector) SetName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// Name returns the connector's label, as set by SetName.
func (c *Connector) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// InputPad returns the element's single input pad.
func (c *Connector) InputPad() *pad.InputPad { return c.in }

// OutputPad returns the element's single output pad.
func (c *Connector) OutputPad() *pad.OutputPad { return c.out }

// State reports the connector's current connectivity state.
func (c *Connector) State() ConnectivityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastState reports the state the connector was in immediately before
// its current one.
func (c *Connector) LastState() ConnectivityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastState
}

// SetWriteQueueLimit bounds how many bytes of outbound data the
// connector lets accumulate on its input pad before blocking it.
func (c *Connector) SetWriteQueueLimit(n int64) {
	c.mu.Lock()
	c.writeQueueLimit = n
	c.mu.Unlock()
}

// SetConnectivityChangedFunc registers a callback invoked whenever the
// connector's state changes, with the old and new values.
func (c *Connector) SetConnectivityChangedFunc(f func(old, new ConnectivityState)) {
	c.mu.Lock()
	c.connectivityFunc = f
	c.mu.Unlock()
}

func (c *Connector) setState(ns ConnectivityState) {
	c.mu.Lock()
	if c.state == ns {
		c.mu.Unlock()
		return
	}
	c.lastState = c.state
	c.state = ns
	f := c.connectivityFunc
	name := c.name
	old := c.lastState
	c.mu.Unlock()

	metrics.ConnectorStateChanged(name, old.String(), ns.String())
	logger.Debugf("connector %q: %s -> %s", name, old, ns)
	if f != nil {
		f(c.lastState, ns)
	}
}

func (c *Connector) setOp(op connectOp) {
	c.mu.Lock()
	c.nextOp = op
	c.mu.Unlock()
}

// connect opens the transport named by the pending op, installs the
// shunt callbacks, and transitions to Connecting. A connect arriving
// while already connected is a no-op, matching a reconnect request
// racing with an already-live shunt.
func (c *Connector) connect() {
	c.mu.Lock()
	if c.sh != nil {
		c.mu.Unlock()
		return
	}
	if !c.nextOp.isZero() {
		c.op = c.nextOp
		c.nextOp = connectOp{}
	}
	op := c.op
	c.mu.Unlock()

	if op.isZero() {
		return
	}

	var sh *shunt.Shunt
	switch {
	case op.file != nil:
		if op.file.Create {
			sh = shunt.CreateFile(c.runtime, op.file.Path, op.file.AccessMode, op.file.Replace,
				os.FileMode(op.file.CreationPermissions))
		} else {
			sh = shunt.OpenFile(c.runtime, op.file.Path, op.file.AccessMode)
		}
	case op.tcp != nil:
		sh = shunt.ConnectTCP(c.runtime, op.tcp.Remote, op.tcp.LocalPort)
	case op.udp != nil:
		sh = shunt.OpenUDP(c.runtime, op.udp.Local)
		if op.udp.Remote != nil {
			// Pushed onto our own input queue rather than written to
			// the shunt directly: shuntWrite will pick it up as the
			// first outbound packet once writing starts, and udp.go's
			// handleWriteObject already knows how to turn an
			// *ipservice.Service into a destination address.
			c.in.Queue().Push(event.Packet(op.udp.Remote))
		}
	default:
		return
	}

	c.installShunt(sh)
	c.setState(Connecting)
}

// AdoptShunt wires an already-live shunt (typically one handed over by
// a TCP listener's accept loop) directly into this connector, skipping
// the dial step. A connector that already owns a shunt destroys the
// offered shunt and keeps its current one.
func (c *Connector) AdoptShunt(sh *shunt.Shunt) {
	c.mu.Lock()
	if c.sh != nil {
		c.mu.Unlock()
		sh.Destroy()
		return
	}
	c.mu.Unlock()

	c.installShunt(sh)
	c.setState(Connecting)
}

func (c *Connector) installShunt(sh *shunt.Shunt) {
	c.mu.Lock()
	c.sh = sh
	c.mu.Unlock()

	sh.SetReadFunc(c.shuntRead)
	sh.SetWriteFunc(c.shuntWrite)

	if c.out.IsBlocked() {
		sh.BlockReads()
	}
	if c.in.Queue().LengthPackets() == 0 {
		sh.BlockWrites()
	}
}

// handleOutboundPacket inspects a packet popped from the input pad's
// queue. It returns nil if the packet was fully consumed (a connect op
// stored, or a control event acted on), or the packet itself if it
// should be forwarded to the shunt as write data.
func (c *Connector) handleOutboundPacket(p *packet.Packet) *packet.Packet {
	if p.Format() != packet.Object {
		return p
	}

	switch obj := p.Object().(type) {
	case event.FileConnectOp:
		c.setOp(connectOp{file: &obj})
		p.Unref()
		return nil
	case event.TcpConnectOp:
		c.setOp(connectOp{tcp: &obj})
		p.Unref()
		return nil
	case event.UdpConnectOp:
		c.setOp(connectOp{udp: &obj})
		p.Unref()
		return nil
	case event.Begin:
		c.connect()
		p.Unref()
		return nil
	case event.End:
		c.setState(Disconnecting)
		return p
	default:
		element.HandleUniversalEvent(p)
		return p
	}
}

// handleInboundPacket inspects a packet arriving from the shunt's read
// side, folding stream-edge events into connectivity transitions. It
// always returns the packet itself, so terminal events are forwarded
// downstream as well.
func (c *Connector) handleInboundPacket(p *packet.Packet) *packet.Packet {
	if p.Format() != packet.Object {
		return p
	}

	switch p.Object().(type) {
	case event.Begin:
		c.setState(Connected)
	case event.End, event.Denied:
		c.mu.Lock()
		sh := c.sh
		c.sh = nil
		c.mu.Unlock()
		if sh != nil {
			sh.Destroy()
		}
		c.setState(Disconnected)
	default:
		element.HandleUniversalEvent(p)
	}

	return p
}

func (c *Connector) shuntRead(_ *shunt.Shunt, p *packet.Packet) {
	if out := c.handleInboundPacket(p); out != nil {
		c.out.Push(out)
	}
}

func (c *Connector) shuntWrite(_ *shunt.Shunt) *packet.Packet {
	q := c.in.Queue()
	c.maybeUnblockInput()

	for {
		p := q.PopPacket()
		if p == nil {
			return nil
		}
		if out := c.handleOutboundPacket(p); out != nil {
			c.maybeUnblockInput()
			return out
		}
	}
}

func (c *Connector) maybeUnblockInput() {
	q := c.in.Queue()
	c.mu.Lock()
	limit := c.writeQueueLimit
	c.mu.Unlock()
	if q.LengthPackets() < maxBufferPackets && q.LengthBytes() < limit/2+1 {
		c.in.Unblock()
	}
}

// ProcessInput implements Handler. While no shunt is open yet, incoming
// packets (connect ops, a stream.begin trigger, or stray data) are
// handled synchronously since there is nothing downstream to drain
// them; once a shunt exists, packets accumulate on the input pad's own
// queue for shuntWrite to pull from.
func (c *Connector) ProcessInput(in *pad.InputPad) {
	q := in.Queue()

	c.mu.Lock()
	connected := c.sh != nil
	c.mu.Unlock()

	for !connected {
		p := q.PopPacket()
		if p == nil {
			break
		}
		if out := c.handleOutboundPacket(p); out != nil {
			out.Unref()
		}
		c.mu.Lock()
		connected = c.sh != nil
		c.mu.Unlock()
	}

	c.mu.Lock()
	limit := c.writeQueueLimit
	sh := c.sh
	c.mu.Unlock()

	if q.LengthBytes() >= limit || q.LengthPackets() >= maxBufferPackets {
		in.Block()
	}

	if sh != nil && q.LengthPackets() > 0 {
		sh.UnblockWrites()
	}
}

// OutputPadBlocked implements Handler by pausing the shunt's read side:
// there's no point pulling more data than downstream can absorb.
func (c *Connector) OutputPadBlocked(_ *pad.OutputPad) {
	c.mu.Lock()
	sh := c.sh
	c.mu.Unlock()
	if sh != nil {
		sh.BlockReads()
	}
}

// OutputPadUnblocked implements Handler by resuming the shunt's read
// side.
func (c *Connector) OutputPadUnblocked(_ *pad.OutputPad) {
	c.mu.Lock()
	sh := c.sh
	c.mu.Unlock()
	if sh != nil {
		sh.UnblockReads()
	}
}
