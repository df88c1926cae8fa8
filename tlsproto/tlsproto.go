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

// Package tlsproto implements the TLS record layer as a pipeline
// element: a DuplexElement whose upstream pair carries plaintext and
// whose downstream pair carries ciphertext, driving the handshake and
// subsequent encrypt/decrypt from whichever ciphertext arrives on the
// downstream input queue.
package tlsproto

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/flowd/flow/dispatcher"
	"github.com/flowd/flow/element"
	"github.com/flowd/flow/event"
	"github.com/flowd/flow/logger"
	"github.com/flowd/flow/metrics"
	"github.com/flowd/flow/packet"
	"github.com/flowd/flow/pad"
)

// UpstreamState tracks the plaintext side of a TlsProto.
type UpstreamState int

const (
	UpstreamClosed UpstreamState = iota
	UpstreamOpen
)

func (s UpstreamState) String() string {
	if s == UpstreamOpen {
		return "open"
	}
	return "closed"
}

// DownstreamState tracks the ciphertext side of a TlsProto.
type DownstreamState int

const (
	DownstreamClosed DownstreamState = iota
	DownstreamOpen
	DownstreamHandshaking
	DownstreamQuitting
)

func (s DownstreamState) String() string {
	switch s {
	case DownstreamOpen:
		return "open"
	case DownstreamHandshaking:
		return "handshaking"
	case DownstreamQuitting:
		return "quitting"
	default:
		return "closed"
	}
}

// writeBacklogLimit bounds how many plaintext chunks TlsProto lets
// accumulate waiting to be encrypted before blocking its upstream
// input pad.
const writeBacklogLimit = 64

// TlsProto is a DuplexElement implementing the TLS handshake and
// record layer between an upstream (plaintext) and downstream
// (ciphertext) pair of pads. It owns a *tls.Conn initialized either as
// server or client, driven over an internal net.Conn shim fed and
// drained by the pad callbacks rather than a real socket.
//
// crypto/tls has no equivalent to a non-blocking push/pull transport
// callback, so the handshake and the subsequent Read/Write loop run on
// dedicated goroutines; every effect they have on pad state is handed
// back to the element's own dispatcher via PostIdle, the same
// handoff shunt workers use to keep pad mutation on one thread.
type TlsProto struct {
	element.Element

	disp dispatcher.Dispatcher

	upIn    *pad.InputPad
	upOut   *pad.OutputPad
	downIn  *pad.InputPad
	downOut *pad.OutputPad

	config *tls.Config
	server bool

	mu         sync.Mutex
	upstream   UpstreamState
	downstream DownstreamState

	conn    *cipherConn
	sess    *tls.Conn
	writeCh chan []byte
}

// NewTlsProto returns a TlsProto ready to be wired into a graph.
// server selects tls.Server vs tls.Client when the session starts;
// disp is the dispatcher the element's background goroutines use to
// hand completions back for serialized delivery.
func NewTlsProto(disp dispatcher.Dispatcher, config *tls.Config, server bool) *TlsProto {
	t := &TlsProto{disp: disp, config: config, server: server}
	t.Init(t)
	t.upIn = t.AddInputPad()
	t.downIn = t.AddInputPad()
	t.upOut = t.AddOutputPad()
	t.downOut = t.AddOutputPad()
	return t
}

// UpstreamInputPad returns the pad carrying plaintext in.
func (t *TlsProto) UpstreamInputPad() *pad.InputPad { return t.upIn }

// UpstreamOutputPad returns the pad carrying plaintext out.
func (t *TlsProto) UpstreamOutputPad() *pad.OutputPad { return t.upOut }

// DownstreamInputPad returns the pad carrying ciphertext in.
func (t *TlsProto) DownstreamInputPad() *pad.InputPad { return t.downIn }

// DownstreamOutputPad returns the pad carrying ciphertext out.
func (t *TlsProto) DownstreamOutputPad() *pad.OutputPad { return t.downOut }

// UpstreamState reports the current plaintext-side state.
func (t *TlsProto) UpstreamState() UpstreamState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.upstream
}

// DownstreamState reports the current ciphertext-side state.
func (t *TlsProto) DownstreamState() DownstreamState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downstream
}

// ProcessInput implements element.Handler.
func (t *TlsProto) ProcessInput(in *pad.InputPad) {
	switch in {
	case t.downIn:
		t.processDownstream()
	case t.upIn:
		t.processUpstream()
	}
}

func (t *TlsProto) processDownstream() {
	for {
		p := t.downIn.QueuedPacket()
		if p == nil {
			return
		}
		if p.Format() == packet.Object {
			switch p.Object().(type) {
			case event.Begin:
				p.Unref()
				t.downstreamBegan()
			case event.End, event.Denied:
				p.Unref()
				t.downstreamEnded()
			default:
				element.HandleUniversalEvent(p)
			}
			continue
		}
		data := append([]byte(nil), p.Data()...)
		p.Unref()
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn != nil {
			conn.feed(data)
		}
	}
}

func (t *TlsProto) processUpstream() {
	for {
		p := t.upIn.QueuedPacket()
		if p == nil {
			return
		}
		if p.Format() == packet.Object {
			switch p.Object().(type) {
			case event.End:
				p.Unref()
				t.upstreamEnded()
			default:
				element.HandleUniversalEvent(p)
			}
			continue
		}

		t.mu.Lock()
		ch := t.writeCh
		t.mu.Unlock()
		if ch == nil {
			// Open only after a successful handshake, and upIn is
			// blocked until then, so this shouldn't happen; drop
			// defensively rather than panic on a nil channel send.
			p.Unref()
			continue
		}
		data := append([]byte(nil), p.Data()...)
		p.Unref()
		ch <- data
		if len(ch) >= writeBacklogLimit {
			t.upIn.Block()
		}
	}
}

// downstreamBegan starts a session the first time the downstream
// transport comes up while upstream is still closed, matching the
// original's handshake trigger.
func (t *TlsProto) downstreamBegan() {
	t.mu.Lock()
	if t.upstream != UpstreamClosed {
		t.mu.Unlock()
		return
	}
	t.upstream = UpstreamOpen
	t.downstream = DownstreamHandshaking
	conn := newCipherConn()
	t.conn = conn
	var sess *tls.Conn
	if t.server {
		sess = tls.Server(conn, t.config)
	} else {
		sess = tls.Client(conn, t.config)
	}
	t.sess = sess
	t.mu.Unlock()

	t.upIn.Block()

	go t.pumpCiphertext(conn)
	go t.runHandshakeAndRead(sess)
}

func (t *TlsProto) pumpCiphertext(conn *cipherConn) {
	for {
		select {
		case data, ok := <-conn.outbox:
			if !ok {
				return
			}
			t.disp.PostIdle(func() { t.downOut.Push(packet.NewBuffer(data)) })
		case <-conn.closeCh:
			return
		}
	}
}

func (t *TlsProto) runHandshakeAndRead(sess *tls.Conn) {
	if err := sess.Handshake(); err != nil {
		t.disp.PostIdle(func() { t.handshakeFailed(err) })
		return
	}
	t.disp.PostIdle(func() { t.handshakeSucceeded() })

	buf := make([]byte, 16384)
	for {
		n, err := sess.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			t.disp.PostIdle(func() { t.upOut.Push(packet.NewBuffer(chunk)) })
		}
		if err != nil {
			t.disp.PostIdle(func() { t.sessionEnded() })
			return
		}
	}
}

func (t *TlsProto) runWrite(sess *tls.Conn, ch chan []byte) {
	for data := range ch {
		if _, err := sess.Write(data); err != nil {
			return
		}
		t.disp.PostIdle(t.maybeUnblockUpstream)
	}
}

func (t *TlsProto) maybeUnblockUpstream() {
	t.mu.Lock()
	ch := t.writeCh
	t.mu.Unlock()
	if ch != nil && len(ch) < writeBacklogLimit {
		t.upIn.Unblock()
	}
}

func (t *TlsProto) handshakeSucceeded() {
	t.mu.Lock()
	t.downstream = DownstreamOpen
	ch := make(chan []byte, writeBacklogLimit)
	t.writeCh = ch
	sess := t.sess
	t.mu.Unlock()

	go t.runWrite(sess, ch)
	t.upIn.Unblock()

	metrics.TLSHandshakeSucceeded()
	logger.Debugf("tls handshake succeeded: server=%v", t.server)
}

func (t *TlsProto) handshakeFailed(err error) {
	t.mu.Lock()
	t.downstream = DownstreamClosed
	t.upstream = UpstreamClosed
	conn := t.conn
	t.mu.Unlock()

	t.upOut.Push(event.Packet(event.NewDetailed("tls handshake failed: "+err.Error(),
		event.Pair{Domain: event.DomainSocket, Code: event.SocketConnectionRefused})))
	if conn != nil {
		conn.Close()
	}

	metrics.TLSHandshakeFailed()
	logger.Warnf("tls handshake failed: server=%v err=%v", t.server, err)
}

// sessionEnded handles the ciphertext reader hitting EOF or an error
// once the session was established — the peer closed or the
// connection dropped mid-stream.
func (t *TlsProto) sessionEnded() {
	t.mu.Lock()
	t.downstream = DownstreamClosed
	t.upstream = UpstreamClosed
	conn := t.conn
	ch := t.writeCh
	t.writeCh = nil
	t.mu.Unlock()

	if ch != nil {
		close(ch)
	}
	if conn != nil {
		conn.Close()
	}
	t.upOut.Push(event.EndPacket())
}

// downstreamEnded handles the ciphertext transport itself going away
// (stream.end/stream.denied on the downstream input), tearing the
// session down immediately regardless of what state it was in.
func (t *TlsProto) downstreamEnded() {
	t.mu.Lock()
	t.downstream = DownstreamClosed
	t.upstream = UpstreamClosed
	conn := t.conn
	ch := t.writeCh
	t.writeCh = nil
	t.mu.Unlock()

	if ch != nil {
		close(ch)
	}
	if conn != nil {
		conn.Close()
	}
	t.upIn.Unblock()
	t.upOut.Push(event.EndPacket())
}

// upstreamEnded handles stream.end arriving from the plaintext side.
// An established session drives a graceful close_notify (Quitting)
// before finalizing; a session still mid-handshake, or one that never
// started, is torn down immediately.
func (t *TlsProto) upstreamEnded() {
	t.mu.Lock()
	t.upstream = UpstreamClosed
	ds := t.downstream
	sess := t.sess
	conn := t.conn
	ch := t.writeCh
	t.mu.Unlock()

	switch ds {
	case DownstreamClosed:
		return
	case DownstreamOpen:
		t.mu.Lock()
		t.downstream = DownstreamQuitting
		t.writeCh = nil
		t.mu.Unlock()
		if ch != nil {
			close(ch)
		}
		go func() {
			if sess != nil {
				sess.Close()
			}
			t.disp.PostIdle(func() {
				t.mu.Lock()
				t.downstream = DownstreamClosed
				conn := t.conn
				t.mu.Unlock()
				if conn != nil {
					conn.Close()
				}
			})
		}()
	default:
		// Handshaking: abort outright, there is no established
		// session yet to quit gracefully.
		t.mu.Lock()
		t.downstream = DownstreamClosed
		t.mu.Unlock()
		if ch != nil {
			close(ch)
		}
		if conn != nil {
			conn.Close()
		}
	}
}

// OutputPadBlocked implements element.Handler. Ciphertext backpressure
// on the downstream output only propagates to the plaintext input
// while the session is Open; during Handshaking or Quitting the
// upstream side is already either blocked by the handshake itself or
// torn down, and propagating here risks a deadlock against those
// transient states.
func (t *TlsProto) OutputPadBlocked(out *pad.OutputPad) {
	switch out {
	case t.downOut:
		if t.DownstreamState() == DownstreamOpen {
			t.upIn.Block()
		}
	case t.upOut:
		t.downIn.Block()
	}
}

// OutputPadUnblocked implements element.Handler, mirroring
// OutputPadBlocked.
func (t *TlsProto) OutputPadUnblocked(out *pad.OutputPad) {
	switch out {
	case t.downOut:
		if t.DownstreamState() == DownstreamOpen {
			t.upIn.Unblock()
		}
	case t.upOut:
		t.downIn.Unblock()
	}
}

// cipherConn is the net.Conn crypto/tls drives: Read pulls ciphertext
// fed in from the downstream pad via feed, Write hands ciphertext to
// outbox for pumpCiphertext to push out the downstream pad.
type cipherConn struct {
	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}

	inbox chan []byte
	inBuf []byte

	outbox chan []byte
}

func newCipherConn() *cipherConn {
	return &cipherConn{
		closeCh: make(chan struct{}),
		inbox:   make(chan []byte, 64),
		outbox:  make(chan []byte, 64),
	}
}

func (c *cipherConn) feed(data []byte) {
	select {
	case c.inbox <- data:
	case <-c.closeCh:
	}
}

func (c *cipherConn) Read(p []byte) (int, error) {
	for len(c.inBuf) == 0 {
		select {
		case data, ok := <-c.inbox:
			if !ok {
				return 0, net.ErrClosed
			}
			c.inBuf = data
		case <-c.closeCh:
			return 0, net.ErrClosed
		}
	}
	n := copy(p, c.inBuf)
	c.inBuf = c.inBuf[n:]
	return n, nil
}

func (c *cipherConn) Write(p []byte) (int, error) {
	data := append([]byte(nil), p...)
	select {
	case c.outbox <- data:
		return len(p), nil
	case <-c.closeCh:
		return 0, net.ErrClosed
	}
}

func (c *cipherConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)
	return nil
}

func (c *cipherConn) LocalAddr() net.Addr              { return cipherAddr{} }
func (c *cipherConn) RemoteAddr() net.Addr             { return cipherAddr{} }
func (c *cipherConn) SetDeadline(time.Time) error      { return nil }
func (c *cipherConn) SetReadDeadline(time.Time) error  { return nil }
func (c *cipherConn) SetWriteDeadline(time.Time) error { return nil }

type cipherAddr struct{}

func (cipherAddr) Network() string { return "tlsproto" }
func (cipherAddr) String() string  { return "tlsproto" }
