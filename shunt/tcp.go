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
	"errors"
	"fmt"
	"net"

	"github.com/flowd/flow/event"
	"github.com/flowd/flow/internal/rescue"
	"github.com/flowd/flow/ipservice"
	"github.com/flowd/flow/packet"
)

// streamConnShunt drives a connected byte stream (TCP client or
// accepted connection) with blocking reader/writer goroutines over a
// net.Conn, the same shape fileShunt uses over an *os.File.
type streamConnShunt struct {
	*Shunt
	conn net.Conn
}

// ConnectTCP dials remote and returns a Shunt that emits stream.begin
// on success, or stream.denied carrying the connect failure.
// localPort, if non-zero, binds the outgoing connection's local port.
func ConnectTCP(rt *Runtime, remote *ipservice.Service, localPort int) *Shunt {
	base := newShunt(rt, KindTCP)
	cs := &streamConnShunt{Shunt: base}

	addr, ok := remote.FindAddress(false)
	if !ok {
		addr, ok = remote.FindAddress(true)
	}
	if !ok {
		base.emitDenied(event.NewDetailed("no address to connect to",
			event.Pair{Domain: event.DomainSocket, Code: event.SocketAddressDoesNotExist}))
		return base
	}

	dialer := net.Dialer{}
	if localPort != 0 {
		dialer.LocalAddr = &net.TCPAddr{Port: localPort}
	}

	conn, err := dialer.Dial("tcp", fmt.Sprintf("%s:%d", addr.String(), remote.Port()))
	if err != nil {
		base.emitDenied(tcpConnectError(err))
		return base
	}

	cs.start(conn, true, true)
	return base
}

func tcpConnectError(err error) event.Detailed {
	code := event.SocketConnectionRefused
	if errors.Is(err, net.ErrClosed) {
		code = event.SocketNetworkUnreachable
	}
	return event.NewDetailed(err.Error(), event.Pair{Domain: event.DomainSocket, Code: code})
}

func (cs *streamConnShunt) start(conn net.Conn, canRead, canWrite bool) {
	cs.conn = conn
	cs.closer = conn.Close
	cs.mu.Lock()
	cs.canRead = canRead
	cs.canWrite = canWrite
	cs.mu.Unlock()

	cs.emitBegin()
	if canRead {
		go cs.readLoop()
	}
	if canWrite {
		go cs.writeLoop()
	}
}

func (cs *streamConnShunt) readLoop() {
	defer rescue.HandleCrash()
	buf := make([]byte, maxBuffer)
	for {
		cs.mu.Lock()
		for !cs.needReads && !cs.isDestroyed() {
			cs.doingReads = false
			cs.cond.Wait()
		}
		if cs.isDestroyed() {
			cs.mu.Unlock()
			return
		}
		cs.doingReads = true
		cs.mu.Unlock()

		n, err := cs.conn.Read(buf)
		if n > 0 {
			cs.pushReadData(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			cs.emitEndOfStream()
			return
		}
	}
}

func (cs *streamConnShunt) writeLoop() {
	defer rescue.HandleCrash()
	for {
		cs.mu.Lock()
		for cs.writeQueue.LengthPackets() == 0 && !cs.blockWrites && !cs.isDestroyed() {
			cs.doingWrites = false
			cs.cond.Wait()
		}
		if cs.isDestroyed() {
			cs.mu.Unlock()
			return
		}
		if cs.blockWrites {
			cs.mu.Unlock()
			continue
		}
		cs.doingWrites = true
		p := cs.writeQueue.PopPacket()
		cs.mu.Unlock()
		if p == nil {
			continue
		}

		if p.Format() == packet.Object {
			if _, ok := p.Object().(event.End); ok {
				p.Unref()
				if tc, ok := cs.conn.(interface{ CloseWrite() error }); ok {
					tc.CloseWrite()
				}
				continue
			}
			p.Unref()
			continue
		}

		if _, err := cs.conn.Write(p.Data()); err != nil {
			p.Unref()
			cs.emitEndOfStream()
			return
		}
		p.Unref()
		cs.writeStateChanged()
	}
}

// listenerShunt accepts inbound TCP connections, wrapping each one as
// a new Shunt and delivering it to the listener's own read queue as an
// Anonymous event — exactly how the TCP-listener Connector learns
// about a new peer.
type listenerShunt struct {
	*Shunt
	ln      net.Listener
	runtime *Runtime
}

// OpenTCPListener binds and listens on local, returning a Shunt whose
// read side emits one Anonymous event per accepted connection.
func OpenTCPListener(rt *Runtime, local *ipservice.Service) *Shunt {
	base := newShunt(rt, KindTCPListener)
	ls := &listenerShunt{Shunt: base, runtime: rt}

	host := ""
	if addr, ok := local.FindAddress(false); ok {
		host = addr.String()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, local.Port()))
	if err != nil {
		base.emitDenied(event.NewDetailed(err.Error(),
			event.Pair{Domain: event.DomainSocket, Code: event.SocketAddressInUse}))
		return base
	}

	ls.ln = ln
	base.closer = ln.Close
	base.mu.Lock()
	base.canRead = true
	base.localAddr = ln.Addr()
	base.mu.Unlock()

	base.emitBegin()
	go ls.acceptLoop()
	return base
}

func (ls *listenerShunt) acceptLoop() {
	defer rescue.HandleCrash()
	for {
		conn, err := ls.ln.Accept()
		if err != nil {
			ls.emitEndOfStream()
			return
		}

		child := newShunt(ls.runtime, KindTCP)
		cs := &streamConnShunt{Shunt: child}

		cs.start(conn, true, true)

		if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
			peer := ipservice.NewService("", tcpAddr.Port)
			peer.AddAddress(ipservice.NewAddress(tcpAddr.IP))
			child.mu.Lock()
			child.readQueue.Push(event.Packet(peer))
			child.mu.Unlock()
			child.readStateChanged()
		}

		ls.mu.Lock()
		ls.readQueue.Push(event.Packet(event.NewAnonymous(child, func(payload any) {
			payload.(*Shunt).Destroy()
		})))
		ls.mu.Unlock()
		ls.readStateChanged()
	}
}
