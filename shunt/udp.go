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
	"fmt"
	"net"
	"strings"

	"github.com/flowd/flow/event"
	"github.com/flowd/flow/internal/rescue"
	"github.com/flowd/flow/ipservice"
	"github.com/flowd/flow/packet"
)

// udpShunt holds last-known source and destination addresses: inbound
// datagrams from a new source are preceded on the read queue by an
// IP-service packet describing that source, and outbound IP-service /
// IP-address object packets reconfigure the destination for
// subsequent writes (effectively a connect(2) on the socket).
type udpShunt struct {
	*Shunt
	conn *net.UDPConn

	lastSource net.Addr
	dest       *net.UDPAddr
}

// OpenUDP opens a UDP socket bound to local (port 0 picks an ephemeral
// port) and returns a Shunt over it.
func OpenUDP(rt *Runtime, local *ipservice.Service) *Shunt {
	base := newShunt(rt, KindUDP)
	us := &udpShunt{Shunt: base}

	host := ""
	port := 0
	if local != nil {
		port = local.Port()
		if addr, ok := local.FindAddress(false); ok {
			host = addr.String()
		}
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(host), Port: port})
	if err != nil {
		base.emitDenied(event.NewDetailed(err.Error(),
			event.Pair{Domain: event.DomainSocket, Code: event.SocketAddressInUse}))
		return base
	}

	us.conn = conn
	base.closer = conn.Close
	base.mu.Lock()
	base.canRead = true
	base.canWrite = true
	base.localAddr = conn.LocalAddr()
	base.mu.Unlock()

	base.emitBegin()
	go us.readLoop()
	go us.writeLoop()
	return base
}

const maxUDPDatagram = 65507

func (us *udpShunt) readLoop() {
	defer rescue.HandleCrash()
	buf := make([]byte, maxUDPDatagram)
	for {
		us.mu.Lock()
		for !us.needReads && !us.isDestroyed() {
			us.doingReads = false
			us.cond.Wait()
		}
		if us.isDestroyed() {
			us.mu.Unlock()
			return
		}
		us.doingReads = true
		us.mu.Unlock()

		n, addr, err := us.conn.ReadFrom(buf)
		if err != nil {
			us.emitEndOfStream()
			return
		}

		us.mu.Lock()
		sourceChanged := us.lastSource == nil || us.lastSource.String() != addr.String()
		us.lastSource = addr
		us.mu.Unlock()

		if sourceChanged {
			if udpAddr, ok := addr.(*net.UDPAddr); ok {
				src := ipservice.NewService("", udpAddr.Port)
				src.AddAddress(ipservice.NewAddress(udpAddr.IP))
				us.mu.Lock()
				us.readQueue.Push(event.Packet(src))
				us.mu.Unlock()
			}
		}

		data := append([]byte(nil), buf[:n]...)
		us.pushReadData(data)
	}
}

func (us *udpShunt) writeLoop() {
	defer rescue.HandleCrash()
	for {
		us.mu.Lock()
		for us.writeQueue.LengthPackets() == 0 && !us.blockWrites && !us.isDestroyed() {
			us.doingWrites = false
			us.cond.Wait()
		}
		if us.isDestroyed() {
			us.mu.Unlock()
			return
		}
		if us.blockWrites {
			us.mu.Unlock()
			continue
		}
		us.doingWrites = true
		p := us.writeQueue.PopPacket()
		us.mu.Unlock()
		if p == nil {
			continue
		}

		if p.Format() == packet.Object {
			us.handleWriteObject(p)
			continue
		}

		us.mu.Lock()
		dest := us.dest
		us.mu.Unlock()

		var err error
		if dest != nil {
			_, err = us.conn.WriteToUDP(p.Data(), dest)
		} else {
			err = fmt.Errorf("udp shunt: no destination configured")
		}
		if err != nil && isMessageTooLong(err) {
			us.mu.Lock()
			us.readQueue.Push(event.Packet(event.NewDetailed("datagram too large",
				event.Pair{Domain: event.DomainSocket, Code: event.SocketOversizedPacket})))
			us.mu.Unlock()
			us.readStateChanged()
		}
		p.Unref()
		us.writeStateChanged()
	}
}

// isMessageTooLong reports whether err looks like EMSGSIZE — an
// oversized UDP write, which the spec treats as a reportable but
// non-fatal condition rather than ending the stream.
func isMessageTooLong(err error) bool {
	return strings.Contains(err.Error(), "message too long")
}

func (us *udpShunt) handleWriteObject(p *packet.Packet) {
	defer p.Unref()

	switch obj := p.Object().(type) {
	case *ipservice.Service:
		if addr, ok := obj.FindAddress(false); ok {
			us.mu.Lock()
			us.dest = &net.UDPAddr{IP: addr.IP, Port: obj.Port()}
			us.mu.Unlock()
		}
	case ipservice.Address:
		us.mu.Lock()
		if us.dest == nil {
			us.dest = &net.UDPAddr{IP: obj.IP}
		} else {
			us.dest = &net.UDPAddr{IP: obj.IP, Port: us.dest.Port}
		}
		us.mu.Unlock()
	case event.End, event.Denied:
		us.emitEndOfStream()
	}
}
