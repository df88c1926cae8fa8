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
	"sync"

	"github.com/flowd/flow/event"
	"github.com/flowd/flow/logger"
	"github.com/flowd/flow/metrics"
	"github.com/flowd/flow/packet"
)

// maxBuffer bounds how many bytes of unread or unwritten data a shunt
// lets accumulate in its queues before backing off reads, or before
// treating the write side as "caught up enough to ask for more".
const maxBuffer int64 = 4096

// Kind identifies the transport a Shunt wraps.
type Kind int

const (
	KindFile Kind = iota
	KindPipe
	KindTCP
	KindTCPListener
	KindUDP
	KindWorker
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindPipe:
		return "pipe"
	case KindTCP:
		return "tcp"
	case KindTCPListener:
		return "tcp_listener"
	case KindUDP:
		return "udp"
	case KindWorker:
		return "worker"
	default:
		return "unknown"
	}
}

// ReadFunc is invoked once per packet produced on a shunt's read side.
// It runs on the owning Runtime's dispatcher, never concurrently with
// another callback from the same shunt. The packet is owned by the
// callee.
type ReadFunc func(s *Shunt, p *packet.Packet)

// WriteFunc is invoked when a shunt is ready to transmit. It returns
// the next packet to write, or nil when the pipeline has nothing more
// to offer right now.
type WriteFunc func(s *Shunt) *packet.Packet

// Shunt is one bidirectional byte+event connection to the outside
// world. Kind-specific constructors (OpenFile, ConnectTCP, OpenUDP,
// SpawnWorker, ...) build and start one; the zero value is not usable.
type Shunt struct {
	kind    Kind
	runtime *Runtime

	mu   sync.Mutex
	cond *sync.Cond

	destroyed bool

	canRead  bool
	canWrite bool

	needReads  bool
	needWrites bool

	doingReads  bool
	doingWrites bool

	blockReads  bool
	blockWrites bool

	dispatchedBegin bool
	dispatchedEnd   bool
	receivedEnd     bool

	offsetChanged bool

	readQueue  *packet.Queue
	writeQueue *packet.Queue

	readFunc  ReadFunc
	writeFunc WriteFunc

	closer func() error

	// localAddr is set by socket-backed kinds (TCP listener, UDP) so
	// callers can discover an ephemeral port the OS chose.
	localAddr net.Addr

	// kind exposes itself here so that shared dispatch code (flush
	// loops) can call back into kind-specific behavior without a
	// virtual-dispatch table: each constructor fills in the hooks it
	// needs and leaves the rest nil.
	onDestroy func()
}

func newShunt(rt *Runtime, kind Kind) *Shunt {
	s := &Shunt{
		kind:       kind,
		runtime:    rt,
		readQueue:  packet.NewQueue(),
		writeQueue: packet.NewQueue(),
	}
	s.cond = sync.NewCond(&s.mu)
	rt.track(s)
	metrics.ShuntOpened(kind.String())
	logger.Debugf("shunt opened: kind=%s", kind)
	return s
}

// Kind reports the transport this shunt wraps.
func (s *Shunt) Kind() Kind {
	return s.kind
}

// LocalAddr returns the local address a socket-backed shunt (TCP
// listener, UDP) is bound to, or nil for kinds that don't have one.
// Useful for discovering an ephemeral port the OS chose.
func (s *Shunt) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localAddr
}

// SetReadFunc installs (or clears, with nil) the callback invoked for
// each packet produced on the read side.
func (s *Shunt) SetReadFunc(fn ReadFunc) {
	s.mu.Lock()
	s.readFunc = fn
	s.mu.Unlock()
	s.readStateChanged()
}

// SetWriteFunc installs (or clears, with nil) the callback invoked to
// pull the next packet to transmit.
func (s *Shunt) SetWriteFunc(fn WriteFunc) {
	s.mu.Lock()
	s.writeFunc = fn
	s.mu.Unlock()
	s.writeStateChanged()
}

// BlockReads suspends read-side callback delivery; data already in
// flight keeps accumulating in the read queue up to the buffer
// threshold, then the underlying reader pauses too.
func (s *Shunt) BlockReads() {
	s.mu.Lock()
	changed := !s.blockReads
	s.blockReads = true
	s.mu.Unlock()
	if changed {
		s.readStateChanged()
	}
}

// UnblockReads resumes read-side callback delivery.
func (s *Shunt) UnblockReads() {
	s.mu.Lock()
	changed := s.blockReads
	s.blockReads = false
	s.mu.Unlock()
	if changed {
		s.readStateChanged()
	}
	s.cond.Broadcast()
}

// BlockWrites suspends pulling new packets via write_func; packets
// already queued keep draining to the transport.
func (s *Shunt) BlockWrites() {
	s.mu.Lock()
	changed := !s.blockWrites
	s.blockWrites = true
	s.mu.Unlock()
	if changed {
		s.writeStateChanged()
	}
}

// UnblockWrites resumes pulling new packets to transmit.
func (s *Shunt) UnblockWrites() {
	s.mu.Lock()
	changed := s.blockWrites
	s.blockWrites = false
	s.mu.Unlock()
	if changed {
		s.writeStateChanged()
	}
	s.cond.Broadcast()
}

// Destroy releases the shunt. It is safe to call from inside a
// read_func/write_func callback.
func (s *Shunt) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	closer := s.closer
	onDestroy := s.onDestroy
	s.mu.Unlock()

	s.cond.Broadcast()
	if closer != nil {
		closer()
	}
	if onDestroy != nil {
		onDestroy()
	}
	s.runtime.untrack(s)
	metrics.ShuntClosed(s.kind.String())
	logger.Debugf("shunt destroyed: kind=%s", s.kind)
}

// isDestroyed reports whether Destroy has been called. Callers must
// hold s.mu.
func (s *Shunt) isDestroyed() bool {
	return s.destroyed
}

// readStateChanged recomputes need_reads per the rule: the channel is
// readable, the read queue isn't already saturated, and either a read
// callback is installed and unblocked, or the shunt hasn't dispatched
// its opening stream.begin yet (so the first read can discover
// success/failure). A false→true transition wakes the reader; a
// true→false transition is observed lazily, same as the original.
func (s *Shunt) readStateChanged() {
	s.mu.Lock()
	newNeed := s.canRead && s.readQueue.LengthBytes() <= maxBuffer &&
		((!s.blockReads && s.readFunc != nil) || !s.dispatchedBegin)

	wake := false
	if s.needReads != newNeed {
		s.needReads = newNeed
		if !s.doingReads && newNeed {
			wake = true
		}
	}

	shouldDispatch := s.readQueue.LengthPackets() > 0 && !s.blockReads && s.readFunc != nil
	s.mu.Unlock()

	if wake {
		s.cond.Broadcast()
	}
	if shouldDispatch {
		s.scheduleReadDispatch()
	}
}

// writeStateChanged recomputes need_writes: the channel is writable
// and either there's already something queued to send, or the shunt
// hasn't dispatched stream.begin yet (so the first write attempt can
// discover a connect failure).
func (s *Shunt) writeStateChanged() {
	s.mu.Lock()
	newNeed := s.canWrite && (s.writeQueue.LengthPackets() > 0 || !s.dispatchedBegin)

	wake := false
	if s.needWrites != newNeed {
		s.needWrites = newNeed
		if !s.doingWrites && newNeed {
			wake = true
		}
	}

	shouldDispatch := !s.receivedEnd && s.writeQueue.LengthBytes() <= maxBuffer &&
		!s.blockWrites && s.writeFunc != nil
	s.mu.Unlock()

	if wake {
		s.cond.Broadcast()
	}
	if shouldDispatch {
		s.scheduleWriteDispatch()
	}
}

// scheduleReadDispatch posts a callback-delivery pass to the runtime's
// dispatcher, draining whatever packets are currently queued to
// read_func. It runs off the calling goroutine so the reader loop
// never blocks waiting for user code.
func (s *Shunt) scheduleReadDispatch() {
	s.runtime.disp.PostIdle(func() {
		for {
			s.mu.Lock()
			if s.readQueue.LengthPackets() == 0 || s.blockReads || s.readFunc == nil {
				s.mu.Unlock()
				return
			}
			p := s.readQueue.PopPacket()
			fn := s.readFunc
			s.mu.Unlock()

			fn(s, p)
			metrics.PacketDispatched(s.kind.String(), "read")
		}
	})
}

// scheduleWriteDispatch posts a pull pass: repeatedly calls write_func
// to fill the write queue until it declines (returns nil) or the
// queue is full enough, then wakes the writer goroutine to drain it.
func (s *Shunt) scheduleWriteDispatch() {
	s.runtime.disp.PostIdle(func() {
		for {
			s.mu.Lock()
			if s.receivedEnd || s.blockWrites || s.writeFunc == nil ||
				s.writeQueue.LengthBytes() > maxBuffer {
				s.mu.Unlock()
				break
			}
			fn := s.writeFunc
			s.mu.Unlock()

			p := fn(s)
			if p == nil {
				break
			}
			metrics.PacketDispatched(s.kind.String(), "write")

			s.mu.Lock()
			if p.Format() == packet.Object {
				if ev, ok := p.Object().(event.Detailed); ok &&
					(ev.Matches(event.DomainStream, event.StreamEnd) ||
						ev.Matches(event.DomainStream, event.StreamDenied)) {
					s.receivedEnd = true
				}
				switch p.Object().(type) {
				case event.End, event.EndConverse:
					s.receivedEnd = true
				}
			}
			s.writeQueue.Push(p)
			s.mu.Unlock()
		}
		s.cond.Broadcast()
	})
}

// emitBegin pushes stream.begin then stream.segment_begin onto the
// read queue and latches dispatched_begin. Call exactly once, as soon
// as the transport is known to have come up. Connected transports
// (TCP, UDP, pipe, worker) bundle both: there is no notion of a
// segment request distinct from the connection coming up.
func (s *Shunt) emitBegin() {
	s.mu.Lock()
	if s.dispatchedBegin {
		s.mu.Unlock()
		return
	}
	s.dispatchedBegin = true
	s.readQueue.Push(event.BeginPacket())
	s.readQueue.Push(event.SegmentBeginPacket())
	s.mu.Unlock()
	s.readStateChanged()
}

// emitBeginOnly pushes stream.begin alone and latches dispatched_begin,
// for a transport whose segment_begin/segment_end pairing is driven by
// something other than the transport coming up — namely a file shunt,
// whose segment_begin only follows an explicit segment_request.
func (s *Shunt) emitBeginOnly() {
	s.mu.Lock()
	if s.dispatchedBegin {
		s.mu.Unlock()
		return
	}
	s.dispatchedBegin = true
	s.readQueue.Push(event.BeginPacket())
	s.mu.Unlock()
	s.readStateChanged()
}

// emitDenied pushes a stream.denied event carrying detail in place of
// stream.begin, for a transport that could never come up. No further
// read-side events follow.
func (s *Shunt) emitDenied(detail event.Detailed) {
	s.mu.Lock()
	if s.dispatchedBegin {
		s.mu.Unlock()
		return
	}
	s.dispatchedBegin = true
	s.dispatchedEnd = true
	s.readQueue.Push(event.DeniedPacket(detail))
	s.mu.Unlock()
	metrics.ShuntDenied(s.kind.String())
	logger.Warnf("shunt denied: kind=%s detail=%+v", s.kind, detail)
	s.readStateChanged()
}

// emitEndOfStream pushes stream.segment_end then stream.end and
// latches dispatched_end. Call on read EOF or a successful close.
func (s *Shunt) emitEndOfStream() {
	s.mu.Lock()
	if s.dispatchedEnd {
		s.mu.Unlock()
		return
	}
	s.dispatchedEnd = true
	s.readQueue.Push(event.SegmentEndPacket())
	s.readQueue.Push(event.EndPacket())
	s.mu.Unlock()
	s.readStateChanged()
}

// pushReadData wraps data in a buffer packet and appends it to the
// read queue, then recomputes read state (which may schedule a
// dispatch pass).
func (s *Shunt) pushReadData(data []byte) {
	s.mu.Lock()
	s.readQueue.Push(packet.NewBuffer(data))
	s.mu.Unlock()
	s.readStateChanged()
}

// DispatchNow forces an immediate, synchronous flush of both the read
// and write dispatch passes on the calling goroutine, bypassing the
// runtime's dispatcher. It mirrors flow_shunt_dispatch_now, used by
// tests and by hosts that drive their own loop instead of relying on
// the Runtime's background dispatcher.
func (s *Shunt) DispatchNow() (nReads, nWrites int) {
	s.mu.Lock()
	for s.readQueue.LengthPackets() > 0 && !s.blockReads && s.readFunc != nil {
		p := s.readQueue.PopPacket()
		fn := s.readFunc
		s.mu.Unlock()
		fn(s, p)
		metrics.PacketDispatched(s.kind.String(), "read")
		nReads++
		s.mu.Lock()
	}
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if s.receivedEnd || s.blockWrites || s.writeFunc == nil {
			s.mu.Unlock()
			break
		}
		fn := s.writeFunc
		s.mu.Unlock()
		p := fn(s)
		if p == nil {
			break
		}
		metrics.PacketDispatched(s.kind.String(), "write")
		s.mu.Lock()
		s.writeQueue.Push(p)
		s.mu.Unlock()
		nWrites++
	}
	return
}
