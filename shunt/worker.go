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
	"os/exec"
	"runtime"
	"sync"

	"github.com/flowd/flow/event"
	"github.com/flowd/flow/internal/rescue"
	"github.com/flowd/flow/packet"
)

// WorkerFunc is run by SpawnWorker/SpawnProcess with a SyncShunt that
// lets it perform blocking read/write against the same queues the
// pipeline side observes asynchronously.
type WorkerFunc func(ss *SyncShunt)

// SyncShunt is the synchronous handle a WorkerFunc uses to move
// packets in and out of the shunt it's running inside of. It is not
// safe to retain past the WorkerFunc returning.
type SyncShunt struct {
	s *Shunt
}

// Read blocks until a packet is available on the shunt's write queue
// (the pipeline's outbound data, which is this worker's inbound data)
// or the shunt is destroyed, in which case it returns false.
func (ss *SyncShunt) Read() (*packet.Packet, bool) {
	s := ss.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.writeQueue.LengthPackets() == 0 && !s.isDestroyed() {
		s.cond.Wait()
	}
	if s.isDestroyed() && s.writeQueue.LengthPackets() == 0 {
		return nil, false
	}
	return s.writeQueue.PopPacket(), true
}

// TryRead returns a queued packet without blocking, or nil if none is
// available right now.
func (ss *SyncShunt) TryRead() *packet.Packet {
	s := ss.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeQueue.LengthPackets() == 0 {
		return nil
	}
	return s.writeQueue.PopPacket()
}

// Write enqueues p onto the shunt's read queue (this worker's output,
// which the pipeline observes as inbound data) and wakes delivery.
func (ss *SyncShunt) Write(p *packet.Packet) {
	s := ss.s
	s.mu.Lock()
	s.readQueue.Push(p)
	s.mu.Unlock()
	s.readStateChanged()
}

// SpawnWorker runs fn on its own goroutine, wired to a fresh Shunt via
// a SyncShunt. It stands in for the original's worker-thread shunt:
// Go has no shared-memory-with-a-thread distinction from a goroutine,
// so "worker" here is simply fn running concurrently, synchronized
// through the same mutex/queues every other shunt kind uses.
func SpawnWorker(rt *Runtime, fn WorkerFunc) *Shunt {
	base := newShunt(rt, KindWorker)
	base.mu.Lock()
	base.canRead = true
	base.canWrite = true
	base.mu.Unlock()
	base.emitBegin()

	ss := &SyncShunt{s: base}
	go func() {
		defer rescue.HandleCrash()
		fn(ss)
		base.emitEndOfStream()
	}()
	return base
}

// SpawnProcess runs fn on a goroutine pinned to its own OS thread via
// runtime.LockOSThread. The original forks a real child process so a
// misbehaving worker can't corrupt the parent's address space; Go
// offers no equivalent isolation without an actual subprocess binary
// to exec, so this is a deliberate, documented simplification — use
// SpawnCommandLine for genuine process isolation.
func SpawnProcess(rt *Runtime, fn WorkerFunc) *Shunt {
	base := newShunt(rt, KindWorker)
	base.mu.Lock()
	base.canRead = true
	base.canWrite = true
	base.mu.Unlock()
	base.emitBegin()

	ss := &SyncShunt{s: base}
	go func() {
		defer rescue.HandleCrash()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		fn(ss)
		base.emitEndOfStream()
	}()
	return base
}

// SpawnCommandLine runs commandLine in a child process (via the
// shell), wiring its stdin/stdout to the shunt's write/read sides
// respectively.
func SpawnCommandLine(rt *Runtime, commandLine string) *Shunt {
	base := newShunt(rt, KindPipe)

	cmd := exec.Command("/bin/sh", "-c", commandLine)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		base.emitDenied(event.NewDetailed(err.Error(),
			event.Pair{Domain: event.DomainExec, Code: event.ExecRunError}))
		return base
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		base.emitDenied(event.NewDetailed(err.Error(),
			event.Pair{Domain: event.DomainExec, Code: event.ExecRunError}))
		return base
	}

	if err := cmd.Start(); err != nil {
		base.emitDenied(event.NewDetailed(err.Error(),
			event.Pair{Domain: event.DomainExec, Code: event.ExecRunError}))
		return base
	}

	base.closer = func() error {
		stdin.Close()
		return cmd.Process.Kill()
	}
	base.mu.Lock()
	base.canRead = true
	base.canWrite = true
	base.mu.Unlock()
	base.emitBegin()

	var closeOnce sync.Once
	go func() {
		defer rescue.HandleCrash()
		buf := make([]byte, maxBuffer)
		for {
			base.mu.Lock()
			for !base.needReads && !base.isDestroyed() {
				base.doingReads = false
				base.cond.Wait()
			}
			if base.isDestroyed() {
				base.mu.Unlock()
				return
			}
			base.doingReads = true
			base.mu.Unlock()

			n, err := stdout.Read(buf)
			if n > 0 {
				base.pushReadData(append([]byte(nil), buf[:n]...))
			}
			if err != nil {
				closeOnce.Do(func() { base.emitEndOfStream() })
				return
			}
		}
	}()

	go func() {
		defer rescue.HandleCrash()
		for {
			base.mu.Lock()
			for base.writeQueue.LengthPackets() == 0 && !base.blockWrites && !base.isDestroyed() {
				base.doingWrites = false
				base.cond.Wait()
			}
			if base.isDestroyed() {
				base.mu.Unlock()
				return
			}
			if base.blockWrites {
				base.mu.Unlock()
				continue
			}
			base.doingWrites = true
			p := base.writeQueue.PopPacket()
			base.mu.Unlock()
			if p == nil {
				continue
			}
			if p.Format() == packet.Object {
				if _, ok := p.Object().(event.End); ok {
					p.Unref()
					stdin.Close()
					continue
				}
				p.Unref()
				continue
			}
			if _, err := stdin.Write(p.Data()); err != nil {
				p.Unref()
				closeOnce.Do(func() { base.emitEndOfStream() })
				return
			}
			p.Unref()
			base.writeStateChanged()
		}
	}()

	return base
}
