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
	"io"
	"math"
	"os"

	"github.com/flowd/flow/event"
	"github.com/flowd/flow/internal/rescue"
	"github.com/flowd/flow/packet"
)

// fileShunt wraps a Shunt around an *os.File. Unlike the other shunt
// kinds, a file shunt never reads unsolicited: readBytesRemaining
// starts at zero, and reads stay paused until a segment_request
// arrives on the write side, setting how many bytes (or, for a
// negative length, "to EOF") the next segment may deliver. Running out
// of requested bytes pauses reads again with just a stream.segment_end,
// without ending the stream; hitting EOF first adds file.reached_end
// to mark that the file itself, not just the segment, is exhausted.
type fileShunt struct {
	*Shunt
	f *os.File

	readBytesRemaining int64
}

// OpenFile opens path for the given access mode and returns a Shunt
// wrapping it. The shunt's first read-side event is stream.begin on
// success, or stream.denied carrying the open failure.
func OpenFile(rt *Runtime, path string, mode event.AccessMode) *Shunt {
	return openOrCreateFile(rt, path, mode, false, false, 0)
}

// CreateFile opens path for writing, creating it if necessary.
// destructive truncates an existing file; perm sets the permissions
// used if the file is newly created.
func CreateFile(rt *Runtime, path string, mode event.AccessMode, destructive bool, perm os.FileMode) *Shunt {
	return openOrCreateFile(rt, path, mode, true, destructive, perm)
}

func openOrCreateFile(rt *Runtime, path string, mode event.AccessMode, create, destructive bool, perm os.FileMode) *Shunt {
	flags := 0
	switch mode {
	case event.AccessReadOnly:
		flags = os.O_RDONLY
	case event.AccessWriteOnly:
		flags = os.O_WRONLY
	case event.AccessReadWrite:
		flags = os.O_RDWR
	}
	if create {
		flags |= os.O_CREATE
	}
	if destructive {
		flags |= os.O_TRUNC
	}
	if perm == 0 {
		perm = 0644
	}

	base := newShunt(rt, KindFile)
	fs := &fileShunt{Shunt: base}

	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		base.emitDenied(fileOpenError(err))
		return base
	}

	fs.f = f
	base.closer = f.Close
	base.mu.Lock()
	base.canRead = mode != event.AccessWriteOnly
	base.canWrite = mode != event.AccessReadOnly
	base.mu.Unlock()

	base.emitBeginOnly()
	if base.canRead {
		go fs.readLoop()
	}
	go fs.writeLoop()
	return base
}

func fileOpenError(err error) event.Detailed {
	code := event.FilePermissionDenied
	switch {
	case errors.Is(err, os.ErrNotExist):
		code = event.FileDoesNotExist
	case errors.Is(err, os.ErrPermission):
		code = event.FilePermissionDenied
	}
	return event.NewDetailed(err.Error(), event.Pair{Domain: event.DomainFile, Code: code})
}

func (fs *fileShunt) readLoop() {
	defer rescue.HandleCrash()
	buf := make([]byte, maxBuffer)
	for {
		fs.mu.Lock()
		for (!fs.needReads || fs.readBytesRemaining <= 0) && !fs.isDestroyed() {
			fs.doingReads = false
			fs.cond.Wait()
		}
		if fs.isDestroyed() {
			fs.mu.Unlock()
			return
		}
		fs.doingReads = true
		remaining := fs.readBytesRemaining
		fs.mu.Unlock()

		toRead := int64(len(buf))
		if remaining < toRead {
			toRead = remaining
		}

		n, err := fs.f.Read(buf[:toRead])
		if n > 0 {
			fs.mu.Lock()
			fs.readBytesRemaining -= int64(n)
			if fs.readBytesRemaining < 0 {
				fs.readBytesRemaining = 0
			}
			exhausted := fs.readBytesRemaining == 0
			fs.mu.Unlock()

			fs.pushReadData(append([]byte(nil), buf[:n]...))

			if exhausted {
				fs.endSegment()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				fs.mu.Lock()
				exhausted := fs.readBytesRemaining != 0
				fs.readBytesRemaining = 0
				fs.mu.Unlock()
				if exhausted {
					fs.endSegmentAtEOF()
				}
				continue
			}
			fs.emitEndOfStream()
			return
		}
	}
}

// endSegment reports that the current segment request has been
// satisfied by delivering its full requested length, with more of the
// file left unread. It pauses reads until another segment_request
// arrives; it does not end the stream and does not claim EOF.
func (fs *fileShunt) endSegment() {
	fs.mu.Lock()
	fs.readQueue.Push(event.SegmentEndPacket())
	fs.mu.Unlock()
	fs.readStateChanged()
}

// endSegmentAtEOF reports that the current segment request was cut
// short by genuinely reaching the end of the file before its full
// requested length was delivered. Unlike endSegment, this also pushes
// file.reached_end, matching the original's separate result == 0
// branch.
func (fs *fileShunt) endSegmentAtEOF() {
	fs.mu.Lock()
	fs.readQueue.Push(event.SegmentEndPacket())
	fs.readQueue.Push(event.Packet(event.NewDetailed("end of file",
		event.Pair{Domain: event.DomainFile, Code: event.FileReachedEnd})))
	fs.mu.Unlock()
	fs.readStateChanged()
}

func (fs *fileShunt) writeLoop() {
	defer rescue.HandleCrash()
	for {
		fs.mu.Lock()
		for fs.writeQueue.LengthPackets() == 0 && !fs.blockWrites && !fs.isDestroyed() {
			fs.doingWrites = false
			fs.cond.Wait()
		}
		if fs.isDestroyed() {
			fs.mu.Unlock()
			return
		}
		if fs.blockWrites {
			fs.mu.Unlock()
			continue
		}
		fs.doingWrites = true
		p := fs.writeQueue.PopPacket()
		fs.mu.Unlock()
		if p == nil {
			continue
		}

		if p.Format() == packet.Object {
			fs.handleWriteObject(p)
			continue
		}

		if _, err := fs.f.Write(p.Data()); err != nil {
			fs.emitEndOfStream()
			p.Unref()
			return
		}
		fs.mu.Lock()
		fs.offsetChanged = true
		fs.mu.Unlock()
		p.Unref()
		fs.writeStateChanged()
	}
}

func (fs *fileShunt) handleWriteObject(p *packet.Packet) {
	defer p.Unref()

	switch obj := p.Object().(type) {
	case event.Position:
		whence := io.SeekCurrent
		switch obj.Anchor {
		case event.AnchorBegin:
			whence = io.SeekStart
		case event.AnchorEnd:
			whence = io.SeekEnd
		}
		pos, err := fs.f.Seek(obj.Offset, whence)
		if err == nil {
			fs.reportPosition(pos)
		}
		// Any outstanding segment request is cancelled by a seek.
		fs.mu.Lock()
		fs.readBytesRemaining = 0
		fs.mu.Unlock()

	case event.SegmentRequest:
		length := obj.Length
		if length < 0 {
			length = math.MaxInt64
		}
		fs.mu.Lock()
		fs.readBytesRemaining = length
		offsetChanged := fs.offsetChanged
		fs.mu.Unlock()

		if offsetChanged {
			if pos, err := fs.f.Seek(0, io.SeekCurrent); err == nil {
				fs.reportPosition(pos)
			}
		}

		fs.mu.Lock()
		fs.readQueue.Push(event.SegmentBeginPacket())
		fs.mu.Unlock()
		fs.readStateChanged()

	case event.Denied, event.End:
		fs.emitEndOfStream()
	}
}

func (fs *fileShunt) reportPosition(offset int64) {
	fs.mu.Lock()
	fs.readQueue.Push(event.Packet(event.Position{Anchor: event.AnchorBegin, Offset: offset}))
	fs.mu.Unlock()
	fs.readStateChanged()
}
