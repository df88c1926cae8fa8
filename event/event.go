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

// Package event defines the universal stream-event vocabulary elements
// and shunts use to negotiate connection lifecycles, partial reads, and
// error recovery uniformly across transports.
package event

import (
	"fmt"

	"github.com/flowd/flow/ipservice"
	"github.com/flowd/flow/packet"
)

// Domain groups related event codes under a short ASCII namespace.
type Domain string

// Code identifies one condition within a Domain.
type Code string

const (
	DomainStream Domain = "stream"
	DomainFile   Domain = "file"
	DomainSocket Domain = "socket"
	DomainLookup Domain = "lookup"
	DomainExec   Domain = "exec"
)

// Stream-domain codes.
const (
	StreamBegin         Code = "begin"
	StreamEnd           Code = "end"
	StreamEndConverse    Code = "end_converse"
	StreamDenied         Code = "denied"
	StreamSegmentBegin   Code = "segment_begin"
	StreamSegmentEnd     Code = "segment_end"
	StreamError          Code = "error"
	StreamAppError       Code = "app_error"
	StreamPhysicalError  Code = "physical_error"
	StreamResourceError  Code = "resource_error"
)

// File-domain codes.
const (
	FileReachedEnd       Code = "reached_end"
	FileNoSpace          Code = "no_space"
	FilePermissionDenied Code = "permission_denied"
	FileDoesNotExist     Code = "does_not_exist"
	FileIsNotAFile       Code = "is_not_a_file"
	FileTooManyLinks     Code = "too_many_links"
	FileOutOfHandles     Code = "out_of_handles"
	FilePathTooLong      Code = "path_too_long"
	FileIsReadOnly       Code = "is_read_only"
	FileIsLocked         Code = "is_locked"
	FileRestart          Code = "restart"
)

// Socket-domain codes.
const (
	SocketAddressInUse        Code = "address_in_use"
	SocketAddressProtected    Code = "address_protected"
	SocketAddressDoesNotExist Code = "address_does_not_exist"
	SocketConnectionRefused   Code = "connection_refused"
	SocketConnectionReset     Code = "connection_reset"
	SocketNetworkUnreachable  Code = "network_unreachable"
	SocketAcceptError         Code = "accept_error"
	SocketOversizedPacket     Code = "oversized_packet"
)

// Lookup-domain codes.
const (
	LookupNoRecords               Code = "no_records"
	LookupTemporaryServerFailure  Code = "temporary_server_failure"
	LookupPermanentServerFailure  Code = "permanent_server_failure"
)

// Exec-domain codes.
const (
	ExecParseError Code = "parse_error"
	ExecRunError   Code = "run_error"
)

// Pair is a single (domain, code) tag on a Detailed event.
type Pair struct {
	Domain Domain
	Code   Code
}

// Detailed carries a human-readable description and an ordered list of
// (domain, code) tags describing one failure or condition.
type Detailed struct {
	Description string
	Codes       []Pair
}

// NewDetailed builds a Detailed event tagged with the given pairs, in
// the order given; Matches checks them in that order too, but the
// relation is a set membership test, not a priority.
func NewDetailed(description string, codes ...Pair) Detailed {
	return Detailed{Description: description, Codes: append([]Pair(nil), codes...)}
}

// Matches reports whether any tag equals (domain, code).
func (d Detailed) Matches(domain Domain, code Code) bool {
	for _, p := range d.Codes {
		if p.Domain == domain && p.Code == code {
			return true
		}
	}
	return false
}

func (d Detailed) Error() string {
	return d.Description
}

func (d Detailed) String() string {
	return fmt.Sprintf("%s %v", d.Description, d.Codes)
}

// Packet boxes an arbitrary event value as an object packet.
func Packet(ev any) *packet.Packet {
	return packet.NewObject(ev)
}

// Simple marker events with no payload; distinguished by Go type so a
// type switch on packet.Object() dispatches them.
type (
	// Begin marks that a transport has come up and data may begin.
	Begin struct{}
	// End marks the orderly end of a stream in one direction.
	End struct{}
	// EndConverse marks that the other direction has closed.
	EndConverse struct{}
	// SegmentBeginEvent marks the start of a contiguous data segment.
	SegmentBeginEvent struct{}
	// SegmentEndEvent marks the end of the current segment.
	SegmentEndEvent struct{}
)

// BeginPacket, EndPacket, etc. are convenience constructors matching the
// spec's stream.begin/end/... vocabulary (§6.1). Each is its own Go
// type rather than a Detailed so that process_input dispatch can use a
// cheap type switch instead of string comparison on the common path;
// failures, which do carry a description, use Detailed instead.
func BeginPacket() *packet.Packet          { return Packet(Begin{}) }
func EndPacket() *packet.Packet            { return Packet(End{}) }
func EndConversePacket() *packet.Packet    { return Packet(EndConverse{}) }
func SegmentBeginPacket() *packet.Packet   { return Packet(SegmentBeginEvent{}) }
func SegmentEndPacket() *packet.Packet     { return Packet(SegmentEndEvent{}) }
func DeniedPacket(d Detailed) *packet.Packet {
	return Packet(Denied{Detailed: d})
}

// Denied wraps the Detailed failure reported in place of stream.begin
// when a transport could never come up.
type Denied struct {
	Detailed
}

// Anchor selects the reference point for a Position or seek request.
type Anchor int

const (
	AnchorCurrent Anchor = iota
	AnchorBegin
	AnchorEnd
)

// Position is emitted by a seek request, and by file shunts after a
// seek completes.
type Position struct {
	Anchor Anchor
	Offset int64
}

// SegmentRequest bounds the next read segment on a file shunt. A
// negative Length means "to end of file".
type SegmentRequest struct {
	Length int64
}

// AccessMode mirrors the POSIX open(2) access modes a file connector
// may request.
type AccessMode int

const (
	AccessReadOnly AccessMode = iota
	AccessWriteOnly
	AccessReadWrite
)

// FileConnectOp is delivered to a file connector to open a file.
type FileConnectOp struct {
	Path               string
	AccessMode         AccessMode
	Create             bool
	Replace            bool
	CreationPermissions uint32
}

// TcpConnectOp is delivered to a TCP connector to dial out to remote.
// LocalPort, if non-zero, binds the outgoing connection's local port.
type TcpConnectOp struct {
	Remote    *ipservice.Service
	LocalPort int
}

// UdpConnectOp is delivered to a UDP connector to open a socket. Local,
// if non-nil, fixes the bound address/port; Remote, if non-nil, is
// wired as the socket's initial write destination.
type UdpConnectOp struct {
	Local  *ipservice.Service
	Remote *ipservice.Service
}

// Anonymous transfers an out-of-band owned object — most notably a
// freshly accepted shunt handle — as a control event. Destroy, if
// non-nil, is invoked exactly once when the event is dropped without
// ever being claimed by a consumer.
type Anonymous struct {
	Payload any
	Destroy func(any)
}

// NewAnonymous constructs an Anonymous event around payload. The
// constructor's parameter is always the sole source of truth for the
// wrapped payload — a past source of confusion in the original C
// implementation was an updater that reassigned the field from itself;
// here there is only one assignment, at construction, and the struct is
// immutable thereafter.
func NewAnonymous(payload any, destroy func(any)) Anonymous {
	return Anonymous{Payload: payload, Destroy: destroy}
}

// Release invokes Destroy if the payload was never claimed.
func (a Anonymous) Release() {
	if a.Destroy != nil {
		a.Destroy(a.Payload)
	}
}
