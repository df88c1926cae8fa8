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

// Package ipservice provides the small address/service value types
// shunts and connectors report and consume. Resolving a name to
// addresses is explicitly out of scope here — callers that need DNS
// resolution build a Service from net.Resolver results themselves and
// hand the core a Service; this package only describes the shape of
// "an address and a port" uniformly enough for stream.begin payloads,
// UDP source reporting, and TCP listener peer reporting.
package ipservice

import (
	"fmt"
	"net"
)

// Quality is a caller-supplied hint about a service's expected
// network characteristics. It carries no behavior; elements that care
// about it (e.g. choosing between redundant addresses) can inspect it.
type Quality int

const (
	QualityUnspecified Quality = iota
	QualityLowCost
	QualityHighReliability
	QualityHighThroughput
	QualityLowLatency
)

func (q Quality) String() string {
	switch q {
	case QualityLowCost:
		return "low-cost"
	case QualityHighReliability:
		return "high-reliability"
	case QualityHighThroughput:
		return "high-throughput"
	case QualityLowLatency:
		return "low-latency"
	default:
		return "unspecified"
	}
}

// Address is a single IP address, independent of any port. It wraps
// net.IP rather than reimplementing address-family/classification
// logic: Go's standard library already provides correct, well-tested
// IsLoopback/IsMulticast/IsPrivate/IsUnspecified predicates, and no
// repo in the example pack carries an alternative IP-address library
// worth reaching for instead.
type Address struct {
	IP net.IP
}

// NewAddress wraps ip. The zero Address has a nil IP and IsValid
// reports false for it.
func NewAddress(ip net.IP) Address {
	return Address{IP: ip}
}

// ParseAddress parses a dotted-quad or colon-hex textual address.
func ParseAddress(s string) (Address, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return Address{}, false
	}
	return Address{IP: ip}, true
}

// IsValid reports whether the address holds a usable IP.
func (a Address) IsValid() bool {
	return a.IP != nil
}

// IsLoopback reports whether a is a loopback address (127.0.0.0/8 or ::1).
func (a Address) IsLoopback() bool {
	return a.IP != nil && a.IP.IsLoopback()
}

// IsMulticast reports whether a is a multicast address.
func (a Address) IsMulticast() bool {
	return a.IP != nil && a.IP.IsMulticast()
}

// IsPrivate reports whether a falls within an RFC 1918 / RFC 4193
// private address range.
func (a Address) IsPrivate() bool {
	return a.IP != nil && a.IP.IsPrivate()
}

// IsGlobalUnicast reports whether a is routable on the public
// Internet — the closest equivalent to the original's "is internet"
// predicate once loopback/multicast/private/unspecified are excluded.
func (a Address) IsGlobalUnicast() bool {
	return a.IP != nil && a.IP.IsGlobalUnicast() &&
		!a.IP.IsPrivate() && !a.IP.IsLoopback() && !a.IP.IsMulticast()
}

// String renders the address in its usual textual form, or "<invalid>"
// for the zero value.
func (a Address) String() string {
	if a.IP == nil {
		return "<invalid>"
	}
	return a.IP.String()
}

// Service names a destination: an optional human-readable name, a set
// of candidate addresses (as DNS resolution or static configuration
// may yield more than one), a port, and a Quality hint. It is the
// "service interface yielding an address and port" the core consumes
// — nothing in this package performs the resolution that populates
// Addresses.
type Service struct {
	name      string
	port      int
	quality   Quality
	addresses []Address
}

// NewService returns a Service named name listening on port. Port must
// be in [0, 65535]; NewService panics otherwise, mirroring the
// original's g_return_if_fail precondition on construction inputs that
// are always caller-controlled constants, never wire data.
func NewService(name string, port int) *Service {
	if port < 0 || port > 65535 {
		panic(fmt.Sprintf("ipservice: invalid port %d", port))
	}
	return &Service{name: name, port: port}
}

// HaveName reports whether the service was constructed with a
// non-empty name.
func (s *Service) HaveName() bool {
	return s.name != ""
}

// Name returns the service's configured name, which may be empty.
func (s *Service) Name() string {
	return s.name
}

// SetName replaces the service's name.
func (s *Service) SetName(name string) {
	s.name = name
}

// Port returns the service's port number.
func (s *Service) Port() int {
	return s.port
}

// SetPort replaces the service's port number. It panics if port is out
// of range, for the same reason NewService does.
func (s *Service) SetPort(port int) {
	if port < 0 || port > 65535 {
		panic(fmt.Sprintf("ipservice: invalid port %d", port))
	}
	s.port = port
}

// Quality returns the service's quality hint.
func (s *Service) Quality() Quality {
	return s.quality
}

// SetQuality replaces the service's quality hint.
func (s *Service) SetQuality(q Quality) {
	s.quality = q
}

// NumAddresses returns how many candidate addresses are attached.
func (s *Service) NumAddresses() int {
	return len(s.addresses)
}

// NthAddress returns the address at index n. It panics if n is out of
// range; callers iterate guarded by NumAddresses.
func (s *Service) NthAddress(n int) Address {
	return s.addresses[n]
}

// FindAddress returns the first attached address whose IP is in the
// given family (4 or 6, matching net.IP's To4/To16 distinction), and
// false if none matches.
func (s *Service) FindAddress(wantIPv6 bool) (Address, bool) {
	for _, a := range s.addresses {
		isV4 := a.IP.To4() != nil
		if isV4 != wantIPv6 {
			return a, true
		}
	}
	return Address{}, false
}

// Addresses returns every candidate address, in the order they were
// added.
func (s *Service) Addresses() []Address {
	out := make([]Address, len(s.addresses))
	copy(out, s.addresses)
	return out
}

// AddAddress appends addr to the service's candidate list.
func (s *Service) AddAddress(addr Address) {
	s.addresses = append(s.addresses, addr)
}

// RemoveAddress removes the first occurrence of addr, if present.
func (s *Service) RemoveAddress(addr Address) {
	for i, a := range s.addresses {
		if a.IP.Equal(addr.IP) {
			s.addresses = append(s.addresses[:i], s.addresses[i+1:]...)
			return
		}
	}
}

// String renders "name:port" if named, or "address:port" for the
// first attached address otherwise — the form shunts embed in
// stream.begin payloads for UDP source reporting and TCP listener
// peer reporting.
func (s *Service) String() string {
	host := s.name
	if host == "" && len(s.addresses) > 0 {
		host = s.addresses[0].String()
	}
	if host == "" {
		host = "<unresolved>"
	}
	return fmt.Sprintf("%s:%d", host, s.port)
}
