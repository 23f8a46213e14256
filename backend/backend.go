// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package backend provides the immutable Backend value that the resolver
// tracks: one network endpoint, identified by an IP address and TCP port.
// Every Backend carries a stable identity key that is independent of how
// its address was spelled, so two descriptors naming the same endpoint
// always collide to the same set member.
package backend

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/bufbuild/backendset/attribute"
)

// Service is the descriptor shape exchanged with consumers: the raw
// input accepted by the resolver's mutation methods and the payload
// carried by its membership events.
//
// Only Address and Port are required on input. Name and Key are derived
// during construction; a Service that already carries a Key (for example
// one observed from a previous event) round-trips without the key being
// recomputed.
type Service struct {
	// Name is the display identifier, "address:port" in the form produced
	// by net.JoinHostPort.
	Name string
	// Address is an IPv4 or IPv6 literal.
	Address string
	// Port is the TCP port. Zero means "use the resolver's default port".
	Port int
	// Key is the stable identity key. See Key.
	Key string
	// Attributes holds optional metadata attached by sources or callers.
	// Attributes never participate in identity.
	Attributes attribute.Values
}

// Backend is one resolved endpoint. It is immutable once constructed and
// safe to copy and compare by Key.
type Backend struct {
	name  string
	addr  netip.Addr
	port  int
	key   string
	attrs attribute.Values
}

// New constructs a Backend from an address literal and port.
func New(address string, port int) (Backend, error) {
	return FromService(Service{Address: address, Port: port})
}

// FromService canonicalizes a descriptor into a Backend. The address is
// reduced to its canonical textual form, the name and identity key are
// derived, and attributes are carried through untouched.
//
// FromService is idempotent: feeding the Service() of a Backend back in
// yields an identical Backend, and an input that already carries a key
// keeps it verbatim.
func FromService(svc Service) (Backend, error) {
	if svc.Address == "" {
		return Backend{}, &ValidationError{Field: "address", Reason: "address is required"}
	}
	addr, err := netip.ParseAddr(svc.Address)
	if err != nil {
		return Backend{}, &ValidationError{Field: "address", Reason: fmt.Sprintf("%q is not an IP literal", svc.Address)}
	}
	if svc.Port < minPort || svc.Port > maxPort {
		return Backend{}, &ValidationError{Field: "port", Reason: fmt.Sprintf("%d is outside the TCP port range", svc.Port)}
	}
	addr = addr.Unmap()
	canonical := addr.String()
	name := net.JoinHostPort(canonical, strconv.Itoa(svc.Port))
	key := svc.Key
	if key == "" {
		key = Key(Service{Name: name, Address: canonical, Port: svc.Port})
	}
	return Backend{
		name:  name,
		addr:  addr,
		port:  svc.Port,
		key:   key,
		attrs: svc.Attributes,
	}, nil
}

const (
	minPort = 1
	maxPort = 65535
)

// Name returns the display identifier, "address:port".
func (b Backend) Name() string {
	return b.name
}

// Address returns the canonical address literal.
func (b Backend) Address() string {
	return b.addr.String()
}

// Addr returns the parsed address.
func (b Backend) Addr() netip.Addr {
	return b.addr
}

// Port returns the TCP port.
func (b Backend) Port() int {
	return b.port
}

// Key returns the stable identity key.
func (b Backend) Key() string {
	return b.key
}

// Attributes returns the metadata attached at construction.
func (b Backend) Attributes() attribute.Values {
	return b.attrs
}

// Service returns the descriptor form of the backend, suitable for
// handing to consumers or feeding back into FromService.
func (b Backend) Service() Service {
	return Service{
		Name:       b.name,
		Address:    b.addr.String(),
		Port:       b.port,
		Key:        b.key,
		Attributes: b.attrs,
	}
}

func (b Backend) String() string {
	return b.name
}

// IsZero reports whether the backend is the zero value, i.e. was not
// produced by a constructor.
func (b Backend) IsZero() bool {
	return b.key == ""
}

// ValidationError indicates a malformed backend descriptor. It is
// returned synchronously by constructors and by the resolver's mutation
// methods; a descriptor that fails validation is never queued or applied.
type ValidationError struct {
	// Field names the offending descriptor field.
	Field string
	// Reason describes why the value was rejected.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid backend %s: %s", e.Field, e.Reason)
}
