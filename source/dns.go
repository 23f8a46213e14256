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

package source

import (
	"context"
	"net"
	"time"

	"github.com/bufbuild/backendset/attribute"
	"github.com/bufbuild/backendset/backend"
)

// AddressFamily is the attribute under which the DNS source records
// whether a member came from an A record ("ipv4") or an AAAA record
// ("ipv6").
var AddressFamily = attribute.NewKey[string]() //nolint:gochecknoglobals

// AddressFamilyAffinity allows control over the preference for which
// addresses to consider when resolving, based on their address family.
type AddressFamilyAffinity int

const (
	// AllFamilies will result in all addresses being used, regardless of
	// their address family.
	AllFamilies AddressFamilyAffinity = iota

	// PreferIPv4 will result in only IPv4 addresses being used, if any
	// IPv4 addresses are present. If no IPv4 addresses are resolved, then
	// all addresses will be used.
	PreferIPv4

	// PreferIPv6 will result in only IPv6 addresses being used, if any
	// IPv6 addresses are present. If no IPv6 addresses are resolved, then
	// all addresses will be used.
	PreferIPv6
)

// NewDNS creates a polling source that resolves DNS names into backend
// sets. The network parameter selects which kind of addresses to
// resolve and must be one of "ip", "ip4" or "ip6". Note that because
// net.Resolver does not expose record TTL values, the source re-probes
// on the polling source's default TTL (see [WithDefaultTTL]).
func NewDNS(
	resolver *net.Resolver,
	network string,
	affinity AddressFamilyAffinity,
	opts ...PollingOption,
) Source {
	return NewPolling(
		&dnsProber{
			resolver: resolver,
			network:  network,
			affinity: affinity,
		},
		opts...,
	)
}

type dnsProber struct {
	resolver *net.Resolver
	network  string
	affinity AddressFamilyAffinity
}

func (p *dnsProber) ProbeOnce(
	ctx context.Context,
	host string,
	defaultPort int,
) ([]backend.Service, time.Duration, error) {
	addresses, err := p.resolver.LookupNetIP(ctx, p.network, host)
	if err != nil {
		return nil, 0, err
	}
	switch p.affinity {
	case AllFamilies:
		break
	case PreferIPv4:
		ip4Addresses := addresses[:0]
		for _, address := range addresses {
			if address.Is4() || address.Is4In6() {
				ip4Addresses = append(ip4Addresses, address)
			}
		}
		if len(ip4Addresses) > 0 {
			addresses = ip4Addresses
		}
	case PreferIPv6:
		ip6Addresses := addresses[:0]
		for _, address := range addresses {
			if address.Is6() && !address.Is4In6() {
				ip6Addresses = append(ip6Addresses, address)
			}
		}
		if len(ip6Addresses) > 0 {
			addresses = ip6Addresses
		}
	}
	members := make([]backend.Service, len(addresses))
	for i, address := range addresses {
		address = address.Unmap()
		family := "ipv6"
		if address.Is4() {
			family = "ipv4"
		}
		members[i] = backend.Service{
			Address:    address.String(),
			Port:       defaultPort,
			Attributes: attribute.NewValues(AddressFamily.Value(family)),
		}
	}
	return members, 0, nil
}
