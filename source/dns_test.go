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
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"

	"github.com/bufbuild/backendset/attribute"
	"github.com/bufbuild/backendset/backend"
)

func TestDNSProber(t *testing.T) {
	t.Parallel()

	ip4Header := dnsmessage.ResourceHeader{
		Name:  dnsmessage.MustNewName("example.com."),
		Type:  dnsmessage.TypeA,
		Class: dnsmessage.ClassINET,
	}
	ip6Header := dnsmessage.ResourceHeader{
		Name:  dnsmessage.MustNewName("example.com."),
		Type:  dnsmessage.TypeAAAA,
		Class: dnsmessage.ClassINET,
	}
	ip4Address1 := net.ParseIP("10.0.0.100")
	ip4Address2 := net.ParseIP("10.0.0.101")
	ip6Address1 := net.ParseIP("fe80::1")
	ip6Address2 := net.ParseIP("fe80::2")
	mixedResolver := newFakeDNSResolver(t, []dnsmessage.Resource{
		{Header: ip4Header, Body: &dnsmessage.AResource{A: [4]byte(ip4Address1.To4())}},
		{Header: ip6Header, Body: &dnsmessage.AAAAResource{AAAA: [16]byte(ip6Address1)}},
		{Header: ip4Header, Body: &dnsmessage.AResource{A: [4]byte(ip4Address2.To4())}},
		{Header: ip6Header, Body: &dnsmessage.AAAAResource{AAAA: [16]byte(ip6Address2)}},
	})

	testCases := []struct {
		name     string
		affinity AddressFamilyAffinity
		expected []string
	}{
		{name: "all families", affinity: AllFamilies, expected: []string{"10.0.0.100", "10.0.0.101", "fe80::1", "fe80::2"}},
		{name: "prefer ipv4", affinity: PreferIPv4, expected: []string{"10.0.0.100", "10.0.0.101"}},
		{name: "prefer ipv6", affinity: PreferIPv6, expected: []string{"fe80::1", "fe80::2"}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			prober := &dnsProber{resolver: mixedResolver, network: "ip", affinity: testCase.affinity}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			t.Cleanup(cancel)
			members, ttl, err := prober.ProbeOnce(ctx, "example.com", 8080)
			require.NoError(t, err)
			assert.Zero(t, ttl)
			actual := make([]string, len(members))
			for i, member := range members {
				actual[i] = member.Address
				assert.Equal(t, 8080, member.Port)
			}
			assert.ElementsMatch(t, testCase.expected, actual)
		})
	}
}

func TestDNSProberAddressFamilyAttribute(t *testing.T) {
	t.Parallel()

	ip4Address := net.ParseIP("10.0.0.100")
	ip6Address := net.ParseIP("fe80::1")
	resolver := newFakeDNSResolver(t, []dnsmessage.Resource{
		{
			Header: dnsmessage.ResourceHeader{
				Name:  dnsmessage.MustNewName("example.com."),
				Type:  dnsmessage.TypeA,
				Class: dnsmessage.ClassINET,
			},
			Body: &dnsmessage.AResource{A: [4]byte(ip4Address.To4())},
		},
		{
			Header: dnsmessage.ResourceHeader{
				Name:  dnsmessage.MustNewName("example.com."),
				Type:  dnsmessage.TypeAAAA,
				Class: dnsmessage.ClassINET,
			},
			Body: &dnsmessage.AAAAResource{AAAA: [16]byte(ip6Address)},
		},
	})
	prober := &dnsProber{resolver: resolver, network: "ip", affinity: AllFamilies}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	members, _, err := prober.ProbeOnce(ctx, "example.com", 80)
	require.NoError(t, err)
	families := map[string]string{}
	for _, member := range members {
		family, ok := attribute.GetValue(member.Attributes, AddressFamily)
		require.True(t, ok)
		families[member.Address] = family
	}
	assert.Equal(t, map[string]string{"10.0.0.100": "ipv4", "fe80::1": "ipv6"}, families)
}

func TestDNSProberMembersSurviveConstruction(t *testing.T) {
	t.Parallel()

	// the prober's output must be valid resolver input
	ip4Address := net.ParseIP("10.0.0.100")
	resolver := newFakeDNSResolver(t, []dnsmessage.Resource{
		{
			Header: dnsmessage.ResourceHeader{
				Name:  dnsmessage.MustNewName("example.com."),
				Type:  dnsmessage.TypeA,
				Class: dnsmessage.ClassINET,
			},
			Body: &dnsmessage.AResource{A: [4]byte(ip4Address.To4())},
		},
	})
	prober := &dnsProber{resolver: resolver, network: "ip4", affinity: AllFamilies}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	members, _, err := prober.ProbeOnce(ctx, "example.com", 443)
	require.NoError(t, err)
	require.Len(t, members, 1)
	bknd, err := backend.FromService(members[0])
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.100:443", bknd.Name())
}

type fakeDNSResolver struct {
	t       *testing.T
	answers []dnsmessage.Resource
}

func (r *fakeDNSResolver) Dial(context.Context, string, string) (net.Conn, error) {
	clientConn, serverConn := net.Pipe()
	go func() {
		var requestLength uint16
		if err := binary.Read(serverConn, binary.BigEndian, &requestLength); err != nil {
			r.t.Errorf("error reading dns request length: %v", err)
			return
		}
		requestData := make([]byte, requestLength)
		if _, err := io.ReadFull(serverConn, requestData); err != nil {
			r.t.Errorf("error reading dns request: %v", err)
			return
		}
		request := &dnsmessage.Message{}
		if err := request.Unpack(requestData); err != nil {
			r.t.Errorf("error unpacking dns request: %v", err)
			return
		}
		answers := []dnsmessage.Resource{}
		for _, answer := range r.answers {
			if answer.Header.Type == request.Questions[0].Type {
				answers = append(answers, answer)
			}
		}
		response := &dnsmessage.Message{
			Header: dnsmessage.Header{
				ID:            request.ID,
				Response:      true,
				RCode:         dnsmessage.RCodeSuccess,
				Authoritative: true,
			},
			Questions: request.Questions,
			Answers:   answers,
		}
		responseData, err := response.Pack()
		if err != nil {
			r.t.Errorf("error packing dns response: %v", err)
			return
		}
		responseLength := uint16(len(responseData))
		if err := binary.Write(serverConn, binary.BigEndian, &responseLength); err != nil {
			r.t.Errorf("error writing dns response length: %v", err)
			return
		}
		if _, err := serverConn.Write(responseData); err != nil {
			r.t.Errorf("error writing dns response: %v", err)
			return
		}
		if err := serverConn.Close(); err != nil {
			r.t.Errorf("error closing dns server connection: %v", err)
			return
		}
	}()
	return clientConn, nil
}

func newFakeDNSResolver(t *testing.T, answers []dnsmessage.Resource) *net.Resolver {
	t.Helper()

	dialer := fakeDNSResolver{
		t:       t,
		answers: answers,
	}
	return &net.Resolver{
		PreferGo: true,
		Dial:     dialer.Dial,
	}
}
