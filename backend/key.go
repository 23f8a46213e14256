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

package backend

import (
	"crypto/sha256"
	"encoding/base64"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// Key returns the stable identity key for a service descriptor. If the
// descriptor already carries a key, that key is returned unchanged.
//
// The key is a SHA-256 digest over the canonical name, port, and
// canonical address, so every textual spelling of the same IPv6 address
// (e.g. "::1", "0:0:0:0:0:0:0:1") yields the same key, and distinct
// (address, port) pairs yield distinct keys. Attributes and the input
// spelling of Name never influence the key.
func Key(svc Service) string {
	if svc.Key != "" {
		return svc.Key
	}
	canonical := svc.Address
	if addr, err := netip.ParseAddr(svc.Address); err == nil {
		canonical = addr.Unmap().String()
	}
	port := strconv.Itoa(svc.Port)
	name := net.JoinHostPort(canonical, port)
	var input strings.Builder
	input.Grow(len(name) + len(port) + len(canonical) + 4)
	input.WriteString(name)
	input.WriteString("||")
	input.WriteString(port)
	input.WriteString("||")
	input.WriteString(canonical)
	digest := sha256.Sum256([]byte(input.String()))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}
