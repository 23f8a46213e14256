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

// Package source provides pluggable, continuous membership sources that
// can drive a backendset resolver: DNS polling, static sets, and unions
// of other sources. A source discovers the full set of backends for a
// target over and over; [Bind] connects one to a resolver so that each
// discovered set replaces the resolver's membership and each discovery
// failure is surfaced through the resolver's error path.
package source

import (
	"context"
	"io"
	"time"

	"github.com/bufbuild/backendset/backend"
)

// Source is an interface for continuous membership discovery.
type Source interface {
	// Watch creates a watch task for the given target host. Whenever the
	// membership is discovered, the full set of backends is provided to
	// the given receiver; as membership changes over time the receiver
	// may be called repeatedly, each time with the entire set.
	//
	// Descriptors that omit a port are completed with defaultPort.
	//
	// The source may report errors in addition to or instead of members,
	// but it should keep watching, even in the face of errors, until it
	// is closed or the given context is cancelled.
	//
	// The refresh channel receives hints that the consumer wants fresh
	// results sooner than the source would otherwise provide them, for
	// example because its pool ran out of healthy hosts. A source may
	// ignore it. The refresh channel must not be closed until after
	// Close returns.
	//
	// The Close method on the returned value stops the task and frees
	// its resources before returning; after it returns there are no
	// further calls to the receiver.
	Watch(
		ctx context.Context,
		host string,
		defaultPort int,
		receiver Receiver,
		refresh <-chan struct{},
	) io.Closer
}

// Receiver is a client of a source and receives discovered membership.
type Receiver interface {
	// OnMembers is called with the full set of discovered backends each
	// time the membership is (re)discovered. No deltas.
	OnMembers([]backend.Service)
	// OnWatchError is called when discovery fails. It may be called at
	// any time, including after membership was already discovered.
	OnWatchError(error)
}

// Prober is an interface for types that provide single-shot membership
// discovery, for use with [NewPolling].
type Prober interface {
	// ProbeOnce discovers the membership for the given host once. The
	// returned descriptors should carry ports, substituting defaultPort
	// where the underlying system does not supply one. The second return
	// value is the TTL of the result, or 0 if there is no known TTL.
	ProbeOnce(
		ctx context.Context,
		host string,
		defaultPort int,
	) (
		members []backend.Service,
		ttl time.Duration,
		err error,
	)
}
