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
	"io"

	"github.com/bufbuild/backendset"
	"github.com/bufbuild/backendset/backend"
)

// Binding connects a source to a resolver. See [Bind].
type Binding struct {
	closer  io.Closer
	refresh chan struct{}
}

// Bind watches the given target through src and drives the resolver
// with the results: every discovered membership set replaces the
// resolver's backend set via ResetBackends, and discovery failures are
// surfaced through the resolver's error path via ReportError. The
// resolver's own lifecycle is untouched; a binding established before
// Start simply determines what is announced once the resolver runs.
//
// Descriptors that omit a port are completed with defaultPort by the
// source; pass backendset.DefaultPort unless the target implies
// another.
//
// Close the binding to stop watching. The resolver keeps its last
// known membership afterwards.
func Bind(
	ctx context.Context,
	src Source,
	res *backendset.Resolver,
	host string,
	defaultPort int,
) *Binding {
	refresh := make(chan struct{}, 1)
	closer := src.Watch(ctx, host, defaultPort, &bindReceiver{res: res}, refresh)
	return &Binding{closer: closer, refresh: refresh}
}

// Refresh hints that the source should discover fresh membership
// sooner than it otherwise would, for example because the consumer's
// pool ran out of healthy hosts. It never blocks; a hint delivered
// while another is pending is dropped.
func (b *Binding) Refresh() {
	select {
	case b.refresh <- struct{}{}:
	default:
	}
}

// Close stops watching. It does not return until the source task has
// fully stopped.
func (b *Binding) Close() error {
	err := b.closer.Close()
	close(b.refresh)
	return err
}

type bindReceiver struct {
	res *backendset.Resolver
}

func (r *bindReceiver) OnMembers(members []backend.Service) {
	if err := r.res.ResetBackends(members...); err != nil {
		// the source produced a descriptor the resolver rejects
		r.res.ReportError(err)
	}
}

func (r *bindReceiver) OnWatchError(err error) {
	r.res.ReportError(err)
}
