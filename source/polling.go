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
	"time"

	"github.com/bufbuild/backendset/backend"
	"github.com/bufbuild/backendset/internal"
)

const defaultTTL = 5 * time.Minute

// PollingOption is an option used to customize a polling source.
type PollingOption interface {
	applyPolling(*pollingSource)
}

type pollingOptionFunc func(*pollingSource)

func (f pollingOptionFunc) applyPolling(src *pollingSource) {
	f(src)
}

// WithDefaultTTL configures the re-probe interval used when the prober
// does not return a TTL with its result set. If not specified, five
// minutes is used.
func WithDefaultTTL(ttl time.Duration) PollingOption {
	return pollingOptionFunc(func(src *pollingSource) {
		src.defaultTTL = ttl
	})
}

// NewPolling creates a source that polls an underlying single-shot
// prober whenever the result-set TTL expires, and sooner when a refresh
// is requested.
func NewPolling(prober Prober, opts ...PollingOption) Source {
	src := &pollingSource{
		prober:     prober,
		defaultTTL: defaultTTL,
		clock:      internal.NewRealClock(),
	}
	for _, opt := range opts {
		opt.applyPolling(src)
	}
	return src
}

type pollingSource struct {
	prober     Prober
	defaultTTL time.Duration
	clock      internal.Clock
}

func (s *pollingSource) Watch(
	ctx context.Context,
	host string,
	defaultPort int,
	receiver Receiver,
	refresh <-chan struct{},
) io.Closer {
	ctx, cancel := context.WithCancel(ctx)
	task := &pollingTask{
		cancel:     cancel,
		doneSignal: make(chan struct{}),
		refreshCh:  refresh,
		source:     s,
	}
	go task.run(ctx, host, defaultPort, receiver)
	return task
}

type pollingTask struct {
	cancel     context.CancelFunc
	doneSignal chan struct{}
	refreshCh  <-chan struct{}
	source     *pollingSource
}

func (task *pollingTask) Close() error {
	task.cancel()
	<-task.doneSignal
	return nil
}

func (task *pollingTask) run(ctx context.Context, host string, defaultPort int, receiver Receiver) {
	defer close(task.doneSignal)
	defer task.cancel()

	timer := task.source.clock.NewTimer(0)
	if !timer.Stop() {
		<-timer.Chan()
	}

	for {
		members, ttl, err := task.source.prober.ProbeOnce(ctx, host, defaultPort)
		if err != nil {
			receiver.OnWatchError(err)
		} else {
			clone := make([]backend.Service, len(members))
			copy(clone, members)
			receiver.OnMembers(clone)
		}

		if ttl == 0 {
			ttl = task.source.defaultTTL
		}
		timer.Reset(ttl)

		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.Chan()
			}
			return
		case <-task.refreshCh:
			// We still want to drain the timer in this case:
			// > Reset should be invoked only on stopped or expired timers
			// > with drained channels.
			// https://pkg.go.dev/time#Timer.Reset
			if !timer.Stop() {
				<-timer.Chan()
			}
			// Continue.
		case <-timer.Chan():
			// Continue.
		}
	}
}
