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
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bufbuild/backendset/backend"
)

// Multi creates a source that is the union of the given sources. Each
// time any child source reports membership, the receiver observes the
// concatenation of the latest set from every child, in the order the
// children were given. Errors from any child pass through. Refresh
// hints are forwarded to every child.
func Multi(sources ...Source) Source {
	return &multiSource{sources: sources}
}

type multiSource struct {
	sources []Source
}

func (m *multiSource) Watch(
	ctx context.Context,
	host string,
	defaultPort int,
	receiver Receiver,
	refresh <-chan struct{},
) io.Closer {
	ctx, cancel := context.WithCancel(ctx)
	task := &multiTask{
		cancel:     cancel,
		doneSignal: make(chan struct{}),
		latest:     make([][]backend.Service, len(m.sources)),
		receiver:   receiver,
	}
	closers := make([]io.Closer, len(m.sources))
	childRefresh := make([]chan struct{}, len(m.sources))
	for i, src := range m.sources {
		childRefresh[i] = make(chan struct{}, 1)
		closers[i] = src.Watch(ctx, host, defaultPort, &childReceiver{task: task, index: i}, childRefresh[i])
	}
	task.closers = closers
	go func() {
		defer close(task.doneSignal)
		for {
			select {
			case <-ctx.Done():
				return
			case <-refresh:
				for _, ch := range childRefresh {
					select {
					case ch <- struct{}{}:
					default:
					}
				}
			}
		}
	}()
	return task
}

type multiTask struct {
	cancel     context.CancelFunc
	doneSignal chan struct{}
	closers    []io.Closer

	mu sync.Mutex
	// +checklocks:mu
	latest [][]backend.Service
	// serialized by mu so the receiver never sees interleaved calls
	receiver Receiver
}

func (task *multiTask) Close() error {
	task.cancel()
	grp, _ := errgroup.WithContext(context.Background())
	for _, closer := range task.closers {
		grp.Go(closer.Close)
	}
	err := grp.Wait()
	<-task.doneSignal
	return err
}

func (task *multiTask) onMembers(index int, members []backend.Service) {
	task.mu.Lock()
	defer task.mu.Unlock()
	task.latest[index] = members
	var union []backend.Service
	for _, set := range task.latest {
		union = append(union, set...)
	}
	task.receiver.OnMembers(union)
}

func (task *multiTask) onError(err error) {
	task.mu.Lock()
	defer task.mu.Unlock()
	task.receiver.OnWatchError(err)
}

type childReceiver struct {
	task  *multiTask
	index int
}

func (r *childReceiver) OnMembers(members []backend.Service) {
	r.task.onMembers(r.index, members)
}

func (r *childReceiver) OnWatchError(err error) {
	r.task.onError(err)
}
