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

	"github.com/bufbuild/backendset/backend"
)

// Static creates a source with a fixed membership. The set is announced
// once per watch and again on each refresh hint; the watched host is
// ignored. Descriptors without ports are completed with the watch's
// default port at announce time.
func Static(svcs ...backend.Service) Source {
	members := make([]backend.Service, len(svcs))
	copy(members, svcs)
	return &staticSource{members: members}
}

type staticSource struct {
	members []backend.Service
}

func (s *staticSource) Watch(
	ctx context.Context,
	_ string,
	defaultPort int,
	receiver Receiver,
	refresh <-chan struct{},
) io.Closer {
	ctx, cancel := context.WithCancel(ctx)
	task := &staticTask{
		cancel:     cancel,
		doneSignal: make(chan struct{}),
	}
	go func() {
		defer close(task.doneSignal)
		for {
			members := make([]backend.Service, len(s.members))
			copy(members, s.members)
			for i := range members {
				if members[i].Port == 0 {
					members[i].Port = defaultPort
				}
			}
			receiver.OnMembers(members)
			select {
			case <-ctx.Done():
				return
			case <-refresh:
				// Continue.
			}
		}
	}()
	return task
}

type staticTask struct {
	cancel     context.CancelFunc
	doneSignal chan struct{}
}

func (task *staticTask) Close() error {
	task.cancel()
	<-task.doneSignal
	return nil
}
