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

package backendset

import (
	"fmt"

	"github.com/bufbuild/backendset/backend"
)

// Observer receives the resolver's notifications. A connection-pooling
// client implements this to keep its pool in sync with the backend set.
//
// Notifications for one resolver are delivered sequentially, in the
// order the corresponding changes were applied, and never while the
// resolver's internal lock is held, so an observer may call back into
// the resolver. A panic escaping an observer is captured as a runtime
// failure rather than crashing the process.
type Observer interface {
	// OnAdded is called when a backend joins the set.
	OnAdded(key string, svc backend.Service)
	// OnRemoved is called when a backend leaves the set.
	OnRemoved(key string, svc backend.Service)
	// OnStateChange is called with each lifecycle transition.
	OnStateChange(state State)
	// OnError is called when a runtime failure is observed. The same
	// error is retrievable afterwards via LastError.
	OnError(err error)
}

// ObserverFuncs adapts plain functions to the [Observer] interface.
// Any nil field is simply skipped.
type ObserverFuncs struct {
	Added       func(key string, svc backend.Service)
	Removed     func(key string, svc backend.Service)
	StateChange func(state State)
	Error       func(err error)
}

var _ Observer = ObserverFuncs{}

func (o ObserverFuncs) OnAdded(key string, svc backend.Service) {
	if o.Added != nil {
		o.Added(key, svc)
	}
}

func (o ObserverFuncs) OnRemoved(key string, svc backend.Service) {
	if o.Removed != nil {
		o.Removed(key, svc)
	}
}

func (o ObserverFuncs) OnStateChange(state State) {
	if o.StateChange != nil {
		o.StateChange(state)
	}
}

func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

type eventKind int

const (
	eventAdded eventKind = iota
	eventRemoved
	eventStateChange
	eventError
)

// event is one queued notification. Events are appended while holding
// the resolver lock and delivered FIFO by a single flusher, which keeps
// the announced sequence identical to the applied sequence.
type event struct {
	kind  eventKind
	key   string
	svc   backend.Service
	state State
	err   error
}

// deliver invokes the callback for one event and converts an observer
// panic into an error for the caller to handle.
func deliver(obs Observer, ev event) (err error) {
	defer func() {
		if v := recover(); v != nil {
			var ok bool
			if err, ok = v.(error); !ok {
				err = fmt.Errorf("observer panic: %v", v)
			}
		}
	}()
	switch ev.kind {
	case eventAdded:
		obs.OnAdded(ev.key, ev.svc)
	case eventRemoved:
		obs.OnRemoved(ev.key, ev.svc)
	case eventStateChange:
		obs.OnStateChange(ev.state)
	case eventError:
		obs.OnError(ev.err)
	}
	return nil
}
