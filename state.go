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

import "fmt"

// State is the lifecycle state of a [Resolver].
//
// The machine moves stopped → starting → running on Start, and
// running → stopping → stopped on Stop. A runtime failure observed while
// the machine is active moves it to failed; the next successful mutation
// moves it back to running and drains anything queued in the meantime.
type State int

const (
	// StateStopped is the initial state. Mutations issued here are queued.
	StateStopped State = iota

	// StateStarting is the transient state between Start and running.
	StateStarting

	// StateRunning is the active state: mutations apply immediately and
	// membership events are announced as they happen. The pending queue
	// is drained, in order, on entry.
	StateRunning

	// StateStopping is the transient state between Stop and stopped.
	StateStopping

	// StateFailed indicates a runtime failure was observed. The resolver
	// retains its applied and queued backends; a successful mutation
	// recovers it to running.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// InvalidStateError is returned by Start and Stop when the current
// lifecycle state forbids the call: Start requires a stopped machine,
// and Stop requires one that is not already stopped.
type InvalidStateError struct {
	// Op is the rejected operation, "start" or "stop".
	Op string
	// State is the lifecycle state at the time of the call.
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s resolver while %s", e.Op, e.State)
}
