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

// Package backendset provides a pluggable backend-set resolver: it
// tracks a mutable collection of network endpoints and announces
// membership changes to observers, so that a connection-pooling client
// can use it as its source of truth for which backends exist.
//
// The package deliberately does no network I/O, health checking, or
// load balancing of its own. It is a membership registry with lifecycle
// semantics; deciding what to do with the membership is the consumer's
// job, and discovering membership over the network is the job of the
// pluggable sources in the [source] subpackage.
//
// To create a resolver, use [New] with any initial backends, then
// attach observers and call Start:
//
//	r, err := backendset.New(
//	    backendset.WithDefaultPort(8080),
//	    backendset.WithBackends(
//	        backend.Service{Address: "10.0.0.1"},
//	        backend.Service{Address: "10.0.0.2", Port: 9090},
//	    ),
//	)
//	if err != nil {
//	    // a descriptor failed validation
//	}
//	cancel := r.Subscribe(pool) // pool implements backendset.Observer
//	defer cancel()
//	if err := r.Start(); err != nil {
//	    // resolver was not stopped
//	}
//
// # Lifecycle
//
// A resolver is a small state machine: stopped → starting → running on
// Start, running → stopping → stopped on Stop, with a recoverable
// failed branch for runtime errors. Mutations issued while the machine
// is not running are not lost and not applied early; they are queued,
// then drained in FIFO order the moment the machine enters running,
// with one membership event announced per drained operation. This
// includes the initial backend set, so an observer subscribed before
// Start is guaranteed to see one added event per initial backend, after
// the state change to running.
//
// While running, AddBackend and RemoveBackend apply synchronously: by
// the time they return, Backends reflects the change and the matching
// event has been enqueued for delivery. Backends never reflects queued
// but undrained operations.
//
// # Identity
//
// Backends are deduplicated by a deterministic identity key derived
// from their canonical address and port, so two descriptors spelling
// the same IPv6 address differently name the same set member. See
// [backend.Key].
//
// # Failure
//
// The resolver never terminates the process. Runtime failures, whether
// reported by a consumer via ReportError, surfaced by a source, or
// recovered from a panicking observer, are recorded (see LastError),
// announced via OnError, and drive an active machine into the failed
// state. The next successful mutation recovers it to running and drains
// whatever accumulated in the meantime. Validation and state-precondition
// errors, by contrast, are returned synchronously to the caller and
// never touch the machine.
package backendset
