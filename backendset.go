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
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bufbuild/backendset/backend"
)

// Resolver tracks a mutable, insertion-ordered set of backends and
// announces membership changes to its observers. It is the source of
// truth a connection-pooling client attaches to for "which backends
// exist right now".
//
// A Resolver starts out stopped with its initial backends queued. Start
// moves it through starting into running, at which point the queue is
// drained and every queued operation is announced in order. While
// running, mutations apply and announce immediately; in any other state
// they are queued for the next entry into running. See [State] for the
// full lifecycle.
//
// All methods are safe for concurrent use.
type Resolver struct {
	defaultPort int
	logger      logrus.FieldLogger

	mu sync.Mutex
	// +checklocks:mu
	state State
	// +checklocks:mu
	backends map[string]backend.Backend
	// insertion order of backends, drives Backends() ordering
	// +checklocks:mu
	order []string
	// +checklocks:mu
	pending []pendingOp
	// +checklocks:mu
	lastErr error
	// +checklocks:mu
	subs []subscription
	// +checklocks:mu
	nextSubID int
	// undelivered notifications, FIFO
	// +checklocks:mu
	events []event
	// set while some goroutine is delivering notifications; at most one
	// flusher runs at a time so delivery order matches apply order
	// +checklocks:mu
	notifying bool
	// deferred state-processing work, FIFO
	// +checklocks:mu
	tasks []func()
	// set while a worker goroutine is draining tasks; at most one worker
	// runs at a time so deferred units apply in scheduling order
	// +checklocks:mu
	working bool
}

type opKind int

const (
	opAdd opKind = iota
	opRemove
)

type pendingOp struct {
	kind    opKind
	backend backend.Backend
}

type subscription struct {
	id  int
	obs Observer
}

// New constructs a stopped Resolver. The initial backends given via
// [WithBackends] are validated here and queued; they are applied and
// announced only once the resolver enters the running state.
func New(opts ...Option) (*Resolver, error) {
	options := resolverOptions{defaultPort: DefaultPort}
	for _, opt := range opts {
		opt.apply(&options)
	}
	if options.defaultPort <= 0 || options.defaultPort > 65535 {
		return nil, &backend.ValidationError{Field: "port", Reason: fmt.Sprintf("default port %d is outside the TCP port range", options.defaultPort)}
	}
	logger := options.logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	r := &Resolver{
		defaultPort: options.defaultPort,
		logger:      logger,
		state:       StateStopped,
		backends:    map[string]backend.Backend{},
	}
	for _, obs := range options.observers {
		r.subs = append(r.subs, subscription{id: r.nextSubID, obs: obs})
		r.nextSubID++
	}
	for _, svc := range options.backends {
		bknd, err := r.newBackend(svc)
		if err != nil {
			return nil, err
		}
		r.queueLocked(opAdd, bknd) // no lock needed before New returns
	}
	return r, nil
}

// Subscribe registers an observer for all future notifications and
// returns a function that cancels the subscription. Observers are
// notified in subscription order.
//
// An observer subscribed after Start returns may miss notifications
// already delivered, including those announced on entry into running.
// Only observers registered at construction with [WithObserver], or
// subscribed before Start, are guaranteed the full trace.
func (r *Resolver) Subscribe(obs Observer) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSubID
	r.nextSubID++
	r.subs = append(r.subs, subscription{id: id, obs: obs})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, sub := range r.subs {
			if sub.id == id {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// Start begins resolution. It transitions the machine to starting
// immediately and defers entry into running, where the pending queue
// (including the initial backend set) is drained and announced.
//
// Start returns an [InvalidStateError] unless the resolver is stopped.
func (r *Resolver) Start() error {
	r.mu.Lock()
	if r.state != StateStopped {
		defer r.mu.Unlock()
		return &InvalidStateError{Op: "start", State: r.state}
	}
	r.setStateLocked(StateStarting)
	r.mu.Unlock()
	r.flush()
	r.schedule(r.enterRunning)
	return nil
}

// Stop halts resolution from any non-stopped state, including failed.
// Already-applied backends are retained; only future queue draining is
// prevented. The resolver may be started again afterwards.
//
// Stop returns an [InvalidStateError] if the resolver is already
// stopped.
func (r *Resolver) Stop() error {
	r.mu.Lock()
	if r.state == StateStopped {
		defer r.mu.Unlock()
		return &InvalidStateError{Op: "stop", State: r.state}
	}
	r.setStateLocked(StateStopping)
	r.mu.Unlock()
	r.flush()
	r.schedule(r.enterStopped)
	return nil
}

// AddBackend resolves the descriptor into a Backend and adds it to the
// set. While running, the addition applies and is announced
// immediately; otherwise it is queued until the resolver next enters
// running. Adding a backend already in the set is a no-op.
//
// A mutation issued while the resolver is failed recovers it: the
// operation is queued, the machine transitions back to running, and the
// queue is drained.
//
// The port defaults to the resolver's default port when omitted. A
// malformed descriptor fails with a [backend.ValidationError] and
// changes nothing.
func (r *Resolver) AddBackend(svc backend.Service) (backend.Backend, error) {
	return r.mutate(opAdd, svc)
}

// RemoveBackend resolves the descriptor into a Backend and removes it
// from the set, following the same running/queued and failure-recovery
// rules as AddBackend. Removing a backend not in the set is a no-op.
func (r *Resolver) RemoveBackend(svc backend.Service) (backend.Backend, error) {
	return r.mutate(opRemove, svc)
}

func (r *Resolver) mutate(kind opKind, svc backend.Service) (backend.Backend, error) {
	bknd, err := r.newBackend(svc)
	if err != nil {
		return backend.Backend{}, err
	}
	r.mu.Lock()
	switch r.state {
	case StateRunning:
		r.applyLocked(pendingOp{kind: kind, backend: bknd})
	case StateFailed:
		// a successful mutation recovers the machine
		r.queueLocked(kind, bknd)
		r.setStateLocked(StateRunning)
		r.drainLocked()
	default:
		r.queueLocked(kind, bknd)
	}
	r.mu.Unlock()
	r.flush()
	return bknd, nil
}

// ResetBackends discards the pending queue immediately, then, as a
// deferred unit of work, removes every currently-held backend and loads
// the given descriptors in their place. The removals and additions
// follow the usual running/queued rule, so a reset issued before Start
// simply determines what is announced once the resolver is running.
//
// All descriptors are validated up front; on validation failure nothing
// is changed, not even the pending queue.
func (r *Resolver) ResetBackends(svcs ...backend.Service) error {
	replacements := make([]backend.Backend, 0, len(svcs))
	for _, svc := range svcs {
		bknd, err := r.newBackend(svc)
		if err != nil {
			return err
		}
		replacements = append(replacements, bknd)
	}
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
	r.schedule(func() {
		r.runReset(replacements)
	})
	return nil
}

// ReportError is the error-observation path: it records err as the last
// error, announces it to observers, and, if the resolver is active,
// drives it into the failed state. The resolver recovers on the next
// successful mutation.
//
// Consumers may call this to surface failures they attribute to the
// backend set; the resolver also feeds its own runtime failures through
// here.
func (r *Resolver) ReportError(err error) {
	if err == nil {
		return
	}
	r.observeFailure(err, true)
	r.flush()
}

// Backends returns the current backend set in insertion order. Queued
// but not-yet-drained operations are not reflected.
func (r *Resolver) Backends() []backend.Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]backend.Backend, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.backends[key])
	}
	return out
}

// Count returns the number of backends currently in the set.
func (r *Resolver) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// State returns the current lifecycle state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastError returns the most recently observed runtime failure, or nil.
// It does not clear the error and does not affect state.
func (r *Resolver) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Resolver) newBackend(svc backend.Service) (backend.Backend, error) {
	if svc.Port == 0 {
		svc.Port = r.defaultPort
	}
	return backend.FromService(svc)
}

// enterRunning is the deferred half of Start: it completes the
// starting → running transition and drains the queue. It aborts quietly
// if a Stop raced in first.
func (r *Resolver) enterRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateStarting {
		return
	}
	r.setStateLocked(StateRunning)
	r.drainLocked()
}

// enterStopped is the deferred half of Stop.
func (r *Resolver) enterStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateStopping {
		return
	}
	r.setStateLocked(StateStopped)
}

// runReset is the deferred unit of work scheduled by ResetBackends.
func (r *Resolver) runReset(replacements []backend.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	running := r.state == StateRunning
	for _, key := range append([]string(nil), r.order...) {
		op := pendingOp{kind: opRemove, backend: r.backends[key]}
		if running {
			r.applyLocked(op)
		} else {
			r.pending = append(r.pending, op)
		}
	}
	for _, bknd := range replacements {
		if running {
			r.applyLocked(pendingOp{kind: opAdd, backend: bknd})
		} else {
			r.queueLocked(opAdd, bknd)
		}
	}
}

// schedule appends one unit of deferred state-processing work. Units
// run off the caller's stack, one at a time, in scheduling order: of
// two back-to-back resets, the later one determines the final
// membership.
func (r *Resolver) schedule(task func()) {
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	if r.working {
		r.mu.Unlock()
		return
	}
	r.working = true
	r.mu.Unlock()
	go r.work()
}

// work drains the task queue. At most one worker runs at a time.
func (r *Resolver) work() {
	r.mu.Lock()
	for len(r.tasks) > 0 {
		task := r.tasks[0]
		r.tasks = r.tasks[1:]
		r.mu.Unlock()
		r.guarded(task)
		r.mu.Lock()
	}
	r.working = false
	r.mu.Unlock()
}

// guarded runs one deferred state-processing step, converting a panic
// into a recorded runtime failure and the failed state, then delivers
// whatever the step enqueued.
func (r *Resolver) guarded(step func()) {
	err := func() (err error) {
		defer func() {
			if v := recover(); v != nil {
				var ok bool
				if err, ok = v.(error); !ok {
					err = fmt.Errorf("resolver runtime failure: %v", v)
				}
			}
		}()
		step()
		return nil
	}()
	if err != nil {
		r.observeFailure(err, true)
	}
	r.flush()
}

// observeFailure records a runtime failure and drives an active machine
// into the failed state. When notify is false the failure is recorded
// without announcing it, which breaks the loop that would otherwise
// form when an observer's own OnError callback fails.
func (r *Resolver) observeFailure(err error, notify bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
	r.logger.WithError(err).Error("resolver runtime failure")
	if notify {
		r.events = append(r.events, event{kind: eventError, err: err})
	}
	if r.state == StateRunning || r.state == StateStarting {
		r.setStateLocked(StateFailed)
	}
}

// +checklocks:r.mu
func (r *Resolver) setStateLocked(state State) {
	if r.state == state {
		return
	}
	r.state = state
	r.logger.WithField("state", state.String()).Debug("resolver state changed")
	r.events = append(r.events, event{kind: eventStateChange, state: state})
}

// +checklocks:r.mu
func (r *Resolver) queueLocked(kind opKind, bknd backend.Backend) {
	if kind == opAdd && !r.addWouldChangeLocked(bknd.Key()) {
		// the set already holds this key and no removal is queued ahead,
		// so queueing the add would just replay a member
		return
	}
	r.pending = append(r.pending, pendingOp{kind: kind, backend: bknd})
}

// addWouldChangeLocked reports whether an add for key, drained after the
// current queue, would actually change the set.
//
// +checklocks:r.mu
func (r *Resolver) addWouldChangeLocked(key string) bool {
	_, present := r.backends[key]
	for _, op := range r.pending {
		if op.backend.Key() != key {
			continue
		}
		present = op.kind == opAdd
	}
	return !present
}

// +checklocks:r.mu
func (r *Resolver) drainLocked() {
	if len(r.pending) == 0 {
		return
	}
	ops := r.pending
	r.pending = nil
	r.logger.WithField("operations", len(ops)).Debug("draining pending backend operations")
	for _, op := range ops {
		r.applyLocked(op)
	}
}

// applyLocked mutates the backend set and enqueues the matching
// membership event. Adding a present key and removing an absent key are
// both no-ops with no event.
//
// +checklocks:r.mu
func (r *Resolver) applyLocked(op pendingOp) {
	key := op.backend.Key()
	switch op.kind {
	case opAdd:
		if _, ok := r.backends[key]; ok {
			return
		}
		r.backends[key] = op.backend
		r.order = append(r.order, key)
		r.events = append(r.events, event{kind: eventAdded, key: key, svc: op.backend.Service()})
	case opRemove:
		if _, ok := r.backends[key]; !ok {
			return
		}
		delete(r.backends, key)
		for i, existing := range r.order {
			if existing == key {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		r.events = append(r.events, event{kind: eventRemoved, key: key, svc: op.backend.Service()})
	}
}

// flush delivers queued notifications in order. At most one goroutine
// flushes at a time; whoever enqueues while a flush is active leaves
// delivery to the active flusher.
func (r *Resolver) flush() {
	r.mu.Lock()
	if r.notifying {
		r.mu.Unlock()
		return
	}
	r.notifying = true
	for len(r.events) > 0 {
		ev := r.events[0]
		r.events = r.events[1:]
		subs := make([]Observer, len(r.subs))
		for i, sub := range r.subs {
			subs[i] = sub.obs
		}
		r.mu.Unlock()
		var failure error
		for _, obs := range subs {
			if err := deliver(obs, ev); err != nil {
				failure = err
			}
		}
		if failure != nil {
			// a failing OnError callback is recorded but not re-announced
			r.observeFailure(failure, ev.kind != eventError)
		}
		r.mu.Lock()
	}
	r.notifying = false
	r.mu.Unlock()
}
