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

// Package clocktest exists to allow interoperability with our Clock
// interface and the clockwork interfaces. Compatibility between Go
// interfaces is shallow: NewTimer returns our Timer interface, so the
// clockwork version has to be re-boxed even though the two interfaces
// are structurally identical.
package clocktest

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bufbuild/backendset/internal"
)

// FakeClock is a clock that can be manually advanced through time. It
// adapts *[clockwork.FakeClock] to the internal.Clock interface.
type FakeClock interface {
	internal.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, waiters int) error
}

// NewFakeClock creates a new FakeClock using clockwork.
func NewFakeClock() FakeClock {
	return fakeClock{clockwork.NewFakeClock()}
}

type fakeClock struct {
	*clockwork.FakeClock
}

var _ FakeClock = fakeClock{}

// NewTimer re-boxes the clockwork.Timer as an internal.Timer. See the
// package comment for why this is necessary.
func (f fakeClock) NewTimer(d time.Duration) internal.Timer {
	timer := f.FakeClock.NewTimer(d)
	if d == 0 {
		// Here we reproduce the pre-1.23 timers behavior since jonboulle/clockwork still have not fixed this yet,
		// see the issue: https://github.com/jonboulle/clockwork/issues/98
		if !timer.Stop() {
			<-timer.Chan()
		}
	}
	return timer
}
