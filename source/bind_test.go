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
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bufbuild/backendset"
	"github.com/bufbuild/backendset/backend"
)

func TestBindDrivesResolver(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	res, err := backendset.New(backendset.WithDefaultPort(8080))
	require.NoError(t, err)
	added := make(chan backend.Service, 4)
	res.Subscribe(backendset.ObserverFuncs{
		Added: func(_ string, svc backend.Service) {
			added <- svc
		},
	})

	binding := Bind(ctx, Static(
		backend.Service{Address: "10.0.0.1"},
		backend.Service{Address: "10.0.0.2"},
	), res, "ignored", 8080)
	t.Cleanup(func() {
		require.NoError(t, binding.Close())
	})

	require.NoError(t, res.Start())
	awaitAdded := func() backend.Service {
		t.Helper()
		select {
		case svc := <-added:
			return svc
		case <-ctx.Done():
			t.Fatal("expected added event")
			return backend.Service{}
		}
	}
	first := awaitAdded()
	second := awaitAdded()
	assert.Equal(t, "10.0.0.1:8080", first.Name)
	assert.Equal(t, "10.0.0.2:8080", second.Name)
	assert.Equal(t, 2, res.Count())
}

func TestBindSurfacesWatchErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	res, err := backendset.New()
	require.NoError(t, err)
	failed := make(chan error, 1)
	res.Subscribe(backendset.ObserverFuncs{
		Error: func(err error) {
			failed <- err
		},
	})

	watchErr := errors.New("discovery unavailable")
	binding := Bind(ctx, failingSource{err: watchErr}, res, "ignored", 80)
	t.Cleanup(func() {
		require.NoError(t, binding.Close())
	})

	select {
	case err := <-failed:
		assert.Equal(t, watchErr, err)
	case <-ctx.Done():
		t.Fatal("expected error event")
	}
	assert.Equal(t, watchErr, res.LastError())
}

type failingSource struct {
	err error
}

func (s failingSource) Watch(
	ctx context.Context,
	_ string,
	_ int,
	receiver Receiver,
	_ <-chan struct{},
) io.Closer {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		receiver.OnWatchError(s.err)
		<-ctx.Done()
	}()
	return closerFunc(func() error {
		cancel()
		<-done
		return nil
	})
}

type closerFunc func() error

func (fn closerFunc) Close() error {
	return fn()
}
