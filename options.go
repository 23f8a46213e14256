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
	"github.com/bufbuild/backendset/backend"
	"github.com/sirupsen/logrus"
)

// DefaultPort is substituted for any backend descriptor that omits its
// port, unless overridden with WithDefaultPort.
const DefaultPort = 80

// Option is an option used to customize the behavior of a [Resolver].
type Option interface {
	apply(*resolverOptions)
}

type resolverOptions struct {
	defaultPort int
	backends    []backend.Service
	observers   []Observer
	logger      logrus.FieldLogger
}

type optionFunc func(*resolverOptions)

func (f optionFunc) apply(opts *resolverOptions) {
	f(opts)
}

// WithDefaultPort configures the port substituted for backend
// descriptors that omit one. If not specified, [DefaultPort] is used.
func WithDefaultPort(port int) Option {
	return optionFunc(func(opts *resolverOptions) {
		opts.defaultPort = port
	})
}

// WithBackends provides the initial backend set. The descriptors are
// validated by [New], queued, and announced once the resolver enters the
// running state, in the order given here.
func WithBackends(svcs ...backend.Service) Option {
	return optionFunc(func(opts *resolverOptions) {
		opts.backends = append(opts.backends, svcs...)
	})
}

// WithObserver registers an observer at construction, guaranteeing it
// observes every notification the resolver ever delivers. Observers can
// also be added later with [Resolver.Subscribe].
func WithObserver(obs Observer) Option {
	return optionFunc(func(opts *resolverOptions) {
		opts.observers = append(opts.observers, obs)
	})
}

// WithLogger configures the logger used for lifecycle transitions and
// runtime failures. If not specified, logging is discarded.
func WithLogger(logger logrus.FieldLogger) Option {
	return optionFunc(func(opts *resolverOptions) {
		opts.logger = logger
	})
}
