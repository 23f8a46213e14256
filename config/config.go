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

// Package config loads resolver construction options from YAML, for
// applications that configure their backend sets from files rather
// than in code.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/bufbuild/backendset"
	"github.com/bufbuild/backendset/backend"
)

// Config is the YAML shape of a resolver configuration.
//
//	default_port: 8080
//	backends:
//	  - address: 10.0.0.1
//	  - address: 10.0.0.2
//	    port: 9090
type Config struct {
	// DefaultPort is substituted for backends that omit a port. Zero
	// means the resolver's built-in default.
	DefaultPort int `yaml:"default_port"`
	// Backends is the initial backend set, in announce order.
	Backends []BackendConfig `yaml:"backends"`
}

// BackendConfig is one backend entry.
type BackendConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// Load parses a configuration from YAML and validates it.
func Load(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses a configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(data)
}

// Validate checks that every entry would survive resolver
// construction, so that a bad file is rejected at load time rather
// than when the resolver is built.
func (c *Config) Validate() error {
	if c.DefaultPort < 0 || c.DefaultPort > 65535 {
		return &backend.ValidationError{Field: "port", Reason: fmt.Sprintf("default port %d is outside the TCP port range", c.DefaultPort)}
	}
	defaultPort := c.DefaultPort
	if defaultPort == 0 {
		defaultPort = backendset.DefaultPort
	}
	for _, entry := range c.Backends {
		port := entry.Port
		if port == 0 {
			port = defaultPort
		}
		if _, err := backend.New(entry.Address, port); err != nil {
			return err
		}
	}
	return nil
}

// Options converts the configuration into resolver construction
// options, suitable for passing to [backendset.New].
func (c *Config) Options() []backendset.Option {
	opts := make([]backendset.Option, 0, 2)
	if c.DefaultPort != 0 {
		opts = append(opts, backendset.WithDefaultPort(c.DefaultPort))
	}
	if len(c.Backends) > 0 {
		svcs := make([]backend.Service, len(c.Backends))
		for i, entry := range c.Backends {
			svcs[i] = backend.Service{Address: entry.Address, Port: entry.Port}
		}
		opts = append(opts, backendset.WithBackends(svcs...))
	}
	return opts
}
