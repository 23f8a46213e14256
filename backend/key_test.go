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

package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyDeterministic(t *testing.T) {
	t.Parallel()

	pairs := []Service{
		{Address: "10.0.0.1", Port: 80},
		{Address: "10.0.0.1", Port: 8080},
		{Address: "10.0.0.2", Port: 80},
		{Address: "fe80::1", Port: 80},
		{Address: "fe80::2", Port: 443},
	}
	keys := make(map[string]string, len(pairs))
	for _, svc := range pairs {
		key := Key(svc)
		assert.NotEmpty(t, key)
		// the same pair always yields the same key
		assert.Equal(t, key, Key(svc))
		// distinct pairs yield distinct keys
		for name, other := range keys {
			assert.NotEqual(t, other, key, "key collision between %s and %s:%d", name, svc.Address, svc.Port)
		}
		keys[Key(svc)] = svc.Address
	}
}

func TestKeyStableAcrossSpellings(t *testing.T) {
	t.Parallel()

	spellings := []string{
		"::1",
		"0:0:0:0:0:0:0:1",
		"0000:0000:0000:0000:0000:0000:0000:0001",
	}
	want := Key(Service{Address: "::1", Port: 80})
	for _, spelling := range spellings {
		assert.Equal(t, want, Key(Service{Address: spelling, Port: 80}))
	}
	// and across construction, too
	bknd, err := New("0:0:0:0:0:0:0:1", 80)
	require.NoError(t, err)
	assert.Equal(t, want, bknd.Key())

	// but a different port is a different identity
	assert.NotEqual(t, want, Key(Service{Address: "::1", Port: 81}))
}

func TestKeyReusedVerbatim(t *testing.T) {
	t.Parallel()

	svc := Service{Address: "10.0.0.1", Port: 80, Key: "already-keyed"}
	assert.Equal(t, "already-keyed", Key(svc))
}
