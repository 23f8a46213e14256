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

// PendingForTesting returns the length of the pending-operation queue,
// for tests that assert mutations were queued rather than applied.
func (r *Resolver) PendingForTesting() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
