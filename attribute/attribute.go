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

// Package attribute provides a type-safe container of custom metadata
// that sources and consumers can attach to a backend, such as a weight,
// a geographic region, or a DNS record TTL. Attributes are opaque to the
// resolver itself: they ride along on service descriptors and never
// participate in backend identity.
//
// A distinct attribute is declared with [NewKey], which produces a
// strongly-typed key. Values are built from keys and collected into a
// [Values]:
//
//	var (
//		Weight = attribute.NewKey[float64]()
//		Region = attribute.NewKey[string]()
//	)
//
//	svc := backend.Service{
//		Address: "111.222.123.234",
//		Port:    5432,
//		Attributes: attribute.NewValues(
//			Weight.Value(1.25),
//			Region.Value("us-east1"),
//		),
//	}
//
// A consumer that knows the key can read the value back, type-safely,
// with [GetValue].
package attribute

// Key is an attribute key whose values have type T. Each call to
// [NewKey] yields a distinct key; keys are identified by pointer, so two
// keys of the same type never collide.
type Key[T any] struct {
	// can't be empty or else pointers won't be distinct
	_ bool
}

// NewKey returns a new, distinct key for values of type T.
func NewKey[T any]() *Key[T] {
	return new(Key[T])
}

// Value pairs the key with a value, for passing to [NewValues].
func (k *Key[T]) Value(value T) Value {
	return Value{key: k, value: value}
}

// Value is a single attribute: a key with its corresponding value.
type Value struct {
	key, value any
}

// Values is an immutable collection of attributes. The zero value is an
// empty collection.
type Values struct {
	data map[any]any
}

// NewValues collects the given attributes. If the same key appears more
// than once, the last occurrence wins.
func NewValues(values ...Value) Values {
	if len(values) == 0 {
		return Values{}
	}
	data := make(map[any]any, len(values))
	for _, val := range values {
		data[val.key] = val.value
	}
	return Values{data: data}
}

// Union returns the combination of vals and overrides. Where both define
// the same key, the value from overrides wins. Neither input is changed.
func Union(vals, overrides Values) Values {
	if len(overrides.data) == 0 {
		return vals
	}
	if len(vals.data) == 0 {
		return overrides
	}
	data := make(map[any]any, len(vals.data)+len(overrides.data))
	for key, val := range vals.data {
		data[key] = val
	}
	for key, val := range overrides.data {
		data[key] = val
	}
	return Values{data: data}
}

// Len returns the number of attributes in the collection.
func (v Values) Len() int {
	return len(v.data)
}

// GetValue retrieves a single value. If the key is absent, the zero
// value of T and false are returned.
func GetValue[T any](values Values, key *Key[T]) (value T, ok bool) {
	val, ok := values.data[key]
	if !ok {
		var zero T
		return zero, false
	}
	tval, ok := val.(T)
	return tval, ok
}
