// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package ops

import "sort"

// Kind tags the variant held by a Value.
type Kind int

const (
	KindString Kind = iota + 1
	KindInteger
	KindNumber
	KindBoolean
	KindStringList
	KindObjectList
	KindObject
)

// Value is a decoded argument of a single declared kind.
type Value struct {
	Kind    Kind
	Str     string
	Int     int64
	Num     float64
	Bool    bool
	List    []string
	Object  map[string]string
	Objects []map[string]string
}

// Args holds validated arguments keyed by parameter name.
// Only Validate produces populated Args.
type Args struct {
	values map[string]Value
}

// Has reports whether the argument was supplied.
func (a Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Value returns the raw tagged value.
func (a Args) Value(name string) (Value, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Len returns the number of supplied arguments.
func (a Args) Len() int {
	return len(a.values)
}

// Names returns the supplied argument names in lexical order.
func (a Args) Names() []string {
	names := make([]string, 0, len(a.values))
	for name := range a.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns a string argument or "".
func (a Args) String(name string) string {
	v, ok := a.values[name]
	if !ok || v.Kind != KindString {
		return ""
	}
	return v.Str
}

// Int returns an integer argument.
func (a Args) Int(name string) (int64, bool) {
	v, ok := a.values[name]
	if !ok || v.Kind != KindInteger {
		return 0, false
	}
	return v.Int, true
}

// Float returns a number argument; integers are widened.
func (a Args) Float(name string) (float64, bool) {
	v, ok := a.values[name]
	if !ok {
		return 0, false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindInteger:
		return float64(v.Int), true
	}
	return 0, false
}

// Bool returns a boolean argument, false when absent.
func (a Args) Bool(name string) bool {
	v, ok := a.values[name]
	return ok && v.Kind == KindBoolean && v.Bool
}

// Strings returns a string list argument.
func (a Args) Strings(name string) []string {
	v, ok := a.values[name]
	if !ok || v.Kind != KindStringList {
		return nil
	}
	return append([]string(nil), v.List...)
}

// Object returns an object argument.
func (a Args) Object(name string) map[string]string {
	v, ok := a.values[name]
	if !ok || v.Kind != KindObject {
		return nil
	}
	return copyFields(v.Object)
}

// Objects returns an object list argument.
func (a Args) Objects(name string) []map[string]string {
	v, ok := a.values[name]
	if !ok || v.Kind != KindObjectList {
		return nil
	}
	out := make([]map[string]string, len(v.Objects))
	for i, obj := range v.Objects {
		out[i] = copyFields(obj)
	}
	return out
}

// WithString returns a copy of a with a string argument replaced.
// It is a no-op for absent or non-string arguments.
func (a Args) WithString(name, value string) Args {
	v, ok := a.values[name]
	if !ok || v.Kind != KindString {
		return a
	}
	next := make(map[string]Value, len(a.values))
	for k, val := range a.values {
		next[k] = val
	}
	v.Str = value
	next[name] = v
	return Args{values: next}
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
