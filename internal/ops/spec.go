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

import (
	"context"
	"fmt"
)

// Type is the JSON type of a parameter.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// PathKind marks string parameters that name a location in the sandbox.
type PathKind int

const (
	PathNone PathKind = iota
	PathFile
	PathDir
)

// Param declares one argument of an operation.
//
// Items describes array elements; Fields describes the string members of an
// object element.
type Param struct {
	Name        string
	Type        Type
	Description string
	Required    bool
	Enum        []string
	Path        PathKind
	Items       *Param
	Fields      []Param
}

// Handler executes an operation with validated arguments.
type Handler interface {
	Execute(ctx context.Context, args Args) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args Args) (string, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, args Args) (string, error) {
	return f(ctx, args)
}

// Spec describes an operation exposed to the model.
type Spec struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
	// Check runs after the per-field checks for constraints spanning fields.
	Check Rule
}

// PathParams returns the path-shaped parameters in schema order.
func (s Spec) PathParams() []Param {
	var out []Param
	for _, p := range s.Params {
		if p.Path != PathNone {
			out = append(out, p)
		}
	}
	return out
}

// Param returns the named parameter declaration.
func (s Spec) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

func (s Spec) check() error {
	if s.Name == "" {
		return fmt.Errorf("operation name is required")
	}
	if s.Handler == nil {
		return fmt.Errorf("operation %s has no handler", s.Name)
	}
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if seen[p.Name] {
			return fmt.Errorf("operation %s declares parameter %q twice", s.Name, p.Name)
		}
		seen[p.Name] = true
		if err := p.check(); err != nil {
			return fmt.Errorf("operation %s: %w", s.Name, err)
		}
	}
	return nil
}

func (p Param) check() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name is required")
	}
	switch p.Type {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean:
	case TypeArray:
		if p.Items == nil {
			return fmt.Errorf("array parameter %q needs an item declaration", p.Name)
		}
		if p.Items.Type != TypeString && p.Items.Type != TypeObject {
			return fmt.Errorf("array parameter %q supports string or object items", p.Name)
		}
	case TypeObject:
		for _, f := range p.Fields {
			if f.Type != TypeString {
				return fmt.Errorf("object parameter %q supports string fields only", p.Name)
			}
		}
	default:
		return fmt.Errorf("parameter %q has unsupported type %q", p.Name, p.Type)
	}
	if len(p.Enum) > 0 && p.Type != TypeString {
		return fmt.Errorf("enum on parameter %q requires a string type", p.Name)
	}
	if p.Path != PathNone && p.Type != TypeString {
		return fmt.Errorf("path parameter %q must be a string", p.Name)
	}
	if p.Items != nil {
		item := *p.Items
		if item.Name == "" {
			item.Name = p.Name
		}
		return item.check()
	}
	return nil
}
