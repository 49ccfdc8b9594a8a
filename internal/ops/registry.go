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
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	apperrors "taskagent/internal/errors"
)

// ErrDuplicateOperation indicates two specs share a name.
var ErrDuplicateOperation = errors.New("operation already registered")

// Registry is the fixed operation table.
//
// It is built once and never mutated, so it is safe for concurrent reads
// without locking. The same Params drive OpenAITools and Validate.
type Registry struct {
	specs []Spec
	index map[string]int
}

// NewRegistry builds a registry from specs in the given order.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{
		specs: make([]Spec, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	for _, spec := range specs {
		if err := spec.check(); err != nil {
			return nil, err
		}
		if _, exists := r.index[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOperation, spec.Name)
		}
		r.index[spec.Name] = len(r.specs)
		r.specs = append(r.specs, spec)
	}
	return r, nil
}

// Specs returns the specs in registration order.
func (r *Registry) Specs() []Spec {
	return append([]Spec(nil), r.specs...)
}

// Names returns operation names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, spec := range r.specs {
		names[i] = spec.Name
	}
	return names
}

// Len returns the number of operations.
func (r *Registry) Len() int {
	return len(r.specs)
}

// Lookup returns the named spec or an unknown_operation error.
func (r *Registry) Lookup(name string) (Spec, error) {
	i, ok := r.index[name]
	if !ok {
		return Spec{}, apperrors.New(apperrors.CodeUnknownOperation, fmt.Sprintf("unknown operation %q", name))
	}
	return r.specs[i], nil
}

// OpenAITools returns the registry as OpenAI tool definitions.
func (r *Registry) OpenAITools() []openai.Tool {
	defs := make([]openai.Tool, 0, len(r.specs))
	for _, spec := range r.specs {
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters(),
			},
		})
	}
	return defs
}
