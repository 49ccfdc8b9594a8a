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
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Schema renders the parameter as a JSON schema fragment.
func (p Param) Schema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:        string(p.Type),
		Description: p.Description,
	}
	for _, e := range p.Enum {
		s.Enum = append(s.Enum, e)
	}
	switch p.Type {
	case TypeArray:
		if p.Items != nil {
			s.Items = p.Items.Schema()
		}
	case TypeObject:
		s.Properties, s.Required = objectProperties(p.Fields)
	}
	return s
}

// Parameters renders the spec's parameters as an object schema whose
// properties keep declaration order.
func (s Spec) Parameters() *jsonschema.Schema {
	props, required := objectProperties(s.Params)
	return &jsonschema.Schema{
		Type:       string(TypeObject),
		Properties: props,
		Required:   required,
	}
}

func objectProperties(params []Param) (*orderedmap.OrderedMap[string, *jsonschema.Schema], []string) {
	props := orderedmap.New[string, *jsonschema.Schema]()
	required := []string{}
	for _, p := range params {
		props.Set(p.Name, p.Schema())
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return props, required
}
