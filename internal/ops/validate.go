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
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "taskagent/internal/errors"
)

// Rule checks validated arguments for constraints that span fields.
type Rule func(args Args) error

// Validate checks raw against the spec's parameters.
//
// Required parameters are checked for presence first, in schema order, then
// each supplied parameter is type and enum checked, then spec.Check runs.
// Unknown fields are ignored. The first failure is returned and no partial
// Args escape.
func Validate(spec Spec, raw map[string]any) (Args, error) {
	for _, p := range spec.Params {
		if !p.Required {
			continue
		}
		if v, ok := raw[p.Name]; !ok || v == nil {
			return Args{}, apperrors.Missing(p.Name)
		}
	}

	values := make(map[string]Value, len(spec.Params))
	for _, p := range spec.Params {
		rawValue, ok := raw[p.Name]
		if !ok || rawValue == nil {
			continue
		}
		v, err := convert(p, rawValue)
		if err != nil {
			return Args{}, apperrors.Invalid(p.Name, err.Error())
		}
		values[p.Name] = v
	}

	args := Args{values: values}
	if spec.Check != nil {
		if err := spec.Check(args); err != nil {
			return Args{}, err
		}
	}
	return args, nil
}

func convert(p Param, raw any) (Value, error) {
	switch p.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected string, got %s", jsonKind(raw))
		}
		if err := checkEnum(p.Enum, s); err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Str: s}, nil
	case TypeInteger:
		n, err := toInteger(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInteger, Int: n}, nil
	case TypeNumber:
		f, err := toNumber(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindNumber, Num: f}, nil
	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, fmt.Errorf("expected boolean, got %s", jsonKind(raw))
		}
		return Value{Kind: KindBoolean, Bool: b}, nil
	case TypeObject:
		obj, err := toObject(p.Fields, raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindObject, Object: obj}, nil
	case TypeArray:
		items, ok := raw.([]any)
		if !ok {
			return Value{}, fmt.Errorf("expected array, got %s", jsonKind(raw))
		}
		if p.Items.Type == TypeObject {
			objs := make([]map[string]string, 0, len(items))
			for i, item := range items {
				obj, err := toObject(p.Items.Fields, item)
				if err != nil {
					return Value{}, fmt.Errorf("item %d: %v", i, err)
				}
				objs = append(objs, obj)
			}
			return Value{Kind: KindObjectList, Objects: objs}, nil
		}
		list := make([]string, 0, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return Value{}, fmt.Errorf("item %d: expected string, got %s", i, jsonKind(item))
			}
			if err := checkEnum(p.Items.Enum, s); err != nil {
				return Value{}, fmt.Errorf("item %d: %v", i, err)
			}
			list = append(list, s)
		}
		return Value{Kind: KindStringList, List: list}, nil
	}
	return Value{}, fmt.Errorf("unsupported parameter type %q", p.Type)
}

func checkEnum(enum []string, s string) error {
	if len(enum) == 0 {
		return nil
	}
	for _, allowed := range enum {
		if s == allowed {
			return nil
		}
	}
	return fmt.Errorf("%q is not one of [%s]", s, strings.Join(enum, ", "))
}

func toInteger(raw any) (int64, error) {
	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", v.String())
		}
		return integral(f)
	case float64:
		return integral(v)
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected integer, got %s", jsonKind(raw))
}

func integral(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("integer %v out of range", f)
	}
	return int64(f), nil
}

func toNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", v.String())
		}
		return f, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %s", jsonKind(raw))
}

func toObject(fields []Param, raw any) (map[string]string, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %s", jsonKind(raw))
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v, ok := m[f.Name]
		if !ok || v == nil {
			if f.Required {
				return nil, fmt.Errorf("missing field %q", f.Name)
			}
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %q: expected string, got %s", f.Name, jsonKind(v))
		}
		if err := checkEnum(f.Enum, s); err != nil {
			return nil, fmt.Errorf("field %q: %v", f.Name, err)
		}
		out[f.Name] = s
	}
	return out, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// ChainRules runs rules in order until the first error.
func ChainRules(rules ...Rule) Rule {
	return func(args Args) error {
		for _, rule := range rules {
			if rule == nil {
				continue
			}
			if err := rule(args); err != nil {
				return err
			}
		}
		return nil
	}
}

// RequireWhen demands the listed parameters when field equals value.
func RequireWhen(field, value string, required ...string) Rule {
	return func(args Args) error {
		if args.String(field) != value {
			return nil
		}
		for _, name := range required {
			if !args.Has(name) {
				return apperrors.Missing(name)
			}
		}
		return nil
	}
}

// SameLength demands two list parameters of equal length.
func SameLength(a, b string) Rule {
	return func(args Args) error {
		la, lb := len(args.Strings(a)), len(args.Strings(b))
		if la != lb {
			return apperrors.Invalid(b, fmt.Sprintf("must have the same length as %s (%d != %d)", a, lb, la))
		}
		return nil
	}
}

// Positive demands an integer parameter greater than zero when present.
func Positive(name string) Rule {
	return func(args Args) error {
		n, ok := args.Int(name)
		if ok && n <= 0 {
			return apperrors.Invalid(name, "must be greater than zero")
		}
		return nil
	}
}

// NonEmpty demands a string parameter with non-blank content when present.
func NonEmpty(name string) Rule {
	return func(args Args) error {
		if args.Has(name) && strings.TrimSpace(args.String(name)) == "" {
			return apperrors.Invalid(name, "must not be empty")
		}
		return nil
	}
}
