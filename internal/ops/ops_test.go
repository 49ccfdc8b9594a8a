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
	"encoding/json"
	"errors"
	"strings"
	"testing"

	apperrors "taskagent/internal/errors"
)

func nopHandler() Handler {
	return HandlerFunc(func(ctx context.Context, args Args) (string, error) {
		return "ok", nil
	})
}

func sortSpec() Spec {
	return Spec{
		Name:        "sort_contacts",
		Description: "Sort contacts",
		Params: []Param{
			{Name: "input_file", Type: TypeString, Required: true, Path: PathFile},
			{Name: "output_file", Type: TypeString, Required: true, Path: PathFile},
			{Name: "sort_fields", Type: TypeArray, Required: true, Items: &Param{Type: TypeString}},
			{Name: "sort_direction", Type: TypeArray, Required: true, Items: &Param{Type: TypeString, Enum: []string{"asc", "desc"}}},
			{Name: "limit", Type: TypeInteger},
		},
		Handler: nopHandler(),
		Check:   SameLength("sort_fields", "sort_direction"),
	}
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("bad fixture %q: %v", s, err)
	}
	return m
}

func TestValidateFirstMissingInSchemaOrder(t *testing.T) {
	spec := sortSpec()
	// both output_file and sort_direction are absent; output_file comes first
	raw := decode(t, `{"input_file":"data/c.json","sort_fields":["a"]}`)
	_, err := Validate(spec, raw)
	if apperrors.CodeOf(err) != apperrors.CodeMissingParameter {
		t.Fatalf("expected missing_parameter, got %v", err)
	}
	if f := apperrors.FieldOf(err); f != "output_file" {
		t.Fatalf("expected output_file to be named, got %q", f)
	}
}

func TestValidatePresenceBeforeType(t *testing.T) {
	spec := sortSpec()
	// input_file has the wrong type but sort_direction is missing
	raw := decode(t, `{"input_file":7,"output_file":"data/o.json","sort_fields":["a"]}`)
	_, err := Validate(spec, raw)
	if apperrors.CodeOf(err) != apperrors.CodeMissingParameter || apperrors.FieldOf(err) != "sort_direction" {
		t.Fatalf("expected missing sort_direction, got %v", err)
	}
}

func TestValidateNullCountsAsMissing(t *testing.T) {
	spec := sortSpec()
	raw := decode(t, `{"input_file":null,"output_file":"data/o.json","sort_fields":["a"],"sort_direction":["asc"]}`)
	_, err := Validate(spec, raw)
	if apperrors.FieldOf(err) != "input_file" || apperrors.CodeOf(err) != apperrors.CodeMissingParameter {
		t.Fatalf("expected missing input_file, got %v", err)
	}
}

func TestValidateInvalid(t *testing.T) {
	spec := sortSpec()
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"wrong type", `{"input_file":1,"output_file":"o","sort_fields":["a"],"sort_direction":["asc"]}`, "input_file"},
		{"enum item", `{"input_file":"i","output_file":"o","sort_fields":["a"],"sort_direction":["up"]}`, "sort_direction"},
		{"not array", `{"input_file":"i","output_file":"o","sort_fields":"a","sort_direction":["asc"]}`, "sort_fields"},
		{"fractional int", `{"input_file":"i","output_file":"o","sort_fields":["a"],"sort_direction":["asc"],"limit":1.5}`, "limit"},
		{"int out of range", `{"input_file":"i","output_file":"o","sort_fields":["a"],"sort_direction":["asc"],"limit":1e20}`, "limit"},
		{"length mismatch", `{"input_file":"i","output_file":"o","sort_fields":["a","b"],"sort_direction":["asc"]}`, "sort_direction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(spec, decode(t, tt.raw))
			if apperrors.CodeOf(err) != apperrors.CodeInvalidParameter {
				t.Fatalf("expected invalid_parameter, got %v", err)
			}
			if f := apperrors.FieldOf(err); f != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, f)
			}
		})
	}
}

func TestValidateHugeIntegerIsOutOfRange(t *testing.T) {
	spec := sortSpec()
	spec.Check = ChainRules(spec.Check, Positive("limit"))
	for _, limit := range []string{"1e20", "-1e20", "9223372036854775808"} {
		raw := decode(t, `{"input_file":"i","output_file":"o","sort_fields":["a"],"sort_direction":["asc"],"limit":`+limit+`}`)
		_, err := Validate(spec, raw)
		if apperrors.FieldOf(err) != "limit" || !strings.Contains(err.Error(), "out of range") {
			t.Fatalf("limit %s: expected out of range, got %v", limit, err)
		}
	}
}

func TestValidateAcceptsAndIgnoresExtras(t *testing.T) {
	spec := sortSpec()
	raw := decode(t, `{"input_file":"data/c.json","output_file":"data/o.json","sort_fields":["last","first"],"sort_direction":["desc","asc"],"limit":"3","bogus":true}`)
	args, err := Validate(spec, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args.Has("bogus") {
		t.Fatal("extra field leaked into validated args")
	}
	if n, ok := args.Int("limit"); !ok || n != 3 {
		t.Fatalf("limit = %d %v, want 3", n, ok)
	}
	dirs := args.Strings("sort_direction")
	if len(dirs) != 2 || dirs[0] != "desc" {
		t.Fatalf("unexpected directions %v", dirs)
	}
	dirs[0] = "mutated"
	if args.Strings("sort_direction")[0] != "desc" {
		t.Fatal("Strings must return a copy")
	}
}

func TestValidateObjectList(t *testing.T) {
	spec := Spec{
		Name: "scrape",
		Params: []Param{
			{Name: "targets", Type: TypeArray, Required: true, Items: &Param{
				Type: TypeObject,
				Fields: []Param{
					{Name: "element", Type: TypeString, Required: true},
					{Name: "attribute", Type: TypeString},
				},
			}},
		},
		Handler: nopHandler(),
	}
	args, err := Validate(spec, decode(t, `{"targets":[{"element":"h1"},{"element":"a","attribute":"href"}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	objs := args.Objects("targets")
	if len(objs) != 2 || objs[1]["attribute"] != "href" {
		t.Fatalf("unexpected objects %v", objs)
	}
	if _, err := Validate(spec, decode(t, `{"targets":[{"attribute":"href"}]}`)); apperrors.CodeOf(err) != apperrors.CodeInvalidParameter {
		t.Fatalf("expected invalid_parameter for missing element, got %v", err)
	}
}

func TestRequireWhen(t *testing.T) {
	spec := Spec{
		Name: "extract",
		Params: []Param{
			{Name: "mode", Type: TypeString, Required: true, Enum: []string{"all", "line_number"}},
			{Name: "line_number", Type: TypeInteger},
		},
		Handler: nopHandler(),
		Check:   ChainRules(RequireWhen("mode", "line_number", "line_number"), Positive("line_number")),
	}
	if _, err := Validate(spec, decode(t, `{"mode":"all"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := Validate(spec, decode(t, `{"mode":"line_number"}`))
	if apperrors.CodeOf(err) != apperrors.CodeMissingParameter || apperrors.FieldOf(err) != "line_number" {
		t.Fatalf("expected missing line_number, got %v", err)
	}
	_, err = Validate(spec, decode(t, `{"mode":"line_number","line_number":0}`))
	if apperrors.CodeOf(err) != apperrors.CodeInvalidParameter {
		t.Fatalf("expected invalid line_number, got %v", err)
	}
}

func TestWithStringCopies(t *testing.T) {
	spec := sortSpec()
	args, err := Validate(spec, decode(t, `{"input_file":"/data/c.json","output_file":"data/o.json","sort_fields":["a"],"sort_direction":["asc"]}`))
	if err != nil {
		t.Fatal(err)
	}
	next := args.WithString("input_file", "data/c.json")
	if args.String("input_file") != "/data/c.json" {
		t.Fatal("WithString mutated the original")
	}
	if next.String("input_file") != "data/c.json" {
		t.Fatalf("got %q", next.String("input_file"))
	}
}

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(sortSpec())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Lookup("sort_contacts"); err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	_, err = reg.Lookup("delete_everything")
	if apperrors.CodeOf(err) != apperrors.CodeUnknownOperation {
		t.Fatalf("expected unknown_operation, got %v", err)
	}
}

func TestRegistryRejectsBadSpecs(t *testing.T) {
	if _, err := NewRegistry(sortSpec(), sortSpec()); !errors.Is(err, ErrDuplicateOperation) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	bad := []Spec{
		{Name: "", Handler: nopHandler()},
		{Name: "x"},
		{Name: "x", Handler: nopHandler(), Params: []Param{{Name: "n", Type: TypeInteger, Enum: []string{"1"}}}},
		{Name: "x", Handler: nopHandler(), Params: []Param{{Name: "n", Type: TypeInteger, Path: PathFile}}},
		{Name: "x", Handler: nopHandler(), Params: []Param{{Name: "l", Type: TypeArray}}},
		{Name: "x", Handler: nopHandler(), Params: []Param{{Name: "a", Type: TypeString}, {Name: "a", Type: TypeString}}},
	}
	for i, spec := range bad {
		if _, err := NewRegistry(spec); err == nil {
			t.Fatalf("spec %d: expected error", i)
		}
	}
}

// The rendered tool schema must declare exactly what Validate enforces.
func TestToolSchemaMatchesParams(t *testing.T) {
	reg, err := NewRegistry(sortSpec())
	if err != nil {
		t.Fatal(err)
	}
	tools := reg.OpenAITools()
	if len(tools) != 1 || tools[0].Function.Name != "sort_contacts" {
		t.Fatalf("unexpected tools %+v", tools)
	}
	data, err := json.Marshal(tools[0].Function.Parameters)
	if err != nil {
		t.Fatal(err)
	}
	var schema struct {
		Type       string                     `json:"type"`
		Required   []string                   `json:"required"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatal(err)
	}
	if schema.Type != "object" {
		t.Fatalf("type = %q", schema.Type)
	}
	spec := sortSpec()
	if len(schema.Properties) != len(spec.Params) {
		t.Fatalf("schema has %d properties, spec has %d params", len(schema.Properties), len(spec.Params))
	}
	want := []string{"input_file", "output_file", "sort_fields", "sort_direction"}
	if len(schema.Required) != len(want) {
		t.Fatalf("required = %v", schema.Required)
	}
	for i := range want {
		if schema.Required[i] != want[i] {
			t.Fatalf("required[%d] = %q, want %q", i, schema.Required[i], want[i])
		}
	}
	var dir struct {
		Items struct {
			Enum []string `json:"enum"`
		} `json:"items"`
	}
	if err := json.Unmarshal(schema.Properties["sort_direction"], &dir); err != nil {
		t.Fatal(err)
	}
	if len(dir.Items.Enum) != 2 {
		t.Fatalf("sort_direction enum missing: %s", schema.Properties["sort_direction"])
	}
}
