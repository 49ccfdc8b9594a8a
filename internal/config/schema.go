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
package config

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SchemaJSON returns the JSON schema for config.json.
func SchemaJSON() string {
	return configSchemaJSON
}

// ExampleConfigJSON returns a minimal example config derived from the schema.
func ExampleConfigJSON() string {
	return exampleConfigJSON
}

func normalizeConfigJSON(data []byte) ([]byte, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	migrateLegacyConfig(raw)
	if err := validateConfigMap(raw, ""); err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// migrateLegacyConfig accepts the older "data_dir" spelling of workdir.
func migrateLegacyConfig(raw map[string]interface{}) {
	legacy, ok := raw["data_dir"]
	if !ok {
		return
	}
	delete(raw, "data_dir")
	if _, ok := raw["workdir"]; !ok {
		raw["workdir"] = legacy
	}
}

func validateConfigMap(raw map[string]interface{}, prefix string) error {
	allowed := map[string]func(interface{}) error{
		"api_key":             func(v interface{}) error { return validateString(v, prefix+"api_key") },
		"api_url":             func(v interface{}) error { return validateString(v, prefix+"api_url") },
		"model":               func(v interface{}) error { return validateString(v, prefix+"model") },
		"embedding_model":     func(v interface{}) error { return validateString(v, prefix+"embedding_model") },
		"transcription_model": func(v interface{}) error { return validateString(v, prefix+"transcription_model") },
		"temperature":         func(v interface{}) error { return validateNumber(v, prefix+"temperature") },
		"max_tokens":          func(v interface{}) error { return validateInteger(v, prefix+"max_tokens") },
		"workdir":             func(v interface{}) error { return validateString(v, prefix+"workdir") },
		"sandbox_prefix":      func(v interface{}) error { return validateString(v, prefix+"sandbox_prefix") },
		"listen_addr":         func(v interface{}) error { return validateString(v, prefix+"listen_addr") },
		"model_timeout_seconds": func(v interface{}) error {
			return validateInteger(v, prefix+"model_timeout_seconds")
		},
		"disabled_operations": func(v interface{}) error {
			return validateStringArray(v, prefix+"disabled_operations")
		},
		"tool_limits": func(v interface{}) error {
			return validateToolLimits(v, prefix+"tool_limits.")
		},
		"tool_timeouts": func(v interface{}) error {
			return validateToolTimeouts(v, prefix+"tool_timeouts.")
		},
		"tool_output_filters": func(v interface{}) error {
			return validateToolOutputFilters(v, prefix+"tool_output_filters.")
		},
	}
	return validateSection(raw, allowed, prefix)
}

func validateToolLimits(value interface{}, prefix string) error {
	section, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object", trimDot(prefix))
	}
	allowed := map[string]func(interface{}) error{
		"max_file_size_bytes":   func(v interface{}) error { return validateInteger(v, prefix+"max_file_size_bytes") },
		"max_directory_depth":   func(v interface{}) error { return validateInteger(v, prefix+"max_directory_depth") },
		"max_directory_entries": func(v interface{}) error { return validateInteger(v, prefix+"max_directory_entries") },
	}
	return validateSection(section, allowed, prefix)
}

func validateToolTimeouts(value interface{}, prefix string) error {
	section, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object", trimDot(prefix))
	}
	allowed := map[string]func(interface{}) error{
		"default_seconds":  func(v interface{}) error { return validateInteger(v, prefix+"default_seconds") },
		"per_tool_seconds": func(v interface{}) error { return validateStringIntegerMap(v, prefix+"per_tool_seconds") },
	}
	return validateSection(section, allowed, prefix)
}

func validateToolOutputFilters(value interface{}, prefix string) error {
	section, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object", trimDot(prefix))
	}
	allowed := map[string]func(interface{}) error{
		"max_chars":     func(v interface{}) error { return validateInteger(v, prefix+"max_chars") },
		"strip_ansi":    func(v interface{}) error { return validateBool(v, prefix+"strip_ansi") },
		"strip_control": func(v interface{}) error { return validateBool(v, prefix+"strip_control") },
	}
	return validateSection(section, allowed, prefix)
}

func validateSection(section map[string]interface{}, allowed map[string]func(interface{}) error, prefix string) error {
	for _, key := range sortedKeys(section) {
		validator, ok := allowed[key]
		if !ok {
			return fmt.Errorf("unknown configuration field %q", prefix+key)
		}
		if err := validator(section[key]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func trimDot(prefix string) string {
	if len(prefix) > 0 && prefix[len(prefix)-1] == '.' {
		return prefix[:len(prefix)-1]
	}
	return prefix
}

func validateString(value interface{}, name string) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("%s must be a string", name)
	}
	return nil
}

func validateNumber(value interface{}, name string) error {
	if _, ok := value.(float64); !ok {
		return fmt.Errorf("%s must be a number", name)
	}
	return nil
}

func validateInteger(value interface{}, name string) error {
	n, ok := value.(float64)
	if !ok || n != float64(int64(n)) {
		return fmt.Errorf("%s must be an integer", name)
	}
	return nil
}

func validateBool(value interface{}, name string) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("%s must be a boolean", name)
	}
	return nil
}

func validateStringArray(value interface{}, name string) error {
	list, ok := value.([]interface{})
	if !ok {
		return fmt.Errorf("%s must be an array of strings", name)
	}
	for _, item := range list {
		if _, ok := item.(string); !ok {
			return fmt.Errorf("%s must be an array of strings", name)
		}
	}
	return nil
}

func validateStringIntegerMap(value interface{}, name string) error {
	section, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object of integer values", name)
	}
	for _, key := range sortedKeys(section) {
		if err := validateInteger(section[key], name+"."+key); err != nil {
			return err
		}
	}
	return nil
}

const configSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "Taskagent Config",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "api_key": { "type": "string" },
    "api_url": { "type": "string", "format": "uri" },
    "model": { "type": "string" },
    "embedding_model": { "type": "string" },
    "transcription_model": { "type": "string" },
    "temperature": { "type": "number" },
    "max_tokens": { "type": "integer" },
    "workdir": { "type": "string" },
    "sandbox_prefix": { "type": "string" },
    "listen_addr": { "type": "string" },
    "model_timeout_seconds": { "type": "integer", "minimum": 0 },
    "disabled_operations": { "type": "array", "items": { "type": "string" } },
    "tool_limits": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_file_size_bytes": { "type": "integer", "minimum": 0 },
        "max_directory_depth": { "type": "integer", "minimum": 0 },
        "max_directory_entries": { "type": "integer", "minimum": 0 }
      }
    },
    "tool_timeouts": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "default_seconds": { "type": "integer", "minimum": 0 },
        "per_tool_seconds": { "type": "object", "additionalProperties": { "type": "integer", "minimum": 0 } }
      }
    },
    "tool_output_filters": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_chars": { "type": "integer", "minimum": 0 },
        "strip_ansi": { "type": "boolean" },
        "strip_control": { "type": "boolean" }
      }
    }
  }
}`

const exampleConfigJSON = `{
  "api_key": "sk-...",
  "api_url": "https://api.openai.com/v1",
  "model": "gpt-4o-mini",
  "workdir": ".",
  "listen_addr": ":8000",
  "disabled_operations": ["clone_git_repo"],
  "tool_timeouts": {
    "per_tool_seconds": {
      "format_file": 180
    }
  }
}`
