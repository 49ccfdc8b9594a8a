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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskagent/internal/handlers"
	"taskagent/internal/ops"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"OPENAI_API_KEY", "AIPROXY_TOKEN", "OPENAI_API_URL", "TASKAGENT_WORKDIR", "TASKAGENT_LISTEN"} {
		t.Setenv(name, "")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"api_key":"file-key","model":"gpt-file","api_url":"https://file.example","listen_addr":":9000"}`)
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OPENAI_API_URL", "https://env.example")
	t.Setenv("TASKAGENT_LISTEN", "127.0.0.1:8100")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "env-key" {
		t.Fatalf("expected env key to override file, got %s", cfg.APIKey)
	}
	if cfg.APIURL != "https://env.example" {
		t.Fatalf("expected env API URL to override file, got %s", cfg.APIURL)
	}
	if cfg.ListenAddr != "127.0.0.1:8100" {
		t.Fatalf("expected env listen address, got %s", cfg.ListenAddr)
	}
	if cfg.Model != "gpt-file" {
		t.Fatalf("expected model from file, got %s", cfg.Model)
	}
}

func TestMissingAPIKeyReturnsError(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{}`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestMissingAPIKeyWithNoConfigFile(t *testing.T) {
	clearEnv(t)
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestLoadConfigMissingFileReturnsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "k")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model != defaultModel || cfg.APIURL != defaultAPIURL {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ListenAddr != defaultListenAddr || cfg.SandboxPrefix != "data" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !filepath.IsAbs(cfg.Workdir) {
		t.Fatalf("workdir %q should be absolute", cfg.Workdir)
	}
}

func TestAIProxyTokenSwitchesDefaultURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("AIPROXY_TOKEN", "proxy")
	path := writeTempConfig(t, `{}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "proxy" || cfg.APIURL != aiProxyAPIURL {
		t.Fatalf("unexpected key/url %q %q", cfg.APIKey, cfg.APIURL)
	}
}

func TestOpenAIKeyTakesPrecedenceOverAIProxy(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "openai")
	t.Setenv("AIPROXY_TOKEN", "proxy")
	cfg, err := LoadConfig(writeTempConfig(t, `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "openai" || cfg.APIURL != defaultAPIURL {
		t.Fatalf("unexpected key/url %q %q", cfg.APIKey, cfg.APIURL)
	}
}

func TestAIProxyKeepsCustomURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("AIPROXY_TOKEN", "proxy")
	cfg, err := LoadConfig(writeTempConfig(t, `{"api_url":"https://llm.internal/v1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIURL != "https://llm.internal/v1" {
		t.Fatalf("custom URL replaced: %s", cfg.APIURL)
	}
}

func TestWorkdirFromEnvIsAbsolute(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("TASKAGENT_WORKDIR", dir)
	cfg, err := LoadConfig(writeTempConfig(t, `{"api_key":"k","workdir":"/elsewhere"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workdir != dir {
		t.Fatalf("workdir = %q, want %q", cfg.Workdir, dir)
	}
	guard := cfg.Guard()
	if guard.Root() != filepath.Join(dir, "data") {
		t.Fatalf("guard root = %q", guard.Root())
	}
}

func TestLegacyDataDirMigrates(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	raw, _ := json.Marshal(map[string]string{"api_key": "k", "data_dir": dir})
	cfg, err := LoadConfig(writeTempConfig(t, string(raw)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workdir != dir {
		t.Fatalf("workdir = %q, want %q", cfg.Workdir, dir)
	}
}

func TestConfigRejectsMalformedFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown field", `{"api_key":"k","unknown_field":123}`, `unknown configuration field "unknown_field"`},
		{"unknown nested field", `{"api_key":"k","tool_limits":{"max_files":3}}`, `"tool_limits.max_files"`},
		{"string limit", `{"api_key":"k","tool_limits":{"max_file_size_bytes":"oops"}}`, "must be an integer"},
		{"fractional limit", `{"api_key":"k","tool_limits":{"max_directory_depth":1.5}}`, "must be an integer"},
		{"bad section", `{"api_key":"k","tool_timeouts":[]}`, "tool_timeouts must be an object"},
		{"bad per tool", `{"api_key":"k","tool_timeouts":{"per_tool_seconds":{"format_file":"slow"}}}`, "per_tool_seconds.format_file"},
		{"bad disabled list", `{"api_key":"k","disabled_operations":"read_file"}`, "array of strings"},
		{"not json", `{"api_key":`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadConfig(writeTempConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestConfigStructValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"api url", `{"api_key":"k","api_url":"not a url"}`, "api_url"},
		{"listen addr", `{"api_key":"k","listen_addr":"localhost"}`, "listen_addr"},
		{"prefix with slash", `{"api_key":"k","sandbox_prefix":"data/sub"}`, "sandbox_prefix"},
		{"negative limit", `{"api_key":"k","tool_limits":{"max_directory_entries":-1}}`, "tool_limits.max_directory_entries"},
		{"negative timeout", `{"api_key":"k","tool_timeouts":{"per_tool_seconds":{"format_file":-5}}}`, "tool_timeouts.per_tool_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadConfig(writeTempConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("error %q does not name %q", err, tt.field)
			}
		})
	}
}

func TestToolLimitsDefaultsApplied(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(writeTempConfig(t, `{"api_key":"k"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := cfg.Limits(), handlers.DefaultLimits(); got != want {
		t.Fatalf("limits = %+v, want %+v", got, want)
	}
	if got, want := cfg.OutputFilters(), handlers.DefaultOutputFilters(); got != want {
		t.Fatalf("filters = %+v, want %+v", got, want)
	}
}

func TestToolLimitsCustom(t *testing.T) {
	clearEnv(t)
	content := `{
		"api_key": "k",
		"tool_limits": {
			"max_file_size_bytes": 1024,
			"max_directory_depth": 3,
			"max_directory_entries": 25
		},
		"tool_output_filters": {
			"max_chars": 200,
			"strip_ansi": false,
			"strip_control": true
		}
	}`
	cfg, err := LoadConfig(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := handlers.Limits{MaxFileSizeBytes: 1024, MaxDirectoryDepth: 3, MaxDirectoryEntries: 25}
	if got := cfg.Limits(); got != want {
		t.Fatalf("limits = %+v, want %+v", got, want)
	}
	filters := cfg.OutputFilters()
	if filters.MaxChars != 200 || filters.StripANSI || !filters.StripControl {
		t.Fatalf("unexpected filters %+v", filters)
	}
}

func TestToolTimeoutsMergeWithDefaults(t *testing.T) {
	clearEnv(t)
	content := `{
		"api_key": "k",
		"tool_timeouts": {
			"default_seconds": 20,
			"per_tool_seconds": {"format_file": 5, "clone_git_repo": 0}
		}
	}`
	cfg, err := LoadConfig(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	timeouts := cfg.Timeouts()
	if got := timeouts.For("format_file"); got != 5*time.Second {
		t.Fatalf("format_file timeout = %v", got)
	}
	if got := timeouts.For("clone_git_repo"); got != 0 {
		t.Fatalf("clone_git_repo timeout = %v, want disabled", got)
	}
	if got := timeouts.For("scrape_website"); got != handlers.DefaultTimeouts().For("scrape_website") {
		t.Fatalf("scrape_website lost its default timeout: %v", got)
	}
	if got := timeouts.For("read_file"); got != 20*time.Second {
		t.Fatalf("read_file timeout = %v", got)
	}
}

func TestModelTimeout(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(writeTempConfig(t, `{"api_key":"k","model_timeout_seconds":7}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ModelTimeout() != 7*time.Second {
		t.Fatalf("model timeout = %v", cfg.ModelTimeout())
	}
	if DefaultConfig().ModelTimeout() != defaultModelTimeout*time.Second {
		t.Fatal("unexpected default model timeout")
	}
}

func TestTemperatureAndMaxTokensOptional(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(writeTempConfig(t, `{"api_key":"k"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Temperature != nil || cfg.MaxTokens != nil {
		t.Fatalf("expected unset sampling options, got %v %v", cfg.Temperature, cfg.MaxTokens)
	}
}

func testSpecs(names ...string) []ops.Spec {
	specs := make([]ops.Spec, 0, len(names))
	for _, name := range names {
		specs = append(specs, ops.Spec{Name: name})
	}
	return specs
}

func TestEnabledDropsDisabledOperations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisabledOperations = []string{"clone_git_repo"}
	got := cfg.Enabled(testSpecs("read_file", "clone_git_repo", "write_file"))
	if len(got) != 2 || got[0].Name != "read_file" || got[1].Name != "write_file" {
		t.Fatalf("unexpected enabled set %+v", got)
	}
}

func TestValidate(t *testing.T) {
	temp := func(v float32) *float32 { return &v }
	tokens := func(v int) *int { return &v }
	known := testSpecs("read_file", "format_file")

	tests := []struct {
		name   string
		modify func(*Config)
		fields []string
	}{
		{"defaults", func(c *Config) { c.ToolTimeouts.PerToolSeconds = nil }, nil},
		{"temperature high", func(c *Config) {
			c.ToolTimeouts.PerToolSeconds = nil
			c.Temperature = temp(2.5)
		}, []string{"temperature"}},
		{"temperature in range", func(c *Config) {
			c.ToolTimeouts.PerToolSeconds = nil
			c.Temperature = temp(0.7)
		}, nil},
		{"max tokens zero", func(c *Config) {
			c.ToolTimeouts.PerToolSeconds = nil
			c.MaxTokens = tokens(0)
		}, []string{"max_tokens"}},
		{"max tokens huge", func(c *Config) {
			c.ToolTimeouts.PerToolSeconds = nil
			c.MaxTokens = tokens(200000)
		}, []string{"max_tokens"}},
		{"unknown names", func(c *Config) {
			c.DisabledOperations = []string{"nope"}
			c.ToolTimeouts.PerToolSeconds = map[string]int{"format_file": 3, "ghost": 1}
		}, []string{"disabled_operations", "tool_timeouts.per_tool_seconds"}},
		{"everything disabled", func(c *Config) {
			c.ToolTimeouts.PerToolSeconds = nil
			c.DisabledOperations = []string{"read_file", "format_file"}
		}, []string{"disabled_operations"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			warnings := cfg.Validate(known)
			if len(warnings) != len(tt.fields) {
				t.Fatalf("warnings = %+v, want fields %v", warnings, tt.fields)
			}
			for i, w := range warnings {
				if w.Field != tt.fields[i] {
					t.Fatalf("warning %d field = %q, want %q", i, w.Field, tt.fields[i])
				}
			}
		})
	}
}

func TestDefaultTimeoutsNameRegisteredOperations(t *testing.T) {
	specs := handlers.Builtins(handlers.Deps{})
	if warnings := DefaultConfig().Validate(specs); len(warnings) != 0 {
		t.Fatalf("default config warns against the shipped catalogue: %+v", warnings)
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	if _, err := normalizeConfigJSON([]byte(ExampleConfigJSON())); err != nil {
		t.Fatalf("example config rejected: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(SchemaJSON()), &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
}
