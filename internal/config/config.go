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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"taskagent/internal/handlers"
	"taskagent/internal/ops"
	"taskagent/internal/paths"
)

const (
	defaultModel        = "gpt-4o-mini"
	defaultAPIURL       = "https://api.openai.com/v1"
	aiProxyAPIURL       = "https://aiproxy.sanand.workers.dev/openai/v1"
	defaultListenAddr   = ":8000"
	defaultModelTimeout = 60
)

// Config represents the application configuration
type Config struct {
	APIKey              string            `json:"api_key"`
	APIURL              string            `json:"api_url,omitempty" validate:"required,url"`
	Model               string            `json:"model" validate:"required"`
	EmbeddingModel      string            `json:"embedding_model,omitempty"`
	TranscriptionModel  string            `json:"transcription_model,omitempty"`
	Temperature         *float32          `json:"temperature,omitempty"`
	MaxTokens           *int              `json:"max_tokens,omitempty"`
	Workdir             string            `json:"workdir,omitempty" validate:"required"`
	SandboxPrefix       string            `json:"sandbox_prefix,omitempty" validate:"required,excludes=/"`
	ListenAddr          string            `json:"listen_addr,omitempty" validate:"required,hostname_port"`
	ModelTimeoutSeconds int               `json:"model_timeout_seconds,omitempty" validate:"gte=0"`
	DisabledOperations  []string          `json:"disabled_operations,omitempty"`
	ToolLimits          ToolLimits        `json:"tool_limits,omitempty"`
	ToolTimeouts        ToolTimeouts      `json:"tool_timeouts,omitempty"`
	ToolOutputFilters   ToolOutputFilters `json:"tool_output_filters,omitempty"`
}

// ToolLimits configures resource limits for file operations.
type ToolLimits struct {
	MaxFileSizeBytes    int64 `json:"max_file_size_bytes,omitempty" validate:"gte=0"`
	MaxDirectoryDepth   int   `json:"max_directory_depth,omitempty" validate:"gte=0"`
	MaxDirectoryEntries int   `json:"max_directory_entries,omitempty" validate:"gte=0"`
}

// ToolTimeouts configures operation execution timeouts.
type ToolTimeouts struct {
	DefaultSeconds int            `json:"default_seconds,omitempty" validate:"gte=0"`
	PerToolSeconds map[string]int `json:"per_tool_seconds,omitempty" validate:"dive,gte=0"`
}

// ToolOutputFilters configures sanitization of operation results.
type ToolOutputFilters struct {
	MaxChars     int  `json:"max_chars,omitempty" validate:"gte=0"`
	StripANSI    bool `json:"strip_ansi,omitempty"`
	StripControl bool `json:"strip_control,omitempty"`
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	limits := handlers.DefaultLimits()
	filters := handlers.DefaultOutputFilters()
	perTool := make(map[string]int)
	for name, d := range handlers.DefaultTimeouts().PerOp {
		perTool[name] = int(d.Seconds())
	}
	return &Config{
		Model:               defaultModel,
		APIURL:              defaultAPIURL,
		Workdir:             ".",
		SandboxPrefix:       paths.DefaultPrefix,
		ListenAddr:          defaultListenAddr,
		ModelTimeoutSeconds: defaultModelTimeout,
		ToolLimits: ToolLimits{
			MaxFileSizeBytes:    limits.MaxFileSizeBytes,
			MaxDirectoryDepth:   limits.MaxDirectoryDepth,
			MaxDirectoryEntries: limits.MaxDirectoryEntries,
		},
		ToolTimeouts: ToolTimeouts{PerToolSeconds: perTool},
		ToolOutputFilters: ToolOutputFilters{
			MaxChars:     filters.MaxChars,
			StripANSI:    filters.StripANSI,
			StripControl: filters.StripControl,
		},
	}
}

// LoadConfig loads configuration from a JSON file, applies env overrides, and
// validates the result. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		normalized, err := normalizeConfigJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := json.Unmarshal(normalized, config); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	// OPENAI_API_KEY wins over AIPROXY_TOKEN; the proxy token also moves the
	// default endpoint to the proxy.
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		config.APIKey = val
	} else if val := os.Getenv("AIPROXY_TOKEN"); val != "" {
		config.APIKey = val
		if config.APIURL == defaultAPIURL {
			config.APIURL = aiProxyAPIURL
		}
	}
	if val := os.Getenv("OPENAI_API_URL"); val != "" {
		config.APIURL = val
	}
	if val := os.Getenv("TASKAGENT_WORKDIR"); val != "" {
		config.Workdir = val
	}
	if val := os.Getenv("TASKAGENT_LISTEN"); val != "" {
		config.ListenAddr = val
	}

	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.APIURL == "" {
		config.APIURL = defaultAPIURL
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required (set api_key in config.json or OPENAI_API_KEY/AIPROXY_TOKEN)")
	}
	if err := config.check(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(config.Workdir)
	if err != nil {
		return nil, fmt.Errorf("workdir: %w", err)
	}
	config.Workdir = abs
	return config, nil
}

func (c *Config) check() error {
	err := structValidator.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	if fe.Param() != "" {
		return fmt.Errorf("invalid configuration field %q: failed %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Errorf("invalid configuration field %q: failed %s", field, fe.Tag())
}

// Guard returns the sandbox guard for the configured workdir.
func (c *Config) Guard() paths.Guard {
	return paths.NewGuard(c.Workdir, c.SandboxPrefix)
}

// Limits returns file operation limits for runtime enforcement.
func (c *Config) Limits() handlers.Limits {
	return handlers.Limits{
		MaxFileSizeBytes:    c.ToolLimits.MaxFileSizeBytes,
		MaxDirectoryDepth:   c.ToolLimits.MaxDirectoryDepth,
		MaxDirectoryEntries: c.ToolLimits.MaxDirectoryEntries,
	}.Normalize()
}

// Timeouts returns per-operation timeouts. Entries set to zero disable the
// built-in timeout for that operation.
func (c *Config) Timeouts() handlers.Timeouts {
	perOp := make(map[string]time.Duration, len(c.ToolTimeouts.PerToolSeconds))
	for name, seconds := range c.ToolTimeouts.PerToolSeconds {
		perOp[name] = time.Duration(seconds) * time.Second
	}

	var defaultTimeout time.Duration
	if c.ToolTimeouts.DefaultSeconds > 0 {
		defaultTimeout = time.Duration(c.ToolTimeouts.DefaultSeconds) * time.Second
	}

	return handlers.Timeouts{
		Default: defaultTimeout,
		PerOp:   perOp,
	}
}

// OutputFilters returns the result sanitization settings.
func (c *Config) OutputFilters() handlers.OutputFilters {
	return handlers.OutputFilters{
		MaxChars:     c.ToolOutputFilters.MaxChars,
		StripANSI:    c.ToolOutputFilters.StripANSI,
		StripControl: c.ToolOutputFilters.StripControl,
	}.Normalize()
}

// ModelTimeout bounds a single model API request.
func (c *Config) ModelTimeout() time.Duration {
	if c.ModelTimeoutSeconds <= 0 {
		return defaultModelTimeout * time.Second
	}
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}

// Enabled filters specs down to the operations not listed in
// disabled_operations.
func (c *Config) Enabled(specs []ops.Spec) []ops.Spec {
	if len(c.DisabledOperations) == 0 {
		return specs
	}
	disabled := make(map[string]bool, len(c.DisabledOperations))
	for _, name := range c.DisabledOperations {
		disabled[name] = true
	}
	out := make([]ops.Spec, 0, len(specs))
	for _, spec := range specs {
		if !disabled[spec.Name] {
			out = append(out, spec)
		}
	}
	return out
}

// ValidationWarning represents a non-fatal configuration issue
type ValidationWarning struct {
	Field   string
	Message string
}

// Validate checks the configuration for common issues and returns warnings.
// known lists every operation the binary ships, before disabled ones are
// removed.
func (c *Config) Validate(known []ops.Spec) []ValidationWarning {
	var warnings []ValidationWarning

	// OpenAI expects 0-2
	if c.Temperature != nil {
		temp := *c.Temperature
		if temp < 0 || temp > 2 {
			warnings = append(warnings, ValidationWarning{
				Field:   "temperature",
				Message: fmt.Sprintf("temperature %.2f is outside recommended range [0, 2]", temp),
			})
		}
	}

	if c.MaxTokens != nil {
		tokens := *c.MaxTokens
		if tokens <= 0 {
			warnings = append(warnings, ValidationWarning{
				Field:   "max_tokens",
				Message: fmt.Sprintf("max_tokens %d must be positive", tokens),
			})
		}
		if tokens > 128000 {
			warnings = append(warnings, ValidationWarning{
				Field:   "max_tokens",
				Message: fmt.Sprintf("max_tokens %d exceeds typical model limits", tokens),
			})
		}
	}

	if known != nil {
		registered := make(map[string]bool, len(known))
		for _, spec := range known {
			registered[spec.Name] = true
		}
		for _, name := range c.DisabledOperations {
			if !registered[name] {
				warnings = append(warnings, ValidationWarning{
					Field:   "disabled_operations",
					Message: fmt.Sprintf("operation %q is not registered", name),
				})
			}
		}
		for _, name := range sortedKeys(c.ToolTimeouts.PerToolSeconds) {
			if !registered[name] {
				warnings = append(warnings, ValidationWarning{
					Field:   "tool_timeouts.per_tool_seconds",
					Message: fmt.Sprintf("operation %q is not registered", name),
				})
			}
		}
	}

	if known != nil && len(c.Enabled(known)) == 0 {
		warnings = append(warnings, ValidationWarning{
			Field:   "disabled_operations",
			Message: "every operation is disabled",
		})
	}

	return warnings
}
