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
package handlers

import (
	"regexp"
	"strings"
)

// OutputFilters controls sanitization and truncation of returned content.
type OutputFilters struct {
	MaxChars     int
	StripANSI    bool
	StripControl bool
}

const defaultMaxOutputChars = 4000

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]|\x1b\][^\x1b]*(?:\x07|\x1b\\)`)

// DefaultOutputFilters returns default output filtering settings.
func DefaultOutputFilters() OutputFilters {
	return OutputFilters{
		MaxChars:     defaultMaxOutputChars,
		StripANSI:    true,
		StripControl: true,
	}
}

// Normalize fills in the default character budget.
func (f OutputFilters) Normalize() OutputFilters {
	if f.MaxChars <= 0 {
		f.MaxChars = defaultMaxOutputChars
	}
	return f
}

// Apply sanitizes output and reports whether it was truncated.
func (f OutputFilters) Apply(output string) (string, bool) {
	sanitized := output
	if f.StripANSI {
		sanitized = ansiPattern.ReplaceAllString(sanitized, "")
	}
	if f.StripControl {
		sanitized = stripControlChars(sanitized)
	}
	return truncateString(sanitized, f.MaxChars)
}

// Content applies the filters and marks truncated output.
func (f OutputFilters) Content(output string) string {
	out, truncated := f.Apply(output)
	if truncated {
		out += "\n[output truncated]"
	}
	return out
}

func stripControlChars(input string) string {
	var builder strings.Builder
	builder.Grow(len(input))
	for _, r := range input {
		if r == '\n' || r == '\r' || r == '\t' {
			builder.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

func truncateString(input string, max int) (string, bool) {
	if max <= 0 || len(input) <= max {
		return input, false
	}
	runes := []rune(input)
	if len(runes) <= max {
		return input, false
	}
	return string(runes[:max]), true
}
