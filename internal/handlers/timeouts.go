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
	"context"
	"time"

	"taskagent/internal/ops"
)

// Timeouts configures per-operation execution timeouts.
type Timeouts struct {
	Default time.Duration
	PerOp   map[string]time.Duration
}

// DefaultTimeouts bounds the operations that shell out or hit the network.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		PerOp: map[string]time.Duration{
			"online_script_runner": 2 * time.Minute,
			"format_file":          2 * time.Minute,
			"clone_git_repo":       5 * time.Minute,
			"fetch_and_save_data":  30 * time.Second,
			"scrape_website":       30 * time.Second,
			"transcribe_audio":     2 * time.Minute,
		},
	}
}

// For returns the timeout for an operation, or zero for none.
func (t Timeouts) For(name string) time.Duration {
	if t.PerOp != nil {
		if timeout, ok := t.PerOp[name]; ok {
			return timeout
		}
	}
	return t.Default
}

func withTimeout(timeout time.Duration, h ops.Handler) ops.Handler {
	if timeout <= 0 {
		return h
	}
	return ops.HandlerFunc(func(ctx context.Context, args ops.Args) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return h.Execute(ctx, args)
	})
}
