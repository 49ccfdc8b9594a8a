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
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"taskagent/internal/dispatch"
	"taskagent/internal/server"
)

const maxBatchLine = 1 << 20

// runBatch dispatches one task per non-empty input line and writes one JSON
// result per line. A failed task does not stop the batch.
func runBatch(ctx context.Context, d server.Dispatcher, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	logger.Debug().Msg("Running in batch mode")

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBatchLine)
	failed := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		task := strings.TrimSpace(scanner.Text())
		if task == "" {
			continue
		}

		start := time.Now()
		res := d.Dispatch(ctx, dispatchRequest(task))
		logger.Info().
			Str("task_id", res.TaskID).
			Bool("ok", res.OK).
			Dur("duration_ms", time.Since(start)).
			Msg("batch task finished")
		if !res.OK {
			failed++
		}

		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	if failed > 0 {
		logger.Warn().Int("failed", failed).Msg("batch finished with failures")
	}
	return nil
}

func dispatchRequest(task string) dispatch.Request {
	return dispatch.Request{Instruction: task}
}
