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
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"taskagent/internal/dispatch"
	"taskagent/internal/server"
)

const commandHistoryFile = ".taskagent_history"

func runInteractive(ctx context.Context, a *app, logger zerolog.Logger) error {
	logger.Debug().Msg("Running in interactive mode")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "❯ ",
		HistoryFile:     filepath.Join(a.cfg.Workdir, commandHistoryFile),
		AutoComplete:    getCommandCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(rl.Stdout(), "taskagent", Version)
	fmt.Fprintf(rl.Stdout(), "Connected to: %s\n", a.cfg.APIURL)
	fmt.Fprintf(rl.Stdout(), "Model in use: %s\n", a.cfg.Model)
	fmt.Fprintf(rl.Stdout(), "Sandbox: %s\n\n", a.cfg.Guard().Root())

	s := &session{registry: a.registry, out: rl.Stdout(), logger: logger}
	return s.loop(ctx, rl.Readline, a.dispatcher)
}

// loop reads lines until /quit, EOF on an empty line, or ctx ends.
func (s *session) loop(ctx context.Context, readLine func() (string, error), d server.Dispatcher) error {
	for ctx.Err() == nil {
		line, err := readLine()
		switch classifyReadlineError(line, err) {
		case readlineExit:
			return nil
		case readlineContinue:
			continue
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(sanitizeInputLine(line))
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if s.handleCommand(line) {
				break
			}
			continue
		}

		res := d.Dispatch(ctx, dispatchRequest(line))
		s.printResult(res)
	}
	s.logger.Info().Msg("Session ended")
	return nil
}

func (s *session) printResult(res dispatch.Result) {
	if s.debug {
		enc := json.NewEncoder(s.out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		_ = enc.Encode(res)
		return
	}
	if res.OK {
		fmt.Fprintf(s.out, "[%s] %s\n", res.Operation, res.Content)
		return
	}
	msg := "unknown failure"
	if res.Failure != nil {
		msg = res.Failure.Message
	}
	fmt.Fprintf(s.out, "error (%s): %s\n", res.Kind(), msg)
}
