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
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"taskagent/internal/ops"
)

// Command represents a slash command
type Command struct {
	Name        string
	Description string
}

func getAvailableCommands() []Command {
	return []Command{
		{Name: "help", Description: "Show available commands"},
		{Name: "operations", Description: "List the operations the agent can run"},
		{Name: "debug", Description: "Toggle printing of full JSON results"},
		{Name: "quit", Description: "Exit the application"},
		{Name: "exit", Description: "Exit the application"},
	}
}

// session is the mutable state of one interactive run.
type session struct {
	registry *ops.Registry
	out      io.Writer
	logger   zerolog.Logger
	debug    bool
}

// handleCommand processes slash commands, returns true if should quit
func (s *session) handleCommand(input string) bool {
	cmdName := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(input), "/"))
	s.logger.Debug().Str("command", cmdName).Msg("Executing command")

	switch cmdName {
	case "help":
		s.showHelp()
	case "operations", "ops":
		s.showOperations()
	case "debug":
		s.debug = !s.debug
		if s.debug {
			fmt.Fprintln(s.out, "Debug mode enabled")
		} else {
			fmt.Fprintln(s.out, "Debug mode disabled")
		}
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: /%s (type /help for available commands)\n", cmdName)
	}
	return false
}

func (s *session) showHelp() {
	fmt.Fprintln(s.out, "\nAvailable Commands:")
	for _, cmd := range getAvailableCommands() {
		fmt.Fprintf(s.out, "  /%-12s - %s\n", cmd.Name, cmd.Description)
	}
	fmt.Fprintln(s.out, "\nAnything else is sent to the agent as a task.")
	fmt.Fprintln(s.out)
}

func (s *session) showOperations() {
	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for _, spec := range s.registry.Specs() {
		desc, _, _ := strings.Cut(spec.Description, "\n")
		fmt.Fprintf(w, "  %s\t%s\n", spec.Name, desc)
	}
	w.Flush()
}

func getCommandCompleter() *readline.PrefixCompleter {
	commands := getAvailableCommands()
	items := make([]readline.PrefixCompleterInterface, len(commands))
	for i, cmd := range commands {
		items[i] = readline.PcItem("/" + cmd.Name)
	}
	return readline.NewPrefixCompleter(items...)
}
