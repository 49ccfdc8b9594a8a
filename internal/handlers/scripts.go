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
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	apperrors "taskagent/internal/errors"
	"taskagent/internal/ops"
)

var (
	prettierVersionPattern = regexp.MustCompile(`^(latest|[0-9]+(\.[0-9]+){0,2}([-+][0-9A-Za-z.-]+)?)$`)
	packageNamePattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-\[\],<>=!~]*$`)
)

func (e *env) onlineScriptRunner(ctx context.Context, args ops.Args) (string, error) {
	cmdArgs := []string{"run"}
	if pkg := strings.TrimSpace(args.String("package")); pkg != "" {
		if !packageNamePattern.MatchString(pkg) {
			return "", apperrors.Invalid("package", "must be a package requirement such as name or name==1.0")
		}
		cmdArgs = append(cmdArgs, "--with", pkg)
	}
	cmdArgs = append(cmdArgs, args.String("url"), args.String("email"), "--root", "./"+e.guard.Prefix)

	output, err := e.runner.Run(ctx, e.baseResolved(), "uv", cmdArgs...)
	if err != nil {
		return "", NewExecutionError("online_script_runner", "uv run", err)
	}
	if strings.TrimSpace(output) == "" {
		return "Script executed successfully", nil
	}
	return e.filters.Content(output), nil
}

// lineChanges counts inserted and deleted lines between before and after.
func lineChanges(before, after string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if !strings.HasSuffix(d.Text, "\n") {
			n++
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}

func (e *env) formatFile(ctx context.Context, args ops.Args) (string, error) {
	version := strings.TrimSpace(args.String("prettier_version"))
	if !prettierVersionPattern.MatchString(version) {
		return "", apperrors.Invalid("prettier_version", "must be a version such as 3.4.2")
	}
	abs, err := e.path(args, "file_path")
	if err != nil {
		return "", err
	}
	before, err := e.readLimited(abs)
	if err != nil {
		return "", err
	}
	rel := e.rel(abs)
	if _, err := e.runner.Run(ctx, e.baseResolved(), "npx", "--yes", "prettier@"+version, "--write", rel); err != nil {
		return "", NewExecutionError("format_file", "prettier", err)
	}
	after, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	added, removed := lineChanges(string(before), string(after))
	if added == 0 && removed == 0 {
		return fmt.Sprintf("%s is already formatted with prettier@%s", rel, version), nil
	}
	return fmt.Sprintf("Formatted %s with prettier@%s (+%d -%d lines)", rel, version, added, removed), nil
}
