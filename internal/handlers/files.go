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
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/u-root/u-root/pkg/core"
	corecat "github.com/u-root/u-root/pkg/core/cat"
	corels "github.com/u-root/u-root/pkg/core/ls"

	"taskagent/internal/ops"
)

func runCoreCommand(ctx context.Context, cmd core.Command, workdir string, args []string) (string, error) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.SetIO(strings.NewReader(""), &stdout, &stderr)
	cmd.SetWorkingDir(workdir)

	if err := cmd.RunContext(ctx, args...); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg != "" {
			return "", fmt.Errorf("%v: %s", err, errMsg)
		}
		return "", err
	}
	return stdout.String(), nil
}

func (e *env) readFile(ctx context.Context, args ops.Args) (string, error) {
	if err := ensureContext(ctx); err != nil {
		return "", err
	}
	abs, err := e.path(args, "file_path")
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("path '%s' is a directory", e.rel(abs))
	}
	if err := e.limits.CheckSize(e.rel(abs), info.Size()); err != nil {
		return "", err
	}
	content, err := runCoreCommand(ctx, corecat.New(), e.guard.Base, []string{abs})
	if err != nil {
		return "", NewExecutionError("read_file", "cat", err)
	}
	if !isTextContent([]byte(content)) {
		return "", fmt.Errorf("%w; read_file supports text only", ErrBinaryContent)
	}
	return e.filters.Content(content), nil
}

func (e *env) writeFile(ctx context.Context, args ops.Args) (string, error) {
	if err := ensureContext(ctx); err != nil {
		return "", err
	}
	abs, err := e.path(args, "file_path")
	if err != nil {
		return "", err
	}
	content := args.String("content")
	if err := e.limits.CheckSize("content", int64(len(content))); err != nil {
		return "", err
	}
	if !isTextContent([]byte(content)) {
		return "", fmt.Errorf("%w; write_file supports text only", ErrBinaryContent)
	}
	if content == "" {
		if _, err := os.Stat(abs); err == nil {
			return "", ErrEmptyOverwrite
		}
	}
	if err := writeAtomic(abs, []byte(content)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), e.rel(abs)), nil
}

func (e *env) listDirectory(ctx context.Context, args ops.Args) (string, error) {
	if err := ensureContext(ctx); err != nil {
		return "", err
	}
	abs, err := e.path(args, "directory")
	if err != nil {
		return "", err
	}
	if err := requireDir(abs); err != nil {
		return "", err
	}
	recursive := args.Bool("recursive")
	if err := e.checkTraversal(ctx, abs, recursive); err != nil {
		return "", err
	}

	rel, err := filepath.Rel(e.baseResolved(), abs)
	if err != nil {
		rel = abs
	}
	var cmdArgs []string
	if recursive {
		cmdArgs = append(cmdArgs, "-R")
	}
	cmdArgs = append(cmdArgs, rel)
	output, err := runCoreCommand(ctx, corels.New(), e.baseResolved(), cmdArgs)
	if err != nil {
		return "", NewExecutionError("list_directory", "ls", err)
	}
	output = filterHiddenOutput(output)
	if strings.TrimSpace(output) == "" {
		return "Directory is empty", nil
	}
	return e.filters.Content(output), nil
}

// baseResolved returns the sandbox base with symlinks evaluated, matching the
// form Guard.Resolve produces.
func (e *env) baseResolved() string {
	base, err := filepath.Abs(e.guard.Base)
	if err != nil {
		return e.guard.Base
	}
	if r, err := filepath.EvalSymlinks(base); err == nil {
		return r
	}
	return base
}

// checkTraversal enforces the depth and entry limits before listing.
func (e *env) checkTraversal(ctx context.Context, root string, recursive bool) error {
	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return err
		}
		return e.limits.CheckEntries(e.rel(root), len(entries))
	}
	count := 0
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ensureContext(ctx); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		count++
		if err := e.limits.CheckEntries(e.rel(root), count); err != nil {
			return err
		}
		if d.IsDir() && e.limits.TooDeep(depthFromBase(root, p)) {
			return fmt.Errorf("%w: deeper than %d levels", ErrTooLarge, e.limits.MaxDirectoryDepth)
		}
		return nil
	})
}

func depthFromBase(basePath, filePath string) int {
	rel, err := filepath.Rel(basePath, filePath)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(os.PathSeparator)))
}

func filterHiddenOutput(output string) string {
	lines := strings.Split(output, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			kept = append(kept, line)
			continue
		}
		if containsHiddenSegment(strings.TrimSuffix(trimmed, ":")) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func containsHiddenSegment(path string) bool {
	cleaned := filepath.Clean(path)
	for _, part := range strings.Split(cleaned, string(os.PathSeparator)) {
		if part == "." || part == ".." || part == "" {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func isTextContent(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	if !utf8.Valid(data) {
		return false
	}

	const sampleSize = 8192
	limit := len(data)
	if limit > sampleSize {
		limit = sampleSize
	}

	var nonPrintable int
	for _, b := range data[:limit] {
		switch b {
		case '\n', '\r', '\t':
			continue
		}
		if b == 0 {
			return false
		}
		if b < 0x20 || b == 0x7f {
			nonPrintable++
		}
	}
	return nonPrintable*20 < limit
}
