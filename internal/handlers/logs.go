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
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	apperrors "taskagent/internal/errors"
	"taskagent/internal/extract"
	"taskagent/internal/ops"
)

type logFile struct {
	path    string
	modTime time.Time
	size    int64
}

// civilDate folds t to a comparable calendar day in local time.
func civilDate(t time.Time) int {
	y, m, d := t.In(time.Local).Date()
	return y*10000 + int(m)*100 + d
}

func parseFilterDate(field, value string) (int, error) {
	t, err := dateparse.ParseIn(strings.TrimSpace(value), time.Local)
	if err != nil {
		return 0, apperrors.Invalid(field, fmt.Sprintf("must be a date (YYYY-MM-DD), got %q", value))
	}
	return civilDate(t), nil
}

// logDateFilter builds the modification date predicate for date_filter_type.
func logDateFilter(kind, value string) (func(time.Time) bool, error) {
	if kind == "none" || kind == "" {
		return func(time.Time) bool { return true }, nil
	}
	if kind == "between" {
		from, to, ok := strings.Cut(value, ",")
		if !ok {
			return nil, apperrors.Invalid("date_filter_value", "must be two dates separated by a comma for 'between'")
		}
		start, err := parseFilterDate("date_filter_value", from)
		if err != nil {
			return nil, err
		}
		end, err := parseFilterDate("date_filter_value", to)
		if err != nil {
			return nil, err
		}
		return func(t time.Time) bool {
			d := civilDate(t)
			return start <= d && d <= end
		}, nil
	}
	day, err := parseFilterDate("date_filter_value", value)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "on":
		return func(t time.Time) bool { return civilDate(t) == day }, nil
	case "before":
		return func(t time.Time) bool { return civilDate(t) < day }, nil
	case "after":
		return func(t time.Time) bool { return civilDate(t) > day }, nil
	}
	return nil, apperrors.Invalid("date_filter_type", fmt.Sprintf("unsupported filter %q", kind))
}

func sortLogFiles(files []logFile, order string) {
	var less func(a, b logFile) bool
	switch order {
	case "newest":
		less = func(a, b logFile) bool { return a.modTime.After(b.modTime) }
	case "oldest":
		less = func(a, b logFile) bool { return a.modTime.Before(b.modTime) }
	case "name_asc":
		less = func(a, b logFile) bool { return a.path < b.path }
	case "name_desc":
		less = func(a, b logFile) bool { return a.path > b.path }
	case "size_asc":
		less = func(a, b logFile) bool { return a.size < b.size }
	case "size_desc":
		less = func(a, b logFile) bool { return a.size > b.size }
	default:
		return
	}
	sort.SliceStable(files, func(i, j int) bool { return less(files[i], files[j]) })
}

// collectLogs walks dir for *.log files, skipping hidden directories.
func (e *env) collectLogs(ctx context.Context, dir string) ([]logFile, error) {
	var files []logFile
	seen := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ensureContext(ctx); err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		seen++
		if err := e.limits.CheckEntries(e.rel(dir), seen); err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if e.limits.TooDeep(depthFromBase(dir, p)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || filepath.Ext(d.Name()) != ".log" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, logFile{path: p, modTime: info.ModTime(), size: info.Size()})
		return nil
	})
	return files, err
}

type lineExtractor func(lines []string) string

func newLineExtractor(args ops.Args) (lineExtractor, error) {
	switch args.String("extraction_type") {
	case "first":
		return func(lines []string) string {
			if len(lines) == 0 {
				return ""
			}
			return strings.TrimSpace(lines[0])
		}, nil
	case "last":
		return func(lines []string) string {
			if len(lines) == 0 {
				return ""
			}
			return strings.TrimSpace(lines[len(lines)-1])
		}, nil
	case "all":
		return func(lines []string) string {
			return joinTrimmed(lines, func(int, string) bool { return true })
		}, nil
	case "line_number":
		n, _ := args.Int("line_number")
		return func(lines []string) string {
			if n < 1 || n > int64(len(lines)) {
				return ""
			}
			return strings.TrimSpace(lines[n-1])
		}, nil
	case "lines_range":
		start, _ := args.Int("lines_range_start")
		end, _ := args.Int("lines_range_end")
		if end < start {
			return nil, apperrors.Invalid("lines_range_end", "must not be smaller than lines_range_start")
		}
		return func(lines []string) string {
			return joinTrimmed(lines, func(i int, _ string) bool {
				n := int64(i + 1)
				return n >= start && n <= end
			})
		}, nil
	case "regex":
		re, err := regexp.Compile(args.String("regex_pattern"))
		if err != nil {
			return nil, apperrors.Invalid("regex_pattern", err.Error())
		}
		return func(lines []string) string {
			return joinTrimmed(lines, func(_ int, line string) bool { return re.MatchString(line) })
		}, nil
	}
	return nil, apperrors.Invalid("extraction_type", fmt.Sprintf("unsupported extraction %q", args.String("extraction_type")))
}

func joinTrimmed(lines []string, keep func(int, string) bool) string {
	var kept []string
	for i, line := range lines {
		if keep(i, line) {
			kept = append(kept, strings.TrimSpace(line))
		}
	}
	return strings.Join(kept, "\n")
}

func (e *env) extractLogInfo(ctx context.Context, args ops.Args) (string, error) {
	dir, err := e.path(args, "log_directory")
	if err != nil {
		return "", err
	}
	if err := requireDir(dir); err != nil {
		return "", err
	}
	filter, err := logDateFilter(args.String("date_filter_type"), args.String("date_filter_value"))
	if err != nil {
		return "", err
	}
	extractLines, err := newLineExtractor(args)
	if err != nil {
		return "", err
	}

	all, err := e.collectLogs(ctx, dir)
	if err != nil {
		return "", err
	}
	files := all[:0]
	for _, f := range all {
		if filter(f.modTime) {
			files = append(files, f)
		}
	}
	sortLogFiles(files, args.String("sort_order"))
	if n, ok := args.Int("num_files"); ok && int(n) < len(files) {
		files = files[:n]
	}

	out := make([]string, 0, len(files))
	for _, f := range files {
		if err := ensureContext(ctx); err != nil {
			return "", err
		}
		data, err := e.readLimited(f.path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", e.rel(f.path), err)
		}
		lines, err := extract.ReadLines(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", e.rel(f.path), err)
		}
		out = append(out, extractLines(lines))
	}

	target, err := e.writeOutput(args, "output_file", []byte(strings.Join(out, "\n")))
	if err != nil {
		return "", err
	}
	e.log.Debug().Int("files", len(files)).Str("directory", e.rel(dir)).Msg("extracted log info")
	return fmt.Sprintf("Extracted information from %d files to %s", len(files), target), nil
}

