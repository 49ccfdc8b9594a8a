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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"taskagent/internal/dispatch"
	apperrors "taskagent/internal/errors"
	"taskagent/internal/ops"
)

type stubDispatcher struct {
	tasks []string
}

func (s *stubDispatcher) Dispatch(ctx context.Context, req dispatch.Request) dispatch.Result {
	s.tasks = append(s.tasks, req.Instruction)
	if strings.HasPrefix(req.Instruction, "fail") {
		return dispatch.Result{TaskID: "t", Failure: &dispatch.Failure{
			Kind:    apperrors.CodeNotFound,
			Message: "missing <file>",
		}}
	}
	return dispatch.Result{OK: true, TaskID: "t", Operation: "read_file", Content: "ok: " + req.Instruction}
}

func TestInitLoggerWithFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	logger, closer, err := initLogger(true, logFile, true)
	if err != nil {
		t.Fatalf("initLogger failed: %v", err)
	}
	defer closer.Close()

	logger.Debug().Msg("Test message")

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "Test message") {
		t.Errorf("log file missing message: %q", content)
	}
}

func TestInitLoggerLevels(t *testing.T) {
	logger, closer, err := initLogger(false, "", false)
	if err != nil {
		t.Fatalf("initLogger failed: %v", err)
	}
	if closer != nil {
		t.Fatal("no closer expected without a log file")
	}
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %v", logger.GetLevel())
	}
	logger, _, _ = initLogger(true, "", false)
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("debug level = %v", logger.GetLevel())
	}
}

func TestInitLoggerBadPath(t *testing.T) {
	if _, _, err := initLogger(false, filepath.Join(t.TempDir(), "missing", "x.log"), false); err == nil {
		t.Fatal("expected error for unwritable log path")
	}
}

func TestFlagsDefined(t *testing.T) {
	if configPath == nil || debugMode == nil || logFile == nil || interactive == nil || version == nil {
		t.Fatal("flags should be defined")
	}
	if *configPath != "config.json" {
		t.Fatalf("config default = %q", *configPath)
	}
	if Version == "" {
		t.Error("Version variable should not be empty")
	}
}

func TestRealMainFailureWritesLogAndReturnsCode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fail.log")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("AIPROXY_TOKEN", "")
	savedConfig, savedLog := *configPath, *logFile
	t.Cleanup(func() { *configPath, *logFile = savedConfig, savedLog })
	*configPath = filepath.Join(dir, "missing.json")
	*logFile = path

	if code := realMain([]string{"-"}); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "taskagent failed") {
		t.Fatalf("failure not logged: %s", content)
	}
}

func TestRunBatchOneResultPerLine(t *testing.T) {
	d := &stubDispatcher{}
	in := strings.NewReader("read data/a.txt\n\n   \nfail on purpose\nlast line")
	var out bytes.Buffer
	if err := runBatch(context.Background(), d, in, &out, zerolog.Nop()); err != nil {
		t.Fatalf("runBatch: %v", err)
	}
	if len(d.tasks) != 3 {
		t.Fatalf("dispatched %v", d.tasks)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d result lines: %q", len(lines), out.String())
	}
	var results []dispatch.Result
	for _, line := range lines {
		var res dispatch.Result
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			t.Fatalf("line %q is not JSON: %v", line, err)
		}
		results = append(results, res)
	}
	if !results[0].OK || results[0].Content != "ok: read data/a.txt" {
		t.Fatalf("first result %+v", results[0])
	}
	if results[1].OK || results[1].Kind() != apperrors.CodeNotFound {
		t.Fatalf("second result %+v", results[1])
	}
	if !strings.Contains(lines[1], "missing <file>") {
		t.Fatalf("html escaped output: %s", lines[1])
	}
	if results[2].Content != "ok: last line" {
		t.Fatalf("third result %+v", results[2])
	}
}

func TestRunBatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &stubDispatcher{}
	err := runBatch(ctx, d, strings.NewReader("a\nb\n"), io.Discard, zerolog.Nop())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(d.tasks) != 0 {
		t.Fatalf("dispatched after cancel: %v", d.tasks)
	}
}

func TestClassifyReadlineError(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		err      error
		expected readlineAction
	}{
		{"interrupt", "", readline.ErrInterrupt, readlineContinue},
		{"eof-empty", "", io.EOF, readlineExit},
		{"eof-whitespace", "   ", io.EOF, readlineExit},
		{"eof-line", "hello", io.EOF, readlineContinue},
		{"other", "", errors.New("boom"), readlineUnhandled},
		{"no error", "hello", nil, readlineUnhandled},
	}

	for _, tc := range cases {
		if got := classifyReadlineError(tc.line, tc.err); got != tc.expected {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.expected, got)
		}
	}
}

func TestSanitizeInputLine(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{"\x03/quit", "/quit"},
		{"\x07/quit", "/quit"},
		{"\x1f\t/quit", " /quit"},
		{"count\x7f mondays", "count mondays"},
		{"/quit", "/quit"},
	}

	for _, tc := range cases {
		if got := sanitizeInputLine(tc.input); got != tc.expected {
			t.Fatalf("expected %q, got %q", tc.expected, got)
		}
	}
}

func newTestSession(t *testing.T) (*session, *bytes.Buffer) {
	t.Helper()
	reg, err := ops.NewRegistry(
		ops.Spec{Name: "read_file", Description: "Read a file.\nMore detail.", Handler: ops.HandlerFunc(func(ctx context.Context, args ops.Args) (string, error) { return "", nil })},
	)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	return &session{registry: reg, out: &out, logger: zerolog.Nop()}, &out
}

func TestHandleCommand(t *testing.T) {
	s, out := newTestSession(t)

	if s.handleCommand("/help") {
		t.Fatal("/help should not quit")
	}
	if !strings.Contains(out.String(), "/operations") {
		t.Fatalf("help output %q", out.String())
	}

	out.Reset()
	s.handleCommand("/operations")
	if !strings.Contains(out.String(), "read_file") || strings.Contains(out.String(), "More detail") {
		t.Fatalf("operations output %q", out.String())
	}

	s.handleCommand("/DEBUG")
	if !s.debug {
		t.Fatal("/debug should toggle debug on")
	}

	out.Reset()
	s.handleCommand("/bogus")
	if !strings.Contains(out.String(), "Unknown command: /bogus") {
		t.Fatalf("unknown output %q", out.String())
	}

	for _, quit := range []string{"/quit", "/exit", " /Quit "} {
		if !s.handleCommand(quit) {
			t.Fatalf("%q should quit", quit)
		}
	}
}

func TestSessionLoop(t *testing.T) {
	s, out := newTestSession(t)
	d := &stubDispatcher{}

	inputs := []struct {
		line string
		err  error
	}{
		{"", readline.ErrInterrupt},
		{"read data/a.txt", nil},
		{"   ", nil},
		{"fail now", nil},
		{"/quit", nil},
		{"never sent", nil},
	}
	i := 0
	readLine := func() (string, error) {
		in := inputs[i]
		i++
		return in.line, in.err
	}

	if err := s.loop(context.Background(), readLine, d); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if len(d.tasks) != 2 {
		t.Fatalf("dispatched %v", d.tasks)
	}
	got := out.String()
	if !strings.Contains(got, "[read_file] ok: read data/a.txt") {
		t.Fatalf("missing success line in %q", got)
	}
	if !strings.Contains(got, "error (not_found): missing <file>") {
		t.Fatalf("missing failure line in %q", got)
	}
}

func TestSessionLoopEOFAndErrors(t *testing.T) {
	s, _ := newTestSession(t)
	eof := func() (string, error) { return "", io.EOF }
	if err := s.loop(context.Background(), eof, &stubDispatcher{}); err != nil {
		t.Fatalf("EOF should end the loop cleanly: %v", err)
	}

	boom := errors.New("terminal gone")
	broken := func() (string, error) { return "", boom }
	if err := s.loop(context.Background(), broken, &stubDispatcher{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestPrintResultDebugIsJSON(t *testing.T) {
	s, out := newTestSession(t)
	s.debug = true
	s.printResult(dispatch.Result{OK: true, TaskID: "t1", Operation: "read_file", Content: "a<b"})
	var res dispatch.Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("debug output is not JSON: %v", err)
	}
	if res.Content != "a<b" || !strings.Contains(out.String(), "a<b") {
		t.Fatalf("unexpected debug output %q", out.String())
	}
}
