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

package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "taskagent/internal/errors"
)

func TestValidatePathStringRejectsNullByte(t *testing.T) {
	if err := ValidatePathString("bad\x00path", 0); err == nil {
		t.Fatal("expected error for null byte path")
	}
}

func TestGuardCheckAccepts(t *testing.T) {
	g := NewGuard(t.TempDir(), "data")
	tests := []struct {
		in   string
		want string
	}{
		{"data", "data"},
		{"data/a.txt", "data/a.txt"},
		{"/data/a.txt", "data/a.txt"},
		{"//data//logs/./x.log", "data/logs/x.log"},
		{"data/sub/../b.json", "data/b.json"},
	}
	for _, tt := range tests {
		got, err := g.Check(tt.in)
		if err != nil {
			t.Fatalf("Check(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("Check(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got != "data" && !strings.HasPrefix(got, "data/") {
			t.Fatalf("Check(%q) left the sandbox root: %q", tt.in, got)
		}
	}
}

func TestGuardCheckRejects(t *testing.T) {
	g := NewGuard(t.TempDir(), "data")
	inputs := []string{
		"../etc/passwd",
		"/etc/passwd",
		"data2/file.txt",
		"database.db",
		"data/../etc/passwd",
		"data/../../x",
		"logs/data/x.log",
		"",
		"   ",
		".",
		"bad\x00data",
	}
	for _, in := range inputs {
		_, err := g.Check(in)
		if err == nil {
			t.Fatalf("Check(%q) expected escape error", in)
		}
		if apperrors.CodeOf(err) != apperrors.CodePathEscape {
			t.Fatalf("Check(%q) expected path_escape code, got %s", in, apperrors.CodeOf(err))
		}
	}
}

func TestGuardResolveStaysInsideRoot(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "data", "sub"), 0o755); err != nil {
		t.Fatalf("failed to create sandbox: %v", err)
	}
	g := NewGuard(base, "data")

	resolved, err := g.Resolve("data/sub/new/file.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	baseResolved, err := filepath.EvalSymlinks(base)
	if err != nil {
		t.Fatalf("failed to resolve base dir: %v", err)
	}
	want := filepath.Join(baseResolved, "data", "sub", "new", "file.txt")
	if resolved != want {
		t.Fatalf("expected %s, got %s", want, resolved)
	}
	if g.Rel(resolved) != "data/sub/new/file.txt" {
		t.Fatalf("unexpected relative form %q", g.Rel(resolved))
	}
}

func TestGuardResolveRejectsSymlinkEscape(t *testing.T) {
	base := t.TempDir()
	outside := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "data"), 0o755); err != nil {
		t.Fatalf("failed to create sandbox: %v", err)
	}
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(base, "data", "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	g := NewGuard(base, "data")

	_, err := g.Resolve("data/link/secret.txt")
	if err == nil {
		t.Fatal("expected symlink escape to be rejected")
	}
	if apperrors.CodeOf(err) != apperrors.CodePathEscape {
		t.Fatalf("expected path_escape, got %v", err)
	}
}

func TestHasPathPrefix(t *testing.T) {
	if !HasPathPrefix("/srv/data/x", "/srv/data") {
		t.Fatal("expected nested path to match")
	}
	if HasPathPrefix("/srv/data2/x", "/srv/data") {
		t.Fatal("sibling directory with shared string prefix must not match")
	}
}
