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
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "taskagent/internal/errors"
)

// DefaultPrefix is the sandbox root segment every path argument must start with.
const DefaultPrefix = "data"

// MaxPathLength bounds raw path arguments.
const MaxPathLength = 4096

// Guard confines path arguments to Base/Prefix.
//
// Check is pure and works on the path string alone; Resolve touches the
// filesystem to map a checked path onto Base and reject symlink escapes.
type Guard struct {
	Base   string
	Prefix string
}

// NewGuard returns a guard rooted at base with the given prefix segment.
func NewGuard(base, prefix string) Guard {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Guard{Base: base, Prefix: strings.Trim(prefix, "/")}
}

// Root returns the sandbox directory on disk.
func (g Guard) Root() string {
	return filepath.Join(g.Base, filepath.FromSlash(g.Prefix))
}

// Check normalizes p and requires its first segment to be the sandbox prefix.
// The result is a slash separated path such as "data/logs/a.log".
func (g Guard) Check(p string) (string, error) {
	if err := ValidatePathString(p, MaxPathLength); err != nil {
		return "", apperrors.Escape("", p, err.Error())
	}
	slashed := strings.ReplaceAll(p, `\`, "/")
	trimmed := strings.TrimLeft(strings.TrimSpace(slashed), "/")
	if trimmed == "" {
		return "", apperrors.Escape("", p, "path is empty after removing leading separators")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", apperrors.Escape("", p, "path traverses above the sandbox")
	}
	first, _, _ := strings.Cut(cleaned, "/")
	if first != g.Prefix {
		return "", apperrors.Escape("", p, fmt.Sprintf("path must start with %q", g.Prefix+"/"))
	}
	return cleaned, nil
}

// Resolve maps a checked path onto the filesystem and rejects symlinks that
// lead outside the sandbox root. Missing trailing components are allowed.
func (g Guard) Resolve(checked string) (string, error) {
	normalized, err := g.Check(checked)
	if err != nil {
		return "", err
	}
	baseAbs, err := filepath.Abs(g.Base)
	if err != nil {
		return "", fmt.Errorf("invalid base directory: %v", err)
	}
	baseResolved, err := filepath.EvalSymlinks(baseAbs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %v", err)
	}
	root := filepath.Join(baseResolved, filepath.FromSlash(g.Prefix))
	target := filepath.Join(baseResolved, filepath.FromSlash(normalized))

	resolved, err := ResolveSymlinkedPath(target, baseResolved)
	if err != nil {
		return "", err
	}
	rootResolved := root
	if r, err := filepath.EvalSymlinks(root); err == nil {
		rootResolved = r
	}
	if !HasPathPrefix(resolved, rootResolved) {
		return "", apperrors.Escape("", checked, "resolves outside the sandbox root")
	}
	return resolved, nil
}

// Rel converts an absolute path under the sandbox back into its guarded form.
func (g Guard) Rel(abs string) string {
	root := g.Root()
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." {
		return g.Prefix
	}
	return path.Join(g.Prefix, filepath.ToSlash(rel))
}

// ValidatePathString validates raw path input before resolution.
func ValidatePathString(path string, maxLen int) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.IndexByte(path, 0) != -1 {
		return fmt.Errorf("path contains null byte")
	}
	if !utf8.ValidString(path) {
		return fmt.Errorf("path is not valid UTF-8")
	}
	for _, r := range path {
		if unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) || unicode.Is(unicode.Me, r) {
			return fmt.Errorf("path contains unsupported unicode combining mark")
		}
	}
	if maxLen > 0 && len(path) > maxLen {
		return fmt.Errorf("path exceeds maximum length of %d characters", maxLen)
	}
	return nil
}

// ResolveSymlinkedPath resolves symlinks of the deepest existing ancestor of
// path and re-attaches the missing components.
func ResolveSymlinkedPath(path, baseResolved string) (string, error) {
	existing := path
	var missing []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to stat path: %v", err)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		missing = append([]string{filepath.Base(existing)}, missing...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %v", err)
	}
	if !HasPathPrefix(resolved, baseResolved) {
		return "", apperrors.Escape("", path, "symlink leads outside the working directory")
	}
	return filepath.Join(append([]string{resolved}, missing...)...), nil
}

// HasPathPrefix returns true when path is within base.
func HasPathPrefix(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && rel != "..")
}
