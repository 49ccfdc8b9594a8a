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
	"fmt"

	"github.com/dustin/go-humanize"
)

// Limits configures size and traversal bounds for file operations.
type Limits struct {
	MaxFileSizeBytes    int64
	MaxDirectoryDepth   int
	MaxDirectoryEntries int
}

const (
	defaultMaxFileSizeBytes    int64 = 10 * 1024 * 1024
	defaultMaxDirectoryDepth         = 8
	defaultMaxDirectoryEntries       = 2000
)

// DefaultLimits returns the default resource limits.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSizeBytes:    defaultMaxFileSizeBytes,
		MaxDirectoryDepth:   defaultMaxDirectoryDepth,
		MaxDirectoryEntries: defaultMaxDirectoryEntries,
	}
}

// Normalize replaces unset or negative fields with defaults.
func (l Limits) Normalize() Limits {
	if l.MaxFileSizeBytes <= 0 {
		l.MaxFileSizeBytes = defaultMaxFileSizeBytes
	}
	if l.MaxDirectoryDepth <= 0 {
		l.MaxDirectoryDepth = defaultMaxDirectoryDepth
	}
	if l.MaxDirectoryEntries <= 0 {
		l.MaxDirectoryEntries = defaultMaxDirectoryEntries
	}
	return l
}

// CheckSize fails with ErrTooLarge when n bytes of what exceed the file limit.
func (l Limits) CheckSize(what string, n int64) error {
	if n <= l.MaxFileSizeBytes {
		return nil
	}
	return fmt.Errorf("%w: %s is %s, limit %s", ErrTooLarge, what,
		humanize.IBytes(uint64(n)), humanize.IBytes(uint64(l.MaxFileSizeBytes)))
}

// CheckEntries fails once a walk has seen more than MaxDirectoryEntries.
func (l Limits) CheckEntries(where string, seen int) error {
	if seen <= l.MaxDirectoryEntries {
		return nil
	}
	return fmt.Errorf("%w: more than %d entries under %s", ErrTooLarge, l.MaxDirectoryEntries, where)
}

// TooDeep reports whether depth levels below a walk root passes the limit.
func (l Limits) TooDeep(depth int) bool {
	return depth > l.MaxDirectoryDepth
}
