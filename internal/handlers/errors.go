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
	"errors"
	"fmt"

	apperrors "taskagent/internal/errors"
)

// Common handler errors.
var (
	// ErrTaskRejected marks a task the model declined to perform.
	ErrTaskRejected = errors.New("task rejected")

	// ErrEmptyOverwrite guards against wiping an existing file with nothing.
	ErrEmptyOverwrite = errors.New("refusing to overwrite an existing file with empty content")

	// ErrBinaryContent indicates a text-only operation met binary data.
	ErrBinaryContent = errors.New("content appears to be binary")

	// ErrTooLarge indicates a file or payload above the configured limit.
	ErrTooLarge = errors.New("size exceeds the configured limit")

	// ErrUnavailable indicates a collaborator the operation needs is not configured.
	ErrUnavailable = errors.New("operation is not available in this configuration")

	// ErrNotEnoughTexts indicates fewer than two texts to compare.
	ErrNotEnoughTexts = errors.New("need at least two texts")
)

// NewExecutionError wraps a handler failure with the operation name and stage.
func NewExecutionError(op, stage string, err error) *apperrors.Error {
	code := apperrors.CodeOf(err)
	if stage != "" {
		return apperrors.Wrap(code, fmt.Sprintf("%s failed during %s", op, stage), err)
	}
	return apperrors.Wrap(code, fmt.Sprintf("%s failed", op), err)
}
