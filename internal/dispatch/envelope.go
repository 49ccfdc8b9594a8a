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

package dispatch

import (
	"net/http"

	apperrors "taskagent/internal/errors"
)

// Failure describes why a task did not complete.
type Failure struct {
	Kind    apperrors.Code `json:"kind"`
	Field   string         `json:"field,omitempty"`
	Message string         `json:"message"`
}

// Result is the envelope returned for every task.
// Exactly one of Content (when OK) or Failure is meaningful.
type Result struct {
	OK        bool     `json:"ok"`
	TaskID    string   `json:"task_id,omitempty"`
	Operation string   `json:"operation,omitempty"`
	Content   string   `json:"content,omitempty"`
	Failure   *Failure `json:"error,omitempty"`
}

func success(taskID, op, content string) Result {
	return Result{OK: true, TaskID: taskID, Operation: op, Content: content}
}

func failure(taskID, op string, err error) Result {
	return Result{
		TaskID:    taskID,
		Operation: op,
		Failure: &Failure{
			Kind:    apperrors.CodeOf(err),
			Field:   apperrors.FieldOf(err),
			Message: err.Error(),
		},
	}
}

// Kind returns the failure kind, or "" on success.
func (r Result) Kind() apperrors.Code {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Kind
}

// HTTPStatus maps the envelope to a status code for the hosting layer.
func (r Result) HTTPStatus() int {
	if r.OK {
		return http.StatusOK
	}
	switch r.Kind() {
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeModelCommunication:
		return http.StatusBadGateway
	case apperrors.CodeOperationFailed:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}
