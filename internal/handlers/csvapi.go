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
	"encoding/json"
	"fmt"
	"regexp"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	apperrors "taskagent/internal/errors"
	"taskagent/internal/extract"
	"taskagent/internal/ops"
)

var endpointNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// filterCSVToJSONAPI publishes the rows of csv_path whose filter_column
// equals filter_value. Rows keep the header's column order.
func (e *env) filterCSVToJSONAPI(ctx context.Context, args ops.Args) (string, error) {
	if e.endpoints == nil {
		return "", ErrUnavailable
	}
	name := args.String("api_endpoint")
	if !endpointNamePattern.MatchString(name) {
		return "", apperrors.Invalid("api_endpoint", "must contain only letters, digits, '_' or '-'")
	}
	in, err := e.path(args, "csv_path")
	if err != nil {
		return "", err
	}
	if _, err := e.readLimited(in); err != nil {
		return "", err
	}
	header, records, err := extract.Records(in)
	if err != nil {
		return "", NewExecutionError("filter_csv_to_json_api", "read", err)
	}
	column := args.String("filter_column")
	known := false
	for _, h := range header {
		if h == column {
			known = true
			break
		}
	}
	if !known {
		return "", apperrors.Invalid("filter_column", fmt.Sprintf("column %q not found in %s", column, e.rel(in)))
	}
	if err := ensureContext(ctx); err != nil {
		return "", err
	}

	value := args.String("filter_value")
	rows := make([]*orderedmap.OrderedMap[string, string], 0)
	for _, rec := range records {
		if rec[column] != value {
			continue
		}
		row := orderedmap.New[string, string](len(header))
		for _, h := range header {
			row.Set(h, rec[h])
		}
		rows = append(rows, row)
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	if err := e.endpoints.Publish(name, body); err != nil {
		return "", NewExecutionError("filter_csv_to_json_api", "publish", err)
	}
	return fmt.Sprintf("Endpoint '/api/%s' created with %d rows", name, len(rows)), nil
}

func (e *env) rejectTask(_ context.Context, args ops.Args) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrTaskRejected, args.String("reason"))
}
