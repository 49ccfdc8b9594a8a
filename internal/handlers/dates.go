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
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"taskagent/internal/extract"
	"taskagent/internal/ops"
)

// countDates counts the values of input_file that parse as dates and match
// value_to_count on the requested date part. Unparseable values are skipped.
func (e *env) countDates(ctx context.Context, args ops.Args) (string, error) {
	in, err := e.path(args, "input_file")
	if err != nil {
		return "", err
	}
	if _, err := e.readLimited(in); err != nil {
		return "", err
	}
	values, err := extract.Values(in)
	if err != nil {
		return "", NewExecutionError("count_dates", "read", err)
	}

	part := args.String("date_part")
	want := strings.TrimSpace(args.String("value_to_count"))
	count := 0
	for i, raw := range values {
		if i%1024 == 0 {
			if err := ensureContext(ctx); err != nil {
				return "", err
			}
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		t, err := dateparse.ParseIn(raw, time.UTC)
		if err != nil {
			continue
		}
		if matchDatePart(t, part, want) {
			count++
		}
	}

	out, err := e.writeOutput(args, "output_file", []byte(strconv.Itoa(count)))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Counted %d matching dates; wrote %s", count, out), nil
}

func matchDatePart(t time.Time, part, want string) bool {
	switch part {
	case "weekday":
		return strings.EqualFold(t.Weekday().String(), want)
	case "date":
		return t.Format("2006-01-02") == want
	case "month":
		return strings.EqualFold(t.Month().String(), want)
	}
	return false
}
