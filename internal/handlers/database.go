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
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "taskagent/internal/errors"
	"taskagent/internal/ops"
)

var sqliteExtensions = map[string]bool{".db": true, ".sqlite": true, ".sqlite3": true}

// readOnlyQuery accepts a single SELECT or WITH statement.
func readOnlyQuery(query string) error {
	q := strings.TrimSpace(query)
	q = strings.TrimRight(q, "; \t\r\n")
	if q == "" {
		return apperrors.Invalid("query", "must not be empty")
	}
	if strings.Contains(q, ";") {
		return apperrors.Invalid("query", "must be a single statement")
	}
	first := strings.ToUpper(strings.Fields(q)[0])
	if first != "SELECT" && first != "WITH" {
		return apperrors.Invalid("query", "only read-only SELECT queries are supported")
	}
	return nil
}

func openReadOnly(path string) (*sql.DB, error) {
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro"
	return sql.Open("sqlite", dsn)
}

func queryRows(ctx context.Context, db *sql.DB, query string, params []any) ([]string, [][]any, error) {
	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	return cols, out, rows.Err()
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func formatRows(rows [][]any, outputType string) ([]byte, error) {
	switch outputType {
	case "single_value":
		if len(rows) == 0 || len(rows[0]) == 0 {
			return nil, apperrors.NotFound("query returned no rows", nil)
		}
		return []byte(cellString(rows[0][0])), nil
	case "json":
		if rows == nil {
			rows = [][]any{}
		}
		return json.Marshal(rows)
	case "csv", "tsv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if outputType == "tsv" {
			w.Comma = '\t'
		}
		for _, row := range rows {
			rec := make([]string, len(row))
			for i, v := range row {
				rec[i] = cellString(v)
			}
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
		w.Flush()
		return buf.Bytes(), w.Error()
	}
	return nil, apperrors.Invalid("output_type", fmt.Sprintf("unsupported output type %q", outputType))
}

func (e *env) queryDatabase(ctx context.Context, args ops.Args) (string, error) {
	dbPath, err := e.path(args, "db_path")
	if err != nil {
		return "", err
	}
	if !sqliteExtensions[strings.ToLower(filepath.Ext(dbPath))] {
		return "", apperrors.Invalid("db_path", "must be a SQLite database (.db, .sqlite, .sqlite3)")
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("path '%s' is not a regular file", e.rel(dbPath))
	}
	query := args.String("query")
	if err := readOnlyQuery(query); err != nil {
		return "", err
	}

	db, err := openReadOnly(dbPath)
	if err != nil {
		return "", NewExecutionError("query_database", "open", err)
	}
	defer db.Close()

	var params []any
	for _, p := range args.Strings("params") {
		params = append(params, p)
	}
	_, rows, err := queryRows(ctx, db, query, params)
	if err != nil {
		return "", NewExecutionError("query_database", "query", err)
	}
	body, err := formatRows(rows, args.String("output_type"))
	if err != nil {
		return "", err
	}
	out, err := e.writeOutput(args, "output_file", body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Query returned %d rows; wrote %s", len(rows), out), nil
}
