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

// Package extract turns documents into plain text values.
//
// Values returns one entry per logical value (a CSV cell, a JSON scalar, a
// spreadsheet cell, a DOCX paragraph or a text line) and Text joins them.
package extract

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Format is a supported document kind.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	FormatDOCX Format = "docx"
)

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "csv":
		return FormatCSV
	case "json":
		return FormatJSON
	case "xlsx", "xlsm", "xls":
		return FormatXLSX
	case "docx":
		return FormatDOCX
	}
	return FormatText
}

// Values reads path and returns its values in document order.
func Values(path string) ([]string, error) {
	switch DetectFormat(path) {
	case FormatCSV:
		return csvValues(path)
	case FormatJSON:
		return jsonValues(path)
	case FormatXLSX:
		return xlsxValues(path)
	case FormatDOCX:
		return docxParagraphs(path)
	}
	return Lines(path)
}

// Text reads path as a single string. Plain text files are returned as is.
func Text(path string) (string, error) {
	if DetectFormat(path) == FormatText {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	values, err := Values(path)
	if err != nil {
		return "", err
	}
	return strings.Join(values, "\n"), nil
}

// Lines returns the lines of a text file without line terminators.
func Lines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadLines(f)
}

// ReadLines splits r into lines, accepting lines longer than the default
// scanner buffer.
func ReadLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func csvValues(path string) ([]string, error) {
	_, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range rows {
		for _, cell := range row {
			if cell = strings.TrimSpace(cell); cell != "" {
				out = append(out, cell)
			}
		}
	}
	return out, nil
}

// Records reads a CSV file with a header row into one map per data row.
func Records(path string) ([]string, []map[string]string, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, nil, err
	}
	records := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			} else {
				rec[name] = ""
			}
		}
		records = append(records, rec)
	}
	return header, records, nil
}

func readCSV(path string) ([]string, [][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv %s: %w", filepath.Base(path), err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	return rows[0], rows[1:], nil
}

func jsonValues(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse json %s: %w", filepath.Base(path), err)
	}
	var out []string
	flattenJSON(v, &out)
	return out, nil
}

// flattenJSON collects scalar leaves; object keys are visited in sorted order.
func flattenJSON(v any, out *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenJSON(t[k], out)
		}
	case []any:
		for _, item := range t {
			flattenJSON(item, out)
		}
	case string:
		*out = append(*out, t)
	case json.Number:
		*out = append(*out, t.String())
	case bool:
		*out = append(*out, strconv.FormatBool(t))
	}
}
