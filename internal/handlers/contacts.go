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
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	apperrors "taskagent/internal/errors"
	"taskagent/internal/ops"
)

// sortRank orders JSON value types when two records disagree on a key type.
type sortRank int

const (
	rankMissing sortRank = iota
	rankBool
	rankNumber
	rankString
	rankOther
)

type sortValue struct {
	rank sortRank
	b    bool
	num  float64
	str  string
}

func (v sortValue) compare(o sortValue) int {
	if v.rank != o.rank {
		if v.rank < o.rank {
			return -1
		}
		return 1
	}
	switch v.rank {
	case rankBool:
		switch {
		case v.b == o.b:
			return 0
		case !v.b:
			return -1
		}
		return 1
	case rankNumber:
		switch {
		case v.num < o.num:
			return -1
		case v.num > o.num:
			return 1
		}
		return 0
	case rankString, rankOther:
		return strings.Compare(v.str, o.str)
	}
	return 0
}

func decodeSortValue(raw json.RawMessage) sortValue {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return sortValue{rank: rankMissing}
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return sortValue{rank: rankOther, str: string(trimmed)}
	}
	switch t := v.(type) {
	case bool:
		return sortValue{rank: rankBool, b: t}
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return sortValue{rank: rankOther, str: t.String()}
		}
		return sortValue{rank: rankNumber, num: f}
	case string:
		return sortValue{rank: rankString, str: t}
	}
	return sortValue{rank: rankOther, str: string(trimmed)}
}

type sortKey struct {
	field string
	desc  bool
}

type sortRecord struct {
	raw  json.RawMessage
	keys []sortValue
}

// sortRecords orders records by keys with one stable pass. Each key carries
// its own direction; ties on every key keep input order.
func sortRecords(records []sortRecord, keys []sortKey) {
	sort.SliceStable(records, func(i, j int) bool {
		for k, key := range keys {
			c := records[i].keys[k].compare(records[j].keys[k])
			if c == 0 {
				continue
			}
			if key.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func (e *env) sortContacts(ctx context.Context, args ops.Args) (string, error) {
	in, err := e.path(args, "input_file")
	if err != nil {
		return "", err
	}
	data, err := e.readLimited(in)
	if err != nil {
		return "", err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return "", apperrors.Wrap(apperrors.CodeOperationFailed, fmt.Sprintf("%s is not a JSON array", e.rel(in)), err)
	}

	fields := args.Strings("sort_fields")
	directions := args.Strings("sort_direction")
	keys := make([]sortKey, len(fields))
	for i, f := range fields {
		keys[i] = sortKey{field: f, desc: strings.EqualFold(directions[i], "desc")}
	}

	records := make([]sortRecord, len(items))
	for i, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			return "", apperrors.Invalid("input_file", fmt.Sprintf("element %d of %s is not a JSON object", i, e.rel(in)))
		}
		values := make([]sortValue, len(keys))
		for k, key := range keys {
			values[k] = decodeSortValue(obj[key.field])
		}
		records[i] = sortRecord{raw: item, keys: values}
	}
	if err := ensureContext(ctx); err != nil {
		return "", err
	}

	sortRecords(records, keys)

	sorted := make([]json.RawMessage, len(records))
	for i, r := range records {
		sorted[i] = r.raw
	}
	body, err := json.Marshal(sorted)
	if err != nil {
		return "", err
	}
	out, err := e.writeOutput(args, "output_file", body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Sorted %d records by %s; wrote %s", len(records), strings.Join(fields, ", "), out), nil
}
