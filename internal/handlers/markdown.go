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
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"taskagent/internal/ops"
)

func newMarkdown() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.GFM))
}

// headings returns the plain text of every heading of the given level, in
// document order.
func headings(md goldmark.Markdown, source []byte, level int) []string {
	doc := md.Parser().Parse(text.NewReader(source))
	var out []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if h.Level == level {
			var buf bytes.Buffer
			inlineText(&buf, h, source)
			out = append(out, strings.TrimSpace(buf.String()))
		}
		return ast.WalkSkipChildren, nil
	})
	return out
}

func inlineText(buf *bytes.Buffer, n ast.Node, source []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.AutoLink:
			buf.Write(t.Label(source))
		default:
			inlineText(buf, c, source)
		}
	}
}

func pickHeading(found []string, occurrence string, n int64) string {
	if len(found) == 0 {
		return ""
	}
	switch occurrence {
	case "first":
		return found[0]
	case "last":
		return found[len(found)-1]
	case "nth":
		if n < 1 || n > int64(len(found)) {
			return ""
		}
		return found[n-1]
	case "all":
		return strings.Join(found, " | ")
	}
	return ""
}

func (e *env) extractMarkdownHeaders(ctx context.Context, args ops.Args) (string, error) {
	dir, err := e.path(args, "md_directory")
	if err != nil {
		return "", err
	}
	if err := requireDir(dir); err != nil {
		return "", err
	}
	level := int(args.String("header_level")[1] - '0')
	occurrence := args.String("header_occurrence")
	n, _ := args.Int("n_value")

	md := newMarkdown()
	index := make(map[string]string)
	seen := 0
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ensureContext(ctx); err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		seen++
		if err := e.limits.CheckEntries(e.rel(dir), seen); err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || e.limits.TooDeep(depthFromBase(dir, p)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || filepath.Ext(d.Name()) != ".md" {
			return nil
		}
		source, err := e.readLimited(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		index[filepath.ToSlash(rel)] = pickHeading(headings(md, source, level), occurrence, n)
		return nil
	})
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(index); err != nil {
		return "", err
	}
	out, err := e.writeOutput(args, "output_file", bytes.TrimRight(buf.Bytes(), "\n"))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Indexed %d markdown files into %s", len(index), out), nil
}

func (e *env) convertMarkdownToHTML(ctx context.Context, args ops.Args) (string, error) {
	in, err := e.path(args, "markdown_path")
	if err != nil {
		return "", err
	}
	source, err := e.readLimited(in)
	if err != nil {
		return "", err
	}
	if err := ensureContext(ctx); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := newMarkdown().Convert(source, &buf); err != nil {
		return "", NewExecutionError("convert_markdown_to_html", "render", err)
	}
	out, err := e.writeOutput(args, "output_file", buf.Bytes())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Converted %s to %s", e.rel(in), out), nil
}
