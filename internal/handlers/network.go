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
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	apperrors "taskagent/internal/errors"
	"taskagent/internal/ops"
)

// httpGet fetches url and returns the body, bounded by the file size limit.
func (e *env) httpGet(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", "taskagent/1.0")
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, e.limits.MaxFileSizeBytes+1))
	if err != nil {
		return nil, "", err
	}
	if err := e.limits.CheckSize("response from "+url, int64(len(body))); err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// extensionFor picks a file extension from the declared content type, then
// from the payload itself.
func extensionFor(contentType string, body []byte) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if m := mimetype.Lookup(mediaType); m != nil && m.Extension() != "" {
			return m.Extension()
		}
	}
	if ext := mimetype.Detect(body).Extension(); ext != "" {
		return ext
	}
	return ".bin"
}

// outputDir resolves a guarded directory argument and creates it.
func (e *env) outputDir(args ops.Args, name string) (string, error) {
	dir, err := e.path(args, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// fileIn joins a bare file name onto dir.
func fileIn(dir, field, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", apperrors.Invalid(field, "must be a plain file name")
	}
	return filepath.Join(dir, name), nil
}

func (e *env) saveIn(dir, field, name string, data []byte) (string, error) {
	target, err := fileIn(dir, field, name)
	if err != nil {
		return "", err
	}
	if err := e.limits.CheckSize("output", int64(len(data))); err != nil {
		return "", err
	}
	if err := writeAtomic(target, data); err != nil {
		return "", err
	}
	return e.rel(target), nil
}

func (e *env) fetchAndSaveData(ctx context.Context, args ops.Args) (string, error) {
	dir, err := e.outputDir(args, "output_path")
	if err != nil {
		return "", err
	}
	body, contentType, err := e.httpGet(ctx, args.String("api_url"))
	if err != nil {
		return "", NewExecutionError("fetch_and_save_data", "download", err)
	}
	name := args.String("filename")
	if name == "" {
		name = "downloaded_file" + extensionFor(contentType, body)
	}
	out, err := e.saveIn(dir, "filename", name, body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Saved %s to %s", humanize.Bytes(uint64(len(body))), out), nil
}

func (e *env) scrapeWebsite(ctx context.Context, args ops.Args) (string, error) {
	dir, err := e.outputDir(args, "output_path")
	if err != nil {
		return "", err
	}
	body, _, err := e.httpGet(ctx, args.String("url"))
	if err != nil {
		return "", NewExecutionError("scrape_website", "download", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", NewExecutionError("scrape_website", "parse", err)
	}

	scraped := []map[string]string{}
	for _, target := range args.Objects("scrape_target") {
		selector := target["element"]
		if selector == "" {
			continue
		}
		attr := target["attribute"]
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			var value string
			if attr != "" {
				value, _ = s.Attr(attr)
			} else {
				value = strings.TrimSpace(s.Text())
			}
			if value != "" {
				scraped = append(scraped, map[string]string{selector: value})
			}
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(scraped); err != nil {
		return "", err
	}
	name := args.String("filename")
	if name == "" {
		name = "scraped_data.json"
	}
	out, err := e.saveIn(dir, "filename", name, bytes.TrimRight(buf.Bytes(), "\n"))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Scraped %d items into %s", len(scraped), out), nil
}

func (e *env) cloneGitRepo(ctx context.Context, args ops.Args) (string, error) {
	repo := strings.TrimSpace(args.String("repo_url"))
	if err := remoteRepo("repo_url")(args); err != nil {
		return "", err
	}
	dir, err := e.path(args, "output_path")
	if err != nil {
		return "", err
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
		return "", fmt.Errorf("destination %s is not empty", e.rel(dir))
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", err
	}
	if _, err := e.runner.Run(ctx, e.baseResolved(), "git",
		"-c", "protocol.file.allow=never", "-c", "protocol.ext.allow=never",
		"clone", "--", repo, dir); err != nil {
		return "", NewExecutionError("clone_git_repo", "git clone", err)
	}
	return fmt.Sprintf("Cloned %s into %s", repo, e.rel(dir)), nil
}
