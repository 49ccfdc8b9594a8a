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
// Package handlers implements the operation catalogue.
//
// Every handler receives arguments that already passed validation and whose
// path parameters are normalized sandbox paths ("data/..."). Handlers resolve
// those onto disk through the guard, compute their full output and write it
// with a single atomic rename.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	apperrors "taskagent/internal/errors"
	"taskagent/internal/ops"
	"taskagent/internal/paths"
)

// Extractor pulls a list of values out of free text.
type Extractor interface {
	ExtractList(ctx context.Context, instruction, content string) ([]string, error)
}

// Vision reads text out of an image.
type Vision interface {
	DescribeImage(ctx context.Context, image []byte, mimeType, instruction string) (string, error)
}

// Embedder returns one vector per text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// EndpointPublisher serves a JSON body under a named endpoint.
type EndpointPublisher interface {
	Publish(name string, body []byte) error
}

// Deps carries everything the handlers need. Nil collaborators disable the
// operations that depend on them.
type Deps struct {
	Guard       paths.Guard
	Limits      Limits
	Timeouts    Timeouts
	Filters     OutputFilters
	Extractor   Extractor
	Vision      Vision
	Embedder    Embedder
	Transcriber Transcriber
	Endpoints   EndpointPublisher
	HTTPClient  *http.Client
	Runner      CommandRunner
	Logger      zerolog.Logger
}

type env struct {
	guard       paths.Guard
	limits      Limits
	filters     OutputFilters
	extractor   Extractor
	vision      Vision
	embedder    Embedder
	transcriber Transcriber
	endpoints   EndpointPublisher
	http        *http.Client
	runner      CommandRunner
	log         zerolog.Logger
}

func newEnv(d Deps) *env {
	if d.Guard.Prefix == "" {
		d.Guard = paths.NewGuard(d.Guard.Base, "")
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if d.Runner == nil {
		d.Runner = ExecRunner{}
	}
	return &env{
		guard:       d.Guard,
		limits:      d.Limits.Normalize(),
		filters:     d.Filters.Normalize(),
		extractor:   d.Extractor,
		vision:      d.Vision,
		embedder:    d.Embedder,
		transcriber: d.Transcriber,
		endpoints:   d.Endpoints,
		http:        d.HTTPClient,
		runner:      d.Runner,
		log:         d.Logger,
	}
}

// Builtins returns the full operation catalogue bound to d.
func Builtins(d Deps) []ops.Spec {
	e := newEnv(d)
	specs := catalogue(e)
	for i := range specs {
		specs[i].Handler = withTimeout(d.Timeouts.For(specs[i].Name), specs[i].Handler)
	}
	return specs
}

// NewRegistry builds the operation registry for d.
func NewRegistry(d Deps) (*ops.Registry, error) {
	return ops.NewRegistry(Builtins(d)...)
}

// path resolves a guarded path argument onto disk.
func (e *env) path(args ops.Args, name string) (string, error) {
	abs, err := e.guard.Resolve(args.String(name))
	if err != nil {
		return "", apperrors.WithField(err, name)
	}
	return abs, nil
}

// rel renders an absolute sandbox path for messages.
func (e *env) rel(abs string) string {
	return e.guard.Rel(abs)
}

// readLimited reads a regular file within the size limit.
func (e *env) readLimited(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path '%s' is a directory", e.rel(path))
	}
	if err := e.limits.CheckSize(e.rel(path), info.Size()); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// requireDir fails with a not found error unless path is a directory.
func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path '%s' is not a directory", filepath.Base(path))
	}
	return nil
}

// writeAtomic writes data to path through a temporary file in the same
// directory, so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("path '%s' is a directory", filepath.Base(path))
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// writeOutput resolves the named output argument and writes data to it.
func (e *env) writeOutput(args ops.Args, name string, data []byte) (string, error) {
	abs, err := e.path(args, name)
	if err != nil {
		return "", err
	}
	if err := e.limits.CheckSize("output", int64(len(data))); err != nil {
		return "", err
	}
	if err := writeAtomic(abs, data); err != nil {
		return "", err
	}
	return e.rel(abs), nil
}

func ensureContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
