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
// Package server exposes the dispatcher over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"taskagent/internal/dispatch"
	apperrors "taskagent/internal/errors"
	"taskagent/internal/paths"
)

const (
	defaultMaxReadBytes = 10 * 1024 * 1024
	maxTaskBytes        = 64 * 1024
)

// Dispatcher runs one task. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Result
}

// Config wires the server.
type Config struct {
	Dispatcher   Dispatcher
	Guard        paths.Guard
	Endpoints    *Endpoints
	MaxReadBytes int64
	Logger       zerolog.Logger
}

// Server routes HTTP requests to the dispatcher and the sandbox.
type Server struct {
	dispatcher Dispatcher
	guard      paths.Guard
	endpoints  *Endpoints
	maxRead    int64
	log        zerolog.Logger
	router     chi.Router
}

// New builds a server from cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("server: dispatcher is required")
	}
	if cfg.Endpoints == nil {
		cfg.Endpoints = NewEndpoints()
	}
	if cfg.MaxReadBytes <= 0 {
		cfg.MaxReadBytes = defaultMaxReadBytes
	}
	s := &Server{
		dispatcher: cfg.Dispatcher,
		guard:      cfg.Guard,
		endpoints:  cfg.Endpoints,
		maxRead:    cfg.MaxReadBytes,
		log:        cfg.Logger,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)
	r.Use(allowAnyOrigin)

	r.Post("/run", s.run)
	r.Get("/read", s.read)
	r.Get("/api/{endpoint}", s.api)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// run dispatches ?task=..., falling back to a plain text body.
func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	task := r.URL.Query().Get("task")
	if task == "" && r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxTaskBytes))
		if err != nil {
			writeErr(w, http.StatusBadRequest, apperrors.CodeMalformedArguments, "could not read request body")
			return
		}
		task = string(body)
	}
	if strings.TrimSpace(task) == "" {
		writeErr(w, http.StatusBadRequest, apperrors.CodeMissingParameter, "task is required")
		return
	}
	res := s.dispatcher.Dispatch(r.Context(), dispatch.Request{
		Instruction: task,
		ID:          middleware.GetReqID(r.Context()),
	})
	writeJSON(w, res.HTTPStatus(), res)
}

// read returns a sandboxed file as plain text.
func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeErr(w, http.StatusBadRequest, apperrors.CodeMissingParameter, "path is required")
		return
	}
	abs, err := s.guard.Resolve(p)
	if err != nil {
		writeErr(w, http.StatusBadRequest, apperrors.CodeOf(err), err.Error())
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeErr(w, http.StatusNotFound, apperrors.CodeNotFound, "file not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, apperrors.CodeOperationFailed, err.Error())
		return
	}
	if info.IsDir() {
		writeErr(w, http.StatusBadRequest, apperrors.CodeInvalidParameter, "path is a directory")
		return
	}
	if info.Size() > s.maxRead {
		writeErr(w, http.StatusRequestEntityTooLarge, apperrors.CodeInvalidParameter, "file is too large")
		return
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, apperrors.CodeOperationFailed, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) api(w http.ResponseWriter, r *http.Request) {
	body, ok := s.endpoints.Get(chi.URLParam(r, "endpoint"))
	if !ok {
		writeErr(w, http.StatusNotFound, apperrors.CodeNotFound, "endpoint not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	OK    bool         `json:"ok"`
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Kind    apperrors.Code `json:"kind"`
	Message string         `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErr(w http.ResponseWriter, code int, kind apperrors.Code, message string) {
	writeJSON(w, code, errorBody{Error: errorPayload{Kind: kind, Message: message}})
}
