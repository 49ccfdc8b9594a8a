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
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"taskagent/internal/config"
	"taskagent/internal/dispatch"
	"taskagent/internal/handlers"
	"taskagent/internal/llm"
	"taskagent/internal/ops"
	"taskagent/internal/server"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	configPath  = flag.String("config", "config.json", "Path to config.json")
	debugMode   = flag.Bool("d", false, "Enable debug mode")
	logFile     = flag.String("log-file", "", "Log file path")
	interactive = flag.Bool("i", false, "Interactive prompt (requires a terminal)")
	version     = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	os.Exit(realMain(flag.Args()))
}

// realMain returns the process exit code so deferred cleanup, including
// closing the log file, runs before the process exits.
func realMain(args []string) int {
	if *version {
		fmt.Println("taskagent", Version)
		return 0
	}

	batch := len(args) > 0 && args[0] == "-"
	serving := !batch && !*interactive

	logger, closer, err := initLogger(*debugMode, *logFile, serving)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if closer != nil {
		defer closer.Close()
	}
	logger.Info().Str("version", Version).Msg("taskagent starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, batch); err != nil {
		logger.Error().Err(err).Msg("taskagent failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger zerolog.Logger, batch bool) error {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	switch {
	case batch:
		return runBatch(ctx, a.dispatcher, os.Stdin, os.Stdout, logger)
	case *interactive:
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("interactive mode needs a terminal on stdin; use '-' for batch input")
		}
		return runInteractive(ctx, a, logger)
	default:
		logger.Info().Str("addr", cfg.ListenAddr).Str("workdir", cfg.Workdir).Msg("serving")
		return a.server.ListenAndServe(ctx, cfg.ListenAddr)
	}
}

// app holds the wired components shared by every mode.
type app struct {
	cfg        *config.Config
	registry   *ops.Registry
	dispatcher *dispatch.Dispatcher
	server     *server.Server
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	for _, w := range cfg.Validate(handlers.Builtins(handlers.Deps{})) {
		logger.Warn().Str("field", w.Field).Msg(w.Message)
	}

	api := llm.NewOpenAIClient(cfg.APIKey, cfg.APIURL, cfg.ModelTimeout())
	model, err := llm.New(api, llm.Options{
		Model:              cfg.Model,
		EmbeddingModel:     cfg.EmbeddingModel,
		TranscriptionModel: cfg.TranscriptionModel,
		Temperature:        cfg.Temperature,
		MaxTokens:          cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	guard := cfg.Guard()
	if err := os.MkdirAll(guard.Root(), 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}

	endpoints := server.NewEndpoints()
	deps := handlers.Deps{
		Guard:       guard,
		Limits:      cfg.Limits(),
		Timeouts:    cfg.Timeouts(),
		Filters:     cfg.OutputFilters(),
		Extractor:   model,
		Vision:      model,
		Embedder:    model,
		Transcriber: model,
		Endpoints:   endpoints,
		Logger:      logger,
	}
	registry, err := ops.NewRegistry(cfg.Enabled(handlers.Builtins(deps))...)
	if err != nil {
		return nil, err
	}

	d, err := dispatch.New(dispatch.Config{
		Registry: registry,
		Model:    model,
		Guard:    guard,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	srv, err := server.New(server.Config{
		Dispatcher:   d,
		Guard:        guard,
		Endpoints:    endpoints,
		MaxReadBytes: cfg.Limits().MaxFileSizeBytes,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, registry: registry, dispatcher: d, server: srv}, nil
}

// initLogger logs to path when set, to a stderr console writer when console
// is true, and nowhere otherwise.
func initLogger(debug bool, path string, console bool) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var output io.Writer = io.Discard
	var closer io.Closer
	switch {
	case path != "":
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
		closer = file
	case console:
		output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger(), closer, nil
}
