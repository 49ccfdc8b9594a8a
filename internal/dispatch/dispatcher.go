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

// Package dispatch turns one plain-language task into one executed operation.
//
// The dispatcher asks the model to pick an operation from the registry,
// decodes and validates the chosen arguments, confines every path argument
// to the sandbox and runs the bound handler. Every outcome, including panics
// inside handlers, comes back as a Result.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	apperrors "taskagent/internal/errors"
	"taskagent/internal/ops"
	"taskagent/internal/paths"
)

// Request is a single task.
type Request struct {
	Instruction string
	// ID correlates log lines; generated when empty.
	ID string
}

// Decision is the model's untrusted choice of operation.
type Decision struct {
	Operation string
	Arguments string
}

// Model picks an operation for an instruction.
type Model interface {
	Decide(ctx context.Context, instruction string, tools []openai.Tool) (Decision, error)
}

// State is a step of a single dispatch.
type State string

const (
	StateReceived     State = "received"
	StateModelQueried State = "model_queried"
	StateDecoded      State = "decoded"
	StateValidated    State = "validated"
	StateGuarded      State = "guarded"
	StateExecuted     State = "executed"
	StateResponded    State = "responded"
	StateFailed       State = "failed"
)

// Config wires a Dispatcher.
type Config struct {
	Registry *ops.Registry
	Model    Model
	Guard    paths.Guard
	Logger   zerolog.Logger
}

// Dispatcher runs tasks. It holds no per-task state and is safe for
// concurrent use.
type Dispatcher struct {
	registry *ops.Registry
	model    Model
	guard    paths.Guard
	tools    []openai.Tool
	log      zerolog.Logger
}

// New validates cfg and builds a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("dispatch: registry is required")
	}
	if cfg.Model == nil {
		return nil, errors.New("dispatch: model is required")
	}
	if cfg.Guard.Prefix == "" {
		cfg.Guard = paths.NewGuard(cfg.Guard.Base, "")
	}
	return &Dispatcher{
		registry: cfg.Registry,
		model:    cfg.Model,
		guard:    cfg.Guard,
		tools:    cfg.Registry.OpenAITools(),
		log:      cfg.Logger,
	}, nil
}

// Registry returns the operation table.
func (d *Dispatcher) Registry() *ops.Registry {
	return d.registry
}

// Dispatch runs one task to completion and never returns an error: every
// failure is folded into the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	log := d.log.With().Str("task_id", id).Logger()
	log.Debug().Str("state", string(StateReceived)).Msg("task received")

	if strings.TrimSpace(req.Instruction) == "" {
		return d.fail(log, id, "", StateReceived, apperrors.New(apperrors.CodeMalformedArguments, "task instruction is empty"))
	}

	decision, err := d.model.Decide(ctx, req.Instruction, d.tools)
	if err != nil {
		if apperrors.CodeOf(err) != apperrors.CodeModelCommunication {
			err = apperrors.Wrap(apperrors.CodeModelCommunication, "model request failed", err)
		}
		return d.fail(log, id, "", StateReceived, err)
	}
	op := decision.Operation
	log = log.With().Str("operation", op).Logger()
	log.Debug().Str("state", string(StateModelQueried)).Msg("model selected operation")

	raw, err := decodeArguments(decision.Arguments)
	if err != nil {
		return d.fail(log, id, op, StateModelQueried, err)
	}
	log.Debug().Str("state", string(StateDecoded)).Int("fields", len(raw)).Msg("arguments decoded")

	spec, err := d.registry.Lookup(op)
	if err != nil {
		return d.fail(log, id, op, StateDecoded, err)
	}

	args, err := ops.Validate(spec, raw)
	if err != nil {
		return d.fail(log, id, op, StateDecoded, err)
	}
	log.Debug().Str("state", string(StateValidated)).Msg("arguments validated")

	args, err = d.guardPaths(spec, args)
	if err != nil {
		return d.fail(log, id, op, StateValidated, err)
	}
	log.Debug().Str("state", string(StateGuarded)).Msg("path arguments confined")

	content, err := execute(ctx, spec, args)
	if err != nil {
		return d.fail(log, id, op, StateGuarded, err)
	}
	log.Debug().Str("state", string(StateExecuted)).Int("bytes", len(content)).Msg("operation executed")

	log.Info().Str("state", string(StateResponded)).Msg("task completed")
	return success(id, op, content)
}

func (d *Dispatcher) fail(log zerolog.Logger, id, op string, from State, err error) Result {
	res := failure(id, op, err)
	ev := log.Warn()
	if res.Kind() == apperrors.CodeOperationFailed || res.Kind() == apperrors.CodeModelCommunication {
		ev = log.Error()
	}
	ev.Str("state", string(StateFailed)).
		Str("from", string(from)).
		Str("kind", string(res.Kind())).
		Err(err).
		Msg("task failed")
	return res
}

// guardPaths checks every supplied path parameter and swaps in the
// normalized form. Nothing is touched on disk.
func (d *Dispatcher) guardPaths(spec ops.Spec, args ops.Args) (ops.Args, error) {
	for _, p := range spec.PathParams() {
		if !args.Has(p.Name) {
			continue
		}
		normalized, err := d.guard.Check(args.String(p.Name))
		if err != nil {
			return ops.Args{}, apperrors.WithField(err, p.Name)
		}
		args = args.WithString(p.Name, normalized)
	}
	return args, nil
}

func decodeArguments(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMalformedArguments, "arguments are not valid JSON", err)
	}
	if dec.More() {
		return nil, apperrors.New(apperrors.CodeMalformedArguments, "arguments contain trailing data")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, apperrors.New(apperrors.CodeMalformedArguments, fmt.Sprintf("arguments must be a JSON object, got %T", v))
	}
	return m, nil
}

// execute runs the handler and converts a panic into an operation failure.
func execute(ctx context.Context, spec ops.Spec, args ops.Args) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.CodeOperationFailed, fmt.Sprintf("operation %s panicked: %v", spec.Name, r))
		}
	}()
	content, err = spec.Handler.Execute(ctx, args)
	if err != nil && !isCoded(err) {
		code := apperrors.CodeOf(err)
		err = apperrors.Wrap(code, fmt.Sprintf("operation %s failed", spec.Name), err)
	}
	return content, err
}

func isCoded(err error) bool {
	var coded *apperrors.Error
	return errors.As(err, &coded)
}
