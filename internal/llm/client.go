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

// Package llm talks to an OpenAI compatible API on behalf of the dispatcher
// and of the handlers that need model help (extraction, vision, embeddings,
// transcription).
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"taskagent/internal/dispatch"
	apperrors "taskagent/internal/errors"
	systemprompt "taskagent/system_prompt"
)

// ChatClient abstracts the OpenAI client for testing.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Verify that openai.Client implements ChatClient at compile time.
var _ ChatClient = (*openai.Client)(nil)

// Options selects models and sampling for every request.
type Options struct {
	Model              string
	EmbeddingModel     string
	TranscriptionModel string
	Temperature        *float32
	MaxTokens          *int
	// SystemPrompt overrides the embedded prompt when set.
	SystemPrompt string
}

// Client implements dispatch.Model and the model helpers used by handlers.
type Client struct {
	api    ChatClient
	opts   Options
	prompt string
}

var _ dispatch.Model = (*Client)(nil)

// NewOpenAIClient builds an API client for apiKey at baseURL.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *openai.Client {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(clientConfig)
}

// New wraps api. The embedded system prompt is loaded unless opts overrides it.
func New(api ChatClient, opts Options) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("llm: api client is required")
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if opts.TranscriptionModel == "" {
		opts.TranscriptionModel = openai.Whisper1
	}
	prompt := opts.SystemPrompt
	if prompt == "" {
		p, err := systemprompt.Load()
		if err != nil {
			return nil, err
		}
		prompt = p
	}
	return &Client{api: api, opts: opts, prompt: prompt}, nil
}

func (c *Client) request(messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    c.opts.Model,
		Messages: messages,
	}
	if c.opts.Temperature != nil {
		req.Temperature = *c.opts.Temperature
	}
	if c.opts.MaxTokens != nil {
		req.MaxTokens = *c.opts.MaxTokens
	}
	return req
}

func (c *Client) complete(ctx context.Context, op string, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, &APIError{Operation: op, Err: err}
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, &APIError{Operation: op, Err: ErrEmptyResponse}
	}
	return resp.Choices[0].Message, nil
}

// Decide asks the model to pick exactly one of tools for instruction.
// Any failure is reported as a model communication error.
func (c *Client) Decide(ctx context.Context, instruction string, tools []openai.Tool) (dispatch.Decision, error) {
	req := c.request([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: c.prompt},
		{Role: openai.ChatMessageRoleUser, Content: instruction},
	})
	req.Tools = tools
	req.ToolChoice = "required"

	msg, err := c.complete(ctx, "decide", req)
	if err != nil {
		return dispatch.Decision{}, apperrors.Wrap(apperrors.CodeModelCommunication, "model request failed", err)
	}
	if len(msg.ToolCalls) == 0 {
		return dispatch.Decision{}, apperrors.Wrap(apperrors.CodeModelCommunication, "model request failed", ErrNoDecision)
	}
	call := msg.ToolCalls[0]
	return dispatch.Decision{
		Operation: call.Function.Name,
		Arguments: call.Function.Arguments,
	}, nil
}

// ExtractList asks the model to pull the values described by instruction out
// of content. The answer is forced through the Extraction schema.
func (c *Client) ExtractList(ctx context.Context, instruction, content string) ([]string, error) {
	tool, err := functionFor[Extraction]("Return the extracted information")
	if err != nil {
		return nil, err
	}
	req := c.request([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "Extract exactly the information the user asks for from the provided content. Return only values that appear in the content."},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Instruction: %s\n\nContent:\n%s", instruction, content)},
	})
	req.Tools = []openai.Tool{tool}
	req.ToolChoice = openai.ToolChoice{
		Type:     openai.ToolTypeFunction,
		Function: openai.ToolFunction{Name: tool.Function.Name},
	}

	msg, err := c.complete(ctx, "extract", req)
	if err != nil {
		return nil, err
	}
	if len(msg.ToolCalls) == 0 {
		return nil, &APIError{Operation: "extract", Err: ErrNoDecision}
	}
	var out Extraction
	if err := json.Unmarshal([]byte(msg.ToolCalls[0].Function.Arguments), &out); err != nil {
		return nil, &APIError{Operation: "extract", Err: fmt.Errorf("decode extraction: %w", err)}
	}
	return out.ExtractedInformation, nil
}

// DescribeImage sends the image inline and returns the model's text.
func (c *Client) DescribeImage(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	if mimeType == "" {
		mimeType = "image/png"
	}
	url := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	req := c.request([]openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: instruction},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    url,
					Detail: openai.ImageURLDetailAuto,
				}},
			},
		},
	})
	msg, err := c.complete(ctx, "describe image", req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}

// Embed returns one vector per text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.opts.EmbeddingModel),
	})
	if err != nil {
		return nil, &APIError{Operation: "embed", Err: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, &APIError{Operation: "embed", Err: fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts))}
	}
	data := append([]openai.Embedding(nil), resp.Data...)
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, e := range data {
		out[i] = e.Embedding
	}
	return out, nil
}

// Transcribe returns the spoken text of the audio file at path.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.opts.TranscriptionModel,
		FilePath: path,
	})
	if err != nil {
		return "", &APIError{Operation: "transcribe", Err: err}
	}
	return strings.TrimSpace(resp.Text), nil
}
