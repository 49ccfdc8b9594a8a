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
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"taskagent/internal/extract"
	"taskagent/internal/ops"
)

const imageReadInstruction = "Extract all readable text and numbers from this image. Provide the extracted content in a structured format."

func (e *env) extractInformation(ctx context.Context, args ops.Args) (string, error) {
	if e.extractor == nil {
		return "", ErrUnavailable
	}
	in, err := e.path(args, "input_file")
	if err != nil {
		return "", err
	}
	if _, err := e.readLimited(in); err != nil {
		return "", err
	}
	content, err := extract.Text(in)
	if err != nil {
		return "", NewExecutionError("extract_information", "read", err)
	}
	values, err := e.extractor.ExtractList(ctx, args.String("extraction_instruction"), content)
	if err != nil {
		return "", NewExecutionError("extract_information", "extraction", err)
	}
	out, err := e.writeOutput(args, "output_file", []byte(strings.Join(values, "\n")))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Extracted %d values into %s", len(values), out), nil
}

func (e *env) processImage(ctx context.Context, args ops.Args) (string, error) {
	if e.vision == nil || e.extractor == nil {
		return "", ErrUnavailable
	}
	in, err := e.path(args, "image_path")
	if err != nil {
		return "", err
	}
	data, err := e.readLimited(in)
	if err != nil {
		return "", err
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%s is not an image (detected %s)", e.rel(in), mtype.String())
	}
	described, err := e.vision.DescribeImage(ctx, data, mtype.String(), imageReadInstruction)
	if err != nil {
		return "", NewExecutionError("process_image", "vision", err)
	}
	values, err := e.extractor.ExtractList(ctx, args.String("processing_instruction"), described)
	if err != nil {
		return "", NewExecutionError("process_image", "extraction", err)
	}
	out, err := e.writeOutput(args, "output_file", []byte(strings.Join(values, " ")))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Processed %s into %s", e.rel(in), out), nil
}

func (e *env) transcribeAudio(ctx context.Context, args ops.Args) (string, error) {
	if e.transcriber == nil {
		return "", ErrUnavailable
	}
	in, err := e.path(args, "audio_path")
	if err != nil {
		return "", err
	}
	info, err := os.Stat(in)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("path '%s' is a directory", e.rel(in))
	}
	if err := e.limits.CheckSize(e.rel(in), info.Size()); err != nil {
		return "", err
	}
	transcript, err := e.transcriber.Transcribe(ctx, in)
	if err != nil {
		return "", NewExecutionError("transcribe_audio", "transcription", err)
	}
	out, err := e.writeOutput(args, "output_file", []byte(transcript))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Transcribed %s into %s", e.rel(in), out), nil
}

func (e *env) similarityInput(path, format string) ([]string, error) {
	if _, err := e.readLimited(path); err != nil {
		return nil, err
	}
	var raw []string
	switch format {
	case "csv":
		values, err := extract.Values(path)
		if err != nil {
			return nil, err
		}
		raw = values
	case "space_separated":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return strings.Fields(string(data)), nil
	default:
		lines, err := extract.Lines(path)
		if err != nil {
			return nil, err
		}
		raw = lines
	}
	texts := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			texts = append(texts, t)
		}
	}
	return texts, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// extremePair returns the indices of the most (or least) similar distinct
// pair. The first pair wins ties.
func extremePair(vecs [][]float32, similar bool) (int, int) {
	bi, bj := 0, 1
	best := math.Inf(-1)
	if !similar {
		best = math.Inf(1)
	}
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			s := cosine(vecs[i], vecs[j])
			if (similar && s > best) || (!similar && s < best) {
				best, bi, bj = s, i, j
			}
		}
	}
	return bi, bj
}

func (e *env) findSimilarTexts(ctx context.Context, args ops.Args) (string, error) {
	if e.embedder == nil {
		return "", ErrUnavailable
	}
	in, err := e.path(args, "input_file")
	if err != nil {
		return "", err
	}
	texts, err := e.similarityInput(in, args.String("input_format"))
	if err != nil {
		return "", err
	}
	if len(texts) < 2 {
		return "", fmt.Errorf("%w in %s, found %d", ErrNotEnoughTexts, e.rel(in), len(texts))
	}
	vecs, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return "", NewExecutionError("find_similar_texts", "embedding", err)
	}
	if len(vecs) != len(texts) {
		return "", fmt.Errorf("got %d embeddings for %d texts", len(vecs), len(texts))
	}

	i, j := extremePair(vecs, args.String("find_type") == "most_similar")
	sep := ","
	switch args.String("output_format") {
	case "one_per_line":
		sep = "\n"
	case "space_separated":
		sep = " "
	}
	out, err := e.writeOutput(args, "output_file", []byte(texts[i]+sep+texts[j]))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote pair (%d, %d) of %d texts to %s", i+1, j+1, len(texts), out), nil
}
