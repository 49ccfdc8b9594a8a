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
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"

	"taskagent/internal/ops"
)

func (e *env) openImage(args ops.Args) (image.Image, string, int, error) {
	in, err := e.path(args, "image_path")
	if err != nil {
		return nil, "", 0, err
	}
	data, err := e.readLimited(in)
	if err != nil {
		return nil, "", 0, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", 0, fmt.Errorf("decode %s: %w", e.rel(in), err)
	}
	return img, in, len(data), nil
}

// outputFormat takes the encoding from the output name, falling back to the
// input's.
func outputFormat(args ops.Args, input string) (imaging.Format, error) {
	if f, err := imaging.FormatFromFilename(args.String("output_file")); err == nil {
		return f, nil
	}
	return imaging.FormatFromFilename(input)
}

func (e *env) saveImage(args ops.Args, img image.Image, input string, opts ...imaging.EncodeOption) (string, int, error) {
	format, err := outputFormat(args, input)
	if err != nil {
		return "", 0, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return "", 0, err
	}
	out, err := e.writeOutput(args, "output_file", buf.Bytes())
	if err != nil {
		return "", 0, err
	}
	return out, buf.Len(), nil
}

func (e *env) compressImage(ctx context.Context, args ops.Args) (string, error) {
	img, in, inSize, err := e.openImage(args)
	if err != nil {
		return "", err
	}
	if err := ensureContext(ctx); err != nil {
		return "", err
	}
	quality, _ := args.Int("quality")
	out, outSize, err := e.saveImage(args, img, in,
		imaging.JPEGQuality(int(quality)),
		imaging.PNGCompressionLevel(png.BestCompression),
	)
	if err != nil {
		return "", NewExecutionError("compress_image", "encode", err)
	}
	return fmt.Sprintf("Compressed %s (%s) to %s (%s)", e.rel(in), humanize.Bytes(uint64(inSize)), out, humanize.Bytes(uint64(outSize))), nil
}

func (e *env) resizeImage(ctx context.Context, args ops.Args) (string, error) {
	img, in, _, err := e.openImage(args)
	if err != nil {
		return "", err
	}
	if err := ensureContext(ctx); err != nil {
		return "", err
	}
	width, _ := args.Int("width")
	height, _ := args.Int("height")
	resized := imaging.Resize(img, int(width), int(height), imaging.Lanczos)
	out, outSize, err := e.saveImage(args, resized, in)
	if err != nil {
		return "", NewExecutionError("resize_image", "encode", err)
	}
	return fmt.Sprintf("Resized %s to %dx%d in %s (%s)", e.rel(in), width, height, out, humanize.Bytes(uint64(outSize))), nil
}
