// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package pixelate distorts rectangular regions of an image so faces
// inside them are no longer recognizable. It does no I/O; callers hand
// it decoded images or encoded bytes plus the boxes to distort.
package pixelate

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/webp" // decode-only; output transcodes to png

	"go.chromium.org/luci/common/errors"
)

// Distortion modes.
const (
	ModePixelate = "pixelate"
	ModeBlackout = "blackout"
)

// Options control how boxes are distorted.
type Options struct {
	// Mode is ModePixelate or ModeBlackout. Anything else pixelates.
	Mode string
	// BlockSize is the pixelation block edge in pixels. Values below 2
	// leave the image unchanged in pixelate mode.
	BlockSize int
	// Margin expands every box by this fraction of its larger dimension
	// on each side before distortion.
	Margin float64
	// JPEGQuality is used when re-encoding jpeg input. Zero means the
	// encoder default.
	JPEGQuality int
}

// Result is the output of Bytes.
type Result struct {
	// Data is the re-encoded image, or the input bytes verbatim when no
	// box covered any pixels.
	Data []byte
	// Format is the decoded input format name ("jpeg", "png", "gif",
	// "webp").
	Format string
	// ContentType describes Data.
	ContentType string
	// Transcoded is true when Data uses a different format than the
	// input (webp input becomes png).
	Transcoded bool
	// Boxes counts the boxes that still covered pixels after margin
	// expansion and clamping.
	Boxes int
}

// ContentTypeFor maps a decoded format name to its MIME type.
func ContentTypeFor(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	}
	return "application/octet-stream"
}

// Image returns a copy of src with every box distorted, plus the number
// of boxes that covered pixels. Boxes are expanded by opts.Margin,
// clamped to the image bounds and dropped when nothing remains. With no
// effective boxes src itself is returned.
//
// Pixelation samples only the original pixels, so overlapping boxes
// produce the same output regardless of order.
func Image(src image.Image, boxes []image.Rectangle, opts Options) (image.Image, int) {
	bounds := src.Bounds()
	effective := make([]image.Rectangle, 0, len(boxes))
	for _, b := range boxes {
		if eb := expand(b, opts.Margin, bounds); !eb.Empty() {
			effective = append(effective, eb)
		}
	}
	if len(effective) == 0 {
		return src, 0
	}

	dst := mutableCopy(src)
	for _, b := range effective {
		if opts.Mode == ModeBlackout {
			draw.Draw(dst, b, image.NewUniform(color.Black), image.Point{}, draw.Src)
			continue
		}
		pixelateBox(dst, src, b, opts.BlockSize)
	}
	return dst, len(effective)
}

// Bytes decodes src, distorts the boxes and re-encodes with the input
// format. webp input is re-encoded as png since Go has no webp encoder.
func Bytes(src []byte, boxes []image.Rectangle, opts Options) (*Result, error) {
	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, errors.Annotate(err, "decoding image").Err()
	}

	out, n := Image(img, boxes, opts)
	res := &Result{
		Format:      format,
		ContentType: ContentTypeFor(format),
		Boxes:       n,
	}
	if n == 0 {
		// Nothing changed; hand back the input so repeated processing
		// never accumulates re-encode loss.
		res.Data = src
		return res, nil
	}

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		q := opts.JPEGQuality
		if q == 0 {
			q = jpeg.DefaultQuality
		}
		err = jpeg.Encode(&buf, out, &jpeg.Options{Quality: q})
	case "png":
		err = png.Encode(&buf, out)
	case "gif":
		err = gif.Encode(&buf, out, nil)
	case "webp":
		err = png.Encode(&buf, out)
		res.ContentType = ContentTypeFor("png")
		res.Transcoded = true
	default:
		return nil, errors.Reason("no encoder for image format %q", format).Err()
	}
	if err != nil {
		return nil, errors.Annotate(err, "encoding %s", format).Err()
	}
	res.Data = buf.Bytes()
	return res, nil
}

// expand grows b by margin on every side, then clamps it to bounds.
func expand(b image.Rectangle, margin float64, bounds image.Rectangle) image.Rectangle {
	b = b.Canon()
	if margin > 0 {
		m := int(margin*float64(max(b.Dx(), b.Dy())) + 0.5)
		b = image.Rect(b.Min.X-m, b.Min.Y-m, b.Max.X+m, b.Max.Y+m)
	}
	return b.Intersect(bounds)
}

// pixelateBox fills box in dst with block-sized tiles of the color at
// each block's top-left corner in src. The grid is anchored at the box
// origin, so every sampled coordinate stays inside the box.
func pixelateBox(dst draw.Image, src image.Image, box image.Rectangle, blockSize int) {
	if blockSize < 2 {
		return
	}
	for y := box.Min.Y; y < box.Max.Y; y++ {
		sy := box.Min.Y + (y-box.Min.Y)/blockSize*blockSize
		for x := box.Min.X; x < box.Max.X; x++ {
			sx := box.Min.X + (x-box.Min.X)/blockSize*blockSize
			dst.Set(x, y, src.At(sx, sy))
		}
	}
}

// mutableCopy returns a settable copy of src. Decoded jpeg
// (*image.YCbCr) and paletted gif frames cannot be written in place, so
// they are redrawn into a fresh RGBA image.
func mutableCopy(src image.Image) draw.Image {
	switch im := src.(type) {
	case *image.RGBA:
		cp := *im
		cp.Pix = append([]uint8(nil), im.Pix...)
		return &cp
	case *image.NRGBA:
		cp := *im
		cp.Pix = append([]uint8(nil), im.Pix...)
		return &cp
	case *image.Gray:
		cp := *im
		cp.Pix = append([]uint8(nil), im.Pix...)
		return &cp
	}
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
