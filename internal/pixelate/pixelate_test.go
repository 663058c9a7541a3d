// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package pixelate

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// gradientRGBA returns a w×h image where every pixel has a distinct
// color derived from its coordinates.
func gradientRGBA(w, h int) *image.RGBA {
	im := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			im.SetRGBA(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 5), B: uint8(x + y), A: 255})
		}
	}
	return im
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

func TestPixelateFormula(t *testing.T) {
	t.Parallel()
	src := gradientRGBA(20, 16)
	box := image.Rect(3, 2, 15, 13)
	const block = 4

	out, n := Image(src, []image.Rectangle{box}, Options{Mode: ModePixelate, BlockSize: block})
	if n != 1 {
		t.Fatalf("Image() boxes = %d, want 1", n)
	}

	for y := 0; y < 16; y++ {
		for x := 0; x < 20; x++ {
			got := out.At(x, y)
			var want color.Color
			if (image.Point{x, y}).In(box) {
				sx := box.Min.X + (x-box.Min.X)/block*block
				sy := box.Min.Y + (y-box.Min.Y)/block*block
				want = src.At(sx, sy)
			} else {
				want = src.At(x, y)
			}
			if !sameColor(got, want) {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestInBlockUniformity(t *testing.T) {
	t.Parallel()
	src := gradientRGBA(32, 32)
	box := image.Rect(5, 5, 29, 27)
	const block = 8

	out, _ := Image(src, []image.Rectangle{box}, Options{Mode: ModePixelate, BlockSize: block})

	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			cornerX := box.Min.X + (x-box.Min.X)/block*block
			cornerY := box.Min.Y + (y-box.Min.Y)/block*block
			if !sameColor(out.At(x, y), out.At(cornerX, cornerY)) {
				t.Fatalf("pixel (%d,%d) differs from its block corner (%d,%d)", x, y, cornerX, cornerY)
			}
		}
	}
}

func TestBlackout(t *testing.T) {
	t.Parallel()
	src := gradientRGBA(10, 10)
	box := image.Rect(2, 3, 7, 8)

	out, n := Image(src, []image.Rectangle{box}, Options{Mode: ModeBlackout})
	if n != 1 {
		t.Fatalf("Image() boxes = %d, want 1", n)
	}
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if (image.Point{x, y}).In(box) {
				if !sameColor(out.At(x, y), color.Black) {
					t.Fatalf("pixel (%d,%d) = %v, want black", x, y, out.At(x, y))
				}
			} else if !sameColor(out.At(x, y), src.At(x, y)) {
				t.Fatalf("pixel (%d,%d) changed outside the box", x, y)
			}
		}
	}
}

func TestSourceNotMutated(t *testing.T) {
	t.Parallel()
	src := gradientRGBA(10, 10)
	want := append([]uint8(nil), src.Pix...)

	Image(src, []image.Rectangle{image.Rect(0, 0, 10, 10)}, Options{Mode: ModeBlackout})

	if diff := cmp.Diff(want, src.Pix); diff != "" {
		t.Errorf("source pixels changed: %s", diff)
	}
}

func TestOverlappingBoxesOrderIndependent(t *testing.T) {
	t.Parallel()
	src := gradientRGBA(24, 24)
	a := image.Rect(2, 2, 14, 14)
	b := image.Rect(8, 8, 22, 20)
	opts := Options{Mode: ModePixelate, BlockSize: 5}

	out1, _ := Image(src, []image.Rectangle{a, b}, opts)
	out2, _ := Image(src, []image.Rectangle{b, a}, opts)

	if diff := cmp.Diff(out1.(*image.RGBA).Pix, out2.(*image.RGBA).Pix); diff != "" {
		t.Errorf("box order changed the output: %s", diff)
	}
}

func TestExpandAndClamp(t *testing.T) {
	t.Parallel()
	bounds := image.Rect(0, 0, 100, 80)
	tests := []struct {
		testname string
		box      image.Rectangle
		margin   float64
		want     image.Rectangle
	}{
		{
			testname: "no margin",
			box:      image.Rect(10, 10, 30, 30),
			want:     image.Rect(10, 10, 30, 30),
		},
		{
			testname: "margin inside bounds",
			box:      image.Rect(20, 20, 40, 30),
			margin:   0.1,
			want:     image.Rect(18, 18, 42, 32),
		},
		{
			testname: "margin clamped at origin",
			box:      image.Rect(0, 0, 20, 20),
			margin:   0.5,
			want:     image.Rect(0, 0, 30, 30),
		},
		{
			testname: "partly outside",
			box:      image.Rect(90, 70, 120, 100),
			want:     image.Rect(90, 70, 100, 80),
		},
		{
			testname: "fully outside",
			box:      image.Rect(200, 200, 220, 220),
			want:     image.Rectangle{},
		},
		{
			testname: "inverted corners",
			box:      image.Rectangle{Min: image.Point{30, 30}, Max: image.Point{10, 10}},
			want:     image.Rect(10, 10, 30, 30),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.testname, func(t *testing.T) {
			t.Parallel()
			got := expand(tt.box, tt.margin, bounds)
			if tt.want.Empty() {
				if !got.Empty() {
					t.Errorf("expand() = %v, want empty", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("expand() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestZeroEffectiveBoxesReturnsSource(t *testing.T) {
	t.Parallel()
	src := gradientRGBA(10, 10)

	out, n := Image(src, []image.Rectangle{image.Rect(50, 50, 60, 60)}, Options{Mode: ModePixelate, BlockSize: 4})
	if n != 0 {
		t.Fatalf("Image() boxes = %d, want 0", n)
	}
	if out != image.Image(src) {
		t.Error("Image() with no effective boxes should return the source image itself")
	}
}

func TestNonZeroOriginBounds(t *testing.T) {
	t.Parallel()
	base := gradientRGBA(40, 40)
	src := base.SubImage(image.Rect(10, 10, 30, 30)).(*image.RGBA)
	box := image.Rect(12, 12, 28, 28)

	out, n := Image(src, []image.Rectangle{box}, Options{Mode: ModePixelate, BlockSize: 4})
	if n != 1 {
		t.Fatalf("Image() boxes = %d, want 1", n)
	}
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			if (image.Point{x, y}).In(box) {
				continue
			}
			if !sameColor(out.At(x, y), src.At(x, y)) {
				t.Fatalf("pixel (%d,%d) changed outside the box", x, y)
			}
		}
	}
}

func TestYCbCrSource(t *testing.T) {
	t.Parallel()
	src := image.NewYCbCr(image.Rect(0, 0, 16, 16), image.YCbCrSubsampleRatio420)
	for i := range src.Y {
		src.Y[i] = uint8(i * 7)
	}
	for i := range src.Cb {
		src.Cb[i] = uint8(128 + i)
		src.Cr[i] = uint8(128 - i)
	}
	box := image.Rect(4, 4, 12, 12)

	out, n := Image(src, []image.Rectangle{box}, Options{Mode: ModePixelate, BlockSize: 4})
	if n != 1 {
		t.Fatalf("Image() boxes = %d, want 1", n)
	}
	if _, ok := out.(*image.RGBA); !ok {
		t.Fatalf("Image() on YCbCr returned %T, want *image.RGBA", out)
	}
	// Compare in 8-bit space: color.YCbCr.RGBA() carries more precision
	// than the RGBA pixels draw.Draw produces.
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if (image.Point{x, y}).In(box) {
				continue
			}
			got := color.RGBAModel.Convert(out.At(x, y))
			want := color.RGBAModel.Convert(src.At(x, y))
			if got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestBytesPNG(t *testing.T) {
	t.Parallel()
	src := gradientRGBA(20, 16)
	var enc bytes.Buffer
	if err := png.Encode(&enc, src); err != nil {
		t.Fatal(err)
	}
	box := image.Rect(3, 2, 15, 13)
	const block = 4

	res, err := Bytes(enc.Bytes(), []image.Rectangle{box}, Options{Mode: ModePixelate, BlockSize: block})
	if err != nil {
		t.Fatalf("Bytes() = %v", err)
	}
	if res.Format != "png" || res.ContentType != "image/png" || res.Transcoded {
		t.Errorf("Bytes() = format %q content type %q transcoded %v, want png/image/png/false", res.Format, res.ContentType, res.Transcoded)
	}
	if res.Boxes != 1 {
		t.Errorf("Bytes() boxes = %d, want 1", res.Boxes)
	}

	// png is lossless, so the decoded output must match the formula
	// exactly.
	out, format, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if format != "png" {
		t.Fatalf("output format = %q, want png", format)
	}
	for y := 0; y < 16; y++ {
		for x := 0; x < 20; x++ {
			var want color.Color
			if (image.Point{x, y}).In(box) {
				sx := box.Min.X + (x-box.Min.X)/block*block
				sy := box.Min.Y + (y-box.Min.Y)/block*block
				want = src.At(sx, sy)
			} else {
				want = src.At(x, y)
			}
			if !sameColor(out.At(x, y), want) {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, out.At(x, y), want)
			}
		}
	}
}

func TestBytesJPEG(t *testing.T) {
	t.Parallel()
	src := gradientRGBA(32, 32)
	var enc bytes.Buffer
	if err := jpeg.Encode(&enc, src, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	box := image.Rect(8, 8, 24, 24)

	res, err := Bytes(enc.Bytes(), []image.Rectangle{box}, Options{Mode: ModeBlackout, JPEGQuality: 90})
	if err != nil {
		t.Fatalf("Bytes() = %v", err)
	}
	if res.Format != "jpeg" || res.ContentType != "image/jpeg" || res.Transcoded {
		t.Errorf("Bytes() = format %q content type %q transcoded %v, want jpeg/image/jpeg/false", res.Format, res.ContentType, res.Transcoded)
	}

	out, format, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("output format = %q, want jpeg", format)
	}
	if out.Bounds() != src.Bounds() {
		t.Fatalf("output bounds = %v, want %v", out.Bounds(), src.Bounds())
	}
	// jpeg is lossy; just check the box center came out essentially
	// black.
	r, g, b, _ := out.At(16, 16).RGBA()
	if r>>8 > 16 || g>>8 > 16 || b>>8 > 16 {
		t.Errorf("box center = (%d, %d, %d), want near black", r>>8, g>>8, b>>8)
	}
}

func TestBytesGIF(t *testing.T) {
	t.Parallel()
	// Black and white only, so the Plan9 re-palettization on encode is
	// exact.
	src := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if (x+y)%2 == 0 {
				src.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				src.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}
	var enc bytes.Buffer
	if err := gif.Encode(&enc, src, nil); err != nil {
		t.Fatal(err)
	}
	box := image.Rect(4, 4, 12, 12)

	res, err := Bytes(enc.Bytes(), []image.Rectangle{box}, Options{Mode: ModeBlackout})
	if err != nil {
		t.Fatalf("Bytes() = %v", err)
	}
	if res.Format != "gif" || res.ContentType != "image/gif" {
		t.Errorf("Bytes() = format %q content type %q, want gif/image/gif", res.Format, res.ContentType)
	}

	out, format, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if format != "gif" {
		t.Fatalf("output format = %q, want gif", format)
	}
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			want := src.At(x, y)
			if (image.Point{x, y}).In(box) {
				want = color.Black
			}
			if !sameColor(out.At(x, y), want) {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, out.At(x, y), want)
			}
		}
	}
}

func TestBytesCopyThroughWhenBoxesClampAway(t *testing.T) {
	t.Parallel()
	src := gradientRGBA(10, 10)
	var enc bytes.Buffer
	if err := png.Encode(&enc, src); err != nil {
		t.Fatal(err)
	}

	res, err := Bytes(enc.Bytes(), []image.Rectangle{image.Rect(100, 100, 120, 120)}, Options{Mode: ModePixelate, BlockSize: 4})
	if err != nil {
		t.Fatalf("Bytes() = %v", err)
	}
	if res.Boxes != 0 {
		t.Errorf("Bytes() boxes = %d, want 0", res.Boxes)
	}
	if !bytes.Equal(res.Data, enc.Bytes()) {
		t.Error("Bytes() with no effective boxes should return the input verbatim")
	}
	if res.ContentType != "image/png" {
		t.Errorf("Bytes() content type = %q, want image/png", res.ContentType)
	}
}

func TestBytesDeterministic(t *testing.T) {
	t.Parallel()
	src := gradientRGBA(24, 24)
	var enc bytes.Buffer
	if err := png.Encode(&enc, src); err != nil {
		t.Fatal(err)
	}
	boxes := []image.Rectangle{image.Rect(2, 2, 12, 12), image.Rect(8, 10, 20, 22)}
	opts := Options{Mode: ModePixelate, BlockSize: 6}

	res1, err := Bytes(enc.Bytes(), boxes, opts)
	if err != nil {
		t.Fatal(err)
	}
	res2, err := Bytes(enc.Bytes(), boxes, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res1.Data, res2.Data) {
		t.Error("identical inputs produced different output bytes")
	}
}

func TestBytesUndecodable(t *testing.T) {
	t.Parallel()
	_, err := Bytes([]byte("not an image at all"), nil, Options{Mode: ModePixelate, BlockSize: 4})
	if err == nil {
		t.Fatal("Bytes() on garbage = nil error, want decode error")
	}
}

func TestContentTypeFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		format string
		want   string
	}{
		{"jpeg", "image/jpeg"},
		{"png", "image/png"},
		{"gif", "image/gif"},
		{"webp", "image/webp"},
		{"bmp", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentTypeFor(tt.format); got != tt.want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}
