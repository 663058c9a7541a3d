// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package subcommands

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"faceredact/internal/config"
	"faceredact/internal/faces"
	"faceredact/internal/gs"
	"faceredact/internal/processor"
)

type fakeDetector struct {
	faces []faces.Face
	err   error
}

func (f *fakeDetector) DetectFaces(ctx context.Context, img []byte) ([]faces.Face, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.faces, nil
}

type fakeGS struct {
	data        []byte
	contentType string

	gotBucket     string
	gotObject     string
	gotGeneration int64
	uploads       []gs.UploadRequest
}

func (f *fakeGS) Download(ctx context.Context, bucket, object string, gen, maxBytes int64) ([]byte, *gs.ObjectInfo, error) {
	f.gotBucket, f.gotObject, f.gotGeneration = bucket, object, gen
	return f.data, &gs.ObjectInfo{
		Bucket:      bucket,
		Object:      object,
		Generation:  gen,
		ContentType: f.contentType,
		Size:        int64(len(f.data)),
	}, nil
}

func (f *fakeGS) Upload(ctx context.Context, req gs.UploadRequest) (int64, error) {
	f.uploads = append(f.uploads, req)
	return int64(len(req.Data)), nil
}

func (f *fakeGS) Close() error { return nil }

func redactionConfig() *config.Config {
	return &config.Config{
		Mode:           config.ModePixelate,
		BlockSize:      16,
		MaxFaces:       config.DefaultMaxFaces,
		MaxObjectBytes: config.DefaultMaxObjectBytes,
		JPEGQuality:    config.DefaultJPEGQuality,
	}
}

func gradientPNG(t *testing.T) ([]byte, *image.RGBA) {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			src.SetRGBA(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 7), B: uint8(x + y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), src
}

func TestRedactOnceLocalFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srcBytes, srcImg := gradientPNG(t)

	dir := t.TempDir()
	source := filepath.Join(dir, "in.png")
	dest := filepath.Join(dir, "out.png")
	if err := os.WriteFile(source, srcBytes, 0644); err != nil {
		t.Fatal(err)
	}

	det := &fakeDetector{faces: []faces.Face{{Bounds: image.Rect(4, 4, 20, 20), Confidence: 0.95}}}
	sum, err := redactOnce(ctx, nil, det, redactionConfig(), source, dest)
	if err != nil {
		t.Fatalf("redactOnce() returned %v", err)
	}
	if sum.faces != 1 || sum.status != processor.StatusRedacted {
		t.Errorf("summary = %d face(s), %q; want 1 face, %q", sum.faces, sum.status, processor.StatusRedacted)
	}
	if sum.bytesIn != len(srcBytes) {
		t.Errorf("bytesIn = %d, want %d", sum.bytesIn, len(srcBytes))
	}

	outBytes, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	out, err := png.Decode(bytes.NewReader(outBytes))
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	// Inside the box every pixel takes the box corner color; outside is
	// untouched.
	if got, want := out.At(12, 12), srcImg.At(4, 4); !sameColor(got, want) {
		t.Errorf("pixel inside box = %v, want %v", got, want)
	}
	if got, want := out.At(25, 25), srcImg.At(25, 25); !sameColor(got, want) {
		t.Errorf("pixel outside box = %v, want %v", got, want)
	}
}

func TestRedactOnceLocalCopyThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srcBytes, _ := gradientPNG(t)

	dir := t.TempDir()
	source := filepath.Join(dir, "in.png")
	dest := filepath.Join(dir, "out.png")
	if err := os.WriteFile(source, srcBytes, 0644); err != nil {
		t.Fatal(err)
	}

	sum, err := redactOnce(ctx, nil, &fakeDetector{}, redactionConfig(), source, dest)
	if err != nil {
		t.Fatalf("redactOnce() returned %v", err)
	}
	if sum.faces != 0 || sum.status != processor.StatusCopied {
		t.Errorf("summary = %d face(s), %q; want 0 faces, %q", sum.faces, sum.status, processor.StatusCopied)
	}

	outBytes, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(outBytes, srcBytes) {
		t.Error("copy-through output differs from the source bytes")
	}
}

func TestRedactOnceGSPaths(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srcBytes, _ := gradientPNG(t)

	gsc := &fakeGS{data: srcBytes, contentType: "image/png"}
	sum, err := redactOnce(ctx, gsc, &fakeDetector{}, redactionConfig(),
		"gs://in-bucket/pics/a.png#7", "gs://out-bucket/red/a.png")
	if err != nil {
		t.Fatalf("redactOnce() returned %v", err)
	}
	if sum.status != processor.StatusCopied {
		t.Errorf("status = %q, want %q", sum.status, processor.StatusCopied)
	}

	if gsc.gotBucket != "in-bucket" || gsc.gotObject != "pics/a.png" || gsc.gotGeneration != 7 {
		t.Errorf("downloaded %s/%s#%d, want in-bucket/pics/a.png#7", gsc.gotBucket, gsc.gotObject, gsc.gotGeneration)
	}
	if len(gsc.uploads) != 1 {
		t.Fatalf("got %d uploads, want 1", len(gsc.uploads))
	}
	up := gsc.uploads[0]
	if up.Bucket != "out-bucket" || up.Object != "red/a.png" {
		t.Errorf("uploaded to %s/%s, want out-bucket/red/a.png", up.Bucket, up.Object)
	}
	if up.ContentType != "image/png" {
		t.Errorf("upload content type = %q, want image/png", up.ContentType)
	}
	if !bytes.Equal(up.Data, srcBytes) {
		t.Error("uploaded bytes differ from the source bytes")
	}
}

func TestReadSourceMissingFile(t *testing.T) {
	t.Parallel()
	_, _, err := readSource(context.Background(), nil, filepath.Join(t.TempDir(), "absent.png"), 1<<20)
	if err == nil {
		t.Fatal("readSource() = nil error, want error for a missing file")
	}
}

func TestIsGSPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want bool
	}{
		{"gs://bucket/object", true},
		{"/tmp/a.png", false},
		{"a.png", false},
		{"https://example.com/a.png", false},
	}
	for _, tt := range tests {
		if got := isGSPath(tt.path); got != tt.want {
			t.Errorf("isGSPath(%q) = %t, want %t", tt.path, got, tt.want)
		}
	}
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}
