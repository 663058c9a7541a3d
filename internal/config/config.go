// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config holds the pipeline settings shared by the faceredact
// subcommands and their validation rules.
package config

import (
	"flag"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"go.chromium.org/luci/common/errors"

	"faceredact/internal/pixelate"
)

// Redaction modes, as understood by the pixelate package.
const (
	ModePixelate = pixelate.ModePixelate
	ModeBlackout = pixelate.ModeBlackout
)

// Defaults for tunable settings.
const (
	DefaultBlockSize      = 16
	DefaultMaxFaces       = 50
	DefaultMaxObjectBytes = 16 * 1024 * 1024
	DefaultJPEGQuality    = 85
	DefaultConcurrency    = 8
)

// Config carries every setting the redaction pipeline needs. The zero
// value is not usable; construct it with RegisterFlags or fill the
// required fields by hand and call Validate.
type Config struct {
	// Project is the GCP project that owns the subscription and topics.
	Project string
	// Subscription is the Pub/Sub subscription ID receiving Cloud
	// Storage OBJECT_FINALIZE notifications.
	Subscription string
	// InputBucket, when set, restricts processing to notifications for
	// that bucket. Empty accepts any bucket named by the notification.
	InputBucket string
	// OutputBucket receives redacted copies.
	OutputBucket string
	// OutputPrefix is prepended to the source object name in the output
	// bucket. Required when OutputBucket == InputBucket so the service
	// can recognize and skip its own output.
	OutputPrefix string
	// ResultTopic, when set, names a Pub/Sub topic that receives a JSON
	// result event per processed object.
	ResultTopic string

	// Mode selects how face boxes are distorted.
	Mode string
	// BlockSize is the pixelation block edge in pixels.
	BlockSize int
	// BoxMargin expands every face box by this fraction of its larger
	// dimension on each side before distortion.
	BoxMargin float64
	// MinConfidence drops detections below this confidence.
	MinConfidence float64
	// MaxFaces caps the number of detections requested per image.
	MaxFaces int
	// MaxObjectBytes caps the size of objects the pipeline downloads.
	MaxObjectBytes int64
	// JPEGQuality is the quality used when re-encoding JPEG output.
	JPEGQuality int
	// Concurrency bounds the number of notifications processed at once.
	Concurrency int

	maxObjectSize string
}

// RegisterFlags binds the pipeline flags to fs and returns the Config
// that will receive their values. Validate must be called after fs is
// parsed.
func RegisterFlags(fs *flag.FlagSet) *Config {
	c := &Config{}
	fs.StringVar(&c.Project, "project", "", "GCP project that owns the subscription and topics.")
	fs.StringVar(&c.Subscription, "subscription", "", "Pub/Sub subscription ID receiving storage notifications.")
	fs.StringVar(&c.InputBucket, "input-bucket", "", "Only process notifications for this bucket. Empty accepts any bucket.")
	fs.StringVar(&c.OutputBucket, "output-bucket", "", "Bucket that receives redacted copies.")
	fs.StringVar(&c.OutputPrefix, "output-prefix", "", "Prefix prepended to the source object name in the output bucket.")
	fs.StringVar(&c.ResultTopic, "result-topic", "", "Optional Pub/Sub topic for per-object result events.")
	c.RegisterRedactionFlags(fs)
	fs.StringVar(&c.maxObjectSize, "max-object-size", humanize.IBytes(DefaultMaxObjectBytes), "Largest object the pipeline will download, e.g. 16MiB.")
	fs.IntVar(&c.Concurrency, "concurrency", DefaultConcurrency, "Maximum notifications processed at once.")
	return c
}

// RegisterRedactionFlags binds only the flags that tune the redaction
// itself. The redact subcommand uses this subset for local files.
func (c *Config) RegisterRedactionFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Mode, "mode", ModePixelate, fmt.Sprintf("Distortion mode, %q or %q.", ModePixelate, ModeBlackout))
	fs.IntVar(&c.BlockSize, "block-size", DefaultBlockSize, "Pixelation block edge in pixels.")
	fs.Float64Var(&c.BoxMargin, "box-margin", 0, "Fraction of the larger box dimension added to every side before distortion.")
	fs.Float64Var(&c.MinConfidence, "min-confidence", 0, "Drop detections below this confidence, range [0, 1).")
	fs.IntVar(&c.MaxFaces, "max-faces", DefaultMaxFaces, "Maximum detections requested per image.")
	fs.IntVar(&c.JPEGQuality, "jpeg-quality", DefaultJPEGQuality, "Quality for re-encoded JPEG output, 1..100.")
	c.MaxObjectBytes = DefaultMaxObjectBytes
}

// Validate checks every pipeline setting. It is the only gate: a config
// that passes cannot cause a startup-detectable misconfiguration later.
func (c *Config) Validate() error {
	if c.Project == "" {
		return errors.Reason("-project is required").Err()
	}
	if c.Subscription == "" {
		return errors.Reason("-subscription is required").Err()
	}
	if c.OutputBucket == "" {
		return errors.Reason("-output-bucket is required").Err()
	}
	if c.maxObjectSize != "" {
		n, err := humanize.ParseBytes(c.maxObjectSize)
		if err != nil {
			return errors.Annotate(err, "parsing -max-object-size %q", c.maxObjectSize).Err()
		}
		c.MaxObjectBytes = int64(n)
	}
	if c.MaxObjectBytes <= 0 {
		return errors.Reason("-max-object-size must be positive, got %d", c.MaxObjectBytes).Err()
	}
	if c.Concurrency < 1 {
		return errors.Reason("-concurrency must be at least 1, got %d", c.Concurrency).Err()
	}
	if c.InputBucket != "" && c.OutputBucket == c.InputBucket && c.OutputPrefix == "" {
		return errors.Reason("-output-prefix is required when the output bucket is the input bucket, otherwise the service would reprocess its own output").Err()
	}
	return c.ValidateRedaction()
}

// ValidateRedaction checks only the redaction tuning settings.
func (c *Config) ValidateRedaction() error {
	switch c.Mode {
	case ModePixelate, ModeBlackout:
	default:
		return errors.Reason("unknown -mode %q, want %q or %q", c.Mode, ModePixelate, ModeBlackout).Err()
	}
	if c.BlockSize < 2 {
		return errors.Reason("-block-size must be at least 2, got %d", c.BlockSize).Err()
	}
	if c.BoxMargin < 0 || c.BoxMargin > 1 {
		return errors.Reason("-box-margin must be in [0, 1], got %v", c.BoxMargin).Err()
	}
	if c.MinConfidence < 0 || c.MinConfidence >= 1 {
		return errors.Reason("-min-confidence must be in [0, 1), got %v", c.MinConfidence).Err()
	}
	if c.MaxFaces < 1 {
		return errors.Reason("-max-faces must be at least 1, got %d", c.MaxFaces).Err()
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.Reason("-jpeg-quality must be in 1..100, got %d", c.JPEGQuality).Err()
	}
	return nil
}

// OutputObject returns the name the redacted copy of object gets in the
// output bucket.
func (c *Config) OutputObject(object string) string {
	return c.OutputPrefix + object
}

// OwnOutput reports whether bucket/object names something this config
// would itself have written. With no prefix the whole output bucket is
// treated as ours.
func (c *Config) OwnOutput(bucket, object string) bool {
	return bucket == c.OutputBucket && strings.HasPrefix(object, c.OutputPrefix)
}
