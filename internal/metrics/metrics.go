// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package metrics reports redaction pipeline activity to tsmon.
package metrics

import (
	"context"
	"time"

	"go.chromium.org/luci/common/tsmon/distribution"
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"
)

// Result values for the events metric.
const (
	ResultRedacted = "redacted"
	ResultCopied   = "copied"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
)

// Reason values accompanying failed results.
const (
	ReasonParse     = "parse"
	ReasonTransient = "transient"
	ReasonPermanent = "permanent"
)

// events counts every notification the service consumed, by disposition.
// For skips the reason is the eligibility rule that fired; for failures
// it distinguishes redelivered from poison messages.
var events = metric.NewCounter("faceredact/events",
	"storage notifications consumed, by result and reason",
	nil,
	field.String("result"),
	field.String("reason"),
)

// faces counts faces redacted across all images.
var faces = metric.NewCounter("faceredact/faces",
	"total face boxes distorted",
	nil,
)

// facesPerImage is the per-image detection count distribution.
var facesPerImage = metric.NewCumulativeDistribution("faceredact/faces_per_image",
	"distribution of face boxes per processed image",
	nil,
	distribution.DefaultBucketer,
)

// stageDuration records per-stage wall time in milliseconds.
var stageDuration = metric.NewCumulativeDistribution("faceredact/stage_duration",
	"distribution of pipeline stage duration (ms)",
	nil,
	// The bucket covers from 2^0 to 2^20 ms, a bit over 17 minutes.
	distribution.GeometricBucketer(2, 20),
	field.String("stage"),
)

// bytes counts object payload bytes moved through Cloud Storage.
var bytes = metric.NewCounter("faceredact/bytes",
	"object bytes downloaded from and uploaded to storage",
	nil,
	field.String("direction"),
)

// publishFailures counts result events that could not be published.
// The output object is durable by then, so these are logged and
// dropped rather than redelivered.
var publishFailures = metric.NewCounter("faceredact/publish_failures",
	"result events that failed to publish",
	nil,
)

// Event reports one consumed notification. reason may be empty for
// successful redactions.
func Event(ctx context.Context, result, reason string) {
	events.Add(ctx, 1, result, reason)
}

// Faces reports the detection count for one processed image.
func Faces(ctx context.Context, n int) {
	faces.Add(ctx, int64(n))
	facesPerImage.Add(ctx, float64(n))
}

// Stage reports the wall time one pipeline stage took.
func Stage(ctx context.Context, stage string, d time.Duration) {
	stageDuration.Add(ctx, float64(d.Milliseconds()), stage)
}

// BytesIn reports bytes downloaded from storage.
func BytesIn(ctx context.Context, n int64) {
	bytes.Add(ctx, n, "in")
}

// BytesOut reports bytes uploaded to storage.
func BytesOut(ctx context.Context, n int64) {
	bytes.Add(ctx, n, "out")
}

// PublishFailure reports one dropped result event.
func PublishFailure(ctx context.Context) {
	publishFailures.Add(ctx, 1)
}
