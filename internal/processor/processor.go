// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package processor runs the redaction pipeline for one storage event:
// download the image, ask Vision for face boxes, distort them, upload
// the result, and optionally announce it. Each event is handled in full
// isolation; nothing survives between messages and nothing is retried
// here.
package processor

import (
	"context"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"faceredact/internal/config"
	"faceredact/internal/events"
	"faceredact/internal/faces"
	"faceredact/internal/gs"
	"faceredact/internal/metrics"
	"faceredact/internal/notification"
	"faceredact/internal/pixelate"
)

// Statuses for processed objects.
const (
	// StatusRedacted means at least one face box was distorted.
	StatusRedacted = metrics.ResultRedacted
	// StatusCopied means the original bytes were copied through
	// unmodified because nothing needed distortion.
	StatusCopied = metrics.ResultCopied
)

// Processor wires the pipeline stages together.
type Processor struct {
	GS       gs.Client
	Detector faces.Detector
	// Publisher is optional; nil disables result events.
	Publisher events.Publisher
	Cfg       *config.Config
	// Now is replaceable for tests.
	Now func() time.Time
}

// New returns a Processor over the given clients.
func New(gsc gs.Client, det faces.Detector, pub events.Publisher, cfg *config.Config) *Processor {
	return &Processor{
		GS:        gsc,
		Detector:  det,
		Publisher: pub,
		Cfg:       cfg,
	}
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Processor) stage(ctx context.Context, name string, start time.Time) {
	metrics.Stage(ctx, name, p.now().Sub(start))
}

// Process handles one eligible storage event end to end. The returned
// error carries transient.Tag when the subscriber should nack for
// redelivery; everything else consumes the message.
func (p *Processor) Process(ctx context.Context, ev *notification.Event) error {
	start := p.now()

	t0 := p.now()
	data, info, err := p.GS.Download(ctx, ev.Bucket, ev.Object, ev.Generation, p.Cfg.MaxObjectBytes)
	p.stage(ctx, "fetch", t0)
	if err != nil {
		return errors.Annotate(err, "fetching %s", ev.GSPath()).Err()
	}
	metrics.BytesIn(ctx, int64(len(data)))

	t0 = p.now()
	found, err := p.Detector.DetectFaces(ctx, data)
	p.stage(ctx, "detect", t0)
	if err != nil {
		return errors.Annotate(err, "detecting faces in %s", ev.GSPath()).Err()
	}
	metrics.Faces(ctx, len(found))

	// With no faces the original bytes pass through untouched, so
	// nothing is lost to a decode/re-encode round trip.
	status := StatusCopied
	outData := data
	outContentType := sourceContentType(info, ev, data)
	if len(found) > 0 {
		boxes := make([]image.Rectangle, len(found))
		for i, f := range found {
			boxes[i] = f.Bounds
		}
		t0 = p.now()
		res, err := pixelate.Bytes(data, boxes, pixelate.Options{
			Mode:        p.Cfg.Mode,
			BlockSize:   p.Cfg.BlockSize,
			Margin:      p.Cfg.BoxMargin,
			JPEGQuality: p.Cfg.JPEGQuality,
		})
		p.stage(ctx, "redact", t0)
		if err != nil {
			// Vision accepted the image but we cannot decode it.
			// Redelivery would hit the same bytes.
			return errors.Annotate(err, "redacting %s", ev.GSPath()).Err()
		}
		if res.Boxes > 0 {
			status = StatusRedacted
			outData = res.Data
			outContentType = res.ContentType
		}
		if res.Transcoded {
			logging.Debugf(ctx, "Transcoded %s from %s to %s", ev.GSPath(), res.Format, res.ContentType)
		}
	}

	outObject := p.Cfg.OutputObject(ev.Object)
	t0 = p.now()
	written, err := p.GS.Upload(ctx, gs.UploadRequest{
		Bucket:      p.Cfg.OutputBucket,
		Object:      outObject,
		ContentType: outContentType,
		Metadata: map[string]string{
			"faceredact-source": ev.GSPath(),
			"faceredact-status": status,
			"faceredact-faces":  strconv.Itoa(len(found)),
			"faceredact-mode":   p.Cfg.Mode,
		},
		Data: outData,
	})
	p.stage(ctx, "store", t0)
	if err != nil {
		return errors.Annotate(err, "storing gs://%s/%s", p.Cfg.OutputBucket, outObject).Err()
	}
	metrics.BytesOut(ctx, written)
	metrics.Event(ctx, status, "")

	logging.Infof(ctx, "Processed %s: %s, %d face(s), %s in, %s out",
		ev.GSPath(), status, len(found), humanize.IBytes(uint64(len(data))), humanize.IBytes(uint64(len(outData))))

	p.publishResult(ctx, ev, outObject, status, len(found), start)
	return nil
}

// publishResult announces a processed object. The output is already
// durable, so failures are logged and counted but never bounce the
// message.
func (p *Processor) publishResult(ctx context.Context, ev *notification.Event, outObject, status string, faceCount int, start time.Time) {
	if p.Publisher == nil {
		return
	}
	re := events.NewResultEvent()
	re.Source = events.ObjectRef{Bucket: ev.Bucket, Object: ev.Object, Generation: ev.Generation}
	re.Output = events.ObjectRef{Bucket: p.Cfg.OutputBucket, Object: outObject}
	re.Status = status
	re.Faces = faceCount
	re.Mode = p.Cfg.Mode
	finished := p.now()
	re.DurationMS = finished.Sub(start).Milliseconds()
	re.FinishedAt = finished

	t0 := p.now()
	err := p.Publisher.Publish(ctx, re)
	p.stage(ctx, "publish", t0)
	if err != nil {
		logging.WithError(err).Warningf(ctx, "Dropping result event for %s", ev.GSPath())
		metrics.PublishFailure(ctx)
	}
}

// sourceContentType picks the content type for copied-through output:
// the stored object's own, the notification's, or a sniff of the bytes.
func sourceContentType(info *gs.ObjectInfo, ev *notification.Event, data []byte) string {
	if info != nil && info.ContentType != "" {
		return info.ContentType
	}
	if ev.ContentType != "" {
		return ev.ContentType
	}
	return http.DetectContentType(data)
}
