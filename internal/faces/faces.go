// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package faces asks the Cloud Vision API where the faces in an image
// are. It never decodes pixels itself; callers get canonical but
// unclamped detection boxes.
package faces

import (
	"context"
	"encoding/base64"
	"image"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.chromium.org/luci/common/errors"

	"faceredact/internal/gcperr"
)

// Face is one detection.
type Face struct {
	// Bounds is the detection box in pixel coordinates. It is canonical
	// (Min before Max) but not clamped to the image.
	Bounds image.Rectangle
	// Confidence is the detection confidence in [0, 1].
	Confidence float64
}

// Detector finds faces in an encoded image.
type Detector interface {
	DetectFaces(ctx context.Context, img []byte) ([]Face, error)
}

type visionDetector struct {
	svc           *vision.Service
	maxFaces      int
	minConfidence float64
}

// NewDetector builds a Detector on the Cloud Vision REST API asking for
// at most maxFaces detections and dropping those below minConfidence.
func NewDetector(ctx context.Context, maxFaces int, minConfidence float64, opts ...option.ClientOption) (Detector, error) {
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "creating vision service").Err()
	}
	return &visionDetector{
		svc:           svc,
		maxFaces:      maxFaces,
		minConfidence: minConfidence,
	}, nil
}

const featureFaceDetection = "FACE_DETECTION"

func (d *visionDetector) DetectFaces(ctx context.Context, img []byte) ([]Face, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image: &vision.Image{Content: base64.StdEncoding.EncodeToString(img)},
			Features: []*vision.Feature{{
				Type:       featureFaceDetection,
				MaxResults: int64(d.maxFaces),
			}},
		}},
	}
	res, err := d.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, gcperr.Classify(errors.Annotate(err, "annotating image").Err())
	}
	if len(res.Responses) == 0 {
		return nil, gcperr.Classify(errors.Reason("vision returned an empty response list").Err())
	}
	r := res.Responses[0]
	if r.Error != nil {
		err := status.Error(codes.Code(r.Error.Code), r.Error.Message)
		return nil, gcperr.Classify(errors.Annotate(err, "vision face detection").Err())
	}

	out := make([]Face, 0, len(r.FaceAnnotations))
	for _, fa := range r.FaceAnnotations {
		if fa.DetectionConfidence < d.minConfidence {
			continue
		}
		bounds, ok := polyBounds(fa.BoundingPoly)
		if !ok {
			bounds, ok = polyBounds(fa.FdBoundingPoly)
		}
		if !ok {
			continue
		}
		out = append(out, Face{Bounds: bounds, Confidence: fa.DetectionConfidence})
	}
	return out, nil
}

// polyBounds reduces a bounding polygon to its axis-aligned bounding
// rectangle. The API omits zero vertices, so missing coordinates read
// as 0.
func polyBounds(p *vision.BoundingPoly) (image.Rectangle, bool) {
	if p == nil || len(p.Vertices) == 0 {
		return image.Rectangle{}, false
	}
	minX, minY := int(p.Vertices[0].X), int(p.Vertices[0].Y)
	maxX, maxY := minX, minY
	for _, v := range p.Vertices[1:] {
		minX = min(minX, int(v.X))
		minY = min(minY, int(v.Y))
		maxX = max(maxX, int(v.X))
		maxY = max(maxY, int(v.Y))
	}
	return image.Rect(minX, minY, maxX, maxY), true
}
