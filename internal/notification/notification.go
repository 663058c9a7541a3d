// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package notification parses Cloud Storage Pub/Sub notifications and
// decides which of them the redaction pipeline should handle.
package notification

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"

	"faceredact/internal/config"
)

// EventTypeFinalize is the storage event emitted when an object write
// completes. All other event types are skipped.
const EventTypeFinalize = "OBJECT_FINALIZE"

// Event is one storage notification, normalized from the message
// attributes and the optional JSON_API_V1 payload.
type Event struct {
	EventType string
	Bucket    string
	Object    string
	// Generation pins the object version to download. Zero means the
	// notification did not carry one and the latest version is read.
	Generation int64
	// ContentType is empty when the notification had no payload.
	ContentType string
	// Size is 0 when unknown.
	Size int64

	MessageID   string
	PublishTime time.Time
}

// SkipReason says which eligibility rule rejected an event.
type SkipReason string

// Skip reasons, in the order the rules run.
const (
	SkipEventType       SkipReason = "event_type"
	SkipAlreadyRedacted SkipReason = "already_redacted"
	SkipWrongBucket     SkipReason = "wrong_bucket"
	SkipNotImage        SkipReason = "not_image"
	SkipTooLarge        SkipReason = "too_large"
)

// objectPayload is the subset of the JSON_API_V1 object resource the
// pipeline cares about. The JSON API encodes integers as strings.
type objectPayload struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
	Generation  string `json:"generation"`
}

// ParseMessage normalizes a storage notification from its message
// attributes and payload. Attributes win; the payload only fills in
// what they lack (content type and size are payload-only). A malformed
// payload is ignored as long as the attributes identify the object.
func ParseMessage(attrs map[string]string, data []byte) (*Event, error) {
	ev := &Event{
		EventType: attrs["eventType"],
		Bucket:    attrs["bucketId"],
		Object:    attrs["objectId"],
	}
	if g, err := strconv.ParseInt(attrs["objectGeneration"], 10, 64); err == nil {
		ev.Generation = g
	}

	if len(data) > 0 {
		var payload objectPayload
		if err := json.Unmarshal(data, &payload); err == nil {
			if ev.Bucket == "" {
				ev.Bucket = payload.Bucket
			}
			if ev.Object == "" {
				ev.Object = payload.Name
			}
			ev.ContentType = payload.ContentType
			if n, err := strconv.ParseInt(payload.Size, 10, 64); err == nil {
				ev.Size = n
			}
			if ev.Generation == 0 {
				if g, err := strconv.ParseInt(payload.Generation, 10, 64); err == nil {
					ev.Generation = g
				}
			}
		}
	}

	if ev.Bucket == "" || ev.Object == "" {
		return nil, errors.Reason("notification names no object: bucket %q, object %q", ev.Bucket, ev.Object).Err()
	}
	return ev, nil
}

// GSPath returns gs://bucket/object, with the generation appended when
// the notification carried one.
func (ev *Event) GSPath() string {
	if ev.Generation == 0 {
		return fmt.Sprintf("gs://%s/%s", ev.Bucket, ev.Object)
	}
	return fmt.Sprintf("gs://%s/%s#%d", ev.Bucket, ev.Object, ev.Generation)
}

// Eligible reports whether the pipeline should process ev. The
// own-output guard runs before the bucket guard so a deployment writing
// into its input bucket can never reprocess what it wrote.
func Eligible(ev *Event, cfg *config.Config) (SkipReason, bool) {
	if ev.EventType != EventTypeFinalize {
		return SkipEventType, false
	}
	if cfg.OwnOutput(ev.Bucket, ev.Object) {
		return SkipAlreadyRedacted, false
	}
	if cfg.InputBucket != "" && ev.Bucket != cfg.InputBucket {
		return SkipWrongBucket, false
	}
	if !isImage(ev) {
		return SkipNotImage, false
	}
	if cfg.MaxObjectBytes > 0 && ev.Size > cfg.MaxObjectBytes {
		return SkipTooLarge, false
	}
	return "", true
}

var imageContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// isImage checks the content type when the notification carried one,
// falling back to the object extension for attribute-only notifications
// and generic octet-stream uploads.
func isImage(ev *Event) bool {
	ct := ev.ContentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct != "" && ct != "application/octet-stream" {
		return imageContentTypes[strings.ToLower(ct)]
	}
	if i := strings.LastIndexByte(ev.Object, '.'); i >= 0 {
		return imageExtensions[strings.ToLower(ev.Object[i:])]
	}
	return false
}
