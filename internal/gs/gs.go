// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package gs moves image bytes in and out of Cloud Storage. Errors it
// returns already carry transient.Tag when a redelivery could help, so
// callers pass them up unchanged.
package gs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/dustin/go-humanize"

	"go.chromium.org/luci/common/errors"

	"faceredact/internal/gcperr"
)

// ObjectInfo is the object metadata the pipeline needs.
type ObjectInfo struct {
	Bucket      string
	Object      string
	Generation  int64
	ContentType string
	Size        int64
}

// UploadRequest describes one object write.
type UploadRequest struct {
	Bucket      string
	Object      string
	ContentType string
	Metadata    map[string]string
	Data        []byte
}

// Client is the slice of Cloud Storage the pipeline uses. It is an
// interface because the storage package ships no fake; tests substitute
// their own implementation.
type Client interface {
	// Download reads the whole object. A positive gen pins that object
	// version; a positive maxBytes fails the read when the object is
	// larger.
	Download(ctx context.Context, bucket, object string, gen, maxBytes int64) ([]byte, *ObjectInfo, error)
	// Upload writes one object and returns its final size.
	Upload(ctx context.Context, req UploadRequest) (int64, error)
	Close() error
}

type realClient struct {
	client *storage.Client
}

// NewClient wraps a storage client in the pipeline's Client interface.
func NewClient(client *storage.Client) Client {
	return &realClient{client: client}
}

func (c *realClient) Download(ctx context.Context, bucket, object string, gen, maxBytes int64) ([]byte, *ObjectInfo, error) {
	obj := c.client.Bucket(bucket).Object(object)
	if gen > 0 {
		obj = obj.Generation(gen)
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, nil, gcperr.Classify(errors.Annotate(err, "opening gs://%s/%s", bucket, object).Err())
	}
	defer r.Close()

	info := &ObjectInfo{
		Bucket:      bucket,
		Object:      object,
		Generation:  r.Attrs.Generation,
		ContentType: r.Attrs.ContentType,
		Size:        r.Attrs.Size,
	}
	if maxBytes > 0 && info.Size > maxBytes {
		return nil, info, tooLarge(bucket, object, info.Size, maxBytes)
	}

	limit := io.Reader(r)
	if maxBytes > 0 {
		limit = io.LimitReader(r, maxBytes+1)
	}
	data, err := io.ReadAll(limit)
	if err != nil {
		return nil, info, gcperr.Classify(errors.Annotate(err, "reading gs://%s/%s", bucket, object).Err())
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, info, tooLarge(bucket, object, int64(len(data)), maxBytes)
	}
	return data, info, nil
}

func (c *realClient) Upload(ctx context.Context, req UploadRequest) (int64, error) {
	w := c.client.Bucket(req.Bucket).Object(req.Object).NewWriter(ctx)
	w.ContentType = req.ContentType
	w.Metadata = req.Metadata
	if _, err := w.Write(req.Data); err != nil {
		w.Close()
		return 0, gcperr.Classify(errors.Annotate(err, "writing gs://%s/%s", req.Bucket, req.Object).Err())
	}
	if err := w.Close(); err != nil {
		return 0, gcperr.Classify(errors.Annotate(err, "finalizing gs://%s/%s", req.Bucket, req.Object).Err())
	}
	return w.Attrs().Size, nil
}

func (c *realClient) Close() error {
	return c.client.Close()
}

// tooLarge is deliberately left untagged: a redelivery cannot shrink
// the object.
func tooLarge(bucket, object string, size, maxBytes int64) error {
	return errors.Reason("object gs://%s/%s is %s, over the %s limit",
		bucket, object, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(maxBytes))).Err()
}

// Path identifies one object, optionally pinned to a generation.
type Path struct {
	Bucket     string
	Object     string
	Generation int64
}

func (p Path) String() string {
	if p.Generation == 0 {
		return fmt.Sprintf("gs://%s/%s", p.Bucket, p.Object)
	}
	return fmt.Sprintf("gs://%s/%s#%d", p.Bucket, p.Object, p.Generation)
}

// ParsePath parses gs://bucket/object, with an optional #generation
// suffix.
func ParsePath(gsURL string) (Path, error) {
	if !strings.HasPrefix(gsURL, "gs://") {
		return Path{}, errors.Reason("gs url must begin with gs://, got %q", gsURL).Err()
	}
	u, err := url.Parse(gsURL)
	if err != nil {
		return Path{}, errors.Annotate(err, "parsing %q", gsURL).Err()
	}
	p := Path{
		Bucket: u.Host,
		Object: strings.TrimPrefix(u.Path, "/"),
	}
	if p.Bucket == "" || p.Object == "" {
		return Path{}, errors.Reason("gs url %q names no object", gsURL).Err()
	}
	if u.Fragment != "" {
		g, err := strconv.ParseInt(u.Fragment, 10, 64)
		if err != nil {
			return Path{}, errors.Annotate(err, "parsing generation in %q", gsURL).Err()
		}
		p.Generation = g
	}
	return p, nil
}
