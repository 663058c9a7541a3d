// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package gcperr decides whether an error from a Google Cloud call is
// worth a redelivery. Transient errors get transient.Tag so the
// subscriber nacks the message and Pub/Sub retries it later; everything
// else is treated as permanent and the message is consumed. The
// pipeline itself never retries.
package gcperr

import (
	"context"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/retry/transient"
)

// Classify tags err with transient.Tag when a redelivery could plausibly
// succeed. A nil err stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if transient.Tag.In(err) {
		return err
	}
	if retriable(err) {
		return transient.Tag.Apply(err)
	}
	return err
}

func retriable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// In-flight work cut short by shutdown should be redelivered.
		return true
	case errors.Is(err, storage.ErrObjectNotExist):
		// The object was deleted or overwritten since the notification.
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return true
		}
		return false
	}

	if s, ok := status.FromError(err); ok && s.Code() != codes.OK {
		return retriableCode(s.Code())
	}

	// Network-level failures surface as bare errors. Favor redelivery.
	return true
}

func retriableCode(code codes.Code) bool {
	switch code {
	case codes.InvalidArgument,
		codes.NotFound,
		codes.AlreadyExists,
		codes.PermissionDenied,
		codes.Unauthenticated,
		codes.FailedPrecondition,
		codes.OutOfRange,
		codes.Unimplemented:
		return false
	}
	return true
}
