// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package clients resolves credentials for the Google Cloud clients the
// subcommands share.
package clients

import (
	"context"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/auth/client/authcli"
	"go.chromium.org/luci/common/logging"
)

// TokenSource turns parsed auth flags into a token source. An explicit
// -service-account-json wins, then a cached login. A nil source with a
// nil error means neither exists and the client libraries should fall
// back to application default credentials.
func TokenSource(ctx context.Context, f *authcli.Flags) (oauth2.TokenSource, error) {
	opts, err := f.Options()
	if err != nil {
		return nil, err
	}
	a := auth.NewAuthenticator(ctx, auth.SilentLogin, opts)
	ts, err := a.TokenSource()
	if err != nil {
		if err == auth.ErrLoginRequired {
			logging.Infof(ctx, "No cached login; using application default credentials")
			return nil, nil
		}
		return nil, err
	}
	// Report who we are running as, helps when debugging permissions.
	if email, err := a.GetEmail(); err == nil {
		logging.Infof(ctx, "Running as %s", email)
	}
	return ts, nil
}

// Options converts a TokenSource result into options for the cloud
// client constructors. A nil source yields no options, which keeps the
// libraries on their own credential discovery.
func Options(ts oauth2.TokenSource) []option.ClientOption {
	if ts == nil {
		return nil
	}
	return []option.ClientOption{option.WithTokenSource(ts)}
}
