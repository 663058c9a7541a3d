// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package site contains site local constants for the faceredact tool.
package site

import (
	"os"
	"path/filepath"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/hardcoded/chromeinfra"
)

// VersionNumber is the version number for the faceredact tool.
const VersionNumber = 1

// CloudPlatformScope is the OAuth scope covering Cloud Storage, Pub/Sub
// and the Vision API.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// DefaultAuthOptions is an auth.Options struct prefilled with chrome-infra
// defaults and the scopes faceredact needs.
func DefaultAuthOptions() auth.Options {
	opts := chromeinfra.DefaultAuthOptions()
	opts.Scopes = []string{auth.OAuthScopeEmail, CloudPlatformScope}
	opts.SecretsDir = SecretsDir()
	return opts
}

// SecretsDir returns an absolute path to a directory (in $HOME) to keep secret
// files in (e.g. OAuth refresh tokens) or an empty string if $HOME can't be
// determined (happens in some degenerate cases, it just disables auth token
// cache).
func SecretsDir() string {
	configDir := os.Getenv("XDG_CACHE_HOME")
	if configDir == "" {
		configDir = filepath.Join(os.Getenv("HOME"), ".cache")
	}
	return filepath.Join(configDir, "faceredact", "auth")
}
