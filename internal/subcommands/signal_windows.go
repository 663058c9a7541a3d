// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build windows
// +build windows

package subcommands

import (
	"context"
	"os"
	"os/signal"

	"go.chromium.org/luci/common/logging"
)

// cancelOnSignals cancels the returned context on interrupt. Windows
// has no SIGTERM delivery; Ctrl-C is the only shutdown path.
func cancelOnSignals(ctx context.Context) context.Context {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sig := <-c
		logging.Infof(ctx, "Caught signal %s, draining before shutdown", sig)
		cancel()
	}()
	return ctx
}
