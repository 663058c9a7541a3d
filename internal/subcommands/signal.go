// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build !windows
// +build !windows

package subcommands

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"go.chromium.org/luci/common/logging"
)

// cancelOnSignals cancels the returned context on SIGINT or SIGTERM.
// A second signal exits immediately without draining.
func cancelOnSignals(ctx context.Context) context.Context {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, unix.SIGTERM)
	ctx, cancel := context.WithCancel(ctx)
	// We leak the cancellation resource if we never get a signal.
	go func() {
		sig := <-c
		logging.Infof(ctx, "Caught signal %s, draining before shutdown", sig)
		cancel()
		sig = <-c
		logging.Errorf(ctx, "Caught second signal %s, exiting now", sig)
		os.Exit(1)
	}()
	return ctx
}
