// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command faceredact blurs faces out of images stored in Cloud Storage.
//
// Run as a service it consumes bucket finalize notifications from
// Pub/Sub, redacts every face Cloud Vision finds, and stores the result
// in an output bucket. The redact subcommand does the same for a single
// image from the command line.
package main

import (
	"context"
	"os"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/auth/client/authcli"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/logging/gologger"

	"faceredact/internal/site"
	faceredactSubCommands "faceredact/internal/subcommands"
)

var application = &cli.Application{
	Name:  "faceredact",
	Title: "Face redaction service for Cloud Storage buckets",
	Context: func(ctx context.Context) context.Context {
		return gologger.StdConfig.Use(ctx)
	},
	Commands: []*subcommands.Command{
		subcommands.CmdHelp,
		faceredactSubCommands.CmdVersion,
		subcommands.Section("Authentication"),
		authcli.SubcommandLogin(site.DefaultAuthOptions(), "auth-login", false),
		authcli.SubcommandLogout(site.DefaultAuthOptions(), "auth-logout", false),
		authcli.SubcommandInfo(site.DefaultAuthOptions(), "auth-info", false),
		subcommands.Section("Redaction"),
		faceredactSubCommands.CmdRun,
		faceredactSubCommands.CmdRedact,
	},
}

func main() {
	os.Exit(subcommands.Run(application, nil))
}
