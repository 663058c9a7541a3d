// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package subcommands

import (
	"fmt"

	"github.com/maruel/subcommands"

	"faceredact/internal/site"
)

// CmdVersion prints the tool version.
var CmdVersion = &subcommands.Command{
	UsageLine: "version",
	ShortDesc: "prints the tool version",
	LongDesc:  "Prints the faceredact version.",
	CommandRun: func() subcommands.CommandRun {
		return &versionCommand{}
	},
}

type versionCommand struct {
	subcommands.CommandRunBase
}

func (c *versionCommand) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	fmt.Fprintf(a.GetOut(), "faceredact version %d\n", site.VersionNumber)
	return 0
}
