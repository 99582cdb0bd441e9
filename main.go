// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// gemchat - Gemini chat gateway and terminal client.
package main

import (
	"os"

	"github.com/jeranaias/gemchat/internal/cli"
	"github.com/jeranaias/gemchat/internal/server"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
	server.Version = Version
}

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
