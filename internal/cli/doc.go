// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the gemchat command line.
//
// The default command is an interactive chat against a running gateway.
// The same binary runs that gateway (serve) and manages stored
// conversations (export, import) and configuration (config).
//
// # Key Types
//
//   - Command: the top-level command selected by Parse
//   - Args: global flags plus the remaining raw arguments
//   - ChatSession: store, persistence and orchestrator behind the REPL
//   - ArgParser: command-specific flag parsing
//   - CommandError, ValidationError, NotFoundError: errors mapped to exit codes
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Run(os.Args[1:]))
//	}
//
// Handlers return errors instead of exiting. Run prints the error once,
// as JSON with --json, and GetExitCode maps it to the process exit code.
package cli
