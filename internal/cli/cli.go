// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for gemchat.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jeranaias/gemchat/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdServe
	CmdExport
	CmdImport
	CmdConfig
	CmdVersion
	CmdHelp
)

func (c Command) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdServe:
		return "serve"
	case CmdExport:
		return "export"
	case CmdImport:
		return "import"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Model      string
	Quiet      bool
	Verbose    bool
	JSON       bool
	Ephemeral  bool // memory storage, nothing persisted

	// Command-specific
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args (remaining after global flag parsing)
	Raw []string
}

const usageText = `gemchat - chat with Gemini from a browser backend or your terminal

Usage:
  gemchat                         Start interactive chat (default)
  gemchat chat                    Start interactive chat
  gemchat serve                   Run the HTTP API (/api/chat, proxy, /health)
  gemchat export [--out DIR]      Export all conversations as JSON
  gemchat export --id ID --format md
                                  Export one conversation as Markdown
  gemchat import FILE             Import conversations from a JSON export
  gemchat config [show|get|set|keys|path|init]
                                  Configuration
  gemchat version                 Show version information
  gemchat help                    Show this help

Global flags:
  --config PATH                   Config file (default ~/.gemchat/config.toml)
  -m, --model NAME                Model for this session
  --ephemeral                     Keep conversations in memory only
  --json                          JSON output where supported
  -q, --quiet                     Minimal output
  -v, --verbose                   Log to stderr

Environment:
  GEMINI_API_KEY                  Gemini API key (serve)
  GEMCHAT_BACKEND_URL             Remote backend for the proxy routes
  GEMCHAT_GATEWAY_URL             Gateway used by chat
  GEMCHAT_STORAGE                 file | sqlite | bolt | redis | memory
  GEMCHAT_PORT                    Port for serve

Chat commands:
  /help                           Show chat commands
  /new [title]                    Start a new conversation
  /list [query]                   List conversations, optionally filtered
  /switch N|ID                    Switch conversation
  /rename TITLE                   Rename the current conversation
  /delete [N|ID]                  Delete a conversation
  /clear                          Delete all conversations
  /history                        Show the current conversation
  /model [name]                   Show or switch model
  /temp VALUE                     Set temperature
  /stream on|off                  Toggle streaming replies
  /theme                          Toggle light/dark rendering
  /retry                          Retry the last failed send
  /export [md|json]               Export the current conversation
  /quit                           Exit
`

// PrintUsage prints the usage text.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("gemchat %s\n", Version)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Printf("  Built:   %s\n", BuildDate)
	fmt.Printf("  Go:      %s\n", runtime.Version())
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses argv (without the program name) into a command and its
// arguments.
func Parse(argv []string) (Command, Args) {
	remaining, parsed := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdChat, parsed
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsed.Raw = remaining

	switch cmd {
	case "chat":
		return CmdChat, parsed
	case "serve", "server":
		return CmdServe, parsed
	case "export":
		return CmdExport, parsed
	case "import":
		return CmdImport, parsed
	case "config":
		parseConfigArgs(&parsed, remaining)
		return CmdConfig, parsed
	case "version", "--version":
		return CmdVersion, parsed
	case "help", "-h", "--help":
		return CmdHelp, parsed
	default:
		parsed.Raw = append([]string{cmd}, remaining...)
		return CmdHelp, parsed
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-q", "--quiet":
			parsed.Quiet = true
		case "-v", "--verbose":
			parsed.Verbose = true
		case "--json":
			parsed.JSON = true
		case "--ephemeral":
			parsed.Ephemeral = true
		case "--config":
			if i+1 < len(args) {
				i++
				parsed.ConfigPath = args[i]
			}
		case "-m", "--model":
			if i+1 < len(args) {
				i++
				parsed.Model = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--config="):
				parsed.ConfigPath = strings.TrimPrefix(arg, "--config=")
			case strings.HasPrefix(arg, "--model="):
				parsed.Model = strings.TrimPrefix(arg, "--model=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}
	return remaining, parsed
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) > 0 {
		args.Subcommand = remaining[0]
		if len(remaining) > 1 {
			args.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			args.ConfigVal = strings.Join(remaining[2:], " ")
		}
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes argv and returns the process exit code.
func Run(argv []string) int {
	cmd, args := Parse(argv)

	var err error
	switch cmd {
	case CmdChat:
		err = HandleChatCommand(args)
	case CmdServe:
		err = HandleServe(args)
	case CmdExport:
		err = HandleExport(args)
	case CmdImport:
		err = HandleImport(args)
	case CmdConfig:
		err = HandleConfig(args)
	case CmdVersion:
		HandleVersion(args)
	case CmdHelp:
		if len(args.Raw) > 0 {
			err = NewValidationError("command", args.Raw[0], "unknown command")
		}
		PrintUsage()
	}

	if err != nil {
		DisplayError(err, args.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// HandleVersion handles the "version" command.
func HandleVersion(args Args) {
	if args.JSON {
		data, _ := json.MarshalIndent(map[string]string{
			"version":    Version,
			"git_commit": GitCommit,
			"build_date": BuildDate,
			"go_version": runtime.Version(),
		}, "", "  ")
		fmt.Println(string(data))
		return
	}
	PrintVersion()
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// loadConfig loads the config named by --config, or the default file.
func loadConfig(args Args) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, &CommandError{Command: "config", Action: "load", Reason: "could not load configuration", Err: err}
	}
	if args.Ephemeral {
		cfg.Storage.Backend = "memory"
	}
	return cfg, nil
}

// redirectLogs sends the standard logger to ~/.gemchat/gemchat.log so log
// records do not interleave with interactive output. It returns a close
// function.
func redirectLogs(verbose bool) func() {
	if verbose {
		return func() {}
	}
	if err := config.EnsureConfigDir(); err != nil {
		log.SetOutput(io.Discard)
		return func() {}
	}
	dir, _ := config.ConfigDir()
	f, err := os.OpenFile(filepath.Join(dir, "gemchat.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		log.SetOutput(io.Discard)
		return func() {}
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}
}
