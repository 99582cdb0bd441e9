// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export_cmd.go - Export and import commands for gemchat.
//
// Command: export [--out DIR] [--id ID] [--format json|md]
//
// Without --id every conversation is written as one JSON array named
// chatgpt-clone-export-YYYY-MM-DD.json. With --id a single conversation is
// written as Markdown or JSON.
//
// Command: import FILE
//
// Reads a JSON export and merges it into stored conversations. Entries
// whose ID already exists are skipped.
//
// Examples:
//
//	gemchat export --out ~/backups
//	gemchat export --id 3f2c... --format md
//	gemchat import chatgpt-clone-export-2025-01-31.json
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/export"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/store"
)

// =============================================================================
// SHARED
// =============================================================================

// openStore opens the configured storage and returns a hydrated store.
// The returned close function detaches persistence and closes storage.
func openStore(ctx context.Context, cfg *config.Config, persist bool) (*store.Store, func(), error) {
	kv, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, nil, &CommandError{Command: "storage", Action: "open", Reason: cfg.Storage.Backend, Err: err}
	}
	st := store.New(store.DefaultState())
	p := storage.NewPersister(kv)
	res := p.Hydrate(ctx, st)
	if res.Conversations == storage.StatusUnavailable {
		kv.Close()
		return nil, nil, &CommandError{Command: "storage", Action: "read", Reason: "conversations unavailable"}
	}

	detach := func() {}
	if persist {
		detach = p.Attach(st)
	}
	return st, func() {
		detach()
		kv.Close()
	}, nil
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportResult is the JSON output of the export command.
type ExportResult struct {
	Path          string `json:"path"`
	Conversations int    `json:"conversations"`
}

// HandleExport handles the "export" command.
func HandleExport(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	p := NewArgParser(args.Raw)
	outDir := p.FlagOrDefault("out", ".")
	id := p.Flag("id")
	format := strings.ToLower(p.FlagOrDefault("format", "json"))

	ctx := context.Background()
	st, closeStore, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := runExport(st.State(), outDir, id, format)
	if err != nil {
		return err
	}

	if args.JSON {
		return printJSON(result)
	}
	fmt.Println(SuccessStyle.Render(fmt.Sprintf("Exported %d conversation(s) to ", result.Conversations)) + result.Path)
	return nil
}

// runExport writes the export described by id and format into outDir.
func runExport(st store.State, outDir, id, format string) (ExportResult, error) {
	if id == "" {
		if format != "json" {
			return ExportResult{}, ErrUnsupportedFormat(format, []string{"json"})
		}
		path, err := export.WriteAll(st.Conversations, outDir)
		if err != nil {
			return ExportResult{}, &CommandError{Command: "export", Action: "write", Reason: outDir, Err: err}
		}
		return ExportResult{Path: path, Conversations: len(st.Conversations)}, nil
	}

	conv, ok := st.Conversation(id)
	if !ok {
		return ExportResult{}, &NotFoundError{Resource: "conversation", ID: id}
	}

	opts := export.DefaultOptions()
	opts.OutputDir = outDir
	var exporter export.Exporter
	switch format {
	case "md", "markdown":
		exporter = export.NewMarkdownExporter(opts)
	case "json":
		exporter = export.NewJSONExporter()
	default:
		return ExportResult{}, ErrUnsupportedFormat(format, []string{"md", "json"})
	}

	path, err := export.ExportToFile(conv, exporter, opts)
	if err != nil {
		return ExportResult{}, &CommandError{Command: "export", Action: "write", Reason: outDir, Err: err}
	}
	return ExportResult{Path: path, Conversations: 1}, nil
}

// =============================================================================
// IMPORT
// =============================================================================

// ImportResult is the JSON output of the import command.
type ImportResult struct {
	File     string `json:"file"`
	Read     int    `json:"read"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

// HandleImport handles the "import" command.
func HandleImport(args Args) error {
	p := NewArgParser(args.Raw)
	file := p.Positional(0)
	if file == "" {
		return ErrMissingArgument("file", "gemchat import chatgpt-clone-export-2025-01-31.json")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return &NotFoundError{Resource: "file", ID: file}
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, closeStore, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := runImport(st, data)
	if err != nil {
		return err
	}
	result.File = file

	if args.JSON {
		return printJSON(result)
	}
	fmt.Println(SuccessStyle.Render(fmt.Sprintf("Imported %d conversation(s)", result.Imported)) +
		DimStyle.Render(fmt.Sprintf(" (%d skipped)", result.Skipped)))
	return nil
}

// runImport decodes data and merges it into st.
func runImport(st *store.Store, data []byte) (ImportResult, error) {
	convs, err := export.ImportJSON(data)
	if err != nil {
		return ImportResult{}, &CommandError{Command: "import", Action: "parse", Reason: "not a valid conversation export", Err: err}
	}
	before := len(st.State().Conversations)
	st.Dispatch(store.ImportConversations{Conversations: convs})
	imported := len(st.State().Conversations) - before
	return ImportResult{Read: len(convs), Imported: imported, Skipped: len(convs) - imported}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
