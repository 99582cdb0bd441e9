// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation for gemchat.
//
// Command: config [subcommand]
//
// Subcommands:
//
//	show (default)      Display the effective configuration
//	get <key>           Print one value
//	set <key> <value>   Write one value to the config file
//	keys                List all keys
//	path                Show the config file location
//	init                Write a default config file
//
// Examples:
//
//	gemchat config
//	gemchat config get client.model
//	gemchat config set client.temperature 0.4
//	gemchat config set server.allowed_origins http://localhost:5173,https://chat.example.com
//	gemchat config set storage.backend sqlite
//
// show and get report the effective values, including environment
// overrides. set edits only what is in the file.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/gemchat/internal/config"
)

// secretKeys are redacted by show and get.
var secretKeys = map[string]bool{
	"gemini.api_key":         true,
	"storage.redis_password": true,
}

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show":
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		if args.JSON {
			fmt.Println(cfg.String())
			return nil
		}
		showConfig(cfg)
		return nil

	case "get":
		if args.ConfigKey == "" {
			return ErrMissingArgument("key", "gemchat config get client.model")
		}
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		val, err := configValue(cfg, args.ConfigKey)
		if err != nil {
			return err
		}
		fmt.Println(val)
		return nil

	case "set":
		if args.ConfigKey == "" || args.ConfigVal == "" {
			return ErrMissingArgument("key and value", "gemchat config set client.model gemini-1.5-pro")
		}
		path, err := configFilePath(args)
		if err != nil {
			return err
		}
		if err := setConfigValue(path, args.ConfigKey, args.ConfigVal); err != nil {
			return err
		}
		fmt.Println(SuccessStyle.Render("Set ") + args.ConfigKey + DimStyle.Render(" in "+path))
		return nil

	case "keys":
		for _, k := range config.GetAllKeys() {
			fmt.Println(k)
		}
		return nil

	case "path":
		path, err := configFilePath(args)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil

	case "init":
		path, err := configFilePath(args)
		if err != nil {
			return err
		}
		created, err := initConfigFile(path)
		if err != nil {
			return err
		}
		if !created {
			fmt.Println(WarningStyle.Render("Config already exists: ") + path)
			return nil
		}
		fmt.Println(SuccessStyle.Render("Wrote ") + path)
		return nil

	default:
		return NewValidationError("subcommand", args.Subcommand, "expected show, get, set, keys, path or init")
	}
}

// configFilePath returns --config or the default config path.
func configFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	path, err := config.ConfigPath()
	if err != nil {
		return "", &CommandError{Command: "config", Action: "locate", Reason: "no home directory", Err: err}
	}
	return path, nil
}

// configValue formats one key of cfg, redacting secrets.
func configValue(cfg *config.Config, key string) (string, error) {
	v, err := cfg.Get(key)
	if err != nil {
		return "", NewValidationError("key", key, err.Error())
	}
	if secretKeys[strings.ToLower(key)] {
		if s, _ := v.(string); s != "" {
			return "[REDACTED]", nil
		}
	}
	if list, ok := v.([]string); ok {
		return strings.Join(list, ","), nil
	}
	return fmt.Sprint(v), nil
}

// setConfigValue loads the file at path (defaults when missing), sets key,
// validates the result and writes it back.
func setConfigValue(path, key, value string) error {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return &CommandError{Command: "config", Action: "load", Reason: path, Err: err}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return &CommandError{Command: "config", Action: "load", Reason: path, Err: err}
	}

	if err := cfg.Set(key, value); err != nil {
		return NewValidationError("key", key, err.Error())
	}

	check := cfg.Clone()
	check.SetDefaults()
	if err := check.Validate(); err != nil {
		return &CommandError{Command: "config", Action: "set", Reason: "invalid value", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return &CommandError{Command: "config", Action: "save", Reason: path, Err: err}
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return &CommandError{Command: "config", Action: "save", Reason: path, Err: err}
	}
	return nil
}

// initConfigFile writes the defaults to path unless a file exists.
func initConfigFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return false, &CommandError{Command: "config", Action: "init", Reason: path, Err: err}
	}
	if err := config.SaveTOML(config.Default(), path); err != nil {
		return false, &CommandError{Command: "config", Action: "init", Reason: path, Err: err}
	}
	return true, nil
}

func showConfig(cfg *config.Config) {
	fmt.Println(TitleStyle.Render("gemchat configuration"))
	section := ""
	for _, key := range config.GetAllKeys() {
		prefix := key[:strings.Index(key, ".")]
		if prefix != section {
			section = prefix
			fmt.Println()
			fmt.Println(LabelStyle.Render("[" + section + "]"))
		}
		val, err := configValue(cfg, key)
		if err != nil {
			continue
		}
		if val == "" {
			val = DimStyle.Render("(not set)")
		}
		fmt.Printf("  %-26s %s\n", strings.TrimPrefix(key, section+"."), val)
	}
}
