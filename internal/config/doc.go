// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for gemchat.
//
// Configuration is TOML with sensible defaults, dotenv files, environment
// variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all sections
//   - GeminiConfig: API key, endpoint and default model of the provider
//   - ServerConfig: listen address, CORS origins, rate limits
//   - StorageConfig: persistence backend selection
//   - ClientConfig: gateway URL and generation settings of the chat client
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (GEMINI_API_KEY, GEMCHAT_*)
//   - .env.local, then .env in the working directory
//   - ~/.gemchat/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	kv, err := storage.Open(ctx, cfg.StorageOptions())
package config
