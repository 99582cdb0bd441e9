// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini provides a minimal REST client for the Gemini API.
//
// It speaks the v1beta generateContent and streamGenerateContent methods and
// nothing else. Translation from chat-style requests lives in the gateway
// package; this package only moves the upstream wire types.
//
// # Key Types
//
//   - Client: API key, base URL, and HTTP clients
//   - GenerateRequest / GenerateResponse: upstream wire shapes
//   - Stream: pull-based reader over a streamGenerateContent?alt=sse body
//   - APIError: upstream error with status and message
//
// # Usage
//
//	c := gemini.NewClient(apiKey)
//	resp, err := c.GenerateContent(ctx, "gemini-1.5-flash", gemini.GenerateRequest{
//	    Contents: []gemini.Content{{Role: gemini.RoleUser, Parts: []gemini.Part{{Text: "Hi"}}}},
//	})
package gemini
