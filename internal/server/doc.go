// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the HTTP surface of the chat application.
//
// It fronts the Gemini gateway with a small JSON API and proxies account
// and chat-history calls to the remote backend.
//
// # Endpoints
//
//   - POST /api/chat                 - chat completion, streaming or not
//   - GET  /api/chat                 - capability probe listing models
//   - POST /api/auth/register        - backend proxy, public
//   - POST /api/auth/logout          - backend proxy
//   - GET  /api/user                 - backend proxy
//   - GET|PUT /api/user/preferences  - backend proxy
//   - GET|POST /api/chats            - backend proxy
//   - GET|PUT|DELETE /api/chats/{id} - backend proxy
//   - GET|POST /api/chats/{id}/messages - backend proxy
//   - GET  /health                   - health check
//
// Errors are always {"error": "..."}. A streaming response is plain text
// made of "data: {\"content\":...}" lines terminated by "data: [DONE]".
//
// # Middleware
//
//   - Panic recovery to a generic 500
//   - Security headers
//   - Request logging
//   - CORS with an origin allowlist
//   - Per-IP token bucket rate limiting (golang.org/x/time/rate)
//
// # Key Types
//
//   - Server: HTTP server with router and middleware
//   - RateLimiter: per-client token buckets
//   - CORSConfig: allowed origins, methods and headers
//
// # Usage
//
//	gw := gateway.New(gemini.NewClient(apiKey))
//	srv := server.NewServer("127.0.0.1", 3000).
//		WithGateway(gw).
//		WithBackend(backend.NewClient(backendURL)).
//		WithRateLimiter(server.DefaultRateLimiter())
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
package server
