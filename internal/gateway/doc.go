// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway translates chat-completion requests to and from Gemini.
//
// A Request carries {role, content} messages plus model, temperature,
// max_tokens, and stream. Translate applies defaults (0.7, 1000), drops
// system messages, renames assistant to model, and attaches the fixed
// safety policy. Complete returns an OpenAI-shaped Completion; Stream
// returns a FragmentStream the caller pulls with Next until io.EOF.
//
// # Key Types
//
//   - Gateway: request defaults and upstream calls
//   - Request / Completion: the application-level shapes
//   - FragmentStream: pull-based fragment iterator
//   - UpstreamError: generic failure that hides upstream detail
//
// # Usage
//
//	gw := gateway.New(gemini.NewClient(key))
//	s, err := gw.Stream(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	for {
//	    frag, err := s.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package gateway
