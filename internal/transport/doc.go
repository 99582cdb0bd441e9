// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport consumes the chat endpoint from the client side.
//
// A streamed reply arrives as lines of the form
//
//	data: {"content":"<fragment>"}
//
// ending with "data: [DONE]". Stream buffers bytes, splits them on newlines,
// and keeps a trailing partial line until the next read completes it, so a
// fragment split across two network reads still decodes. Malformed lines
// are dropped without error.
//
// # Key Types
//
//   - Client: Stream, Complete, and Probe against /api/chat
//   - Stream: pull-based fragment decoder with an explicit State
//   - APIError: non-2xx response carrying the server's error message
//
// # Usage
//
//	s, err := transport.NewClient(url).Stream(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	for {
//	    frag, err := s.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    buf.WriteString(frag)
//	}
package transport
