// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
)

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next event and returns its joined data lines.
// Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		eof := err == io.EOF

		line = bytes.TrimRight(line, "\r\n")
		switch {
		case len(line) == 0:
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
		case bytes.HasPrefix(line, []byte("data:")):
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// event:, id:, retry: and comments are ignored.

		if eof {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			return nil, io.EOF
		}
	}
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is a single-pass sequence of partial GenerateResponse values.
type Stream struct {
	body   io.ReadCloser
	reader *SSEReader
	events int
	closed bool
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, reader: NewSSEReader(body)}
}

// Next returns the next partial response, or io.EOF once the upstream
// closes the stream. Events that do not decode are skipped.
func (s *Stream) Next() (*GenerateResponse, error) {
	if s.closed {
		return nil, io.EOF
	}
	for {
		data, err := s.reader.ReadEvent()
		if err == io.EOF {
			s.Close()
			return nil, io.EOF
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("stream read failed: %w", err)
		}

		var chunk GenerateResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			log.Printf("GEMINI_STREAM_SKIP | bytes=%d", len(data))
			continue
		}
		s.events++
		return &chunk, nil
	}
}

// Events returns the number of responses decoded so far.
func (s *Stream) Events() int {
	return s.events
}

// Close releases the underlying connection. It is safe to call twice.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
