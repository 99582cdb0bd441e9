// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DataPrefix marks a data line in the stream body.
	DataPrefix = "data: "

	// DoneSentinel ends the stream.
	DoneSentinel = "[DONE]"

	readChunkSize = 4096
)

// ErrNoResponseBody is returned when a successful response has no body.
var ErrNoResponseBody = errors.New("no response body")

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle state of a Stream.
type State int

const (
	StateAwaitingFirstByte State = iota
	StateStreaming
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAwaitingFirstByte:
		return "awaiting_first_byte"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// =============================================================================
// STREAM
// =============================================================================

// Stream decodes a chunked response body into text fragments.
//
// Complete lines are processed as they arrive; a trailing partial line is
// kept in the buffer until the next read completes it. Lines that are not
// data lines or whose payload does not decode are skipped.
type Stream struct {
	body    io.ReadCloser
	state   State
	buf     []byte
	pending []string
	err     error
	chunk   []byte
}

// NewStream wraps an already-successful response body.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{
		body:  body,
		state: StateAwaitingFirstByte,
		chunk: make([]byte, readChunkSize),
	}
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	return s.state
}

// Next returns the next fragment. It returns io.EOF once the terminator is
// seen or the body ends, and the failure on every call after a failure.
func (s *Stream) Next() (string, error) {
	for {
		if len(s.pending) > 0 {
			frag := s.pending[0]
			s.pending = s.pending[1:]
			return frag, nil
		}

		switch s.state {
		case StateDone:
			return "", io.EOF
		case StateFailed:
			return "", s.err
		}

		n, err := s.body.Read(s.chunk)
		if n > 0 {
			s.state = StateStreaming
			s.buf = append(s.buf, s.chunk[:n]...)
			if s.drain(false) {
				continue
			}
		}
		if err == io.EOF {
			s.drain(true)
			s.finish(StateDone, nil)
			continue
		}
		if err != nil {
			s.finish(StateFailed, fmt.Errorf("stream read failed: %w", err))
		}
	}
}

// Close releases the body. Later calls to Next return io.EOF unless the
// stream already failed.
func (s *Stream) Close() error {
	if s.state == StateAwaitingFirstByte || s.state == StateStreaming {
		s.state = StateDone
	}
	if s.body == nil {
		return nil
	}
	body := s.body
	s.body = nil
	return body.Close()
}

// drain processes every complete line in the buffer, and at EOF the
// trailing partial line too. It returns true if the terminator was seen.
func (s *Stream) drain(final bool) bool {
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		line := s.buf[:i]
		s.buf = s.buf[i+1:]
		if s.processLine(line) {
			s.finish(StateDone, nil)
			return true
		}
	}
	if final && len(s.buf) > 0 {
		line := s.buf
		s.buf = nil
		if s.processLine(line) {
			s.finish(StateDone, nil)
			return true
		}
	}
	return false
}

// processLine queues the fragment of one line and reports whether the line
// was the terminator.
func (s *Stream) processLine(line []byte) bool {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		return false
	}
	payload := line[len(DataPrefix):]
	if string(payload) == DoneSentinel {
		return true
	}

	var frag struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(payload, &frag); err != nil {
		log.Printf("TRANSPORT_LINE_SKIPPED | bytes=%d", len(payload))
		return false
	}
	if frag.Content != nil && *frag.Content != "" {
		s.pending = append(s.pending, *frag.Content)
	}
	return false
}

func (s *Stream) finish(state State, err error) {
	s.state = state
	s.err = err
	s.buf = nil
	if s.body != nil {
		_ = s.body.Close()
		s.body = nil
	}
}
