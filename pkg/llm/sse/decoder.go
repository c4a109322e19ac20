// Package sse decodes the line-framed event stream emitted by the generation
// gateway. Each frame is a "data: " line carrying either a JSON object
// {"type": "text"|"error", "content": "..."} or the literal terminator [DONE].
package sse

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"daw-agent-be/pkg/llm"
)

const (
	dataPrefix = "data:"
	doneMarker = "[DONE]"

	maxLineSize = 1024 * 1024
)

// ErrMalformedFrame is reported for data lines whose payload is not valid JSON.
var ErrMalformedFrame = errors.New("malformed sse frame")

// Decoder splits an io.Reader into generation events.
type Decoder struct {
	scanner *bufio.Scanner
	done    bool

	// OnMalformed is called with the raw payload of frames that fail to decode.
	// Those frames are skipped.
	OnMalformed func(payload string, err error)
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{scanner: scanner}
}

// Next returns the next event. After a done event, or once the reader is
// exhausted, it returns io.EOF.
func (d *Decoder) Next() (llm.Event, error) {
	if d.done {
		return llm.Event{}, io.EOF
	}

	for d.scanner.Scan() {
		ev, ok, err := ParseLine(d.scanner.Text())
		if err != nil {
			if d.OnMalformed != nil {
				d.OnMalformed(d.scanner.Text(), err)
			}
			continue
		}
		if !ok {
			continue
		}
		if ev.Type == llm.EventDone {
			d.done = true
		}
		return ev, nil
	}

	if err := d.scanner.Err(); err != nil {
		return llm.Event{}, err
	}
	d.done = true
	return llm.Event{}, io.EOF
}

// ParseLine decodes one line. ok is false for blank lines, comments and
// fields other than data.
func ParseLine(line string) (llm.Event, bool, error) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return llm.Event{}, false, nil
	}

	payload := strings.TrimPrefix(line[len(dataPrefix):], " ")
	if payload == doneMarker {
		return llm.Event{Type: llm.EventDone}, true, nil
	}
	if strings.TrimSpace(payload) == "" {
		return llm.Event{}, false, nil
	}

	var ev llm.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return llm.Event{}, false, errors.Join(ErrMalformedFrame, err)
	}
	if ev.Type == "" {
		ev.Type = llm.EventText
	}
	return ev, true, nil
}

// Stream adapts a Decoder to llm.Stream, surfacing error events as errors.
type Stream struct {
	dec    *Decoder
	closer io.Closer
}

func NewStream(body io.ReadCloser) *Stream {
	return &Stream{dec: NewDecoder(body), closer: body}
}

// Decoder exposes the underlying decoder so callers can hook OnMalformed.
func (s *Stream) Decoder() *Decoder {
	return s.dec
}

func (s *Stream) Recv() (string, error) {
	for {
		ev, err := s.dec.Next()
		if err != nil {
			return "", err
		}
		switch ev.Type {
		case llm.EventText:
			if ev.Content == "" {
				continue
			}
			return ev.Content, nil
		case llm.EventError:
			return "", errors.Join(llm.ErrStreamFailed, errors.New(ev.Content))
		case llm.EventDone:
			return "", io.EOF
		}
	}
}

func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
