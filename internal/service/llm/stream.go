package llm

import (
	"bytes"
	"coach-app/internal/logger"
	"encoding/json"
	"errors"
	"io"
)

// MaxFrameSize bounds the carry-over buffer holding an unterminated SSE line
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned when a single SSE line exceeds MaxFrameSize
var ErrFrameTooLarge = errors.New("stream frame exceeds maximum size")

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// DeltaReader decodes an OpenAI-style SSE completion stream into content deltas.
// It is finite and not restartable.
type DeltaReader struct {
	r       io.Reader
	buf     []byte // bytes read but not yet split into lines
	scratch []byte
	eof     bool
	done    bool
}

// NewDeltaReader wraps a raw completion body
func NewDeltaReader(r io.Reader) *DeltaReader {
	return &DeltaReader{r: r, scratch: make([]byte, 32<<10)}
}

// Next returns the next non-empty content delta. It returns io.EOF after
// "data: [DONE]" or at the end of the body.
func (d *DeltaReader) Next() (string, error) {
	for {
		if d.done {
			return "", io.EOF
		}

		if i := bytes.IndexByte(d.buf, '\n'); i >= 0 {
			line := d.buf[:i]
			d.buf = d.buf[i+1:]
			if delta, ok := d.parseLine(line); ok {
				return delta, nil
			}
			continue
		}

		if d.eof {
			// Trailing line without a terminator
			line := d.buf
			d.buf = nil
			d.done = true
			if delta, ok := d.parseLine(line); ok {
				return delta, nil
			}
			return "", io.EOF
		}

		if len(d.buf) > MaxFrameSize {
			return "", ErrFrameTooLarge
		}

		n, err := d.r.Read(d.scratch)
		if n > 0 {
			d.buf = append(d.buf, d.scratch[:n]...)
		}
		if errors.Is(err, io.EOF) {
			d.eof = true
		} else if err != nil {
			return "", err
		}
	}
}

// parseLine handles one SSE line and reports whether it carried content
func (d *DeltaReader) parseLine(line []byte) (string, bool) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 || line[0] == ':' {
		return "", false
	}
	if !bytes.HasPrefix(line, dataPrefix) {
		return "", false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if bytes.Equal(payload, doneMarker) {
		d.done = true
		return "", false
	}

	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		logger.Log.WithError(err).Debug("Skipping malformed stream chunk")
		return "", false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, true
}
