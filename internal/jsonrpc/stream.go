package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const headerContentLength = "Content-Length"

// Stream reads and writes Content-Length framed JSON-RPC messages over an
// io.ReadWriter, typically a stdio pipe pair.
type Stream struct {
	reader *bufio.Reader
	writer io.Writer
	source io.ReadWriter
}

// NewStream creates a Stream over the given source.
func NewStream(rw io.ReadWriter) *Stream {
	return &Stream{
		reader: bufio.NewReaderSize(rw, 64*1024),
		writer: rw,
		source: rw,
	}
}

// Close closes the underlying source if it implements io.Closer.
func (s *Stream) Close() error {
	if closer, ok := s.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ReadMessage reads one framed message and returns its JSON payload.
func (s *Stream) ReadMessage() ([]byte, error) {
	contentLength := -1

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading header line: %w", err)
		}

		line = strings.TrimSuffix(line, "\r\n")
		if line == "" {
			break // end of headers
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		if strings.EqualFold(strings.TrimSpace(name), headerContentLength) {
			length, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length %q: %w", strings.TrimSpace(value), err)
			}
			if length <= 0 {
				return nil, fmt.Errorf("invalid Content-Length: %d", length)
			}
			contentLength = length
		}
	}

	if contentLength == -1 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	payload := make([]byte, contentLength)
	if _, err := io.ReadFull(s.reader, payload); err != nil {
		return nil, fmt.Errorf("reading %d-byte message body: %w", contentLength, err)
	}

	return payload, nil
}

// WriteMessage marshals msg and writes it as one framed message.
// Header and body are written in a single Write to keep frames intact when
// the underlying writer is shared.
func (s *Stream) WriteMessage(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s: %d\r\n\r\n", headerContentLength, len(payload))
	buf.Write(payload)

	if _, err := s.writer.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}
