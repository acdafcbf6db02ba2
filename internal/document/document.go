// Package document tracks the text of open editor buffers so diagnostics
// and corrections can be resolved against the client's current view.
package document

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf16"

	"spellfix/internal/protocol"
)

// ErrNotOpen is returned when an operation references a document the client
// has not opened.
var ErrNotOpen = fmt.Errorf("document not open")

// Document holds the content of a single open text document.
type Document struct {
	URI        protocol.DocumentURI
	LanguageID string
	Version    int
	Text       string
}

// Lines returns the document text split into lines without terminators.
func (d *Document) Lines() []string {
	return strings.Split(d.Text, "\n")
}

// TextInRange returns the text covered by the given range. Positions use
// UTF-16 code unit offsets, matching how clients address document content.
func (d *Document) TextInRange(r protocol.Range) (string, error) {
	lines := d.Lines()

	if r.Start.Line < 0 || r.Start.Line >= len(lines) {
		return "", fmt.Errorf("start line %d out of range (0..%d)", r.Start.Line, len(lines)-1)
	}
	if r.End.Line < r.Start.Line || r.End.Line >= len(lines) {
		return "", fmt.Errorf("end line %d out of range (%d..%d)", r.End.Line, r.Start.Line, len(lines)-1)
	}

	if r.Start.Line == r.End.Line {
		line := lines[r.Start.Line]
		start, err := byteOffset(line, r.Start.Character)
		if err != nil {
			return "", err
		}
		end, err := byteOffset(line, r.End.Character)
		if err != nil {
			return "", err
		}
		if end < start {
			return "", fmt.Errorf("range end before start")
		}
		return line[start:end], nil
	}

	var b strings.Builder

	first := lines[r.Start.Line]
	start, err := byteOffset(first, r.Start.Character)
	if err != nil {
		return "", err
	}
	b.WriteString(first[start:])
	b.WriteByte('\n')

	for i := r.Start.Line + 1; i < r.End.Line; i++ {
		b.WriteString(lines[i])
		b.WriteByte('\n')
	}

	last := lines[r.End.Line]
	end, err := byteOffset(last, r.End.Character)
	if err != nil {
		return "", err
	}
	b.WriteString(last[:end])

	return b.String(), nil
}

// byteOffset converts a UTF-16 code unit offset within a line to a byte offset.
func byteOffset(line string, utf16Offset int) (int, error) {
	if utf16Offset < 0 {
		return 0, fmt.Errorf("negative character offset %d", utf16Offset)
	}

	units := 0
	for i, r := range line {
		if units >= utf16Offset {
			return i, nil
		}
		units += len(utf16.Encode([]rune{r}))
	}

	if units >= utf16Offset {
		return len(line), nil
	}
	return 0, fmt.Errorf("character offset %d past end of line (%d units)", utf16Offset, units)
}

// Store keeps the set of currently open documents. All methods are safe for
// concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs map[protocol.DocumentURI]*Document
}

// NewStore creates an empty document store.
func NewStore() *Store {
	return &Store{
		docs: make(map[protocol.DocumentURI]*Document),
	}
}

// Open registers a document from a textDocument/didOpen notification.
func (s *Store) Open(item protocol.TextDocumentItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[item.URI] = &Document{
		URI:        item.URI,
		LanguageID: item.LanguageID,
		Version:    item.Version,
		Text:       item.Text,
	}
}

// Change applies a textDocument/didChange notification. Only full-document
// sync is supported; the last change event carrying no range replaces the
// entire text.
func (s *Store) Change(params protocol.DidChangeTextDocumentParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[params.TextDocument.URI]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOpen, params.TextDocument.URI)
	}

	for _, change := range params.ContentChanges {
		if change.Range != nil {
			return fmt.Errorf("incremental sync not supported for %s", params.TextDocument.URI)
		}
		doc.Text = change.Text
	}
	doc.Version = params.TextDocument.Version

	return nil
}

// Close removes a document on textDocument/didClose.
func (s *Store) Close(uri protocol.DocumentURI) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, uri)
}

// Get returns a snapshot of an open document.
func (s *Store) Get(uri protocol.DocumentURI) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, uri)
	}

	snapshot := *doc
	return &snapshot, nil
}

// Len reports the number of open documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.docs)
}
