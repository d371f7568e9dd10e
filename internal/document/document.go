// Package document recovers readable text from uploaded CV files.
//
// Every format is handled by an ordered chain of strategies. Each strategy is
// tried in turn until one produces text long enough to be useful; the chain
// degrades from structured parsing to raw byte scanning and finally to a
// labelled placeholder.
package document

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MediaTypePDF      = "application/pdf"
	MediaTypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeMSWord   = "application/msword"
	MediaTypeText     = "text/plain"
	MediaTypeMarkdown = "text/markdown"

	mediaTypeOctetStream = "application/octet-stream"
)

// MinTextLength is the minimum length of recovered text considered usable.
const MinTextLength = 100

var (
	// ErrUnsupportedFormat is returned when a document's media type is not PDF, DOCX or text.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrExtractionBelowThreshold is returned for PDFs in strict mode when every strategy
	// recovered less than the minimum usable text.
	ErrExtractionBelowThreshold = errors.New("extracted text below threshold")
)

// UnsupportedFormatError names the media type that could not be handled.
type UnsupportedFormatError struct {
	MediaType string
	Filename  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s: %q (%s)", ErrUnsupportedFormat, e.MediaType, e.Filename)
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// RawDocument is an uploaded file held in memory.
type RawDocument struct {
	Data      []byte
	MediaType string
	Filename  string
}

// ExtractionResult is the text recovered from a RawDocument.
type ExtractionResult struct {
	Text      string
	PageCount int
	WordCount int
	// Method names the strategy that produced Text.
	Method string
	// Placeholder is set when Text is synthesized because nothing usable was recovered.
	Placeholder bool
}

// Kind is the document family used to pick a strategy chain.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
	KindText Kind = "text"
)

// ResolveKind maps a declared media type, the file name and, as a last resort,
// the content itself to a document kind.
func ResolveKind(doc RawDocument) (Kind, error) {
	declared := normalizeMediaType(doc.MediaType)

	if declared == "" || declared == mediaTypeOctetStream {
		if kind, ok := kindFromExtension(doc.Filename); ok {
			return kind, nil
		}
		sniffed := normalizeMediaType(mimetype.Detect(doc.Data).String())
		if kind, ok := kindFromMediaType(sniffed); ok {
			return kind, nil
		}
		if declared == "" {
			declared = sniffed
		}
		return "", &UnsupportedFormatError{MediaType: declared, Filename: doc.Filename}
	}

	if kind, ok := kindFromMediaType(declared); ok {
		return kind, nil
	}

	return "", &UnsupportedFormatError{MediaType: doc.MediaType, Filename: doc.Filename}
}

func normalizeMediaType(mediaType string) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return strings.ToLower(mediaType)
	}
	return parsed
}

func kindFromMediaType(mediaType string) (Kind, bool) {
	switch mediaType {
	case MediaTypePDF:
		return KindPDF, true
	case MediaTypeDOCX, MediaTypeMSWord, "application/zip":
		return KindDOCX, true
	case MediaTypeText, MediaTypeMarkdown:
		return KindText, true
	default:
		return "", false
	}
}

func kindFromExtension(filename string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF, true
	case ".docx", ".doc":
		return KindDOCX, true
	case ".txt", ".md", ".text":
		return KindText, true
	default:
		return "", false
	}
}
