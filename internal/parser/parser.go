package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
)

// ErrUnreadable is returned when the bytes are not a document the reader
// understands.
var ErrUnreadable = errors.New("unreadable document")

// ErrUnsupported is returned for file types with no reader.
var ErrUnsupported = errors.New("unsupported file type")

// Source is an element stream that also collects the warnings raised while
// decoding. Warnings is complete once Next has returned io.EOF.
type Source interface {
	doctree.Stream
	Warnings() []doctree.Warning
}

// Reader opens raw document bytes as a Source.
type Reader interface {
	Open(data []byte) (Source, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".docx":     true,
	".md":       true,
	".markdown": true,
}

// ForFile returns the appropriate reader for a filename.
func ForFile(filename string) (Reader, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".docx":
		return &DOCXReader{}, nil
	case ".md", ".markdown":
		return &MarkdownReader{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

type warnings struct {
	list []doctree.Warning
}

func (w *warnings) add(code, format string, args ...any) {
	w.list = append(w.list, doctree.Warning{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (w *warnings) Warnings() []doctree.Warning {
	return w.list
}
