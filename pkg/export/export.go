package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nstogner/codechat/pkg/store"
)

// ErrUnknownFormat is returned by New for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown export format")

// Exporter renders a session snapshot in one format.
type Exporter interface {
	Export(session *store.Session, w io.Writer) error
	Extension() string
	ContentType() string
}

// New returns the exporter for format.
func New(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "", "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	}
	return nil, fmt.Errorf("%w: %s (supported: jsonl, md, yaml, json)", ErrUnknownFormat, format)
}
