package export

import (
	"encoding/json"
	"io"

	"github.com/nstogner/codechat/pkg/store"
)

// JSONExporter writes the session as one indented JSON document.
type JSONExporter struct{}

func (e *JSONExporter) Export(session *store.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(session)
}

func (e *JSONExporter) Extension() string   { return "json" }
func (e *JSONExporter) ContentType() string { return "application/json" }
