package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nstogner/codechat/pkg/store"
)

// header is the first line of a JSONL export.
type header struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"timestamp"`
}

type entry struct {
	Type string `json:"type"`
	store.Message
}

// JSONLExporter writes a session header line followed by one line per message.
type JSONLExporter struct{}

func (e *JSONLExporter) Export(session *store.Session, w io.Writer) error {
	enc := json.NewEncoder(w)

	if err := enc.Encode(header{Type: "session", ID: session.ID, Name: session.Name, CreatedAt: session.CreatedAt}); err != nil {
		return fmt.Errorf("failed to encode session header: %w", err)
	}
	for _, msg := range session.Messages {
		if err := enc.Encode(entry{Type: "message", Message: msg}); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}
	return nil
}

func (e *JSONLExporter) Extension() string   { return "jsonl" }
func (e *JSONLExporter) ContentType() string { return "application/x-ndjson" }
