package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/nstogner/codechat/pkg/store"
)

// MarkdownExporter renders a readable transcript. Code is fenced as
// javascript and captured output as html.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(session *store.Session, w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", session.Name)
	fmt.Fprintf(&b, "**Session:** %s  \n", session.ID)
	fmt.Fprintf(&b, "**Created:** %s  \n", session.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Messages:** %d\n\n", len(session.Messages))

	for i, msg := range session.Messages {
		b.WriteString("---\n\n")
		fmt.Fprintf(&b, "**%s:**\n\n", roleTitle(msg.Role))
		if msg.Content != "" {
			b.WriteString(msg.Content)
			b.WriteString("\n\n")
		}
		// The assistant reply repeats the code; show it once.
		if msg.Code != "" && (msg.Role == store.RoleUser || !repeatsCode(session.Messages, i)) {
			writeFence(&b, "javascript", msg.Code)
		}
		if msg.Output != "" {
			writeFence(&b, "html", msg.Output)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func repeatsCode(msgs []store.Message, i int) bool {
	for j := i - 1; j >= 0; j-- {
		if msgs[j].Role == store.RoleUser {
			return msgs[j].Code == msgs[i].Code
		}
	}
	return false
}

// writeFence picks a fence longer than any backtick run inside body.
func writeFence(b *strings.Builder, lang, body string) {
	fence := "```"
	for strings.Contains(body, fence) {
		fence += "`"
	}
	fmt.Fprintf(b, "%s%s\n%s\n%s\n\n", fence, lang, strings.TrimRight(body, "\n"), fence)
}

func roleTitle(r store.MessageRole) string {
	switch r {
	case store.RoleUser:
		return "User"
	case store.RoleAssistant:
		return "Assistant"
	}
	return string(r)
}

func (e *MarkdownExporter) Extension() string   { return "md" }
func (e *MarkdownExporter) ContentType() string { return "text/markdown; charset=utf-8" }
