package retrieval

import (
	"fmt"
	"strings"
)

const segmentSeparator = "\n\n---\n\n"

type Citation struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
	Section    string `json:"section,omitempty"`
}

func (c Citation) String() string {
	if c.Section == "" {
		return fmt.Sprintf("%s p.%d", c.DocumentID, c.Page)
	}
	return fmt.Sprintf("%s p.%d §%s", c.DocumentID, c.Page, c.Section)
}

func citationOf(c RetrievedChunk) Citation {
	return Citation{DocumentID: c.DocumentID, Page: c.Page, Section: c.Section}
}

// BuildContext renders passages as labelled segments in the given order.
func BuildContext(passages []RetrievedChunk) string {
	segments := make([]string, len(passages))
	for i, p := range passages {
		segments[i] = "[" + citationOf(p).String() + "]\n" + strings.TrimSpace(p.Text)
	}
	return strings.Join(segments, segmentSeparator)
}

func BuildPrompt(question string, passages []RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString("Answer the question using only the passages below. ")
	sb.WriteString("Cite every claim with the document id and page shown in the passage label, for example [smith2020 p.3]. ")
	sb.WriteString("If the passages do not contain the answer, say so.\n\n")
	sb.WriteString("Passages:\n\n")
	sb.WriteString(BuildContext(passages))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\nAnswer:")
	return sb.String()
}

// Citations lists each (document, page, section) once, in first-seen order.
func Citations(passages []RetrievedChunk) []Citation {
	seen := make(map[Citation]bool, len(passages))
	out := make([]Citation, 0, len(passages))
	for _, p := range passages {
		c := citationOf(p)
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
