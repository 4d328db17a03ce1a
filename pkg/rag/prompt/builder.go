package prompt

import (
	"strings"

	"campus-assistant-be/internal/constant"
)

// ContextualBuilder layers conversation history, retrieved references and the
// raw question under the fixed answering template.
type ContextualBuilder struct {
	history    string
	references []string
	query      string
}

// NewContextualBuilder creates a new contextual prompt builder
func NewContextualBuilder(history string, references []string, query string) *ContextualBuilder {
	return &ContextualBuilder{
		history:    strings.TrimSpace(history),
		references: references,
		query:      query,
	}
}

// Build assembles history, references and question in that order. Empty
// sections are omitted; the closing guidelines depend on whether any
// reference material was supplied. With neither history nor references the
// question is written bare under the screenshot-only template.
func (b *ContextualBuilder) Build() string {
	var prompt strings.Builder

	b.writeHistory(&prompt)

	if b.hasReferences() {
		prompt.WriteString(constant.ContextIntro)
		prompt.WriteString("\n\n")
		b.writeReferenceMaterial(&prompt)
		b.writeUserQuery(&prompt, true)
		prompt.WriteString(constant.ContextGuidelines)
		return prompt.String()
	}

	prompt.WriteString(constant.NoContextIntro)
	prompt.WriteString("\n\n")
	b.writeUserQuery(&prompt, b.history != "")
	prompt.WriteString(constant.NoContextGuidelines)
	return prompt.String()
}

func (b *ContextualBuilder) hasReferences() bool {
	for _, ref := range b.references {
		if strings.TrimSpace(ref) != "" {
			return true
		}
	}
	return false
}

func (b *ContextualBuilder) writeHistory(prompt *strings.Builder) {
	if b.history == "" {
		return
	}
	prompt.WriteString(constant.HistoryHeader)
	prompt.WriteString("\n")
	prompt.WriteString(b.history)
	prompt.WriteString("\n\n")
}

func (b *ContextualBuilder) writeReferenceMaterial(prompt *strings.Builder) {
	refs := make([]string, 0, len(b.references))
	for _, ref := range b.references {
		if strings.TrimSpace(ref) != "" {
			refs = append(refs, ref)
		}
	}

	prompt.WriteString(constant.ReferenceHeader)
	prompt.WriteString("\n")
	prompt.WriteString(strings.Join(refs, "\n\n"))
	prompt.WriteString("\n\n")
}

func (b *ContextualBuilder) writeUserQuery(prompt *strings.Builder, labeled bool) {
	if strings.TrimSpace(b.query) == "" {
		return
	}
	if labeled {
		prompt.WriteString(constant.QuestionHeader)
		prompt.WriteString("\n")
	}
	prompt.WriteString(b.query)
	prompt.WriteString("\n\n")
}
