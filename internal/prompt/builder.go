// Package prompt renders the instruction sent to the generation service.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/doc-analyzer/backend/internal/analysis"
)

// DefaultMaxContentChars bounds how much document text goes into a prompt.
const DefaultMaxContentChars = 15000

const jsonSchema = `{
  "summary": "A comprehensive summary of the document content",
  "keywords": [{"word": "keyword", "relevance": 0-1 score}],
  "entities": [{"name": "entity name", "type": "person/organization/date/etc", "mentions": count, "relevance": 0-1 score}],
  "structure": {"sections": [{"title": "section title", "level": hierarchy level starting at 1, "content": "brief content description"}]},
  "optimizations": [{"type": "structure/clarity/content/formatting", "description": "issue description", "suggestion": "improvement suggestion", "location": "where in the document"}]`

const diagramSchema = `,
  "mermaidDiagrams": [
    {
      "title": "Diagram title",
      "description": "What this diagram shows",
      "code": "mermaid diagram code"
    }
  ]`

// Builder renders prompts. The zero value uses DefaultMaxContentChars.
type Builder struct {
	MaxContentChars int
}

// Build renders a prompt with the default content bound.
func Build(text string, format analysis.Format, opts analysis.Options, language string) string {
	return Builder{}.Build(text, format, opts, language)
}

// Build is deterministic. Instructions come first and are never cut; only
// the document content at the end is truncated.
func (b Builder) Build(text string, format analysis.Format, opts analysis.Options, language string) string {
	output := opts.OutputFormat
	if output == "" {
		output = analysis.OutputJSON
	}

	types := opts.ExpandedTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the following %s document content. The document language appears to be %s.\n\n", format, language)
	fmt.Fprintf(&sb, "Please perform these analysis types: %s.\n", strings.Join(names, ", "))
	if opts.DetailedMode {
		sb.WriteString("Provide a detailed analysis.\n")
	} else {
		sb.WriteString("Provide a concise analysis.\n")
	}

	switch output {
	case analysis.OutputJSON:
		sb.WriteString("Format your response in json.\n")
		if opts.GenerateMermaid {
			sb.WriteString("Include mermaid diagrams in your JSON response that represent the document structure or key concepts as flowcharts.\n")
		}
		sb.WriteString("\nReturn a valid JSON object with this structure:\n")
		sb.WriteString(jsonSchema)
		if opts.GenerateMermaid {
			sb.WriteString(diagramSchema)
		}
		sb.WriteString("\n}\n")
	case analysis.OutputMarkdown:
		sb.WriteString("Format your response in markdown.\n")
		sb.WriteString("Use markdown headings to structure your response.\n")
		if opts.GenerateMermaid {
			sb.WriteString("Include mermaid diagram code blocks to visualize the document structure.\n")
		}
	case analysis.OutputMermaid:
		sb.WriteString("Respond only with mermaid diagrams in ```mermaid code blocks: one for the document structure and one for the key entities and their relationships.\n")
	default:
		fmt.Fprintf(&sb, "Format your response in %s.\n", output)
	}

	sb.WriteString("\nDocument content:\n")
	sb.WriteString(truncate(text, b.maxContentChars()))
	return sb.String()
}

func (b Builder) maxContentChars() int {
	if b.MaxContentChars > 0 {
		return b.MaxContentChars
	}
	return DefaultMaxContentChars
}

// truncate cuts text to at most n characters without splitting a rune.
func truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n])
}
