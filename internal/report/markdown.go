// Package report renders analysis records for people.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/doc-analyzer/backend/internal/analysis"
)

// Markdown renders rec as a markdown document. Keywords are listed by
// descending relevance, entities grouped by type, and the outline is
// indented by section level.
func Markdown(rec *analysis.Record) string {
	var sb strings.Builder

	sb.WriteString("# Document Analysis\n\n")
	if rec.Language != "" {
		fmt.Fprintf(&sb, "**Language:** %s\n\n", rec.Language)
	}

	if rec.Summary != "" {
		sb.WriteString("## Summary\n\n")
		sb.WriteString(rec.Summary)
		sb.WriteString("\n\n")
	}

	if len(rec.Keywords) > 0 {
		sb.WriteString("## Keywords\n\n")
		keywords := append([]analysis.Keyword(nil), rec.Keywords...)
		sort.SliceStable(keywords, func(i, j int) bool { return keywords[i].Relevance > keywords[j].Relevance })
		for _, k := range keywords {
			fmt.Fprintf(&sb, "- %s (%.2f)\n", k.Word, k.Relevance)
		}
		sb.WriteString("\n")
	}

	if len(rec.Entities) > 0 {
		sb.WriteString("## Entities\n\n")
		var types []string
		byType := make(map[string][]analysis.Entity)
		for _, e := range rec.Entities {
			if _, ok := byType[e.Type]; !ok {
				types = append(types, e.Type)
			}
			byType[e.Type] = append(byType[e.Type], e)
		}
		for _, typ := range types {
			fmt.Fprintf(&sb, "### %s\n\n", titleCase(typ))
			for _, e := range byType[typ] {
				fmt.Fprintf(&sb, "- %s (mentions: %d, relevance: %.2f)\n", e.Name, e.Mentions, e.Relevance)
			}
			sb.WriteString("\n")
		}
	}

	if len(rec.Structure.Sections) > 0 {
		sb.WriteString("## Structure\n\n")
		for _, s := range rec.Structure.Sections {
			indent := strings.Repeat("  ", max(s.Level-1, 0))
			fmt.Fprintf(&sb, "%s- %s\n", indent, s.Title)
		}
		sb.WriteString("\n")
	}

	if len(rec.Optimizations) > 0 {
		sb.WriteString("## Suggested Improvements\n\n")
		for i, o := range rec.Optimizations {
			fmt.Fprintf(&sb, "%d. **%s**: %s\n", i+1, titleCase(string(o.Type)), o.Description)
			if o.Suggestion != "" {
				fmt.Fprintf(&sb, "   - Suggestion: %s\n", o.Suggestion)
			}
			if o.Location != "" {
				fmt.Fprintf(&sb, "   - Location: %s\n", o.Location)
			}
		}
		sb.WriteString("\n")
	}

	for _, d := range rec.Diagrams {
		fmt.Fprintf(&sb, "## %s\n\n", d.Title)
		if d.Description != "" {
			sb.WriteString(d.Description)
			sb.WriteString("\n\n")
		}
		sb.WriteString("```mermaid\n")
		sb.WriteString(d.Code)
		sb.WriteString("\n```\n\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
