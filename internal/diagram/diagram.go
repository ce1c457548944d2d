// Package diagram derives flowchart diagrams from an analysis record. It
// makes no external calls; the same record always yields the same text.
package diagram

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/doc-analyzer/backend/internal/analysis"
)

const (
	titleLabelLen  = 30
	entityLabelLen = 20

	entityMinRelevance = 0.5
	maxEntities        = 10

	rootNode = "Document"
	docNode  = "Doc"

	NoSectionsPlaceholder = "graph TD\n  A[Document] --> B[No structured sections found]"
	NoEntitiesPlaceholder = "graph LR\n  A[Document] --> B[No significant entities detected]"
)

// Synthesize returns the structure and entity diagrams for rec.
func Synthesize(rec *analysis.Record) []analysis.Diagram {
	return []analysis.Diagram{
		{
			Title:       "Document Structure",
			Description: "Visualization of document sections and hierarchy",
			Code:        Structure(rec.Structure.Sections),
		},
		{
			Title:       "Entity Relationships",
			Description: "Key entities and their relationships in the document",
			Code:        Entities(rec.Entities),
		},
	}
}

// Structure draws the outline top-down. Level-1 sections hang off the
// Document root. A deeper section hangs off the last section seen at the
// nearest lower level, searching down from level-1; with no lower level
// seen yet it hangs off the preceding section, or the root if it is first.
func Structure(sections []analysis.Section) string {
	if len(sections) == 0 {
		return NoSectionsPlaceholder
	}

	lines := []string{"graph TD", fmt.Sprintf("  %s[%q]", rootNode, rootNode)}
	ids := make([]string, len(sections))
	for i, s := range sections {
		ids[i] = fmt.Sprintf("N%d", i)
		lines = append(lines, fmt.Sprintf("  %s[\"%s\"]", ids[i], label(s.Title, titleLabelLen)))
	}

	lastByLevel := make(map[int]string)
	for i, s := range sections {
		parent := rootNode
		if s.Level > 1 {
			parent = ""
			for l := s.Level - 1; l >= 1; l-- {
				if id, ok := lastByLevel[l]; ok {
					parent = id
					break
				}
			}
			if parent == "" {
				if i > 0 {
					parent = ids[i-1]
				} else {
					parent = rootNode
				}
			}
		}
		lines = append(lines, fmt.Sprintf("  %s --> %s", parent, ids[i]))
		lastByLevel[s.Level] = ids[i]
	}

	return strings.Join(lines, "\n")
}

// Entities draws the ten most relevant entities above 0.5, clustered by
// type, with the edge from the document weighted in three tiers.
func Entities(entities []analysis.Entity) string {
	top := topEntities(entities)
	if len(top) == 0 {
		return NoEntitiesPlaceholder
	}

	var types []string
	byType := make(map[string][]int)
	for i, e := range top {
		if _, ok := byType[e.Type]; !ok {
			types = append(types, e.Type)
		}
		byType[e.Type] = append(byType[e.Type], i)
	}

	lines := []string{"graph LR", fmt.Sprintf("  %s[%s]", docNode, rootNode)}
	used := make(map[string]int, len(types))
	for _, typ := range types {
		cluster := clusterName(typ)
		used[cluster]++
		if n := used[cluster]; n > 1 {
			cluster = fmt.Sprintf("%s_%d", cluster, n)
		}
		lines = append(lines, "  subgraph "+cluster)
		for _, i := range byType[typ] {
			e := top[i]
			id := fmt.Sprintf("E%d", i)
			lines = append(lines,
				fmt.Sprintf("    %s[\"%s\"]", id, label(e.Name, entityLabelLen)),
				fmt.Sprintf("    %s %s %s", docNode, connector(e.Relevance), id),
			)
		}
		lines = append(lines, "  end")
	}

	return strings.Join(lines, "\n")
}

// topEntities filters by relevance, sorts descending keeping the original
// order among equals, and keeps the first maxEntities.
func topEntities(entities []analysis.Entity) []analysis.Entity {
	var kept []analysis.Entity
	for _, e := range entities {
		if e.Relevance > entityMinRelevance {
			kept = append(kept, e)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Relevance > kept[j].Relevance })
	if len(kept) > maxEntities {
		kept = kept[:maxEntities]
	}
	return kept
}

func connector(relevance float64) string {
	switch {
	case relevance > 0.8:
		return "===>"
	case relevance > 0.6:
		return "==>"
	default:
		return "-->"
	}
}

// label makes text safe inside ["..."] and cuts it to n characters,
// marking the cut with an ellipsis.
func label(text string, n int) string {
	text = strings.ReplaceAll(text, `"`, "'")
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

// clusterName turns a free-form entity type into a subgraph identifier. The
// T_ prefix keeps it apart from node ids and keywords such as end.
func clusterName(typ string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return '_'
	}, strings.TrimSpace(typ))
	if strings.Trim(name, "_") == "" {
		name = "other"
	}
	return "T_" + name
}
