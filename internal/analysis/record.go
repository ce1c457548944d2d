// Package analysis holds the value types produced by one document analysis.
package analysis

// Record is the structured result of analysing one document. Keywords,
// Entities and Optimizations keep the order in which the source produced
// them; callers re-sort by relevance for display.
type Record struct {
	Summary       string            `json:"summary"`
	Keywords      []Keyword         `json:"keywords"`
	Entities      []Entity          `json:"entities"`
	Structure     DocumentStructure `json:"structure"`
	Optimizations []Optimization    `json:"optimizations"`
	Diagrams      []Diagram         `json:"mermaidDiagrams,omitempty"`
	Language      string            `json:"language"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	RawText       string            `json:"rawText,omitempty"`
}

type Keyword struct {
	Word      string  `json:"word"`
	Relevance float64 `json:"relevance"`
}

type Entity struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Mentions  int     `json:"mentions"`
	Relevance float64 `json:"relevance"`
}

type DocumentStructure struct {
	Sections []Section `json:"sections"`
}

// Section is one outline entry. Its parent is the nearest preceding section
// whose Level is Level-1.
type Section struct {
	Title   string `json:"title"`
	Level   int    `json:"level"`
	Content string `json:"content"`
}

type OptimizationType string

const (
	OptimizationStructure  OptimizationType = "structure"
	OptimizationClarity    OptimizationType = "clarity"
	OptimizationContent    OptimizationType = "content"
	OptimizationFormatting OptimizationType = "formatting"
)

func (t OptimizationType) Valid() bool {
	switch t {
	case OptimizationStructure, OptimizationClarity, OptimizationContent, OptimizationFormatting:
		return true
	}
	return false
}

type Optimization struct {
	Type        OptimizationType `json:"type"`
	Description string           `json:"description"`
	Suggestion  string           `json:"suggestion"`
	Location    string           `json:"location,omitempty"`
}

// Diagram is a graph description in the flowchart grammar: node
// declarations ID["label"], edges --> ==> ===>, and subgraph ... end blocks.
type Diagram struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// HasDiagrams reports whether the record already carries diagrams.
func (r *Record) HasDiagrams() bool {
	return r != nil && len(r.Diagrams) > 0
}

// Empty returns a record with non-nil empty collections, the shape used for
// non-structured output.
func Empty(summary, language string) *Record {
	return &Record{
		Summary:       summary,
		Keywords:      []Keyword{},
		Entities:      []Entity{},
		Structure:     DocumentStructure{Sections: []Section{}},
		Optimizations: []Optimization{},
		Language:      language,
	}
}
