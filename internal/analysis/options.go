package analysis

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies the container format of an input document.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDocx Format = "docx"
	FormatPptx Format = "pptx"
	FormatTXT  Format = "txt"
	FormatHTML Format = "html"
)

// FormatFromPath maps a file extension to a Format. Text-like files are read
// as plain text.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF, true
	case ".docx":
		return FormatDocx, true
	case ".pptx":
		return FormatPptx, true
	case ".txt", ".md", ".csv", ".json", ".xml":
		return FormatTXT, true
	case ".html", ".htm":
		return FormatHTML, true
	default:
		return "", false
	}
}

type AnalysisType string

const (
	TypeSummary      AnalysisType = "summary"
	TypeKeywords     AnalysisType = "keywords"
	TypeEntities     AnalysisType = "entities"
	TypeStructure    AnalysisType = "structure"
	TypeOptimization AnalysisType = "optimization"
	TypeAll          AnalysisType = "all"
)

// AllTypes is what TypeAll expands to, in prompt order.
var AllTypes = []AnalysisType{TypeSummary, TypeKeywords, TypeEntities, TypeStructure, TypeOptimization}

func ParseAnalysisType(s string) (AnalysisType, error) {
	t := AnalysisType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeSummary, TypeKeywords, TypeEntities, TypeStructure, TypeOptimization, TypeAll:
		return t, nil
	}
	return "", fmt.Errorf("invalid analysis type: %q", s)
}

// ParseAnalysisTypes parses a comma separated list; an empty list means all.
func ParseAnalysisTypes(list string) ([]AnalysisType, error) {
	if strings.TrimSpace(list) == "" {
		return []AnalysisType{TypeAll}, nil
	}
	var types []AnalysisType
	for _, part := range strings.Split(list, ",") {
		t, err := ParseAnalysisType(part)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

type OutputFormat string

const (
	OutputJSON     OutputFormat = "json"
	OutputMarkdown OutputFormat = "markdown"
	OutputText     OutputFormat = "text"
	OutputMermaid  OutputFormat = "mermaid"
)

func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return OutputJSON, nil
	case OutputJSON, OutputMarkdown, OutputText, OutputMermaid:
		return f, nil
	case "mermaid-only":
		return OutputMermaid, nil
	}
	return "", fmt.Errorf("invalid output format: %q", s)
}

// Structured reports whether replies in this format are parsed as JSON.
func (f OutputFormat) Structured() bool {
	return f == OutputJSON
}

type Options struct {
	Types           []AnalysisType `json:"types"`
	OutputFormat    OutputFormat   `json:"outputFormat"`
	GenerateMermaid bool           `json:"generateMermaid"`
	DetailedMode    bool           `json:"detailedMode"`
	PreserveRawText bool           `json:"preserveRawText"`
}

func DefaultOptions() Options {
	return Options{
		Types:        []AnalysisType{TypeAll},
		OutputFormat: OutputJSON,
	}
}

// ExpandedTypes resolves TypeAll and drops duplicates, keeping first-seen
// order.
func (o Options) ExpandedTypes() []AnalysisType {
	types := o.Types
	if len(types) == 0 {
		types = []AnalysisType{TypeAll}
	}
	for _, t := range types {
		if t == TypeAll {
			return append([]AnalysisType(nil), AllTypes...)
		}
	}

	seen := make(map[AnalysisType]bool, len(types))
	out := make([]AnalysisType, 0, len(types))
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Key is a stable text form of the options, used in cache fingerprints.
func (o Options) Key() string {
	types := o.ExpandedTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	format := o.OutputFormat
	if format == "" {
		format = OutputJSON
	}
	return fmt.Sprintf("%s|%s|mermaid=%t|detailed=%t|raw=%t",
		strings.Join(names, ","), format, o.GenerateMermaid, o.DetailedMode, o.PreserveRawText)
}
