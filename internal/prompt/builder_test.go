package prompt

import (
	"strings"
	"testing"

	"github.com/doc-analyzer/backend/internal/analysis"
)

func TestBuildExpandsAllTypes(t *testing.T) {
	p := Build("body", analysis.FormatDocx, analysis.DefaultOptions(), "English")

	if !strings.Contains(p, "these analysis types: summary, keywords, entities, structure, optimization.") {
		t.Fatalf("types not expanded:\n%s", p)
	}
	if !strings.Contains(p, "docx document") || !strings.Contains(p, "appears to be English") {
		t.Fatalf("format or language missing:\n%s", p)
	}
	if !strings.Contains(p, "concise analysis") {
		t.Fatal("concise directive missing")
	}
	if strings.Contains(p, "mermaidDiagrams") {
		t.Fatal("diagram schema must be absent without GenerateMermaid")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	opts := analysis.Options{Types: []analysis.AnalysisType{analysis.TypeKeywords, analysis.TypeSummary}, OutputFormat: analysis.OutputJSON, GenerateMermaid: true}
	a := Build("same text", analysis.FormatPDF, opts, "French")
	b := Build("same text", analysis.FormatPDF, opts, "French")
	if a != b {
		t.Fatal("Build is not deterministic")
	}
	if !strings.Contains(a, "keywords, summary.") {
		t.Fatalf("requested order not kept:\n%s", a)
	}
}

func TestBuildDiagramDirectives(t *testing.T) {
	jsonOpts := analysis.Options{OutputFormat: analysis.OutputJSON, GenerateMermaid: true}
	p := Build("x", analysis.FormatTXT, jsonOpts, "English")
	if !strings.Contains(p, `"mermaidDiagrams"`) || !strings.Contains(p, "Include mermaid diagrams in your JSON") {
		t.Fatalf("json diagram directive missing:\n%s", p)
	}

	mdOpts := analysis.Options{OutputFormat: analysis.OutputMarkdown, GenerateMermaid: true}
	p = Build("x", analysis.FormatTXT, mdOpts, "English")
	if strings.Contains(p, "Return a valid JSON object") {
		t.Fatal("markdown prompt must not carry the JSON schema")
	}
	if !strings.Contains(p, "mermaid diagram code blocks") {
		t.Fatalf("markdown diagram directive missing:\n%s", p)
	}

	p = Build("x", analysis.FormatTXT, analysis.Options{OutputFormat: analysis.OutputMermaid}, "English")
	if !strings.Contains(p, "Respond only with mermaid diagrams") {
		t.Fatalf("mermaid-only directive missing:\n%s", p)
	}
}

func TestBuildTruncatesOnlyContent(t *testing.T) {
	text := strings.Repeat("é", DefaultMaxContentChars+500)
	p := Build(text, analysis.FormatTXT, analysis.Options{DetailedMode: true}, "French")

	head, content, ok := strings.Cut(p, "\nDocument content:\n")
	if !ok {
		t.Fatal("content marker missing")
	}
	if got := len([]rune(content)); got != DefaultMaxContentChars {
		t.Fatalf("content length = %d, want %d", got, DefaultMaxContentChars)
	}
	if !strings.Contains(head, "detailed analysis") || !strings.Contains(head, `"optimizations"`) {
		t.Fatalf("instructions damaged:\n%s", head)
	}

	small := Builder{MaxContentChars: 10}.Build("0123456789abcdef", analysis.FormatTXT, analysis.Options{}, "English")
	if !strings.HasSuffix(small, "\nDocument content:\n0123456789") {
		t.Fatalf("custom bound not applied: %q", small[len(small)-40:])
	}
}
