package parser

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/doc-analyzer/backend/internal/analysis"
)

const cleanReply = `{
  "summary": "Quarterly results improved.",
  "keywords": [{"word": "revenue", "relevance": 0.9}, {"word": "margin", "relevance": 0.4}],
  "entities": [{"name": "Acme Corp", "type": "organization", "mentions": 4, "relevance": 0.8}],
  "structure": {"sections": [{"title": "Intro", "level": 1, "content": "Overview"}]},
  "optimizations": [{"type": "clarity", "description": "Long sentences", "suggestion": "Split them"}]
}`

func TestParseFencedBlockInProse(t *testing.T) {
	raw := "Sure! Here is the analysis:\n```json\n" + cleanReply + "\n```\nLet me know if you need more."

	rec, rep, err := ParseReport(raw, "English", analysis.OutputJSON)
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if rep.Source != SourceFencedBlock || rep.Repaired {
		t.Fatalf("report = %+v", rep)
	}
	if rec.Summary != "Quarterly results improved." || len(rec.Keywords) != 2 || rec.Entities[0].Name != "Acme Corp" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Keywords[0].Word != "revenue" || rec.Keywords[1].Word != "margin" {
		t.Fatal("keyword order must follow the reply")
	}
}

func TestParseBalancedObjectIgnoresBracesInStrings(t *testing.T) {
	raw := `Result: {"summary": "use {curly} braces", "keywords": []} and then {"other": true}`

	rec, rep, err := ParseReport(raw, "English", analysis.OutputJSON)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Source != SourceBalancedObject {
		t.Fatalf("source = %s", rep.Source)
	}
	if rec.Summary != "use {curly} braces" {
		t.Fatalf("summary = %q", rec.Summary)
	}
}

func TestTrailingCommaRepairMatchesCleanParse(t *testing.T) {
	dirty := `{
  "summary": "Quarterly results improved.",
  "keywords": [{"word": "revenue", "relevance": 0.9,}, {"word": "margin", "relevance": 0.4},],
  "entities": [{"name": "Acme Corp", "type": "organization", "mentions": 4, "relevance": 0.8,},],
  "structure": {"sections": [{"title": "Intro", "level": 1, "content": "Overview"},],},
  "optimizations": [{"type": "clarity", "description": "Long sentences", "suggestion": "Split them"}],
}`

	want, err := Parse(cleanReply, "English", analysis.OutputJSON)
	if err != nil {
		t.Fatal(err)
	}
	got, rep, err := ParseReport(dirty, "English", analysis.OutputJSON)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if !rep.Repaired {
		t.Fatal("expected the repair pass to be used")
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("repaired record differs:\n got %+v\nwant %+v", got, want)
	}
}

func TestRepairSingleQuotesAndNewlines(t *testing.T) {
	raw := "{'summary': 'don\\'t panic', \"keywords\": [{'word': \"it's\", 'relevance': 1}], " +
		"\"optimizations\": [{\"type\": \"content\", \"description\": \"first line\nsecond line\", \"suggestion\": \"s\"}]}"

	rec, err := Parse(raw, "English", analysis.OutputJSON)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rec.Summary != "don't panic" {
		t.Fatalf("summary = %q", rec.Summary)
	}
	if rec.Keywords[0].Word != "it's" {
		t.Fatalf("keyword = %q", rec.Keywords[0].Word)
	}
	if rec.Optimizations[0].Description != "first line\nsecond line" {
		t.Fatalf("description = %q", rec.Optimizations[0].Description)
	}
}

func TestCallerLanguageWins(t *testing.T) {
	rec, err := Parse(`{"summary": "Bonjour", "language": "French"}`, "English", analysis.OutputJSON)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Language != "English" {
		t.Fatalf("language = %q, want caller's English", rec.Language)
	}
}

func TestValidation(t *testing.T) {
	raw := `{
  "summary": "s",
  "keywords": [{"word": "hot", "relevance": 1.7}, {"word": "cold", "relevance": -0.2}, {"word": "warm", "relevance": "0.8"}, {"word": " ", "relevance": 1}, "bare"],
  "entities": [{"name": "X", "type": "", "mentions": -3, "relevance": "85%"}, {"name": "Y", "type": "person", "mentions": "2", "relevance": null}],
  "structure": [{"title": "Top", "level": 0}, {"title": "Deep", "level": "3"}],
  "optimizations": [{"type": "Grammar", "description": "d", "suggestion": "s"}, {"type": " CLARITY ", "description": "d", "suggestion": "s"}]
}`

	rec, err := Parse(raw, "English", analysis.OutputJSON)
	if err != nil {
		t.Fatal(err)
	}

	wantKw := []analysis.Keyword{{Word: "hot", Relevance: 1}, {Word: "cold"}, {Word: "warm", Relevance: 0.8}, {Word: "bare"}}
	if !reflect.DeepEqual(rec.Keywords, wantKw) {
		t.Errorf("keywords = %+v", rec.Keywords)
	}
	wantEnt := []analysis.Entity{{Name: "X", Type: "other", Mentions: 0, Relevance: 0.85}, {Name: "Y", Type: "person", Mentions: 2, Relevance: 0}}
	if !reflect.DeepEqual(rec.Entities, wantEnt) {
		t.Errorf("entities = %+v", rec.Entities)
	}
	if rec.Structure.Sections[0].Level != 1 || rec.Structure.Sections[1].Level != 3 {
		t.Errorf("sections = %+v", rec.Structure.Sections)
	}
	if rec.Optimizations[0].Type != analysis.OptimizationContent || rec.Optimizations[1].Type != analysis.OptimizationClarity {
		t.Errorf("optimizations = %+v", rec.Optimizations)
	}
}

func TestMissingCollectionsAreEmpty(t *testing.T) {
	rec, err := Parse(`{"summary": "only a summary"}`, "English", analysis.OutputJSON)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Keywords == nil || rec.Entities == nil || rec.Structure.Sections == nil || rec.Optimizations == nil {
		t.Fatalf("nil collection in %+v", rec)
	}
	if rec.HasDiagrams() {
		t.Fatal("no diagrams expected")
	}
}

func TestDiagramsAliasAndFenceStripping(t *testing.T) {
	raw := `{"summary": "s", "diagrams": [{"title": "Flow", "description": "d", "code": "` + "```mermaid\\ngraph TD\\n  A --> B\\n```" + `"}]}`

	rec, err := Parse(raw, "English", analysis.OutputJSON)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Diagrams) != 1 || rec.Diagrams[0].Code != "graph TD\n  A --> B" {
		t.Fatalf("diagrams = %+v", rec.Diagrams)
	}
}

func TestParseErrorCarriesExcerpt(t *testing.T) {
	for _, raw := range []string{
		"I could not analyze this document.",
		`{"summary": "unterminated`,
		strings.Repeat("x", 1000) + "{ not json }",
	} {
		_, err := Parse(raw, "English", analysis.OutputJSON)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("Parse(%.20q) err = %v, want ParseError", raw, err)
		}
		if len([]rune(pe.Excerpt)) > excerptChars+3 {
			t.Fatalf("excerpt too long: %d", len(pe.Excerpt))
		}
	}
}

func TestUnstructuredFormats(t *testing.T) {
	raw := "# Report\nAll good.\n\n## Outline\n```mermaid\ngraph TD\n  A --> B\n```\n\n```mermaid\ngraph LR\n  C --> D\n```\n"

	rec, err := Parse(raw, "German", analysis.OutputMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Summary != strings.TrimSpace(raw) || rec.Language != "German" {
		t.Fatalf("record = %+v", rec)
	}
	if len(rec.Keywords) != 0 || rec.Keywords == nil {
		t.Fatal("keywords must be empty and non-nil")
	}
	if len(rec.Diagrams) != 2 {
		t.Fatalf("diagrams = %+v", rec.Diagrams)
	}
	if rec.Diagrams[0].Title != "Outline" || rec.Diagrams[0].Code != "graph TD\n  A --> B" {
		t.Fatalf("first diagram = %+v", rec.Diagrams[0])
	}
}

func TestRepairJSONLeavesValidInputAlone(t *testing.T) {
	in := `{"a": "x, }", "b": ["it's", "q\"uote"]}`
	if got := repairJSON(in); got != in {
		t.Fatalf("repairJSON changed valid JSON:\n%s\n%s", in, got)
	}
}
