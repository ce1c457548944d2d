// Package parser turns a generation reply into an analysis record. Replies
// are rarely clean JSON: the object may sit inside a code fence or prose,
// and may carry trailing commas, single quotes or raw newlines.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/doc-analyzer/backend/internal/analysis"
)

type CandidateSource string

const (
	SourceFencedBlock     CandidateSource = "fenced_block"
	SourceBalancedObject  CandidateSource = "balanced_object"
	SourceOutermostBraces CandidateSource = "outermost_braces"
	SourceWholeText       CandidateSource = "whole_text"
)

// Report says where the record came from.
type Report struct {
	Source   CandidateSource
	Repaired bool
}

const excerptChars = 200

// ParseError carries a bounded excerpt of the reply that failed to parse.
type ParseError struct {
	Reason  string
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse reply: %s: %v (excerpt: %q)", e.Reason, e.Err, e.Excerpt)
	}
	return fmt.Sprintf("parse reply: %s (excerpt: %q)", e.Reason, e.Excerpt)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	jsonFence    = regexp.MustCompile("(?is)```json[ \\t]*\\r?\\n?(.*?)```")
	mermaidFence = regexp.MustCompile("(?s)```mermaid[ \\t]*\\r?\\n?(.*?)```")
	anyFence     = regexp.MustCompile("(?s)^```[a-zA-Z]*[ \\t]*\\r?\\n?(.*?)```$")
)

var errNotObject = errors.New("candidate is not a JSON object")

// Parse builds a record from raw. The caller's language always replaces
// whatever the reply claims.
func Parse(raw, language string, format analysis.OutputFormat) (*analysis.Record, error) {
	rec, _, err := ParseReport(raw, language, format)
	return rec, err
}

// ParseReport is Parse plus a Report describing which candidate decoded.
func ParseReport(raw, language string, format analysis.OutputFormat) (*analysis.Record, Report, error) {
	if format != "" && !format.Structured() {
		return unstructured(raw, language), Report{Source: SourceWholeText}, nil
	}

	cands := candidates(raw)
	if len(cands) == 0 {
		return nil, Report{}, &ParseError{Reason: "no JSON object found", Excerpt: excerpt(raw)}
	}

	var firstErr error
	for _, c := range cands {
		w, err := decode(c.text)
		if err == nil {
			return build(w, language), Report{Source: c.source}, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, c := range cands {
		w, err := decode(repairJSON(c.text))
		if err == nil {
			return build(w, language), Report{Source: c.source, Repaired: true}, nil
		}
	}

	return nil, Report{}, &ParseError{Reason: "invalid JSON", Excerpt: excerpt(raw), Err: firstErr}
}

type candidate struct {
	source CandidateSource
	text   string
}

// candidates lists the spans worth decoding, most specific first, without
// duplicates.
func candidates(raw string) []candidate {
	var out []candidate
	seen := make(map[string]bool)
	add := func(src CandidateSource, text string) {
		text = strings.TrimSpace(text)
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		out = append(out, candidate{source: src, text: text})
	}

	if m := jsonFence.FindStringSubmatch(raw); m != nil {
		add(SourceFencedBlock, m[1])
	}
	if s, ok := firstBalancedObject(raw); ok {
		add(SourceBalancedObject, s)
	}
	if s, ok := outermostBraces(raw); ok {
		add(SourceOutermostBraces, s)
	}
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		add(SourceWholeText, raw)
	}
	return out
}

func decode(s string) (*wireRecord, error) {
	if !strings.HasPrefix(s, "{") {
		return nil, errNotObject
	}
	var w wireRecord
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// build validates the wire record into a Record: relevance is clamped to
// [0,1], mentions are non-negative, levels start at 1, unknown optimization
// types become "content", and collections are never nil.
func build(w *wireRecord, language string) *analysis.Record {
	rec := analysis.Empty(strings.TrimSpace(string(w.Summary)), language)

	for _, k := range w.Keywords {
		word := strings.TrimSpace(string(k.Word))
		if word == "" {
			continue
		}
		rec.Keywords = append(rec.Keywords, analysis.Keyword{Word: word, Relevance: unit(float64(k.Relevance))})
	}

	for _, e := range w.Entities {
		name := strings.TrimSpace(string(e.Name))
		if name == "" {
			continue
		}
		typ := strings.TrimSpace(string(e.Type))
		if typ == "" {
			typ = "other"
		}
		rec.Entities = append(rec.Entities, analysis.Entity{
			Name:      name,
			Type:      typ,
			Mentions:  nonNegative(float64(e.Mentions)),
			Relevance: unit(float64(e.Relevance)),
		})
	}

	for _, s := range w.Structure.Sections {
		level := nonNegative(float64(s.Level))
		if level < 1 {
			level = 1
		}
		rec.Structure.Sections = append(rec.Structure.Sections, analysis.Section{
			Title:   strings.TrimSpace(string(s.Title)),
			Level:   level,
			Content: strings.TrimSpace(string(s.Content)),
		})
	}

	for _, o := range w.Optimizations {
		typ := analysis.OptimizationType(strings.ToLower(strings.TrimSpace(string(o.Type))))
		if !typ.Valid() {
			typ = analysis.OptimizationContent
		}
		rec.Optimizations = append(rec.Optimizations, analysis.Optimization{
			Type:        typ,
			Description: strings.TrimSpace(string(o.Description)),
			Suggestion:  strings.TrimSpace(string(o.Suggestion)),
			Location:    strings.TrimSpace(string(o.Location)),
		})
	}

	for _, d := range append(w.MermaidDiagrams, w.Diagrams...) {
		code := stripFence(string(d.Code))
		if code == "" {
			continue
		}
		rec.Diagrams = append(rec.Diagrams, analysis.Diagram{
			Title:       strings.TrimSpace(string(d.Title)),
			Description: strings.TrimSpace(string(d.Description)),
			Code:        code,
		})
	}

	return rec
}

// unstructured wraps a markdown, text or diagram-only reply: the reply is
// the summary and its mermaid blocks become diagrams.
func unstructured(raw, language string) *analysis.Record {
	rec := analysis.Empty(strings.TrimSpace(raw), language)

	for i, loc := range mermaidFence.FindAllStringSubmatchIndex(raw, -1) {
		code := strings.TrimSpace(raw[loc[2]:loc[3]])
		if code == "" {
			continue
		}
		title := headingBefore(raw[:loc[0]])
		if title == "" {
			title = fmt.Sprintf("Diagram %d", i+1)
		}
		rec.Diagrams = append(rec.Diagrams, analysis.Diagram{Title: title, Code: code})
	}
	return rec
}

// headingBefore returns the last markdown heading in text.
func headingBefore(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}

func stripFence(code string) string {
	code = strings.TrimSpace(code)
	if m := anyFence.FindStringSubmatch(code); m != nil {
		code = strings.TrimSpace(m[1])
	}
	return code
}

func unit(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func nonNegative(f float64) int {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Round(f))
}

func excerpt(raw string) string {
	raw = strings.TrimSpace(raw)
	if utf8.RuneCountInString(raw) <= excerptChars {
		return raw
	}
	return string([]rune(raw)[:excerptChars]) + "..."
}
