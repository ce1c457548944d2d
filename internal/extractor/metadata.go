package extractor

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"

	"github.com/doc-analyzer/backend/internal/analysis"
)

const (
	corePropsPart = "docProps/core.xml"
	appPropsPart  = "docProps/app.xml"
)

// coreFields maps docProps/core.xml element names to metadata keys.
var coreFields = map[string]string{
	"title":          "title",
	"creator":        "author",
	"subject":        "subject",
	"keywords":       "keywords",
	"description":    "description",
	"lastModifiedBy": "lastModifiedBy",
	"created":        "created",
	"modified":       "modified",
}

// appFields maps docProps/app.xml element names to metadata keys.
var appFields = map[string]string{
	"Slides":      "slides",
	"Pages":       "pages",
	"Words":       "words",
	"Paragraphs":  "paragraphs",
	"Company":     "company",
	"Application": "application",
}

// documentProperties reads the OOXML property parts. Both are optional; a
// part that exists but does not parse is an error.
func documentProperties(a *archive, meta map[string]any) error {
	if a.has(corePropsPart) {
		root, err := a.parse(corePropsPart)
		if err != nil {
			return err
		}
		for _, c := range root.Children {
			if key, ok := coreFields[c.Name.Local]; ok {
				if v := strings.TrimSpace(c.Text); v != "" {
					meta[key] = v
				}
			}
		}
	}

	if a.has(appPropsPart) {
		root, err := a.parse(appPropsPart)
		if err != nil {
			return err
		}
		for _, c := range root.Children {
			key, ok := appFields[c.Name.Local]
			if !ok {
				continue
			}
			v := strings.TrimSpace(c.Text)
			if v == "" {
				continue
			}
			if n, err := strconv.Atoi(v); err == nil {
				meta[key] = n
			} else {
				meta[key] = v
			}
		}
	}
	return nil
}

// textStatistics counts sentences and words over at most sampleChars
// characters of text.
func textStatistics(text string, sampleChars int, meta map[string]any) error {
	meta["characterCount"] = utf8.RuneCountInString(text)
	if strings.TrimSpace(text) == "" {
		meta["wordCount"] = 0
		meta["sentenceCount"] = 0
		return nil
	}

	sample := text
	if sampleChars > 0 && utf8.RuneCountInString(text) > sampleChars {
		sample = string([]rune(text)[:sampleChars])
		meta["statsSampled"] = true
	}

	doc, err := prose.NewDocument(sample,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return fmt.Errorf("text statistics: %w", err)
	}

	words := 0
	for _, tok := range doc.Tokens() {
		if strings.IndexFunc(tok.Text, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			words++
		}
	}
	meta["wordCount"] = words
	meta["sentenceCount"] = len(doc.Sentences())
	return nil
}

func baseMetadata(format analysis.Format) map[string]any {
	return map[string]any{"format": string(format)}
}
