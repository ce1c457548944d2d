package parser

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// The wire types accept the loose shapes generation services produce:
// numbers as strings, keywords as bare strings, structure as a bare array.

type wireRecord struct {
	Summary         text          `json:"summary"`
	Keywords        []wireKeyword `json:"keywords"`
	Entities        []wireEntity  `json:"entities"`
	Structure       wireStructure `json:"structure"`
	Optimizations   []wireOpt     `json:"optimizations"`
	MermaidDiagrams []wireDiagram `json:"mermaidDiagrams"`
	Diagrams        []wireDiagram `json:"diagrams"`
}

type wireKeyword struct {
	Word      text   `json:"word"`
	Relevance number `json:"relevance"`
}

func (k *wireKeyword) UnmarshalJSON(b []byte) error {
	if isJSONString(b) {
		return json.Unmarshal(b, &k.Word)
	}
	type plain wireKeyword
	return json.Unmarshal(b, (*plain)(k))
}

type wireEntity struct {
	Name      text   `json:"name"`
	Type      text   `json:"type"`
	Mentions  number `json:"mentions"`
	Relevance number `json:"relevance"`
}

type wireStructure struct {
	Sections []wireSection `json:"sections"`
}

func (s *wireStructure) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &s.Sections)
	}
	type plain wireStructure
	return json.Unmarshal(b, (*plain)(s))
}

type wireSection struct {
	Title   text   `json:"title"`
	Level   number `json:"level"`
	Content text   `json:"content"`
}

type wireOpt struct {
	Type        text `json:"type"`
	Description text `json:"description"`
	Suggestion  text `json:"suggestion"`
	Location    text `json:"location"`
}

type wireDiagram struct {
	Title       text `json:"title"`
	Description text `json:"description"`
	Code        text `json:"code"`
}

// number accepts a JSON number or a numeric string. Anything else decodes
// to zero rather than failing the whole record.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if f, err := strconv.ParseFloat(string(b), 64); err == nil {
		*n = number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		s = strings.TrimSpace(s)
		percent := strings.HasSuffix(s, "%")
		if f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64); err == nil {
			if percent {
				f /= 100
			}
			*n = number(f)
			return nil
		}
	}
	*n = 0
	return nil
}

// text accepts a JSON string; other values are kept as their compact JSON.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	if isJSONString(b) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	}
	if string(b) == "null" {
		*t = ""
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	*t = text(buf.String())
	return nil
}

func isJSONString(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '"'
}
