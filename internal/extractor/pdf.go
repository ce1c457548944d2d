package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFTextExtractor turns PDF bytes into plain text. Failures are not fatal
// to an analysis: the extractor falls back to a raw decode.
type PDFTextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

var errNoPDFText = errors.New("no text content found in PDF")

// PDFCPU extracts text by reading each page's content stream with pdfcpu
// and interpreting the text-showing operators.
type PDFCPU struct{}

func NewPDFCPU() *PDFCPU {
	return &PDFCPU{}
}

func (p *PDFCPU) ExtractText(ctx context.Context, data []byte) (text string, err error) {
	// pdfcpu panics on some broken cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu: %v", r)
		}
	}()

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return "", fmt.Errorf("pdfcpu read: %w", err)
	}

	var pages []string
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
		if err != nil || r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil || len(content) == 0 {
			continue
		}
		if t := contentStreamText(content); t != "" {
			pages = append(pages, t)
		}
	}

	if len(pages) == 0 {
		return "", errNoPDFText
	}
	return strings.Join(pages, "\n\n"), nil
}

// contentStreamText interprets a page content stream just far enough to
// recover shown strings: Tj, TJ, ' and " show text; T*, ', " and ET break
// lines; Td, TD and Tm separate words.
func contentStreamText(data []byte) string {
	var out strings.Builder
	var pending []string

	flush := func() {
		for _, s := range pending {
			out.WriteString(s)
		}
		pending = pending[:0]
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '(':
			s, next := readLiteralString(data, i)
			pending = append(pending, s)
			i = next
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case c == '<':
			end := bytes.IndexByte(data[i:], '>')
			if end < 0 {
				i = len(data)
			} else {
				i += end + 1
			}
		case c == '%':
			end := bytes.IndexAny(data[i:], "\r\n")
			if end < 0 {
				i = len(data)
			} else {
				i += end
			}
		case isPDFDelimiter(c) || isPDFSpace(c):
			i++
		default:
			start := i
			for i < len(data) && !isPDFDelimiter(data[i]) && !isPDFSpace(data[i]) {
				i++
			}
			op := string(data[start:i])
			switch op {
			case "Tj", "TJ":
				flush()
			case "'", `"`:
				out.WriteByte('\n')
				flush()
			case "T*", "ET":
				out.WriteByte('\n')
				pending = pending[:0]
			case "Td", "TD", "Tm":
				out.WriteByte(' ')
				pending = pending[:0]
			case "BI":
				// Inline image data is binary; resume after EI.
				if end := bytes.Index(data[i:], []byte("EI")); end >= 0 {
					i += end + 2
				} else {
					i = len(data)
				}
				pending = pending[:0]
			default:
				if isPDFOperator(op) {
					pending = pending[:0]
				}
			}
		}
	}

	return normalizePDFText(out.String())
}

// readLiteralString decodes a balanced (...) string starting at data[start]
// and returns it with the index just past the closing parenthesis.
func readLiteralString(data []byte, start int) (string, int) {
	var raw []byte
	depth := 0
	i := start
	for ; i < len(data); i++ {
		c := data[i]
		if c == '\\' && i+1 < len(data) {
			i++
			switch e := data[i]; e {
			case 'n':
				raw = append(raw, '\n')
			case 'r':
				raw = append(raw, '\r')
			case 't':
				raw = append(raw, '\t')
			case 'b':
				raw = append(raw, '\b')
			case 'f':
				raw = append(raw, '\f')
			case '\r', '\n':
				// Line continuation.
				if e == '\r' && i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						val = val*8 + int(data[i]-'0')
					}
					raw = append(raw, byte(val))
				} else {
					raw = append(raw, e)
				}
			}
			continue
		}
		switch c {
		case '(':
			depth++
			if depth == 1 {
				continue
			}
		case ')':
			depth--
			if depth == 0 {
				return decodePDFBytes(raw), i + 1
			}
		}
		raw = append(raw, c)
	}
	return decodePDFBytes(raw), i
}

// decodePDFBytes reads UTF-16BE when the string carries a byte order mark
// and treats everything else as a single-byte encoding.
func decodePDFBytes(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		units := make([]uint16, 0, (len(raw)-2)/2)
		for i := 2; i+1 < len(raw); i += 2 {
			units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
		return string(utf16.Decode(units))
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}

func normalizePDFText(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isPDFDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// isPDFOperator distinguishes operators from numeric operands, which must
// not clear strings queued inside a TJ array.
func isPDFOperator(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '*'
}
