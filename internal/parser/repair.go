package parser

import "strings"

// firstBalancedObject returns the first {...} span whose braces balance,
// ignoring braces inside double-quoted strings.
func firstBalancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// outermostBraces returns everything from the first '{' to the last '}'.
// Used when the balanced scan fails, e.g. on a reply with an unterminated
// string.
func outermostBraces(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// repairJSON applies the fixes generation services most often need, in one
// string-aware pass:
//   - a comma directly before } or ] is dropped
//   - single-quoted strings become double-quoted, escaping inner quotes
//   - raw newlines, carriage returns and tabs inside strings are escaped
//
// Text inside valid double-quoted strings is otherwise left alone, so an
// apostrophe in "don't" survives.
func repairJSON(s string) string {
	var out strings.Builder
	out.Grow(len(s) + 16)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			i = copyString(&out, s, i, '"')
		case '\'':
			i = copyString(&out, s, i, '\'')
		case ',':
			j := i + 1
			for j < len(s) && isJSONSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			out.WriteByte(c)
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

// copyString writes the string literal opening at s[start] as a valid
// double-quoted JSON string and returns the index of its closing quote.
func copyString(out *strings.Builder, s string, start int, quote byte) int {
	out.WriteByte('"')
	i := start + 1
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			if quote == '\'' && next == '\'' {
				out.WriteByte('\'')
			} else {
				out.WriteByte('\\')
				out.WriteByte(next)
			}
			i++
		case c == quote:
			out.WriteByte('"')
			return i
		case c == '"':
			out.WriteString(`\"`)
		case c == '\n':
			out.WriteString(`\n`)
		case c == '\r':
			out.WriteString(`\r`)
		case c == '\t':
			out.WriteString(`\t`)
		default:
			out.WriteByte(c)
		}
	}
	// Unterminated: close it so the decoder reports something useful.
	out.WriteByte('"')
	return i
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
