package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrUnparseable is returned when a reply holds no JSON even after repair.
var ErrUnparseable = errors.New("response is not valid JSON")

// ParseJSONResponse parses a JSON object from a model reply, handling
// markdown fences, trailing commentary and truncation. It returns nil when
// nothing usable is left.
func ParseJSONResponse(text string) map[string]any {
	var result map[string]any
	if err := DecodeJSON(text, &result); err != nil {
		return nil
	}
	return result
}

// DecodeJSON unmarshals a model reply into v, repairing it first when the
// raw text does not parse.
func DecodeJSON(text string, v any) error {
	text = StripFences(text)
	if text == "" {
		return fmt.Errorf("%w: empty response", ErrUnparseable)
	}
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	repaired := RepairJSON(text)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: %w", ErrUnparseable, err)
	}
	return nil
}

// StripFences removes a surrounding markdown code fence. Fences on a single
// line, as in "```json {...}```", are handled too.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if !strings.Contains(text, "\n") {
		inner := strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")
		if i := strings.IndexAny(inner, " \t{[\""); i > 0 && isLanguageTag(inner[:i]) {
			inner = inner[i:]
		}
		return strings.TrimSpace(inner)
	}
	lines := strings.Split(text, "\n")
	end := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// RepairJSON makes a best-effort attempt at turning a damaged reply into a
// single JSON value. Text before the first bracket and after the matching
// close is dropped. Truncated input has its open string, arrays and objects
// closed. Trailing commas are removed.
func RepairJSON(text string) string {
	text = StripFences(text)
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	text = text[start:]

	var (
		stack       []byte
		inString    bool
		escaped     bool
		stringStart int
	)
	for i := 0; i < len(text); i++ {
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
			stringStart = i
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return dropTrailingCommas(text[:i+1])
			}
		}
	}

	var b strings.Builder
	b.WriteString(text)
	if inString {
		s := b.String()
		if escaped {
			s = s[:len(s)-1]
		}
		b.Reset()
		b.WriteString(s)
		b.WriteByte('"')
	}

	out := strings.TrimRight(b.String(), " \t\r\n")
	out = strings.TrimRight(out, ",")
	switch {
	case strings.HasSuffix(out, ":"):
		out += "null"
	case len(stack) > 0 && stack[len(stack)-1] == '{' && strings.HasSuffix(out, `"`) && isKey(out, stringStart):
		out += ":null"
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out += "}"
		} else {
			out += "]"
		}
	}
	return dropTrailingCommas(out)
}

// isKey reports whether the string starting at pos sits in key position.
func isKey(text string, pos int) bool {
	before := strings.TrimRight(text[:pos], " \t\r\n")
	return strings.HasSuffix(before, "{") || strings.HasSuffix(before, ",")
}

func dropTrailingCommas(text string) string {
	var b strings.Builder
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
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
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(text) && strings.IndexByte(" \t\r\n", text[j]) >= 0 {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
