package summarize

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/markdave123-py/Procura/internal/core"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// ParsePayload parses the summarization payload as JSON, healing common
// model formatting mistakes rather than losing the document's progress.
// The result records whether repair happened: clean parse, repaired
// (Fixed), largest-balanced-substring (Fixed+Partial), or a fallback
// object embedding the original parse error (Fallback).
func ParsePayload(payload string) *core.SummaryResult {
	payload = StripFences(payload)

	var data map[string]any
	strictErr := json.Unmarshal([]byte(payload), &data)
	if strictErr == nil {
		return &core.SummaryResult{Data: data}
	}

	repaired := RepairJSON(payload)
	if err := json.Unmarshal([]byte(repaired), &data); err == nil {
		return &core.SummaryResult{Data: data, Fixed: true}
	}

	if sub := largestBalancedObject(repaired); sub != "" {
		if err := json.Unmarshal([]byte(sub), &data); err == nil {
			return &core.SummaryResult{Data: data, Fixed: true, Partial: true}
		}
	}

	return &core.SummaryResult{
		Data: map[string]any{
			"raw_response": truncate(payload, 2000),
		},
		Fallback:   true,
		ParseError: strictErr.Error(),
	}
}

// StripFences removes incidental markdown code-fence wrapping.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Language tag on the opening fence, e.g. ```json
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "" || isFenceTag(firstLine) {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// RepairJSON applies the best-effort healing pass: smart-quote
// normalization, trailing-comma removal and closing of unbalanced
// braces/brackets.
func RepairJSON(s string) string {
	replacer := strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
	)
	s = replacer.Replace(strings.TrimSpace(s))
	s = trailingComma.ReplaceAllString(s, "$1")
	return closeBraces(s)
}

// closeBraces appends whatever closers are missing, ignoring brackets
// inside string literals.
func closeBraces(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}

// largestBalancedObject returns the longest balanced {...} substring, or
// "" when none exists.
func largestBalancedObject(s string) string {
	best := ""
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				if inString {
					escaped = true
				}
			case '"':
				inString = !inString
			case '{':
				if !inString {
					depth++
				}
			case '}':
				if !inString {
					depth--
					if depth == 0 {
						if cand := s[start : i+1]; len(cand) > len(best) {
							best = cand
						}
					}
				}
			}
			if depth == 0 && c == '}' && !inString {
				break
			}
		}
	}
	return best
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
