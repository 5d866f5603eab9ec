package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls an Analysis out of raw tool output. Tools wrap their
// answers in all kinds of prose and fencing, so extraction is tolerant and
// tries three shapes in order:
//
//  1. the whole output is a JSON object
//  2. a ```json (or bare ```) fenced block holds the object
//  3. the first balanced {...} region anywhere in the output
//
// Unknown keys are ignored and missing keys stay zero-valued.
func ExtractJSON(output string) (*Analysis, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, fmt.Errorf("empty output")
	}

	// Whole output
	if a, err := decode(trimmed); err == nil {
		return a, nil
	}

	// Fenced block
	if block, ok := fencedBlock(trimmed); ok {
		if a, err := decode(block); err == nil {
			return a, nil
		}
	}

	// First balanced brace region
	if region, ok := balancedBraces(trimmed); ok {
		if a, err := decode(region); err == nil {
			return a, nil
		}
	}

	return nil, fmt.Errorf("no JSON object found in output")
}

func decode(s string) (*Analysis, error) {
	var a Analysis
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// fencedBlock extracts the contents of the first ```json or ``` fence.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```json")
	offset := len("```json")
	if start == -1 {
		start = strings.Index(s, "```")
		offset = len("```")
	}
	if start == -1 {
		return "", false
	}

	rest := s[start+offset:]
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}

	return strings.TrimSpace(rest[:end]), true
}

// balancedBraces returns the first {...} region with balanced braces,
// honoring strings and escapes so braces inside values don't miscount.
func balancedBraces(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
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
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}
