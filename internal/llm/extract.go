// Package llm - extract.go locates structured results inside free-form model
// output by balancing delimiters instead of trusting the output to be
// well-formed JSON.
package llm

import (
	"encoding/json"
	"sort"
)

// ExtractJSONObject finds the JSON object embedded in free-form model output.
// Candidate spans are collected by balancing braces (string and escape aware)
// and tried longest-first; the first candidate that parses wins. If no
// candidate parses, the call fails with a MalformedOutputError carrying a
// truncated excerpt of the raw text.
func ExtractJSONObject(raw string) (string, error) {
	cleaned := CleanJSONBlock(raw)

	candidates := balancedObjectSpans(cleaned)
	// Longest-first: the outermost object usually holds the full result, the
	// inner spans are fallbacks when the tail is garbled.
	sort.Slice(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})

	for _, candidate := range candidates {
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	return "", &MalformedOutputError{Diagnostic: truncateDiagnostic(raw)}
}

// ExtractInto extracts the embedded JSON object and unmarshals it into v.
func ExtractInto(raw string, v any) error {
	obj, err := ExtractJSONObject(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return &MalformedOutputError{Diagnostic: truncateDiagnostic(obj)}
	}
	return nil
}

// balancedObjectSpans returns every brace-balanced {...} span in text,
// tracking string literals and escapes so braces inside strings don't count.
func balancedObjectSpans(text string) []string {
	var spans []string
	var starts []int
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{':
			starts = append(starts, i)
		case '}':
			if len(starts) == 0 {
				continue
			}
			start := starts[len(starts)-1]
			starts = starts[:len(starts)-1]
			spans = append(spans, text[start:i+1])
		}
	}

	return spans
}
