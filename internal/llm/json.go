// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/gtm-research/internal/resilient"
)

// DecodeJSON extracts the outermost JSON object from model text and decodes it
// into out. Markdown code fences and surrounding prose are ignored. Any
// failure wraps resilient.ErrUnparseable.
func DecodeJSON(text string, out any) error {
	obj, ok := ExtractJSON(text)
	if !ok {
		return fmt.Errorf("%w: no JSON object in model output", resilient.ErrUnparseable)
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return fmt.Errorf("%w: %v", resilient.ErrUnparseable, err)
	}
	return nil
}

// ExtractJSON returns the substring from the first '{' to its matching '}',
// honouring string literals.
func ExtractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
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
