// Package resolver implements dotted/indexed path lookup and {path}
// template substitution over JSON-shaped values.
package resolver

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// placeholderPattern matches {path} occurrences whose contents contain no
// nested braces
var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// bracketPattern rewrites bracketed integer indices ([0]) into gjson path
// segments (.0)
var bracketPattern = regexp.MustCompile(`\[(\d+)\]`)

// DeepGet resolves a path like "a.b[0].c" against a JSON-shaped root value.
// An empty path returns the root unchanged. Keying into non-mappings,
// indexing out of range and null leaves all report absent; DeepGet never
// fails.
func DeepGet(root any, path string) (any, bool) {
	if path == "" {
		return root, true
	}

	rootJSON, err := json.Marshal(root)
	if err != nil {
		return nil, false
	}

	return deepGetBytes(rootJSON, path)
}

func deepGetBytes(rootJSON []byte, path string) (any, bool) {
	result := gjson.GetBytes(rootJSON, normalizePath(path))
	if !result.Exists() || result.Type == gjson.Null {
		return nil, false
	}
	return result.Value(), true
}

// Render substitutes {path} placeholders in a value recursively against a
// context. Strings are scanned for placeholders; placeholders whose path is
// absent in the context are left literal, which makes substitution
// idempotent once every resolvable placeholder has been replaced. Mappings
// and sequences recurse; other scalars pass through.
func Render(value any, context any) any {
	contextJSON, err := json.Marshal(context)
	if err != nil {
		return value
	}
	return renderValue(value, contextJSON)
}

func renderValue(value any, contextJSON []byte) any {
	switch v := value.(type) {
	case string:
		return renderString(v, contextJSON)
	case map[string]any:
		rendered := make(map[string]any, len(v))
		for key, item := range v {
			rendered[key] = renderValue(item, contextJSON)
		}
		return rendered
	case []any:
		rendered := make([]any, len(v))
		for i, item := range v {
			rendered[i] = renderValue(item, contextJSON)
		}
		return rendered
	default:
		return value
	}
}

func renderString(s string, contextJSON []byte) string {
	matches := placeholderPattern.FindAllStringSubmatch(s, -1)
	for _, match := range matches {
		placeholder := match[0]
		path := strings.TrimSpace(match[1])

		val, ok := deepGetBytes(contextJSON, path)
		if !ok {
			continue
		}

		s = strings.ReplaceAll(s, placeholder, Stringify(val))
	}
	return s
}

// Stringify converts a resolved value to its string form: strings pass
// through, everything else is JSON-encoded
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// SetPath assigns a value at a dotted path inside a JSON-shaped payload,
// creating intermediate mappings as needed. Non-mapping intermediates are
// overwritten.
func SetPath(payload any, path string, value any) any {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return payload
	}

	updated, err := sjson.SetBytes(payloadJSON, normalizePath(path), value)
	if err != nil {
		return payload
	}

	var result any
	if err := json.Unmarshal(updated, &result); err != nil {
		return payload
	}
	return result
}

func normalizePath(path string) string {
	return strings.TrimPrefix(bracketPattern.ReplaceAllString(path, ".$1"), ".")
}
