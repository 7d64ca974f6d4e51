package store

import (
	"regexp"
	"strings"
	"unicode"
)

var identRe = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// TokenizeCode splits text with code-aware rules: non-alphanumeric
// boundaries first, then camelCase and snake_case sub-tokens. The
// original compound token is retained alongside its parts, so a query
// for "authenticate" matches "authenticateUser" and a query for the
// full "authenticateUser" still matches exactly. Tokens are lowercased.
func TokenizeCode(text string) []string {
	var tokens []string
	for _, word := range identRe.FindAllString(text, -1) {
		parts := SplitIdentifier(word)
		lower := strings.ToLower(word)
		if len(lower) >= 2 {
			tokens = append(tokens, lower)
		}
		// Emit sub-tokens only when the identifier actually split.
		if len(parts) > 1 {
			for _, p := range parts {
				lp := strings.ToLower(p)
				if len(lp) >= 2 && lp != lower {
					tokens = append(tokens, lp)
				}
			}
		}
	}
	return tokens
}

// SplitIdentifier splits snake_case and camelCase/PascalCase into parts,
// keeping acronym runs intact (parseHTTPRequest -> parse, HTTP, Request).
func SplitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamel(part)...)
			}
		}
		return result
	}
	return splitCamel(token)
}

func splitCamel(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevLower || nextLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}
