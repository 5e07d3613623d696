package persona

import (
	"fmt"
	"strings"
)

// ParsePointer splits a slash-delimited pointer into tokens. A leading slash
// is stripped and empty tokens are dropped; "" and "/" both yield nil.
func ParsePointer(path string) []string {
	if path == "" || path == "/" {
		return nil
	}
	path = strings.TrimPrefix(path, "/")
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinPointer renders tokens back into a canonical pointer ("/a/b").
func JoinPointer(tokens []string) string {
	if len(tokens) == 0 {
		return "/"
	}
	return "/" + strings.Join(tokens, "/")
}

// ensureParent walks all tokens but the last, creating empty nested maps as
// needed, and returns the parent container plus the final key. It fails when
// an intermediate value exists but is not a map.
func ensureParent(doc map[string]interface{}, tokens []string) (map[string]interface{}, string, error) {
	if len(tokens) == 0 {
		return nil, "", ErrEmptyPath
	}
	cur := doc
	for _, t := range tokens[:len(tokens)-1] {
		next, ok := cur[t]
		if !ok || next == nil {
			child := map[string]interface{}{}
			cur[t] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]interface{})
		if !ok {
			return nil, "", fmt.Errorf("token %q: %w", t, ErrNotContainer)
		}
		cur = child
	}
	return cur, tokens[len(tokens)-1], nil
}

// ensureList resolves the terminal value at tokens into a list, creating an
// empty one when missing and wrapping a lone scalar into a singleton list.
// The (possibly new) list is written back to the parent and returned.
func ensureList(doc map[string]interface{}, tokens []string) ([]interface{}, map[string]interface{}, string, error) {
	parent, key, err := ensureParent(doc, tokens)
	if err != nil {
		return nil, nil, "", err
	}
	cur, ok := parent[key]
	if !ok || cur == nil {
		list := []interface{}{}
		parent[key] = list
		return list, parent, key, nil
	}
	if list, ok := cur.([]interface{}); ok {
		return list, parent, key, nil
	}
	list := []interface{}{cur}
	parent[key] = list
	return list, parent, key, nil
}

// NormToken normalizes a value for case/whitespace-insensitive equality:
// trim, lowercase, collapse internal whitespace.
func NormToken(v interface{}) string {
	s := fmt.Sprintf("%v", v)
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}
