package persona

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"time"
)

var indexSuffixRegex = regexp.MustCompile(`^(.+)\[(\d+)\]$`)

type indexedObject struct {
	index int
	value interface{}
}

// Rebuild is the inverse of Flatten: it reconstructs a document and a
// per-path last-updated map from an unordered item scan. Scalar items apply
// as sets, list items append with de-dup in scan order (scalar-list order is
// not preserved across a round trip), and object items are re-sorted by their
// index suffix before the list is written back.
func Rebuild(items []Item) (Document, map[string]time.Time) {
	doc := NewDocument()
	timestamps := map[string]time.Time{}
	objects := map[string][]indexedObject{}

	note := func(path string, raw string) {
		ts := parseTimestamp(raw)
		if ts.IsZero() {
			return
		}
		if prev, ok := timestamps[path]; !ok || ts.After(prev) {
			timestamps[path] = ts
		}
	}

	for _, it := range items {
		switch it.Meta.Kind {
		case ItemScalar:
			tokens := ParsePointer(it.Meta.Path)
			if len(tokens) == 0 {
				continue
			}
			_ = writeSet(doc, tokens, decodeItemValue(it))
			note(it.Meta.Path, it.Meta.Timestamp)
		case ItemList:
			tokens := ParsePointer(it.Meta.Path)
			if len(tokens) == 0 {
				continue
			}
			value := decodeItemValue(it)
			if value == nil {
				continue
			}
			if s, ok := value.(string); ok && s == "" {
				continue
			}
			_ = appendListValue(doc, tokens, value)
			note(it.Meta.Path, it.Meta.Timestamp)
		case ItemObject:
			base, index, ok := splitIndexSuffix(it.Meta.Path)
			if !ok {
				continue
			}
			var obj interface{}
			if err := json.Unmarshal([]byte(it.Meta.JSONValue), &obj); err != nil {
				continue
			}
			objects[base] = append(objects[base], indexedObject{index: index, value: obj})
			note(base, it.Meta.Timestamp)
		}
	}

	for base, group := range objects {
		tokens := ParsePointer(base)
		if len(tokens) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].index < group[j].index })
		list := make([]interface{}, 0, len(group))
		for _, entry := range group {
			list = append(list, entry.value)
		}
		_ = writeSet(doc, tokens, list)
	}

	return doc, timestamps
}

func splitIndexSuffix(path string) (string, int, bool) {
	m := indexSuffixRegex.FindStringSubmatch(path)
	if m == nil {
		return "", 0, false
	}
	index, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], index, true
}

// decodeItemValue recovers the typed value, preferring the JSON encoding so
// numbers and booleans survive the round trip; the rendered string is the
// fallback for legacy items.
func decodeItemValue(it Item) interface{} {
	if it.Meta.JSONValue != "" {
		var v interface{}
		if err := json.Unmarshal([]byte(it.Meta.JSONValue), &v); err == nil {
			return v
		}
	}
	return it.Meta.Value
}
