package persona

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Flatten decomposes a document into storage items, one per scalar field or
// per list element. Empty scalars and empty list elements are skipped. Each
// item gets a fresh id; the persistence layer deletes and reinserts
// wholesale, so ids are not reused across calls.
func Flatten(userID string, doc Document, timestamps map[string]time.Time) []Item {
	var items []Item
	keys := doc.FieldNames()
	for _, key := range keys {
		items = append(items, flattenValue(userID, []string{key}, doc[key], timestamps)...)
	}
	return items
}

func flattenValue(userID string, tokens []string, value interface{}, timestamps map[string]time.Time) []Item {
	path := JoinPointer(tokens)
	switch val := value.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var items []Item
		for _, k := range keys {
			items = append(items, flattenValue(userID, append(append([]string{}, tokens...), k), val[k], timestamps)...)
		}
		return items
	case []interface{}:
		if len(val) == 0 {
			return nil
		}
		if allScalars(val) {
			return flattenScalarList(userID, path, val, timestamps)
		}
		return flattenObjectList(userID, path, val, timestamps)
	default:
		rendered := renderScalar(val)
		if rendered == "" {
			return nil
		}
		return []Item{{
			ID:      newItemID(),
			Content: fmt.Sprintf("%s = %s", path, rendered),
			Meta: ItemMeta{
				UserID:    userID,
				Path:      path,
				Kind:      ItemScalar,
				Value:     rendered,
				JSONValue: marshalJSON(val),
				Source:    "chat",
				Timestamp: formatTimestamp(timestamps[path]),
			},
		}}
	}
}

func flattenScalarList(userID, path string, list []interface{}, timestamps map[string]time.Time) []Item {
	items := make([]Item, 0, len(list))
	for _, element := range list {
		rendered := renderScalar(element)
		if rendered == "" {
			continue
		}
		items = append(items, Item{
			ID:      newItemID(),
			Content: fmt.Sprintf("%s += %s", path, rendered),
			Meta: ItemMeta{
				UserID:    userID,
				Path:      path,
				Kind:      ItemList,
				Value:     rendered,
				JSONValue: marshalJSON(element),
				Source:    "chat",
				Timestamp: formatTimestamp(timestamps[path]),
			},
		})
	}
	return items
}

// flattenObjectList emits one item per index with the path suffixed "[i]",
// so rebuild can restore element order from an unordered scan.
func flattenObjectList(userID, path string, list []interface{}, timestamps map[string]time.Time) []Item {
	items := make([]Item, 0, len(list))
	for i, element := range list {
		raw := marshalJSON(element)
		indexed := fmt.Sprintf("%s[%d]", path, i)
		items = append(items, Item{
			ID:      newItemID(),
			Content: fmt.Sprintf("%s = %s", indexed, raw),
			Meta: ItemMeta{
				UserID:    userID,
				Path:      indexed,
				Kind:      ItemObject,
				Value:     raw,
				JSONValue: raw,
				Source:    "chat",
				Timestamp: formatTimestamp(timestamps[path]),
			},
		})
	}
	return items
}

func allScalars(list []interface{}) bool {
	for _, v := range list {
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			return false
		}
	}
	return true
}

func renderScalar(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		// JSON numbers decode as float64; render integers without a fraction.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func marshalJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}
