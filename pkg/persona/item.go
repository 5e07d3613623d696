package persona

import (
	"time"

	"github.com/google/uuid"
)

// ItemKind tags how a persisted item maps back into the document.
type ItemKind string

const (
	ItemScalar ItemKind = "scalar"
	ItemList   ItemKind = "list_item"
	ItemObject ItemKind = "object_item"
)

// ItemMeta is the persisted metadata payload attached to each item.
type ItemMeta struct {
	UserID    string   `json:"user_id"`
	Path      string   `json:"path"`
	Kind      ItemKind `json:"type"`
	Value     string   `json:"value"`
	JSONValue string   `json:"json_value"`
	Source    string   `json:"source"`
	Timestamp string   `json:"ts"`
}

// Item is the atomic persisted unit: one scalar field or one list element,
// independently embeddable via its content string. Items are held only
// transiently during flatten/rebuild; the store owns them.
type Item struct {
	ID      string   `json:"id"`
	Content string   `json:"page_content"`
	Meta    ItemMeta `json:"metadata"`
}

func newItemID() string {
	return "pit-" + uuid.NewString()
}

// MetadataMap flattens the item metadata for the store client.
func (it Item) MetadataMap() map[string]string {
	return map[string]string{
		"user_id":    it.Meta.UserID,
		"path":       it.Meta.Path,
		"type":       string(it.Meta.Kind),
		"value":      it.Meta.Value,
		"json_value": it.Meta.JSONValue,
		"source":     it.Meta.Source,
		"ts":         it.Meta.Timestamp,
	}
}

// ItemFromMetadata rebuilds an item from a store record's metadata map.
// Missing keys degrade to defaults rather than failing the whole scan.
func ItemFromMetadata(id, content string, meta map[string]string) Item {
	kind := ItemKind(meta["type"])
	switch kind {
	case ItemScalar, ItemList, ItemObject:
	default:
		kind = ItemScalar
	}
	return Item{
		ID:      id,
		Content: content,
		Meta: ItemMeta{
			UserID:    meta["user_id"],
			Path:      meta["path"],
			Kind:      kind,
			Value:     meta["value"],
			JSONValue: meta["json_value"],
			Source:    meta["source"],
			Timestamp: meta["ts"],
		},
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
