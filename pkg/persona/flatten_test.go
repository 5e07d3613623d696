package persona

import (
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"
)

func itemByContent(items []Item, content string) (Item, bool) {
	for _, it := range items {
		if it.Content == content {
			return it, true
		}
	}
	return Item{}, false
}

func TestFlattenKinds(t *testing.T) {
	doc := Document{
		"name":      "Lily",
		"age":       float64(27),
		"interests": []interface{}{"hiking", "tea"},
		"languages": []interface{}{
			map[string]interface{}{"language": "en", "preferred": true},
			map[string]interface{}{"language": "fr"},
		},
	}
	items := Flatten("u1", doc, nil)

	if _, ok := itemByContent(items, "/name = Lily"); !ok {
		t.Fatalf("missing scalar item, got %+v", items)
	}
	ageItem, ok := itemByContent(items, "/age = 27")
	if !ok || ageItem.Meta.Kind != ItemScalar {
		t.Fatalf("age item = %+v", ageItem)
	}
	hike, ok := itemByContent(items, "/interests += hiking")
	if !ok || hike.Meta.Kind != ItemList || hike.Meta.Path != "/interests" {
		t.Fatalf("list item = %+v", hike)
	}
	for i := 0; i < 2; i++ {
		path := fmt.Sprintf("/languages[%d]", i)
		found := false
		for _, it := range items {
			if it.Meta.Path == path && it.Meta.Kind == ItemObject {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing object item %s in %+v", path, items)
		}
	}
	for _, it := range items {
		if it.Meta.UserID != "u1" {
			t.Fatalf("user id = %q", it.Meta.UserID)
		}
		if it.ID == "" {
			t.Fatal("item without id")
		}
		if it.Meta.Timestamp == "" {
			t.Fatal("item without timestamp")
		}
	}
}

func TestFlattenSkipsEmpties(t *testing.T) {
	doc := Document{
		"name":      "   ",
		"notes":     nil,
		"interests": []interface{}{"", "hiking", "  "},
		"dislikes":  []interface{}{},
	}
	items := Flatten("u1", doc, nil)
	if len(items) != 1 {
		t.Fatalf("items = %+v, want only the hiking element", items)
	}
	if items[0].Content != "/interests += hiking" {
		t.Fatalf("content = %q", items[0].Content)
	}
}

func TestFlattenCarriesTimestamps(t *testing.T) {
	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := Document{"name": "Lily"}
	items := Flatten("u1", doc, map[string]time.Time{"/name": when})
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Meta.Timestamp != "2026-03-01T12:00:00Z" {
		t.Fatalf("ts = %q", items[0].Meta.Timestamp)
	}
}

func TestRoundTrip(t *testing.T) {
	doc := Document{
		"name":      "Lily",
		"age":       float64(27),
		"privacy":   "minimal",
		"interests": []interface{}{"hiking", "tea"},
		"languages": []interface{}{
			map[string]interface{}{"language": "en", "preferred": true},
			map[string]interface{}{"language": "fr", "proficiency": "basic"},
		},
	}
	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	timestamps := map[string]time.Time{"/name": when, "/interests": when}

	rebuilt, gotTS := Rebuild(Flatten("u1", doc, timestamps))

	if rebuilt["name"] != "Lily" || rebuilt["privacy"] != "minimal" {
		t.Fatalf("scalars = %v", rebuilt)
	}
	if rebuilt["age"] != float64(27) {
		t.Fatalf("age = %v (%T)", rebuilt["age"], rebuilt["age"])
	}
	gotInterests := rebuilt.StringList("interests")
	sort.Strings(gotInterests)
	if !reflect.DeepEqual(gotInterests, []string{"hiking", "tea"}) {
		t.Fatalf("interests = %v", gotInterests)
	}
	langs, ok := rebuilt["languages"].([]interface{})
	if !ok || len(langs) != 2 {
		t.Fatalf("languages = %v", rebuilt["languages"])
	}
	first, _ := langs[0].(map[string]interface{})
	if first["language"] != "en" || first["preferred"] != true {
		t.Fatalf("languages[0] = %v", langs[0])
	}
	if !gotTS["/name"].Equal(when) {
		t.Fatalf("ts[/name] = %v", gotTS["/name"])
	}
}

func TestRoundTripNonStringScalarList(t *testing.T) {
	doc := Document{
		"constraints": []interface{}{float64(1), float64(2), true},
	}
	rebuilt, _ := Rebuild(Flatten("u1", doc, nil))

	list, ok := rebuilt["constraints"].([]interface{})
	if !ok {
		t.Fatalf("round trip lost numeric list elements: got %v", rebuilt["constraints"])
	}
	got := map[interface{}]bool{}
	for _, v := range list {
		got[v] = true
	}
	for _, want := range []interface{}{float64(1), float64(2), true} {
		if !got[want] {
			t.Fatalf("missing %v (%T) in %v", want, want, list)
		}
	}
	if len(list) != 3 {
		t.Fatalf("list = %v, want 3 elements", list)
	}
}

func TestRebuildObjectOrderFromUnorderedScan(t *testing.T) {
	doc := Document{"languages": []interface{}{
		map[string]interface{}{"language": "en"},
		map[string]interface{}{"language": "fr"},
		map[string]interface{}{"language": "de"},
	}}
	items := Flatten("u1", doc, nil)
	// Reverse the scan order; index suffixes must restore element order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	rebuilt, _ := Rebuild(items)
	langs, _ := rebuilt["languages"].([]interface{})
	if len(langs) != 3 {
		t.Fatalf("languages = %v", rebuilt["languages"])
	}
	want := []string{"en", "fr", "de"}
	for i, lang := range langs {
		obj, _ := lang.(map[string]interface{})
		if obj["language"] != want[i] {
			t.Fatalf("languages[%d] = %v, want %s", i, lang, want[i])
		}
	}
}

func TestRebuildKeepsLatestTimestampPerPath(t *testing.T) {
	items := []Item{
		{ID: "a", Content: "/interests += hiking", Meta: ItemMeta{
			UserID: "u1", Path: "/interests", Kind: ItemList,
			Value: "hiking", Timestamp: "2026-01-01T00:00:00Z",
		}},
		{ID: "b", Content: "/interests += tea", Meta: ItemMeta{
			UserID: "u1", Path: "/interests", Kind: ItemList,
			Value: "tea", Timestamp: "2026-02-01T00:00:00Z",
		}},
	}
	_, ts := Rebuild(items)
	want := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if !ts["/interests"].Equal(want) {
		t.Fatalf("ts = %v, want %v", ts["/interests"], want)
	}
}

func TestRebuildIgnoresMalformedItems(t *testing.T) {
	items := []Item{
		{ID: "a", Content: "broken", Meta: ItemMeta{Path: "", Kind: ItemScalar, Value: "x"}},
		{ID: "b", Content: "broken", Meta: ItemMeta{Path: "/languages", Kind: ItemObject, JSONValue: "{"}},
		{ID: "c", Content: "/name = Lily", Meta: ItemMeta{Path: "/name", Kind: ItemScalar, Value: "Lily", JSONValue: `"Lily"`}},
	}
	rebuilt, _ := Rebuild(items)
	if rebuilt["name"] != "Lily" {
		t.Fatalf("name = %v", rebuilt["name"])
	}
	if _, ok := rebuilt["languages"]; ok {
		t.Fatalf("malformed object item produced a field: %v", rebuilt)
	}
}
