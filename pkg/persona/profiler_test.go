package persona

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/dotsetgreg/personakit/pkg/store"
)

// memStore is an in-memory VectorStore double that records mutations.
type memStore struct {
	records map[string]store.Record
	inserts int
	deletes int
}

func newMemStore() *memStore {
	return &memStore{records: map[string]store.Record{}}
}

func (m *memStore) EnsureCollection(_ context.Context, _ string, _ int) error { return nil }

func (m *memStore) AddTexts(_ context.Context, _ string, texts []string, metadatas []map[string]string, ids []string) error {
	for i := range texts {
		m.records[ids[i]] = store.Record{ID: ids[i], Content: texts[i], Metadata: metadatas[i]}
		m.inserts++
	}
	return nil
}

func (m *memStore) DeleteByFilter(_ context.Context, _ string, filter store.Filter) (int, error) {
	n := 0
	for id, rec := range m.records {
		if filter.UserID != "" && rec.Metadata["user_id"] != filter.UserID {
			continue
		}
		delete(m.records, id)
		n++
	}
	m.deletes += n
	return n, nil
}

func (m *memStore) Scroll(_ context.Context, _ string, filter store.Filter, limit int, cursor string) ([]store.Record, string, error) {
	ids := make([]string, 0, len(m.records))
	for id, rec := range m.records {
		if filter.UserID != "" && rec.Metadata["user_id"] != filter.UserID {
			continue
		}
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]store.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.records[id])
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *memStore) Search(_ context.Context, _ string, _ string, _ store.Filter, _ int) ([]store.ScoredRecord, error) {
	return nil, nil
}

func (m *memStore) Close() error { return nil }

// fixedExtractor returns a canned delta or error.
type fixedExtractor struct {
	delta ProfileDelta
	err   error
}

func (f *fixedExtractor) ExtractDelta(_ context.Context, _, _, _ string) (ProfileDelta, error) {
	return f.delta, f.err
}

func TestProfilerSaveAndLoadRoundTrip(t *testing.T) {
	ms := newMemStore()
	p := NewProfiler(ms, &fixedExtractor{})

	doc := Document{
		"name":      "Lily",
		"interests": []interface{}{"hiking", "tea"},
	}
	if err := p.SaveProfile(context.Background(), "u1", doc, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(ms.records) != 3 {
		t.Fatalf("stored %d items, want 3", len(ms.records))
	}

	loaded, _, err := p.LoadProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded["name"] != "Lily" {
		t.Fatalf("name = %v", loaded["name"])
	}
	interests := loaded.StringList("interests")
	sort.Strings(interests)
	if !reflect.DeepEqual(interests, []string{"hiking", "tea"}) {
		t.Fatalf("interests = %v", interests)
	}
}

func TestProfilerLoadUnknownUserIsEmpty(t *testing.T) {
	p := NewProfiler(newMemStore(), &fixedExtractor{})
	doc, ts, err := p.LoadProfile(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(doc) != 0 || len(ts) != 0 {
		t.Fatalf("doc = %v ts = %v", doc, ts)
	}
}

func TestProfilerSaveIsolatesUsers(t *testing.T) {
	ms := newMemStore()
	p := NewProfiler(ms, &fixedExtractor{})
	ctx := context.Background()

	if err := p.SaveProfile(ctx, "u1", Document{"name": "Lily"}, nil); err != nil {
		t.Fatalf("save u1: %v", err)
	}
	if err := p.SaveProfile(ctx, "u2", Document{"name": "Marc"}, nil); err != nil {
		t.Fatalf("save u2: %v", err)
	}
	// Re-saving u1 must not touch u2's items.
	if err := p.SaveProfile(ctx, "u1", Document{"name": "Lil"}, nil); err != nil {
		t.Fatalf("re-save u1: %v", err)
	}

	other, _, err := p.LoadProfile(ctx, "u2")
	if err != nil {
		t.Fatalf("load u2: %v", err)
	}
	if other["name"] != "Marc" {
		t.Fatalf("u2 name = %v", other["name"])
	}
}

func TestProfilerSaveEmptyDeletesWithoutInsert(t *testing.T) {
	ms := newMemStore()
	p := NewProfiler(ms, &fixedExtractor{})
	ctx := context.Background()

	if err := p.SaveProfile(ctx, "u1", Document{"name": "Lily"}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	inserts := ms.inserts

	if err := p.SaveProfile(ctx, "u1", NewDocument(), nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	if len(ms.records) != 0 {
		t.Fatalf("records = %v, want none", ms.records)
	}
	if ms.inserts != inserts {
		t.Fatalf("empty save inserted items")
	}
}

func TestProfilerRefreshScenario(t *testing.T) {
	ms := newMemStore()
	seed := NewProfiler(ms, &fixedExtractor{})
	ctx := context.Background()
	if err := seed.SaveProfile(ctx, "u1", Document{"interests": []interface{}{"jazz"}}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ext := &fixedExtractor{delta: ProfileDelta{Ops: []PatchOp{
		{Op: OpRemove, Path: "/interests", Value: "jazz", Confidence: 0.8},
		{Op: OpAppend, Path: "/interests", Value: "hiking", Confidence: 0.8},
	}}}
	p := NewProfiler(ms, ext)

	doc, report, err := p.Refresh(ctx, "u1", "user: I love hiking, not jazz anymore")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if report.AppliedCount() != 2 {
		t.Fatalf("applied = %d", report.AppliedCount())
	}
	if got := doc.StringList("interests"); !reflect.DeepEqual(got, []string{"hiking"}) {
		t.Fatalf("interests = %v", got)
	}

	stored, _, err := p.LoadProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := stored.StringList("interests"); !reflect.DeepEqual(got, []string{"hiking"}) {
		t.Fatalf("stored interests = %v", got)
	}
}

func TestProfilerExtractFailureLeavesStoreUntouched(t *testing.T) {
	ms := newMemStore()
	ctx := context.Background()
	seed := NewProfiler(ms, &fixedExtractor{})
	if err := seed.SaveProfile(ctx, "u1", Document{"name": "Lily"}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := len(ms.records)
	deletes := ms.deletes

	p := NewProfiler(ms, &fixedExtractor{err: errors.New("model unavailable")})
	doc, _, err := p.Refresh(ctx, "u1", "user: hello")
	if err == nil {
		t.Fatal("expected extraction error")
	}
	if doc["name"] != "Lily" {
		t.Fatalf("returned doc = %v", doc)
	}
	if len(ms.records) != before || ms.deletes != deletes {
		t.Fatal("store mutated despite extraction failure")
	}
}

func TestProfilerRefreshNoOpsSkipsSave(t *testing.T) {
	ms := newMemStore()
	ctx := context.Background()
	p := NewProfiler(ms, &fixedExtractor{})

	_, report, err := p.Refresh(ctx, "u1", "user: nice weather today")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if report.HasApplied() {
		t.Fatal("empty delta reported applied ops")
	}
	if ms.inserts != 0 || ms.deletes != 0 {
		t.Fatalf("store touched: inserts=%d deletes=%d", ms.inserts, ms.deletes)
	}
}

func TestProfilerUpdateStampsAppliedPathsOnly(t *testing.T) {
	ext := &fixedExtractor{delta: ProfileDelta{Ops: []PatchOp{
		{Op: OpSet, Path: "/name", Value: "Lily", Confidence: 0.9},
		{Op: OpSet, Path: "/bogus", Value: "x", Confidence: 0.9},
	}}}
	p := NewProfiler(newMemStore(), ext)

	before := time.Now().UTC().Add(-time.Second)
	_, stamped, report, err := p.UpdateFromTranscript(context.Background(), "u1", NewDocument(), nil, "user: call me Lily")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if report.AppliedCount() != 1 || report.SkippedCount() != 1 {
		t.Fatalf("report applied=%d skipped=%d", report.AppliedCount(), report.SkippedCount())
	}
	if _, ok := stamped["/bogus"]; ok {
		t.Fatal("skipped op stamped a timestamp")
	}
	ts, ok := stamped["/name"]
	if !ok || ts.Before(before) {
		t.Fatalf("ts[/name] = %v %v", ts, ok)
	}
}

func TestProfilerUpdateStampsCanonicalPath(t *testing.T) {
	// The mutator accepts the unslashed path form; the stamp must still land
	// on the slashed key flatten reads.
	ext := &fixedExtractor{delta: ProfileDelta{Ops: []PatchOp{
		{Op: OpAppend, Path: "interests", Value: "hiking", Confidence: 0.8},
	}}}
	p := NewProfiler(newMemStore(), ext)

	_, stamped, report, err := p.UpdateFromTranscript(context.Background(), "u1", NewDocument(), nil, "user: I love hiking")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if report.AppliedCount() != 1 {
		t.Fatalf("applied = %d", report.AppliedCount())
	}
	if _, ok := stamped["interests"]; ok {
		t.Fatal("stamped under the raw path")
	}
	if _, ok := stamped["/interests"]; !ok {
		t.Fatalf("canonical path not stamped: %v", stamped)
	}
}

func TestProfilerUpdateDoesNotMutateInput(t *testing.T) {
	ext := &fixedExtractor{delta: ProfileDelta{Ops: []PatchOp{
		{Op: OpAppend, Path: "/interests", Value: "hiking", Confidence: 0.8},
	}}}
	p := NewProfiler(newMemStore(), ext)

	original := Document{"interests": []interface{}{"jazz"}}
	updated, _, _, err := p.UpdateFromTranscript(context.Background(), "u1", original, nil, "user: I love hiking")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(original.StringList("interests")) != 1 {
		t.Fatalf("input mutated: %v", original)
	}
	if len(updated.StringList("interests")) != 2 {
		t.Fatalf("updated = %v", updated)
	}
}
