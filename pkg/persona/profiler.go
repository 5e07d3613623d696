package persona

import (
	"context"
	"fmt"
	"time"

	"github.com/dotsetgreg/personakit/pkg/logger"
	"github.com/dotsetgreg/personakit/pkg/store"
)

const (
	// DefaultCollection is the store collection holding flattened profiles.
	DefaultCollection = "persona_profile"

	// DefaultExtractTimeout bounds one delta-extraction call.
	DefaultExtractTimeout = 30 * time.Second

	scrollPageSize = 128
)

// DeltaExtractor produces a ProfileDelta for a transcript given the current
// profile and the field reference. Implementations live in pkg/extractor.
type DeltaExtractor interface {
	ExtractDelta(ctx context.Context, profileJSON, fieldReference, transcript string) (ProfileDelta, error)
}

// Profiler is the orchestrator tying extraction, mutation and persistence
// together for one collection of user profiles.
type Profiler struct {
	store          store.VectorStore
	extractor      DeltaExtractor
	mutator        *Mutator
	collection     string
	pairs          []OpposingPair
	extractTimeout time.Duration
}

// ProfilerOption customizes a Profiler.
type ProfilerOption func(*Profiler)

func WithCollection(name string) ProfilerOption {
	return func(p *Profiler) { p.collection = name }
}

func WithSchema(schema *Schema) ProfilerOption {
	return func(p *Profiler) { p.mutator = NewMutator(schema) }
}

func WithOpposingPairs(pairs []OpposingPair) ProfilerOption {
	return func(p *Profiler) { p.pairs = pairs }
}

func WithExtractTimeout(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		if d > 0 {
			p.extractTimeout = d
		}
	}
}

func NewProfiler(st store.VectorStore, extractor DeltaExtractor, opts ...ProfilerOption) *Profiler {
	p := &Profiler{
		store:          st,
		extractor:      extractor,
		mutator:        NewMutator(nil),
		collection:     DefaultCollection,
		pairs:          DefaultOpposingPairs(),
		extractTimeout: DefaultExtractTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Profiler) Schema() *Schema {
	return p.mutator.Schema()
}

func (p *Profiler) Collection() string {
	return p.collection
}

// LoadProfile scans every stored item for the user and rebuilds the document
// plus its per-path last-updated map. A user with no items gets an empty
// document, not an error.
func (p *Profiler) LoadProfile(ctx context.Context, userID string) (Document, map[string]time.Time, error) {
	filter := store.Filter{UserID: userID}
	var items []Item
	cursor := ""
	for {
		page, next, err := p.store.Scroll(ctx, p.collection, filter, scrollPageSize, cursor)
		if err != nil {
			return nil, nil, fmt.Errorf("load profile %s: %w", userID, err)
		}
		for _, rec := range page {
			items = append(items, ItemFromMetadata(rec.ID, rec.Content, rec.Metadata))
		}
		if next == "" {
			break
		}
		cursor = next
	}
	doc, timestamps := Rebuild(items)
	return doc, timestamps, nil
}

// SaveProfile replaces the user's stored items with a fresh flatten of doc.
// The replace is delete-then-insert, not transactional: a crash between the
// two phases loses the stored copy until the next save. An empty document
// still deletes but inserts nothing.
func (p *Profiler) SaveProfile(ctx context.Context, userID string, doc Document, timestamps map[string]time.Time) error {
	items := Flatten(userID, doc, timestamps)

	deleted, err := p.store.DeleteByFilter(ctx, p.collection, store.Filter{UserID: userID})
	if err != nil {
		return fmt.Errorf("save profile %s delete: %w", userID, err)
	}
	if len(items) == 0 {
		logger.InfoCF("profiler", "Profile emptied", map[string]interface{}{
			"user_id": userID,
			"deleted": deleted,
		})
		return nil
	}

	texts := make([]string, len(items))
	metadatas := make([]map[string]string, len(items))
	ids := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Content
		metadatas[i] = it.MetadataMap()
		ids[i] = it.ID
	}
	if err := p.store.AddTexts(ctx, p.collection, texts, metadatas, ids); err != nil {
		return fmt.Errorf("save profile %s insert: %w", userID, err)
	}

	logger.InfoCF("profiler", "Profile saved", map[string]interface{}{
		"user_id":  userID,
		"items":    len(items),
		"replaced": deleted,
	})
	return nil
}

// UpdateFromTranscript extracts a delta from the transcript and applies it to
// a copy of doc. Extraction failure returns the original document untouched
// along with the error; per-op skips are reported, not fatal. Timestamps are
// stamped for applied op paths only.
func (p *Profiler) UpdateFromTranscript(ctx context.Context, userID string, doc Document, timestamps map[string]time.Time, transcript string) (Document, map[string]time.Time, ApplyReport, error) {
	if timestamps == nil {
		timestamps = map[string]time.Time{}
	}

	extractCtx, cancel := context.WithTimeout(ctx, p.extractTimeout)
	defer cancel()
	delta, err := p.extractor.ExtractDelta(extractCtx, doc.JSON(), p.Schema().FieldReference(), transcript)
	if err != nil {
		return doc, timestamps, ApplyReport{}, fmt.Errorf("extract delta for %s: %w", userID, err)
	}
	if len(delta.Ops) == 0 {
		return doc, timestamps, ApplyReport{AppliedAt: time.Now().UTC()}, nil
	}

	updated := doc.Clone()
	stamped := make(map[string]time.Time, len(timestamps))
	for k, v := range timestamps {
		stamped[k] = v
	}

	report := p.mutator.ApplyDelta(updated, delta)
	for _, res := range report.Results {
		if res.Outcome != OpApplied {
			logger.WarnCF("profiler", "Patch op skipped", map[string]interface{}{
				"user_id": userID,
				"op":      string(res.Op.Op),
				"path":    res.Op.Path,
				"reason":  res.Reason,
			})
			continue
		}
		when := res.Op.UpdatedAt
		if when.IsZero() {
			when = report.AppliedAt
		}
		// Stamp the canonical slashed form; flatten looks timestamps up by it,
		// and the mutator accepts unslashed paths.
		stamped[JoinPointer(ParsePointer(res.Op.Path))] = when.UTC()
	}
	ResolveConflicts(updated, p.pairs)

	logger.InfoCF("profiler", "Delta applied", map[string]interface{}{
		"user_id": userID,
		"applied": report.AppliedCount(),
		"skipped": report.SkippedCount(),
	})
	return updated, stamped, report, nil
}

// Refresh is the full load-update-save cycle for one transcript. The stored
// profile is rewritten only when at least one op applied.
func (p *Profiler) Refresh(ctx context.Context, userID, transcript string) (Document, ApplyReport, error) {
	doc, timestamps, err := p.LoadProfile(ctx, userID)
	if err != nil {
		return nil, ApplyReport{}, err
	}
	updated, stamped, report, err := p.UpdateFromTranscript(ctx, userID, doc, timestamps, transcript)
	if err != nil {
		return doc, report, err
	}
	if !report.HasApplied() {
		return updated, report, nil
	}
	if err := p.SaveProfile(ctx, userID, updated, stamped); err != nil {
		return updated, report, err
	}
	return updated, report, nil
}

// SearchProfile runs a similarity query over the user's stored items.
func (p *Profiler) SearchProfile(ctx context.Context, userID, query string, topK int) ([]store.ScoredRecord, error) {
	return p.store.Search(ctx, p.collection, query, store.Filter{UserID: userID}, topK)
}
