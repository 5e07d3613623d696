package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/personakit/pkg/embedding"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	emb := embedding.NewByName("chargram")
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "items.db"), emb)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureCollection(context.Background(), "profiles", emb.Dims()))
	return s
}

func meta(userID, path string) map[string]string {
	return map[string]string{"user_id": userID, "path": path}
}

func TestEnsureCollectionPinsDimension(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Re-ensuring with the same dim is a no-op.
	require.NoError(t, s.EnsureCollection(ctx, "profiles", embedding.NewByName("chargram").Dims()))

	err := s.EnsureCollection(ctx, "profiles", 16)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOperationsRequireCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AddTexts(ctx, "missing", []string{"x"}, nil, nil)
	require.ErrorIs(t, err, ErrCollectionMissing)
	_, err = s.DeleteByFilter(ctx, "missing", Filter{})
	require.ErrorIs(t, err, ErrCollectionMissing)
	_, _, err = s.Scroll(ctx, "missing", Filter{}, 10, "")
	require.ErrorIs(t, err, ErrCollectionMissing)
	_, err = s.Search(ctx, "missing", "q", Filter{}, 3)
	require.ErrorIs(t, err, ErrCollectionMissing)
}

func TestAddTextsValidatesParallelSlices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AddTexts(ctx, "profiles", []string{"a", "b"}, []map[string]string{meta("u1", "/name")}, nil)
	require.Error(t, err)
	err = s.AddTexts(ctx, "profiles", []string{"a", "b"}, nil, []string{"one-id"})
	require.Error(t, err)
	require.NoError(t, s.AddTexts(ctx, "profiles", nil, nil, nil))
}

func TestAddTextsUpsertsByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddTexts(ctx, "profiles",
		[]string{"/name = Lily"}, []map[string]string{meta("u1", "/name")}, []string{"item-1"}))
	require.NoError(t, s.AddTexts(ctx, "profiles",
		[]string{"/name = Lil"}, []map[string]string{meta("u1", "/name")}, []string{"item-1"}))

	recs, cursor, err := s.Scroll(ctx, "profiles", Filter{UserID: "u1"}, 10, "")
	require.NoError(t, err)
	require.Empty(t, cursor)
	require.Len(t, recs, 1)
	require.Equal(t, "/name = Lil", recs[0].Content)
	require.Equal(t, "u1", recs[0].Metadata["user_id"])
}

func TestScrollPagesWithCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	texts := make([]string, 5)
	metas := make([]map[string]string, 5)
	ids := make([]string, 5)
	for i := range texts {
		texts[i] = fmt.Sprintf("/interests += topic-%d", i)
		metas[i] = meta("u1", "/interests")
		ids[i] = fmt.Sprintf("item-%d", i)
	}
	require.NoError(t, s.AddTexts(ctx, "profiles", texts, metas, ids))

	var got []string
	cursor := ""
	pages := 0
	for {
		recs, next, err := s.Scroll(ctx, "profiles", Filter{UserID: "u1"}, 2, cursor)
		require.NoError(t, err)
		for _, rec := range recs {
			got = append(got, rec.ID)
		}
		pages++
		if next == "" {
			break
		}
		cursor = next
	}
	require.Equal(t, []string{"item-0", "item-1", "item-2", "item-3", "item-4"}, got)
	require.GreaterOrEqual(t, pages, 3)
}

func TestDeleteByFilterScopesToUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddTexts(ctx, "profiles",
		[]string{"/name = Lily", "/interests += hiking", "/name = Marc"},
		[]map[string]string{meta("u1", "/name"), meta("u1", "/interests"), meta("u2", "/name")},
		[]string{"a", "b", "c"}))

	n, err := s.DeleteByFilter(ctx, "profiles", Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	recs, _, err := s.Scroll(ctx, "profiles", Filter{}, 10, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "c", recs[0].ID)
}

func TestDeleteByFilterScopesToPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddTexts(ctx, "profiles",
		[]string{"/name = Lily", "/interests += hiking"},
		[]map[string]string{meta("u1", "/name"), meta("u1", "/interests")},
		[]string{"a", "b"}))

	n, err := s.DeleteByFilter(ctx, "profiles", Filter{UserID: "u1", Path: "/interests"})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	recs, _, err := s.Scroll(ctx, "profiles", Filter{UserID: "u1"}, 10, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "/name = Lily", recs[0].Content)
}

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddTexts(ctx, "profiles",
		[]string{
			"/interests += hiking mountain trails",
			"/interests += jazz piano music",
			"/name = Lily",
		},
		[]map[string]string{
			meta("u1", "/interests"),
			meta("u1", "/interests"),
			meta("u1", "/name"),
		},
		[]string{"a", "b", "c"}))

	scored, err := s.Search(ctx, "profiles", "hiking mountain trails", Filter{UserID: "u1"}, 2)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	require.Equal(t, "a", scored[0].ID)
	require.Greater(t, scored[0].Score, scored[1].Score)
}

func TestSearchHonorsUserFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddTexts(ctx, "profiles",
		[]string{"/interests += hiking", "/interests += hiking"},
		[]map[string]string{meta("u1", "/interests"), meta("u2", "/interests")},
		[]string{"a", "b"}))

	scored, err := s.Search(ctx, "profiles", "hiking", Filter{UserID: "u2"}, 10)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	require.Equal(t, "b", scored[0].ID)
}

func TestGeneratedIDsArePrefixed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddTexts(ctx, "profiles",
		[]string{"/name = Lily"}, []map[string]string{meta("u1", "/name")}, nil))

	recs, _, err := s.Scroll(ctx, "profiles", Filter{UserID: "u1"}, 10, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Contains(t, recs[0].ID, "pit-")
}
