package vectorstore

import (
	"testing"

	"github.com/54b3r/docrag/internal/rag"
)

func TestScore(t *testing.T) {
	t.Parallel()
	a := []float32{3, 4}
	b := []float32{3, 4}
	cases := []struct {
		metric rag.Metric
		a, b   []float32
		want   float32
	}{
		{rag.Cosine, a, b, 1},
		{rag.Cosine, []float32{1, 0}, []float32{0, 1}, 0},
		{rag.Cosine, []float32{0, 0}, []float32{1, 1}, 0},
		{rag.Euclidean, []float32{0, 0}, a, 5},
		{rag.Dot, a, b, 25},
	}
	for _, tc := range cases {
		got := score(tc.metric, tc.a, tc.b)
		if diff := got - tc.want; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("score(%s, %v, %v) = %v, want %v", tc.metric, tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSortHits(t *testing.T) {
	t.Parallel()
	hits := rag.SearchResult{{ID: 3, Score: 0.5}, {ID: 1, Score: 0.9}, {ID: 2, Score: 0.5}}
	sortHits(hits, rag.Cosine)
	if hits[0].ID != 1 || hits[1].ID != 2 || hits[2].ID != 3 {
		t.Errorf("cosine order = %v, want ids [1 2 3]", hits)
	}

	sortHits(hits, rag.Euclidean)
	if hits[0].ID != 2 || hits[1].ID != 3 || hits[2].ID != 1 {
		t.Errorf("euclidean order = %v, want ids [2 3 1]", hits)
	}
}

func TestTopHits_TiesAtCutoffResolveByID(t *testing.T) {
	t.Parallel()
	// A backend may return tied points in any order; the overfetched tail
	// must let the lowest IDs win the last slots.
	hits := rag.SearchResult{
		{ID: 40, Score: 0.9},
		{ID: 9, Score: 0.5},
		{ID: 7, Score: 0.5},
		{ID: 12, Score: 0.5},
		{ID: 3, Score: 0.5},
	}
	got := topHits(hits, rag.Cosine, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != 40 || got[1].ID != 3 || got[2].ID != 7 {
		t.Errorf("ids = [%d %d %d], want [40 3 7]", got[0].ID, got[1].ID, got[2].ID)
	}

	short := topHits(rag.SearchResult{{ID: 2, Score: 1}}, rag.Cosine, 5)
	if len(short) != 1 {
		t.Errorf("fewer hits than limit must pass through, got %d", len(short))
	}
	if fetchLimit(5) <= 5 {
		t.Errorf("fetchLimit(5) = %d, must exceed the limit", fetchLimit(5))
	}
}

func TestCheckLimit(t *testing.T) {
	t.Parallel()
	for _, limit := range []int{0, -3} {
		if err := checkLimit(limit); err == nil {
			t.Errorf("checkLimit(%d) = nil, want error", limit)
		}
	}
	if err := checkLimit(1); err != nil {
		t.Errorf("checkLimit(1) = %v", err)
	}
}
