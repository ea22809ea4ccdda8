package aggregate

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"taxogen/internal/vectorstore"
)

// fakeIndex pages through a fixed record slice.
type fakeIndex struct {
	records []vectorstore.Record
}

func (f *fakeIndex) Upsert(ctx context.Context, collection string, records []vectorstore.Record) error {
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, collection string, embedding []float64, topK int) ([]vectorstore.Match, error) {
	return nil, nil
}

func (f *fakeIndex) Page(ctx context.Context, collection string, limit, offset int) ([]vectorstore.Record, error) {
	if offset >= len(f.records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.records) {
		end = len(f.records)
	}
	return f.records[offset:end], nil
}

func TestAggregateGroupsChunksBySource(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "alpha.md")
	pathB := filepath.Join(dir, "beta.md")
	if err := os.WriteFile(pathA, []byte("alpha article body"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := os.WriteFile(pathB, []byte("beta article body"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	index := &fakeIndex{records: []vectorstore.Record{
		{ID: "c1", Embedding: []float64{1, 0}, Metadata: map[string]string{SourceKey: pathA, "title": "Alpha Post", "url": "https://example.com/alpha"}},
		{ID: "c2", Embedding: []float64{0, 1}, Metadata: map[string]string{SourceKey: pathA}},
		{ID: "c3", Embedding: []float64{1, 1}, Metadata: map[string]string{SourceKey: pathB}},
		{ID: "c4", Embedding: []float64{1, 0}, Metadata: map[string]string{}},
	}}

	articles, err := NewAggregator(index, "chunks").Aggregate(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(articles))
	}

	alpha := articles[0]
	if alpha.ID != pathA {
		t.Fatalf("articles not sorted by source: %q", alpha.ID)
	}
	if alpha.Title != "Alpha Post" || alpha.URL != "https://example.com/alpha" {
		t.Errorf("metadata not recovered: %+v", alpha)
	}
	if alpha.Content != "alpha article body" {
		t.Errorf("content = %q", alpha.Content)
	}
	for i, want := range []float64{0.5, 0.5} {
		if math.Abs(alpha.Embedding[i]-want) > 1e-9 {
			t.Errorf("embedding[%d] = %f, want chunk mean %f", i, alpha.Embedding[i], want)
		}
	}

	beta := articles[1]
	if beta.Title != "beta" {
		t.Errorf("expected file-stem title fallback, got %q", beta.Title)
	}
}

func TestAggregateUnreadableSource(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone.md")
	index := &fakeIndex{records: []vectorstore.Record{
		{ID: "c1", Embedding: []float64{1, 0}, Metadata: map[string]string{SourceKey: missing}},
	}}

	articles, err := NewAggregator(index, "chunks").Aggregate(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
	if articles[0].Content != "" {
		t.Errorf("unreadable source should yield empty content, got %q", articles[0].Content)
	}
	if len(articles[0].Embedding) == 0 {
		t.Error("embedding must survive an unreadable source")
	}
}

func TestAggregateMaxArticlesCap(t *testing.T) {
	index := &fakeIndex{records: []vectorstore.Record{
		{ID: "c1", Embedding: []float64{1, 0}, Metadata: map[string]string{SourceKey: "b.md"}},
		{ID: "c2", Embedding: []float64{0, 1}, Metadata: map[string]string{SourceKey: "a.md"}},
		{ID: "c3", Embedding: []float64{1, 1}, Metadata: map[string]string{SourceKey: "c.md"}},
	}}

	articles, err := NewAggregator(index, "chunks").Aggregate(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(articles) != 2 {
		t.Fatalf("expected cap at 2 articles, got %d", len(articles))
	}
	if articles[0].ID != "a.md" || articles[1].ID != "b.md" {
		t.Errorf("cap must keep the first N sorted sources, got %s, %s", articles[0].ID, articles[1].ID)
	}
}

func TestAggregateEmptyCollection(t *testing.T) {
	if _, err := NewAggregator(&fakeIndex{}, "chunks").Aggregate(context.Background(), 0); err == nil {
		t.Fatal("expected an error for a collection without source-keyed chunks")
	}
}
