package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"taxogen/internal/assign"
	"taxogen/internal/core"
	"taxogen/internal/llm"
	"taxogen/internal/vectorstore"
)

// fakeIndex routes queries by collection name.
type fakeIndex struct {
	centroids []vectorstore.Match
	tags      []vectorstore.Match
}

func (f *fakeIndex) Upsert(ctx context.Context, collection string, records []vectorstore.Record) error {
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, collection string, embedding []float64, topK int) ([]vectorstore.Match, error) {
	if collection == "centroids" {
		return f.centroids, nil
	}
	return f.tags, nil
}

func (f *fakeIndex) Page(ctx context.Context, collection string, limit, offset int) ([]vectorstore.Record, error) {
	return nil, nil
}

type fakeResolver struct {
	mapping core.ClusterCategory
	tags    []core.Tag
}

func (f *fakeResolver) GetClusterCategory(clusterID string) (core.ClusterCategory, bool, error) {
	if f.mapping.ClusterID == clusterID {
		return f.mapping, true, nil
	}
	return core.ClusterCategory{}, false, nil
}

func (f *fakeResolver) ListTags() ([]core.Tag, error) {
	return f.tags, nil
}

// fakeOllama answers embeds with a fixed vector and generations with reply.
func fakeOllama(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][][]float64{"embeddings": {{1, 0}}})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": reply})
	})
	return httptest.NewServer(mux)
}

func writeDocument(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "article.md")
	if err := os.WriteFile(path, []byte("A post about deploying services on Kubernetes."), 0644); err != nil {
		t.Fatalf("write document: %v", err)
	}
	return path
}

func newTestClassifier(server *httptest.Server, index *fakeIndex, resolver *fakeResolver, opts Options) *Classifier {
	client := llm.NewClient(server.URL, time.Second)
	engine := assign.NewEngine(index, "tags", assign.DefaultOptions())
	return NewClassifier(client, index, engine, resolver, "centroids", opts)
}

func TestClassifyWithinThreshold(t *testing.T) {
	server := fakeOllama(t, "")
	defer server.Close()

	index := &fakeIndex{
		centroids: []vectorstore.Match{{ID: "cluster-1", Distance: 0.2}},
		tags:      []vectorstore.Match{{ID: "tag-kubernetes", Distance: 0.5}},
	}
	resolver := &fakeResolver{mapping: core.ClusterCategory{
		ClusterID:     "cluster-1",
		CategoryID:    "cloud-infrastructure",
		SubcategoryID: "cloud-infrastructure/kubernetes",
	}}

	classifier := newTestClassifier(server, index, resolver, Options{MaxClusterDistance: 0.6, EmbeddingModel: "nomic-embed-text"})
	result, err := classifier.Classify(context.Background(), writeDocument(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ClusterID != "cluster-1" {
		t.Errorf("cluster = %q", result.ClusterID)
	}
	if result.CategoryID != "cloud-infrastructure" {
		t.Errorf("category = %q", result.CategoryID)
	}
	if result.SubcategoryID != "cloud-infrastructure/kubernetes" {
		t.Errorf("subcategory = %q", result.SubcategoryID)
	}
	if result.Distance != 0.2 {
		t.Errorf("distance = %f", result.Distance)
	}
	if len(result.Assignments) != 1 || result.Assignments[0].TagID != "tag-kubernetes" {
		t.Errorf("assignments = %+v", result.Assignments)
	}
}

func TestClassifyBeyondThreshold(t *testing.T) {
	server := fakeOllama(t, "")
	defer server.Close()

	index := &fakeIndex{
		centroids: []vectorstore.Match{{ID: "cluster-1", Distance: 0.9}},
	}
	resolver := &fakeResolver{}

	classifier := newTestClassifier(server, index, resolver, Options{MaxClusterDistance: 0.6, EmbeddingModel: "nomic-embed-text"})
	result, err := classifier.Classify(context.Background(), writeDocument(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ClusterID != "" || result.CategoryID != "" {
		t.Errorf("document beyond the threshold must stay unclustered, got %+v", result)
	}
	if result.Distance != 0.9 {
		t.Errorf("the observed distance should still be reported, got %f", result.Distance)
	}
}

func TestClassifyNoCentroids(t *testing.T) {
	server := fakeOllama(t, "")
	defer server.Close()

	classifier := newTestClassifier(server, &fakeIndex{}, &fakeResolver{}, Options{EmbeddingModel: "nomic-embed-text"})
	result, err := classifier.Classify(context.Background(), writeDocument(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ClusterID != "" {
		t.Errorf("expected unclustered result, got cluster %q", result.ClusterID)
	}
	if result.Distance != -1 {
		t.Errorf("distance without a nearest cluster = %f, want -1", result.Distance)
	}
}

func TestClassifyRefineMergesTags(t *testing.T) {
	server := fakeOllama(t, `{"tags": ["Kubernetes", "Helm", "Unknown Tag"]}`)
	defer server.Close()

	index := &fakeIndex{
		tags: []vectorstore.Match{{ID: "tag-kubernetes", Distance: 0.5}},
	}
	resolver := &fakeResolver{tags: []core.Tag{
		{ID: "tag-kubernetes", Name: "Kubernetes", NormalizedName: "kubernetes"},
		{ID: "tag-helm", Name: "Helm", NormalizedName: "helm"},
	}}

	classifier := newTestClassifier(server, index, resolver, Options{
		Refine:           true,
		RefineConfidence: 0.8,
		GenerateModel:    "llama3",
		EmbeddingModel:   "nomic-embed-text",
	})
	result, err := classifier.Classify(context.Background(), writeDocument(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byTag := map[string]float64{}
	for _, a := range result.Assignments {
		byTag[a.TagID] = a.Confidence
	}

	if byTag["tag-kubernetes"] != 0.8 {
		t.Errorf("refinement should lift tag-kubernetes from 0.67 to 0.8, got %f", byTag["tag-kubernetes"])
	}
	if byTag["tag-helm"] != 0.8 {
		t.Errorf("tag-helm = %f, want the refinement confidence", byTag["tag-helm"])
	}
	if _, ok := byTag["tag-unknown-tag"]; ok {
		t.Error("a tag outside the global list must not be assigned")
	}
}

func TestClassifyMissingDocument(t *testing.T) {
	server := fakeOllama(t, "")
	defer server.Close()

	classifier := newTestClassifier(server, &fakeIndex{}, &fakeResolver{}, Options{EmbeddingModel: "nomic-embed-text"})
	if _, err := classifier.Classify(context.Background(), filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Fatal("expected an error for a missing document")
	}
}
