package clustering

import (
	"math"
	"reflect"
	"testing"
)

// twoClumps returns 6 points forming two obvious clusters: three vectors
// near [1,0] and three near [0,1].
func twoClumps() []Point {
	return []Point{
		{ID: "a1", Embedding: []float64{1.0, 0.0}},
		{ID: "a2", Embedding: []float64{0.9, 0.1}},
		{ID: "a3", Embedding: []float64{1.0, 0.05}},
		{ID: "b1", Embedding: []float64{0.0, 1.0}},
		{ID: "b2", Embedding: []float64{0.1, 0.9}},
		{ID: "b3", Embedding: []float64{0.05, 1.0}},
	}
}

func TestChooseK(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{6, 2},   // max(2, round(sqrt(3))) = 2
		{50, 5},  // round(sqrt(25)) = 5
		{2, 2},   // floor at 2
		{1, 1},   // capped at n
		{200, 10},
	}

	for _, tt := range tests {
		if got := ChooseK(tt.n); got != tt.want {
			t.Errorf("ChooseK(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestKMeansSeparatesTwoClumps(t *testing.T) {
	clusters, err := NewKMeansClusterer().Cluster(twoClumps(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters with k unset, got %d", len(clusters))
	}

	memberships := map[string][]string{}
	for _, cluster := range clusters {
		key := cluster.ArticleIDs[0][:1] // "a" or "b"
		memberships[key] = cluster.ArticleIDs
	}

	if !reflect.DeepEqual(memberships["a"], []string{"a1", "a2", "a3"}) {
		t.Errorf("a-clump membership = %v", memberships["a"])
	}
	if !reflect.DeepEqual(memberships["b"], []string{"b1", "b2", "b3"}) {
		t.Errorf("b-clump membership = %v", memberships["b"])
	}
}

func TestKMeansDeterminism(t *testing.T) {
	first, err := NewKMeansClusterer().Cluster(twoClumps(), DefaultOptions())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := NewKMeansClusterer().Cluster(twoClumps(), DefaultOptions())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("cluster counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("cluster %d ids differ: %s vs %s", i, first[i].ID, second[i].ID)
		}
		if !reflect.DeepEqual(first[i].ArticleIDs, second[i].ArticleIDs) {
			t.Errorf("cluster %d membership differs", i)
		}
		if !reflect.DeepEqual(first[i].Centroid, second[i].Centroid) {
			t.Errorf("cluster %d centroids differ", i)
		}
	}
}

func TestKMeansInputOrderIrrelevant(t *testing.T) {
	points := twoClumps()
	reversed := make([]Point, len(points))
	for i, p := range points {
		reversed[len(points)-1-i] = p
	}

	first, err := NewKMeansClusterer().Cluster(points, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := NewKMeansClusterer().Cluster(reversed, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("cluster ids depend on input order: %s vs %s", first[i].ID, second[i].ID)
		}
	}
}

func TestKMeansCentroidIsMemberMean(t *testing.T) {
	clusters, err := NewKMeansClusterer().Cluster(twoClumps(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byID := map[string][]float64{}
	for _, p := range twoClumps() {
		byID[p.ID] = p.Embedding
	}

	for _, cluster := range clusters {
		sum := make([]float64, len(cluster.Centroid))
		for _, id := range cluster.ArticleIDs {
			for j, v := range byID[id] {
				sum[j] += v
			}
		}
		for j := range sum {
			want := sum[j] / float64(len(cluster.ArticleIDs))
			if math.Abs(cluster.Centroid[j]-want) > 1e-9 {
				t.Errorf("cluster %s centroid[%d] = %f, want %f", cluster.ID, j, cluster.Centroid[j], want)
			}
		}
	}
}

func TestReseedRecomputesDonorCentroid(t *testing.T) {
	embeddings := [][]float64{{1, 0}, {0.8, 0.6}, {0, 1}}
	assignments := []int{0, 0, 1}

	centroids := updateCentroids(embeddings, assignments, 3)
	if centroids[2] != nil {
		t.Fatalf("expected label 2 to be empty, got %v", centroids[2])
	}

	if !reseedEmptyCentroids(embeddings, assignments, centroids) {
		t.Fatal("expected the empty centroid to be reseeded")
	}
	centroids = updateCentroids(embeddings, assignments, 3)

	// The reseed moved point 0 to label 2, so label 0's centroid must be
	// the mean of its remaining member only.
	if assignments[0] != 2 {
		t.Fatalf("assignments = %v, want point 0 reassigned to label 2", assignments)
	}
	want := []float64{0.8, 0.6}
	for i := range want {
		if math.Abs(centroids[0][i]-want[i]) > 1e-9 {
			t.Errorf("donor centroid[%d] = %f, want %f", i, centroids[0][i], want[i])
		}
	}
	if centroids[2][0] != 1 || centroids[2][1] != 0 {
		t.Errorf("reseeded centroid = %v", centroids[2])
	}
}

func TestKMeansSingletonCorpus(t *testing.T) {
	clusters, err := NewKMeansClusterer().Cluster([]Point{{ID: "only", Embedding: []float64{1, 0}}}, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clusters != nil {
		t.Errorf("expected no clusters for k <= 1, got %d", len(clusters))
	}
}

func TestDeriveClusterID(t *testing.T) {
	id1 := DeriveClusterID("kmeans", []string{"a", "b", "c"})
	id2 := DeriveClusterID("kmeans", []string{"c", "a", "b"})
	if id1 != id2 {
		t.Errorf("set-equal memberships derived different ids: %s vs %s", id1, id2)
	}

	id3 := DeriveClusterID("kmeans", []string{"a", "b", "d"})
	if id1 == id3 {
		t.Error("changing one member did not change the derived id")
	}

	id4 := DeriveClusterID("dbscan", []string{"a", "b", "c"})
	if id1 == id4 {
		t.Error("different algorithms derived the same id")
	}

	if len(id1) != 16 {
		t.Errorf("expected 16-char id, got %q", id1)
	}
}

func TestClusterMetadata(t *testing.T) {
	clusters, err := NewKMeansClusterer().Cluster(twoClumps(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, cluster := range clusters {
		if cluster.Metadata["algorithm"] != AlgorithmKMeans {
			t.Errorf("metadata algorithm = %q", cluster.Metadata["algorithm"])
		}
		if cluster.Metadata["k"] != "2" {
			t.Errorf("metadata k = %q", cluster.Metadata["k"])
		}
		if cluster.Metadata["size"] != "3" {
			t.Errorf("metadata size = %q", cluster.Metadata["size"])
		}
	}
}

func TestDBSCANFallsBackOnTinyCorpus(t *testing.T) {
	points := []Point{
		{ID: "a", Embedding: []float64{1, 0}},
		{ID: "b", Embedding: []float64{0, 1}},
	}

	opts := DefaultOptions()
	opts.MinPoints = 3

	clusters, err := NewDBSCANClusterer().Cluster(points, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, cluster := range clusters {
		if cluster.Metadata["algorithm"] != AlgorithmKMeans {
			t.Errorf("expected k-means fallback, got %q", cluster.Metadata["algorithm"])
		}
	}
}

func TestDBSCANSeparatesDenseClumps(t *testing.T) {
	clusters, err := NewDBSCANClusterer().Cluster(twoClumps(), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(clusters) != 2 {
		t.Fatalf("expected 2 dense clusters, got %d", len(clusters))
	}
	for _, cluster := range clusters {
		if cluster.Metadata["algorithm"] != AlgorithmDBSCAN {
			t.Errorf("metadata algorithm = %q", cluster.Metadata["algorithm"])
		}
		if len(cluster.ArticleIDs) != 3 {
			t.Errorf("cluster %s has %d members, want 3", cluster.ID, len(cluster.ArticleIDs))
		}
	}
}
