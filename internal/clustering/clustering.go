// Package clustering groups article embeddings into clusters with stable,
// membership-derived identifiers. The default algorithm is a deterministic
// cosine-distance k-means; a density-based alternative is available behind
// the same interface.
package clustering

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"taxogen/internal/core"
)

const (
	// AlgorithmKMeans is the default deterministic k-means algorithm.
	AlgorithmKMeans = "kmeans"
	// AlgorithmDBSCAN is the density-based alternative.
	AlgorithmDBSCAN = "dbscan"
)

// Point is one article embedding to be clustered.
type Point struct {
	ID        string    // Article id
	Embedding []float64 // Article embedding
}

// Options configures a clustering run.
type Options struct {
	K             int     // Number of clusters; 0 selects k = max(2, round(sqrt(n/2)))
	MaxIterations int     // Iteration bound for k-means (default 30)
	Epsilon       float64 // DBSCAN neighborhood radius in cosine distance
	MinPoints     int     // DBSCAN core-point density threshold
}

// DefaultOptions returns sensible defaults for a clustering run.
func DefaultOptions() Options {
	return Options{
		K:             0,
		MaxIterations: 30,
		Epsilon:       0.25,
		MinPoints:     3,
	}
}

// Clusterer produces clusters from article embeddings. Implementations must
// be deterministic: the same points and options always yield the same
// clusters in the same order.
type Clusterer interface {
	Cluster(points []Point, opts Options) ([]core.Cluster, error)
	Name() string
}

// New returns the clusterer for the given algorithm name. Unknown names fall
// back to k-means so a misconfigured run still produces a taxonomy.
func New(algorithm string) Clusterer {
	switch algorithm {
	case AlgorithmDBSCAN:
		return NewDBSCANClusterer()
	default:
		return NewKMeansClusterer()
	}
}

// ChooseK picks the cluster count for n articles when none was supplied:
// max(2, round(sqrt(n/2))), capped at n.
func ChooseK(n int) int {
	k := int(math.Round(math.Sqrt(float64(n) / 2)))
	if k < 2 {
		k = 2
	}
	if k > n {
		k = n
	}
	return k
}

// DeriveClusterID derives the stable cluster identifier from the member
// article ids and the algorithm name. Membership is treated as a set: the
// ids are sorted before hashing, so any order yields the same id.
func DeriveClusterID(algorithm string, articleIDs []string) string {
	ids := make([]string, len(articleIDs))
	copy(ids, articleIDs)
	sort.Strings(ids)

	sum := sha256.Sum256([]byte(algorithm + "|" + strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])[:16]
}

// buildClusters turns label assignments into core.Cluster values keyed by
// derived ids, sorted by the internal numeric label for determinism. Empty
// labels are dropped.
func buildClusters(algorithm string, points []Point, assignments []int, centroids [][]float64, k int) []core.Cluster {
	members := make(map[int][]string)
	for i, label := range assignments {
		if label < 0 {
			continue // DBSCAN noise
		}
		members[label] = append(members[label], points[i].ID)
	}

	labels := make([]int, 0, len(members))
	for label := range members {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	clusters := make([]core.Cluster, 0, len(labels))
	for _, label := range labels {
		ids := members[label]
		sort.Strings(ids)

		var centroid []float64
		if label < len(centroids) && centroids[label] != nil {
			centroid = centroids[label]
		}

		clusters = append(clusters, core.Cluster{
			ID:         DeriveClusterID(algorithm, ids),
			ArticleIDs: ids,
			Centroid:   centroid,
			Metadata: map[string]string{
				"algorithm": algorithm,
				"k":         fmt.Sprintf("%d", k),
				"label":     fmt.Sprintf("%d", label),
				"size":      fmt.Sprintf("%d", len(ids)),
			},
		})
	}

	return clusters
}

// sortPoints returns a copy of points ordered by id so every run sees the
// input in the same order regardless of how the caller assembled it.
func sortPoints(points []Point) []Point {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}
