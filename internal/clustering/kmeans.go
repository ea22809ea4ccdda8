package clustering

import (
	"fmt"
	"math"

	"taxogen/internal/core"
	"taxogen/internal/similarity"
)

// KMeansClusterer implements deterministic k-means over cosine distance.
// There is no randomness anywhere: centroids are seeded with a greedy
// farthest-point heuristic starting from the first point by sorted id, so
// identical inputs always reproduce identical clusters.
type KMeansClusterer struct{}

// NewKMeansClusterer creates a new deterministic k-means clusterer.
func NewKMeansClusterer() *KMeansClusterer {
	return &KMeansClusterer{}
}

// Name returns the algorithm name used for cluster id derivation.
func (km *KMeansClusterer) Name() string { return AlgorithmKMeans }

// Cluster performs k-means clustering on the given points. When opts.K is
// zero the cluster count is chosen automatically; a resolved k of one or
// less yields no clusters.
func (km *KMeansClusterer) Cluster(points []Point, opts Options) ([]core.Cluster, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no points to cluster")
	}

	sorted := sortPoints(points)
	embeddings := make([][]float64, len(sorted))
	for i, p := range sorted {
		if len(p.Embedding) == 0 {
			return nil, fmt.Errorf("point %q has no embedding", p.ID)
		}
		embeddings[i] = p.Embedding
	}

	k := opts.K
	if k <= 0 {
		k = ChooseK(len(sorted))
	}
	if k > len(sorted) {
		k = len(sorted)
	}
	if k <= 1 {
		return nil, nil
	}

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultOptions().MaxIterations
	}

	centroids := initializeCentroids(embeddings, k)

	var assignments []int
	for iteration := 0; iteration < maxIterations; iteration++ {
		// Assignment step: nearest centroid by cosine distance.
		newAssignments := make([]int, len(embeddings))
		for i, embedding := range embeddings {
			newAssignments[i] = nearestCentroid(embedding, centroids)
		}

		if assignments != nil && unchanged(assignments, newAssignments) {
			break
		}
		assignments = newAssignments

		centroids = updateCentroids(embeddings, assignments, k)
		if reseedEmptyCentroids(embeddings, assignments, centroids) {
			// Reseeding moved a point between clusters, so the donor
			// cluster's centroid no longer matches its membership.
			centroids = updateCentroids(embeddings, assignments, k)
		}
	}

	return buildClusters(AlgorithmKMeans, sorted, assignments, centroids, k), nil
}

// initializeCentroids seeds k centroids with the greedy max-min heuristic:
// the first point (by sorted id) starts the set, then the point whose
// distance to its nearest chosen centroid is largest is added until k are
// chosen.
func initializeCentroids(embeddings [][]float64, k int) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, copyVector(embeddings[0]))

	for len(centroids) < k {
		farthest := -1
		farthestDist := -1.0

		for i, embedding := range embeddings {
			minDist := math.Inf(1)
			for _, centroid := range centroids {
				if d := similarity.CosineDistance(embedding, centroid); d < minDist {
					minDist = d
				}
			}
			if minDist > farthestDist {
				farthestDist = minDist
				farthest = i
			}
		}

		centroids = append(centroids, copyVector(embeddings[farthest]))
	}

	return centroids
}

// nearestCentroid finds the index of the nearest centroid by cosine distance.
func nearestCentroid(embedding []float64, centroids [][]float64) int {
	minDistance := math.Inf(1)
	nearestIndex := 0

	for i, centroid := range centroids {
		if centroid == nil {
			continue
		}
		distance := similarity.CosineDistance(embedding, centroid)
		if distance < minDistance {
			minDistance = distance
			nearestIndex = i
		}
	}

	return nearestIndex
}

// updateCentroids recalculates centroids as the mean of their assigned
// points. A centroid with no members becomes nil and is reseeded afterwards.
func updateCentroids(embeddings [][]float64, assignments []int, k int) [][]float64 {
	centroids := make([][]float64, k)

	grouped := make(map[int][][]float64)
	for i, embedding := range embeddings {
		grouped[assignments[i]] = append(grouped[assignments[i]], embedding)
	}

	for label := 0; label < k; label++ {
		centroids[label] = similarity.Mean(grouped[label])
	}

	return centroids
}

// reseedEmptyCentroids reinitializes any centroid that ended an iteration
// with zero members by the farthest-point rule against the non-empty
// centroids, rather than leaving it degenerate. It reports whether any
// reseed happened, in which case centroids must be recomputed.
func reseedEmptyCentroids(embeddings [][]float64, assignments []int, centroids [][]float64) bool {
	reseeded := false
	for label, centroid := range centroids {
		if centroid != nil {
			continue
		}

		farthest := 0
		farthestDist := -1.0
		for i, embedding := range embeddings {
			minDist := math.Inf(1)
			for _, other := range centroids {
				if other == nil {
					continue
				}
				if d := similarity.CosineDistance(embedding, other); d < minDist {
					minDist = d
				}
			}
			if minDist > farthestDist {
				farthestDist = minDist
				farthest = i
			}
		}

		centroids[label] = copyVector(embeddings[farthest])
		assignments[farthest] = label
		reseeded = true
	}

	return reseeded
}

func unchanged(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func copyVector(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
