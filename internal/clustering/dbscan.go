package clustering

import (
	"fmt"

	"taxogen/internal/core"
	"taxogen/internal/similarity"
)

// DBSCANClusterer is the density-based alternative for noise-robust corpora.
// Points in cosine-distance neighborhoods of at least MinPoints members form
// clusters; everything else is treated as noise and excluded from the
// output. Expansion order follows sorted article ids, so runs are
// deterministic. When the corpus is too small to support the density
// parameters the engine falls back to the k-means path rather than fail.
type DBSCANClusterer struct{}

// NewDBSCANClusterer creates a new density-based clusterer.
func NewDBSCANClusterer() *DBSCANClusterer {
	return &DBSCANClusterer{}
}

// Name returns the algorithm name used for cluster id derivation.
func (db *DBSCANClusterer) Name() string { return AlgorithmDBSCAN }

// Cluster runs DBSCAN over cosine distance. Labels are assigned in the order
// clusters are discovered; noise points carry label -1 and are dropped.
func (db *DBSCANClusterer) Cluster(points []Point, opts Options) ([]core.Cluster, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no points to cluster")
	}

	epsilon := opts.Epsilon
	if epsilon <= 0 {
		epsilon = DefaultOptions().Epsilon
	}
	minPoints := opts.MinPoints
	if minPoints <= 0 {
		minPoints = DefaultOptions().MinPoints
	}

	if len(points) < minPoints {
		return NewKMeansClusterer().Cluster(points, opts)
	}

	sorted := sortPoints(points)
	for _, p := range sorted {
		if len(p.Embedding) == 0 {
			return nil, fmt.Errorf("point %q has no embedding", p.ID)
		}
	}

	const (
		unvisited = -2
		noise     = -1
	)

	assignments := make([]int, len(sorted))
	for i := range assignments {
		assignments[i] = unvisited
	}

	neighborhoods := make([][]int, len(sorted))
	for i := range sorted {
		for j := range sorted {
			if similarity.CosineDistance(sorted[i].Embedding, sorted[j].Embedding) <= epsilon {
				neighborhoods[i] = append(neighborhoods[i], j)
			}
		}
	}

	label := 0
	for i := range sorted {
		if assignments[i] != unvisited {
			continue
		}
		if len(neighborhoods[i]) < minPoints {
			assignments[i] = noise
			continue
		}

		// Grow a new cluster from this core point.
		assignments[i] = label
		queue := append([]int(nil), neighborhoods[i]...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if assignments[j] == noise {
				assignments[j] = label
			}
			if assignments[j] != unvisited {
				continue
			}
			assignments[j] = label
			if len(neighborhoods[j]) >= minPoints {
				queue = append(queue, neighborhoods[j]...)
			}
		}
		label++
	}

	if label == 0 {
		// Everything was noise; the corpus has no dense regions at this
		// epsilon. Fall back to k-means so the pipeline still produces a
		// taxonomy.
		return NewKMeansClusterer().Cluster(points, opts)
	}

	centroids := make([][]float64, label)
	grouped := make(map[int][][]float64)
	for i, l := range assignments {
		if l >= 0 {
			grouped[l] = append(grouped[l], sorted[i].Embedding)
		}
	}
	for l := 0; l < label; l++ {
		centroids[l] = similarity.Mean(grouped[l])
	}

	return buildClusters(AlgorithmDBSCAN, sorted, assignments, centroids, label), nil
}
