package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"taxogen/internal/pipeline"
)

// NewClusterCmd creates the cluster command, the first pipeline stage.
func NewClusterCmd() *cobra.Command {
	var (
		algorithm   string
		k           int
		maxArticles int
	)

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Aggregate article embeddings and cluster them",
		Long: `Cluster reads per-chunk embeddings from the vector index, averages them
into one embedding per source article, and groups the articles with a
deterministic cosine-distance k-means (or the density-based alternative).

Articles, clusters and membership are written to the snapshot store;
cluster centroids are mirrored into the vector index for later
classification of new documents. Re-running with unchanged inputs leaves
the store unchanged.

Examples:
  # Cluster the whole corpus with an automatically chosen k
  taxogen cluster

  # Force a specific cluster count
  taxogen cluster --k 8

  # Use the density-based algorithm on a noisy corpus
  taxogen cluster --algorithm dbscan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCluster(cmd, algorithm, k, maxArticles)
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", "", "clustering algorithm: kmeans or dbscan (default from config)")
	cmd.Flags().IntVar(&k, "k", 0, "number of clusters (0 = max(2, round(sqrt(n/2))))")
	cmd.Flags().IntVar(&maxArticles, "max-articles", 0, "cap the number of aggregated articles (0 = no limit)")

	return cmd
}

func runCluster(cmd *cobra.Command, algorithm string, k, maxArticles int) error {
	p, closeStore, err := newPipeline()
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := p.Cluster(cmd.Context(), pipeline.ClusterOptions{
		Algorithm:   algorithm,
		K:           k,
		MaxArticles: maxArticles,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Clustered %d articles into %d clusters (store: %s)\n",
		summary.Articles, summary.Clusters, summary.StorePath)
	return nil
}
