package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"taxogen/internal/pipeline"
)

// NewProposeCmd creates the propose command, the second pipeline stage.
func NewProposeCmd() *cobra.Command {
	var (
		sampleSize  int
		sampleChars int
	)

	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Generate a category and tag proposal for every cluster",
		Long: `Propose samples each cluster's member articles and asks the generation
service for a category, an optional subcategory, and 5-15 tags, returned
as one JSON object at temperature 0.

Each raw proposal is persisted verbatim as the unit of replay and audit.
A reply without a parseable JSON object or without a category name aborts
the stage; a silently degraded proposal would corrupt the taxonomy.

Examples:
  # Propose with default sampling
  taxogen propose

  # Sample more articles per cluster
  taxogen propose --sample-size 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPropose(cmd, sampleSize, sampleChars)
		},
	}

	cmd.Flags().IntVar(&sampleSize, "sample-size", 0, "member articles sampled per cluster (default from config)")
	cmd.Flags().IntVar(&sampleChars, "sample-chars", 0, "character budget per sampled article (default from config)")

	return cmd
}

func runPropose(cmd *cobra.Command, sampleSize, sampleChars int) error {
	p, closeStore, err := newPipeline()
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := p.Propose(cmd.Context(), pipeline.ProposeOptions{
		SampleSize:  sampleSize,
		SampleChars: sampleChars,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Generated proposals for %d clusters (store: %s)\n", summary.Clusters, summary.StorePath)
	return nil
}
