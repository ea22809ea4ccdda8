package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"taxogen/internal/pipeline"
)

// NewAssignCmd creates the assign command, the fifth pipeline stage.
func NewAssignCmd() *cobra.Command {
	var (
		topN               int
		proposalConfidence float64
		minConfidence      float64
	)

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign confidence-scored tags to every clustered article",
		Long: `Assign starts each article's candidate set from its cluster's proposal
tags, adds the nearest tag-embedding matches scored 1/(1+distance), keeps
the maximum confidence per tag, and persists the top-N assignments.

A tag-embedding collection that does not exist yet contributes zero
candidates; the stage then proceeds with proposal tags alone. Articles
with a manual tag override are skipped.

Examples:
  # Assign with the configured confidence model
  taxogen assign

  # Keep fewer, stronger tags
  taxogen assign --top-n 5 --min-confidence 0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssign(cmd, topN, proposalConfidence, minConfidence)
		},
	}

	cmd.Flags().IntVar(&topN, "top-n", 0, "tags kept per article (default from config)")
	cmd.Flags().Float64Var(&proposalConfidence, "proposal-confidence", 0, "confidence for cluster-proposal tags (default from config)")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "floor for embedding-based matches (default from config)")

	return cmd
}

func runAssign(cmd *cobra.Command, topN int, proposalConfidence, minConfidence float64) error {
	p, closeStore, err := newPipeline()
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := p.Assign(cmd.Context(), pipeline.AssignOptions{
		TopN:               topN,
		ProposalConfidence: proposalConfidence,
		MinConfidence:      minConfidence,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Assigned %d tags across %d articles (store: %s)\n",
		summary.Assignments, summary.Articles, summary.StorePath)
	return nil
}
