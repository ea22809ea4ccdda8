package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"taxogen/internal/pipeline"
)

// NewTagCmd creates the tag command, the independent new-article entry
// point.
func NewTagCmd() *cobra.Command {
	var (
		maxDistance float64
		refine      bool
	)

	cmd := &cobra.Command{
		Use:   "tag <document>",
		Short: "Classify one new document against the existing taxonomy",
		Long: `Tag embeds a single document, finds its nearest existing cluster without
re-clustering, resolves the cluster's category, and assigns tags through
the embedding-similarity confidence model.

When the nearest centroid is farther than the distance threshold, the
document is left unclustered rather than forced into a poor match. With
--refine, the generation service additionally picks matching tags from
the entire global tag list.

Examples:
  # Classify a new document
  taxogen tag notes/new-article.md

  # Be stricter about cluster membership and refine tags with the LLM
  taxogen tag notes/new-article.md --max-distance 0.4 --refine`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTag(cmd, args[0], maxDistance, refine)
		},
	}

	cmd.Flags().Float64Var(&maxDistance, "max-distance", 0, "maximum cosine distance to the nearest centroid (default from config)")
	cmd.Flags().BoolVar(&refine, "refine", false, "let the generation service pick from the global tag list")

	return cmd
}

func runTag(cmd *cobra.Command, path string, maxDistance float64, refine bool) error {
	p, closeStore, err := newPipeline()
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := p.TagNewArticle(cmd.Context(), path, pipeline.ClassifyOptions{
		MaxClusterDistance: maxDistance,
		Refine:             refine,
	})
	if err != nil {
		return err
	}

	if result.ClusterID == "" {
		fmt.Printf("%s: unclustered (no centroid within threshold)\n", path)
	} else {
		fmt.Printf("%s: cluster %s, category %s", path, result.ClusterID, orNone(result.CategoryID))
		if result.SubcategoryID != "" {
			fmt.Printf(", subcategory %s", result.SubcategoryID)
		}
		fmt.Println()
	}

	for _, assignment := range result.Assignments {
		fmt.Printf("  %-40s %.2f\n", assignment.TagID, assignment.Confidence)
	}

	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
