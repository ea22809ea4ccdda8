package handlers

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewNormalizeCmd creates the normalize command, the third pipeline stage.
func NewNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Merge proposals into the deduplicated global taxonomy",
		Long: `Normalize slugifies and synonym-canonicalizes every proposed category
and tag name, merges proposals that resolve to the same normalized name,
and writes the category tree, the global tag list and the cluster-to-
category map to the snapshot store in one pass.

The first proposal seen for a normalized name establishes its canonical
form; identical proposals always derive identical ids, so re-running is
safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNormalize(cmd)
		},
	}

	return cmd
}

func runNormalize(cmd *cobra.Command) error {
	p, closeStore, err := newPipeline()
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := p.Normalize(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Built taxonomy: %d categories, %d tags across %d clusters (store: %s)\n",
		summary.Categories, summary.Tags, summary.Clusters, summary.StorePath)
	return nil
}
