package handlers

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewEmbedTagsCmd creates the embed-tags command, the fourth pipeline stage.
func NewEmbedTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed-tags",
		Short: "Embed tag descriptions into the vector index",
		Long: `Embed-tags embeds every global tag's name and description and upserts
the vectors into the tag-embedding collection, enabling the
embedding-similarity half of tag assignment.

Cluster centroids are re-upserted at the same time: the vector index is a
derived cache that can always be rebuilt from the snapshot store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmbedTags(cmd)
		},
	}

	return cmd
}

func runEmbedTags(cmd *cobra.Command) error {
	p, closeStore, err := newPipeline()
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := p.EmbedTags(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Embedded %d tags and %d cluster centroids (store: %s)\n",
		summary.Tags, summary.Clusters, summary.StorePath)
	return nil
}
