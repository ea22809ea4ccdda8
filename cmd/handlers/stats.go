package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"taxogen/internal/config"
	"taxogen/internal/store"
)

// NewStatsCmd creates the stats command for inspecting the snapshot store.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show snapshot store statistics",
		Long: `Stats prints row counts for every table of the snapshot store along
with the database file size, useful for checking which pipeline stages
have run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}

	return cmd
}

func runStats() error {
	st, err := store.NewStore(config.Get().App.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer st.Close()

	stats, err := st.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read store stats: %w", err)
	}

	fmt.Printf("Snapshot store: %s\n", st.Path())
	fmt.Printf("  Articles:    %d\n", stats.Articles)
	fmt.Printf("  Clusters:    %d\n", stats.Clusters)
	fmt.Printf("  Proposals:   %d\n", stats.Proposals)
	fmt.Printf("  Categories:  %d\n", stats.Categories)
	fmt.Printf("  Tags:        %d\n", stats.Tags)
	fmt.Printf("  Assignments: %d\n", stats.Assignments)
	fmt.Printf("  Overrides:   %d\n", stats.Overrides)
	fmt.Printf("  File size:   %d bytes\n", stats.FileSize)
	if !stats.LastUpdated.IsZero() {
		fmt.Printf("  Updated:     %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
	}

	return nil
}
