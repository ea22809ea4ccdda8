package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taxogen/internal/config"
	"taxogen/internal/llm"
	"taxogen/internal/pipeline"
	"taxogen/internal/store"
	"taxogen/internal/vectorstore"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "taxogen",
		Short: "Taxogen builds and maintains a navigable taxonomy over an embedded article corpus.",
		Long: `Taxogen derives hierarchical categories and flat tags from article
embeddings and keeps that taxonomy current as new articles arrive.

The batch pipeline runs in five stages, each reading the persisted output
of the previous one:

  cluster     aggregate chunk embeddings per article and cluster them
  propose     ask the generation service to name each cluster
  normalize   merge proposals into the deduplicated global taxonomy
  embed-tags  embed tag descriptions into the vector index
  assign      persist confidence-scored tags for every clustered article

A sixth entry point, tag, classifies one new document at any time without
re-clustering.`,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.taxogen.yaml)")

	rootCmd.AddCommand(NewClusterCmd())
	rootCmd.AddCommand(NewProposeCmd())
	rootCmd.AddCommand(NewNormalizeCmd())
	rootCmd.AddCommand(NewEmbedTagsCmd())
	rootCmd.AddCommand(NewAssignCmd())
	rootCmd.AddCommand(NewTagCmd())
	rootCmd.AddCommand(NewStatsCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}

// newPipeline wires the pipeline from configuration. The returned closer
// releases the snapshot store.
func newPipeline() (*pipeline.Pipeline, func() error, error) {
	cfg := config.Get()

	st, err := store.NewStore(cfg.App.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	index := vectorstore.NewChromaIndex(cfg.Index.Host, cfg.IndexTimeout())
	llmClient := llm.NewClient(cfg.Ollama.Host, cfg.OllamaTimeout())

	return pipeline.New(st, index, llmClient, cfg), st.Close, nil
}
