// Package config loads the application configuration from a YAML file,
// environment variables and a local .env file. Lookup order: explicit
// --config file, then ./.taxogen.yaml, then $HOME/.taxogen.yaml.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App      App      `mapstructure:"app"`
	Ollama   Ollama   `mapstructure:"ollama"`
	Index    Index    `mapstructure:"index"`
	Pipeline Pipeline `mapstructure:"pipeline"`
}

// App holds general application configuration.
type App struct {
	DataDir  string `mapstructure:"data_dir"`  // Directory holding the snapshot store
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error
}

// Ollama holds generation/embedding service configuration.
type Ollama struct {
	Host           string `mapstructure:"host"`            // Service address
	GenerateModel  string `mapstructure:"generate_model"`  // Model for proposals and refinement
	EmbeddingModel string `mapstructure:"embedding_model"` // Model for vector creation
	Timeout        string `mapstructure:"timeout"`         // Per-call timeout, e.g. "120s"
}

// Index holds vector-similarity index configuration.
type Index struct {
	Host                string `mapstructure:"host"`                 // Chroma-compatible server address
	ChunksCollection    string `mapstructure:"chunks_collection"`    // Externally-owned per-chunk embeddings
	CentroidsCollection string `mapstructure:"centroids_collection"` // Cluster centroids (owned)
	TagsCollection      string `mapstructure:"tags_collection"`      // Tag-description embeddings (owned)
	Timeout             string `mapstructure:"timeout"`              // Per-call timeout
}

// Pipeline holds the tunables of the taxonomy pipeline.
type Pipeline struct {
	Algorithm          string  `mapstructure:"algorithm"`            // kmeans or dbscan
	K                  int     `mapstructure:"k"`                    // Cluster count; 0 = automatic
	MaxIterations      int     `mapstructure:"max_iterations"`       // k-means iteration bound
	MaxArticles        int     `mapstructure:"max_articles"`         // Aggregation cap; 0 = no limit
	SampleSize         int     `mapstructure:"sample_size"`          // Articles sampled per cluster for proposals
	SampleChars        int     `mapstructure:"sample_chars"`         // Character budget per sampled article
	TopN               int     `mapstructure:"top_n"`                // Tags kept per article
	ProposalConfidence float64 `mapstructure:"proposal_confidence"`  // Confidence for cluster-proposal tags
	MinConfidence      float64 `mapstructure:"min_confidence"`       // Floor for embedding-based matches
	RefineConfidence   float64 `mapstructure:"refine_confidence"`    // Confidence for LLM-refined tags
	MaxClusterDistance float64 `mapstructure:"max_cluster_distance"` // New-article cluster threshold
}

var globalConfig *Config

// Load loads the configuration from the given file and the environment.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".taxogen")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	viper.SetEnvPrefix("taxogen")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the cached configuration (used by tests).
func Reset() {
	globalConfig = nil
	viper.Reset()
}

func setDefaults() {
	viper.SetDefault("app.data_dir", ".taxogen")
	viper.SetDefault("app.log_level", "info")

	viper.SetDefault("ollama.host", "http://localhost:11434")
	viper.SetDefault("ollama.generate_model", "llama3.1")
	viper.SetDefault("ollama.embedding_model", "nomic-embed-text")
	viper.SetDefault("ollama.timeout", "120s")

	viper.SetDefault("index.host", "http://localhost:8000")
	viper.SetDefault("index.chunks_collection", "article-chunks")
	viper.SetDefault("index.centroids_collection", "cluster-centroids")
	viper.SetDefault("index.tags_collection", "tag-embeddings")
	viper.SetDefault("index.timeout", "60s")

	viper.SetDefault("pipeline.algorithm", "kmeans")
	viper.SetDefault("pipeline.k", 0)
	viper.SetDefault("pipeline.max_iterations", 30)
	viper.SetDefault("pipeline.max_articles", 0)
	viper.SetDefault("pipeline.sample_size", 5)
	viper.SetDefault("pipeline.sample_chars", 1500)
	viper.SetDefault("pipeline.top_n", 10)
	viper.SetDefault("pipeline.proposal_confidence", 0.75)
	viper.SetDefault("pipeline.min_confidence", 0.3)
	viper.SetDefault("pipeline.refine_confidence", 0.8)
	viper.SetDefault("pipeline.max_cluster_distance", 0.6)
}

// OllamaTimeout parses the configured generation-service timeout.
func (c *Config) OllamaTimeout() time.Duration {
	return parseTimeout(c.Ollama.Timeout, 120*time.Second)
}

// IndexTimeout parses the configured vector-index timeout.
func (c *Config) IndexTimeout() time.Duration {
	return parseTimeout(c.Index.Timeout, 60*time.Second)
}

func parseTimeout(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
