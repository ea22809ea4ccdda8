// Package pipeline orchestrates the five batch stages of taxonomy
// construction (cluster, propose, normalize, embed-tags, assign) plus the
// independent tag-new-article entry point. Each stage reads the persisted
// output of the previous stage and fails fast with a missing-prerequisite
// error naming the stage to run first. Every write is an upsert, so
// re-running any stage is always safe.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taxogen/internal/aggregate"
	"taxogen/internal/assign"
	"taxogen/internal/classify"
	"taxogen/internal/clustering"
	"taxogen/internal/config"
	"taxogen/internal/core"
	"taxogen/internal/llm"
	"taxogen/internal/logger"
	"taxogen/internal/proposal"
	"taxogen/internal/store"
	"taxogen/internal/taxonomy"
	"taxogen/internal/vectorstore"
)

// Missing-prerequisite errors. Each names the stage to run first.
var (
	ErrNoArticles  = errors.New("no articles in the snapshot store: run the cluster stage first")
	ErrNoClusters  = errors.New("no clusters in the snapshot store: run the cluster stage first")
	ErrNoProposals = errors.New("no proposals in the snapshot store: run the propose stage first")
	ErrNoTags      = errors.New("no tags in the snapshot store: run the normalize stage first")
)

// Pipeline wires the snapshot store, the vector index and the generation
// service together. It is single-threaded and batch-oriented; callers must
// not invoke it concurrently against the same store.
type Pipeline struct {
	store     *store.Store
	index     vectorstore.Index
	llmClient *llm.Client
	cfg       *config.Config
}

// New creates a pipeline over the given collaborators.
func New(st *store.Store, index vectorstore.Index, llmClient *llm.Client, cfg *config.Config) *Pipeline {
	return &Pipeline{store: st, index: index, llmClient: llmClient, cfg: cfg}
}

// ClusterOptions overrides the configured clustering parameters.
type ClusterOptions struct {
	Algorithm   string // kmeans or dbscan; empty uses the configured default
	K           int    // 0 = automatic
	MaxArticles int    // 0 = no cap
}

// Cluster aggregates per-article embeddings from the chunk collection,
// clusters them, and persists articles, clusters and membership. Cluster
// centroids are also upserted into the vector index for the new-article
// classifier.
func (p *Pipeline) Cluster(ctx context.Context, opts ClusterOptions) (core.StageSummary, error) {
	summary := p.newSummary("cluster")

	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = p.cfg.Pipeline.Algorithm
	}
	maxArticles := opts.MaxArticles
	if maxArticles == 0 {
		maxArticles = p.cfg.Pipeline.MaxArticles
	}

	aggregator := aggregate.NewAggregator(p.index, p.cfg.Index.ChunksCollection)
	articles, err := aggregator.Aggregate(ctx, maxArticles)
	if err != nil {
		return summary, fmt.Errorf("cluster stage: %w", err)
	}

	points := make([]clustering.Point, len(articles))
	for i, article := range articles {
		points[i] = clustering.Point{ID: article.ID, Embedding: article.Embedding}
	}

	clusterer := clustering.New(algorithm)
	clusters, err := clusterer.Cluster(points, clustering.Options{
		K:             firstPositive(opts.K, p.cfg.Pipeline.K),
		MaxIterations: p.cfg.Pipeline.MaxIterations,
		Epsilon:       clustering.DefaultOptions().Epsilon,
		MinPoints:     clustering.DefaultOptions().MinPoints,
	})
	if err != nil {
		return summary, fmt.Errorf("cluster stage: %w", err)
	}

	if err := p.store.UpsertArticles(articles); err != nil {
		return summary, fmt.Errorf("cluster stage: %w", err)
	}
	if err := p.store.ReplaceClusters(clusters); err != nil {
		return summary, fmt.Errorf("cluster stage: %w", err)
	}
	if err := p.upsertCentroids(ctx, clusters); err != nil {
		return summary, fmt.Errorf("cluster stage: %w", err)
	}

	logger.Info("cluster stage complete", "articles", len(articles), "clusters", len(clusters), "algorithm", algorithm)

	summary.Articles = len(articles)
	summary.Clusters = len(clusters)
	summary.CompletedAt = time.Now().UTC()
	return summary, nil
}

// ProposeOptions overrides the configured proposal sampling parameters.
type ProposeOptions struct {
	SampleSize  int // Member articles rendered per cluster
	SampleChars int // Character budget per article
}

// Propose asks the generation service for a category/tag proposal per
// cluster and persists each raw proposal verbatim. A malformed reply aborts
// the stage rather than silently skipping the cluster.
func (p *Pipeline) Propose(ctx context.Context, opts ProposeOptions) (core.StageSummary, error) {
	summary := p.newSummary("propose")

	clusters, err := p.store.ListClusters()
	if err != nil {
		return summary, fmt.Errorf("propose stage: %w", err)
	}
	if len(clusters) == 0 {
		return summary, ErrNoClusters
	}

	articles, err := p.store.ListArticles()
	if err != nil {
		return summary, fmt.Errorf("propose stage: %w", err)
	}
	if len(articles) == 0 {
		return summary, ErrNoArticles
	}

	byID := make(map[string]core.Article, len(articles))
	for _, article := range articles {
		byID[article.ID] = article
	}

	generator := proposal.NewGenerator(
		p.llmClient,
		p.cfg.Ollama.GenerateModel,
		firstPositive(opts.SampleSize, p.cfg.Pipeline.SampleSize),
		firstPositive(opts.SampleChars, p.cfg.Pipeline.SampleChars),
	)

	for _, cluster := range clusters {
		prop, err := generator.Propose(ctx, cluster, byID)
		if err != nil {
			return summary, fmt.Errorf("propose stage: %w", err)
		}
		if err := p.store.UpsertProposal(prop); err != nil {
			return summary, fmt.Errorf("propose stage: %w", err)
		}
		summary.Clusters++
		logger.Debug("proposed taxonomy for cluster", "cluster", cluster.ID, "category", prop.Category.Name, "tags", len(prop.Tags))
	}

	logger.Info("propose stage complete", "clusters", summary.Clusters)
	summary.CompletedAt = time.Now().UTC()
	return summary, nil
}

// Normalize merges all persisted proposals into the global taxonomy and
// writes categories, tags and the cluster category map in one pass.
func (p *Pipeline) Normalize(ctx context.Context) (core.StageSummary, error) {
	summary := p.newSummary("normalize")

	proposals, err := p.store.ListProposals()
	if err != nil {
		return summary, fmt.Errorf("normalize stage: %w", err)
	}
	if len(proposals) == 0 {
		return summary, ErrNoProposals
	}

	built, err := taxonomy.Build(proposals)
	if err != nil {
		return summary, fmt.Errorf("normalize stage: %w", err)
	}

	if err := p.store.SaveTaxonomy(built); err != nil {
		return summary, fmt.Errorf("normalize stage: %w", err)
	}

	logger.Info("normalize stage complete",
		"categories", len(built.Categories), "tags", len(built.Tags), "clusters", len(built.ClusterCategories))

	summary.Clusters = len(built.ClusterCategories)
	summary.Categories = len(built.Categories)
	summary.Tags = len(built.Tags)
	summary.CompletedAt = time.Now().UTC()
	return summary, nil
}

// EmbedTags embeds every tag's name and description into the tag-embedding
// collection, and re-upserts cluster centroids so the whole vector index
// can be rebuilt from the snapshot store at any time.
func (p *Pipeline) EmbedTags(ctx context.Context) (core.StageSummary, error) {
	summary := p.newSummary("embed-tags")

	tags, err := p.store.ListTags()
	if err != nil {
		return summary, fmt.Errorf("embed-tags stage: %w", err)
	}
	if len(tags) == 0 {
		return summary, ErrNoTags
	}

	records := make([]vectorstore.Record, 0, len(tags))
	for _, tag := range tags {
		text := tag.Name
		if tag.Description != "" {
			text += ": " + tag.Description
		}

		embedding, err := p.llmClient.Embed(ctx, p.cfg.Ollama.EmbeddingModel, text)
		if err != nil {
			return summary, fmt.Errorf("embed-tags stage: embed tag %s: %w", tag.ID, err)
		}

		records = append(records, vectorstore.Record{
			ID:        tag.ID,
			Embedding: embedding,
			Metadata:  map[string]string{"name": tag.Name, "normalized_name": tag.NormalizedName},
			Document:  text,
		})
	}

	if err := p.index.Upsert(ctx, p.cfg.Index.TagsCollection, records); err != nil {
		return summary, fmt.Errorf("embed-tags stage: %w", err)
	}

	clusters, err := p.store.ListClusters()
	if err != nil {
		return summary, fmt.Errorf("embed-tags stage: %w", err)
	}
	if err := p.upsertCentroids(ctx, clusters); err != nil {
		return summary, fmt.Errorf("embed-tags stage: %w", err)
	}

	logger.Info("embed-tags stage complete", "tags", len(records), "centroids", len(clusters))

	summary.Tags = len(records)
	summary.Clusters = len(clusters)
	summary.CompletedAt = time.Now().UTC()
	return summary, nil
}

// AssignOptions overrides the configured confidence model.
type AssignOptions struct {
	TopN               int
	ProposalConfidence float64
	MinConfidence      float64
}

// Assign combines each clustered article's proposal tags with its nearest
// tag-embedding matches and persists the top-N confidence-scored
// assignments. Articles with a manual tag override are left untouched.
func (p *Pipeline) Assign(ctx context.Context, opts AssignOptions) (core.StageSummary, error) {
	summary := p.newSummary("assign")

	clusters, err := p.store.ListClusters()
	if err != nil {
		return summary, fmt.Errorf("assign stage: %w", err)
	}
	if len(clusters) == 0 {
		return summary, ErrNoClusters
	}

	articles, err := p.store.ListArticles()
	if err != nil {
		return summary, fmt.Errorf("assign stage: %w", err)
	}
	if len(articles) == 0 {
		return summary, ErrNoArticles
	}

	tags, err := p.store.ListTags()
	if err != nil {
		return summary, fmt.Errorf("assign stage: %w", err)
	}
	if len(tags) == 0 {
		return summary, ErrNoTags
	}

	proposals, err := p.store.ListProposals()
	if err != nil {
		return summary, fmt.Errorf("assign stage: %w", err)
	}

	proposalTags := proposalTagIndex(proposals, tags)

	clusterOf := make(map[string]string)
	for _, cluster := range clusters {
		for _, articleID := range cluster.ArticleIDs {
			clusterOf[articleID] = cluster.ID
		}
	}

	engine := assign.NewEngine(p.index, p.cfg.Index.TagsCollection, assign.Options{
		TopN:               firstPositive(opts.TopN, p.cfg.Pipeline.TopN),
		ProposalConfidence: firstPositiveFloat(opts.ProposalConfidence, p.cfg.Pipeline.ProposalConfidence),
		MinConfidence:      firstPositiveFloat(opts.MinConfidence, p.cfg.Pipeline.MinConfidence),
	})

	for _, article := range articles {
		clusterID, ok := clusterOf[article.ID]
		if !ok {
			continue
		}

		overridden, err := p.hasTagOverride(article.ID)
		if err != nil {
			return summary, fmt.Errorf("assign stage: %w", err)
		}
		if overridden {
			logger.Debug("skipping article with manual tag override", "article", article.ID)
			continue
		}

		assignments := engine.Assign(ctx, article, proposalTags[clusterID])
		if len(assignments) == 0 {
			continue
		}
		if err := p.store.UpsertAssignments(assignments); err != nil {
			return summary, fmt.Errorf("assign stage: %w", err)
		}

		summary.Articles++
		summary.Assignments += len(assignments)
	}

	logger.Info("assign stage complete", "articles", summary.Articles, "assignments", summary.Assignments)

	summary.Clusters = len(clusters)
	summary.CompletedAt = time.Now().UTC()
	return summary, nil
}

// ClassifyOptions overrides the configured new-article parameters.
type ClassifyOptions struct {
	MaxClusterDistance float64
	Refine             bool
}

// TagNewArticle classifies one document that is not part of the clustered
// corpus and persists its tag assignments keyed by the document path.
func (p *Pipeline) TagNewArticle(ctx context.Context, path string, opts ClassifyOptions) (core.Classification, error) {
	tags, err := p.store.ListTags()
	if err != nil {
		return core.Classification{}, fmt.Errorf("tag stage: %w", err)
	}
	if len(tags) == 0 {
		return core.Classification{}, ErrNoTags
	}

	engine := assign.NewEngine(p.index, p.cfg.Index.TagsCollection, assign.Options{
		TopN:          p.cfg.Pipeline.TopN,
		MinConfidence: p.cfg.Pipeline.MinConfidence,
	})

	classifier := classify.NewClassifier(p.llmClient, p.index, engine, p.store, p.cfg.Index.CentroidsCollection, classify.Options{
		MaxClusterDistance: firstPositiveFloat(opts.MaxClusterDistance, p.cfg.Pipeline.MaxClusterDistance),
		Refine:             opts.Refine,
		RefineConfidence:   p.cfg.Pipeline.RefineConfidence,
		GenerateModel:      p.cfg.Ollama.GenerateModel,
		EmbeddingModel:     p.cfg.Ollama.EmbeddingModel,
	})

	result, err := classifier.Classify(ctx, path)
	if err != nil {
		return core.Classification{}, fmt.Errorf("tag stage: %w", err)
	}

	if len(result.Assignments) > 0 {
		if err := p.store.UpsertAssignments(result.Assignments); err != nil {
			return core.Classification{}, fmt.Errorf("tag stage: %w", err)
		}
	}

	logger.Info("classified new article",
		"document", path, "cluster", result.ClusterID, "category", result.CategoryID, "tags", len(result.Assignments))

	return result, nil
}

// upsertCentroids mirrors cluster centroids into the vector index.
func (p *Pipeline) upsertCentroids(ctx context.Context, clusters []core.Cluster) error {
	if len(clusters) == 0 {
		return nil
	}

	records := make([]vectorstore.Record, 0, len(clusters))
	for _, cluster := range clusters {
		records = append(records, vectorstore.Record{
			ID:        cluster.ID,
			Embedding: cluster.Centroid,
			Metadata: map[string]string{
				"algorithm": cluster.Metadata["algorithm"],
				"size":      cluster.Metadata["size"],
			},
		})
	}

	if err := p.index.Upsert(ctx, p.cfg.Index.CentroidsCollection, records); err != nil {
		return fmt.Errorf("upsert centroids: %w", err)
	}
	return nil
}

// hasTagOverride reports whether a manual override carrying a "tags" key
// exists for the article.
func (p *Pipeline) hasTagOverride(articleID string) (bool, error) {
	override, err := p.store.GetManualOverride(articleID)
	if err != nil {
		return false, err
	}
	if override == nil {
		return false, nil
	}
	return strings.Contains(override.OverrideJSON, `"tags"`), nil
}

// proposalTagIndex maps each cluster id to the ids of its proposal's
// normalized tags, resolved against the global tag list.
func proposalTagIndex(proposals []core.ClusterProposal, tags []core.Tag) map[string][]string {
	byNormalized := make(map[string]string, len(tags))
	for _, tag := range tags {
		byNormalized[tag.NormalizedName] = tag.ID
	}

	index := make(map[string][]string, len(proposals))
	for _, prop := range proposals {
		seen := make(map[string]bool)
		for _, tagProposal := range prop.Tags {
			if tagID, ok := byNormalized[taxonomy.Normalize(tagProposal.Name)]; ok && !seen[tagID] {
				index[prop.ClusterID] = append(index[prop.ClusterID], tagID)
				seen[tagID] = true
			}
		}
	}

	return index
}

func (p *Pipeline) newSummary(stage string) core.StageSummary {
	return core.StageSummary{
		RunID:     uuid.NewString(),
		Stage:     stage,
		StorePath: p.store.Path(),
	}
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveFloat(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
