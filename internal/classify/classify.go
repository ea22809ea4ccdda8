// Package classify places one new document into the existing taxonomy
// without re-clustering: it embeds the document, locates the nearest
// cluster centroid, and assigns tags through the same confidence model as
// the batch assignment stage.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"taxogen/internal/assign"
	"taxogen/internal/core"
	"taxogen/internal/llm"
	"taxogen/internal/logger"
	"taxogen/internal/proposal"
	"taxogen/internal/taxonomy"
	"taxogen/internal/vectorstore"
)

// maxEmbedChars bounds the document text sent to the embedding model.
const maxEmbedChars = 8000

// CategoryResolver resolves a cluster id to its mapped category, reading
// the persisted cluster category map.
type CategoryResolver interface {
	GetClusterCategory(clusterID string) (core.ClusterCategory, bool, error)
	ListTags() ([]core.Tag, error)
}

// Options configures the classifier.
type Options struct {
	// MaxClusterDistance is the farthest a centroid may be for the document
	// to join its cluster; beyond it the article stays unclustered.
	MaxClusterDistance float64

	// Refine re-asks the generation service to pick from the global tag
	// list given the article text.
	Refine bool

	// RefineConfidence is assigned to tags chosen by refinement.
	RefineConfidence float64

	// GenerateModel is the model used for refinement.
	GenerateModel string

	// EmbeddingModel is the model used to embed the document.
	EmbeddingModel string
}

// Classifier classifies new documents against the persisted taxonomy.
type Classifier struct {
	llmClient           *llm.Client
	index               vectorstore.Index
	engine              *assign.Engine
	resolver            CategoryResolver
	centroidsCollection string
	opts                Options
}

// NewClassifier wires a classifier from the pipeline's shared components.
func NewClassifier(llmClient *llm.Client, index vectorstore.Index, engine *assign.Engine, resolver CategoryResolver, centroidsCollection string, opts Options) *Classifier {
	if opts.MaxClusterDistance <= 0 {
		opts.MaxClusterDistance = 0.6
	}
	if opts.RefineConfidence <= 0 || opts.RefineConfidence > 1 {
		opts.RefineConfidence = 0.8
	}
	return &Classifier{
		llmClient:           llmClient,
		index:               index,
		engine:              engine,
		resolver:            resolver,
		centroidsCollection: centroidsCollection,
		opts:                opts,
	}
}

// Classify reads the document at path, embeds it, resolves the nearest
// cluster and category, and returns the tag assignments keyed by the
// document path as article id. Nothing is persisted here; the pipeline owns
// persistence.
func (c *Classifier) Classify(ctx context.Context, path string) (core.Classification, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return core.Classification{}, fmt.Errorf("read document %s: %w", path, err)
	}
	content := string(raw)
	if len(content) > maxEmbedChars {
		content = content[:maxEmbedChars]
	}

	embedding, err := c.llmClient.Embed(ctx, c.opts.EmbeddingModel, content)
	if err != nil {
		return core.Classification{}, fmt.Errorf("embed document %s: %w", path, err)
	}

	result := core.Classification{ArticleID: path, Distance: -1}

	clusterID, distance := c.nearestCluster(ctx, embedding)
	if clusterID != "" {
		result.Distance = distance
		if distance <= c.opts.MaxClusterDistance {
			result.ClusterID = clusterID
			mapping, ok, err := c.resolver.GetClusterCategory(clusterID)
			if err != nil {
				return core.Classification{}, err
			}
			if ok {
				result.CategoryID = mapping.CategoryID
				result.SubcategoryID = mapping.SubcategoryID
			}
		} else {
			logger.Debug("nearest cluster beyond distance threshold, leaving unclustered",
				"document", path, "cluster", clusterID, "distance", distance)
		}
	}

	// Cluster-proposal tags are unavailable for an unclustered article, so
	// only the embedding half of the assignment model applies.
	article := core.Article{ID: path, Content: content, Embedding: embedding}
	result.Assignments = c.engine.Assign(ctx, article, nil)

	if c.opts.Refine {
		refined, err := c.refine(ctx, content)
		if err != nil {
			return core.Classification{}, err
		}
		result.Assignments = mergeRefined(result.Assignments, refined, path, c.opts.RefineConfidence)
	}

	return result, nil
}

// nearestCluster queries the centroid collection for the single nearest
// cluster. A missing collection means clustering has not run; the document
// is simply left unclustered.
func (c *Classifier) nearestCluster(ctx context.Context, embedding []float64) (string, float64) {
	matches, err := c.index.Query(ctx, c.centroidsCollection, embedding, 1)
	if err != nil {
		if !errors.Is(err, vectorstore.ErrCollectionNotFound) {
			logger.Warn("centroid lookup failed, leaving document unclustered", "error", err.Error())
		}
		return "", 0
	}
	if len(matches) == 0 {
		return "", 0
	}
	return matches[0].ID, matches[0].Distance
}

const refinePromptTemplate = `Pick the tags that apply to this article from the list below. Only use tags from the list.

ARTICLE:
%s

TAGS:
%s

Return a JSON object: {"tags": ["tag name", ...]}`

// refine asks the generation service to choose from the entire global tag
// list and returns the ids of the chosen tags.
func (c *Classifier) refine(ctx context.Context, content string) ([]string, error) {
	tags, err := c.resolver.ListTags()
	if err != nil {
		return nil, fmt.Errorf("load tags for refinement: %w", err)
	}
	if len(tags) == 0 {
		return nil, nil
	}

	byNormalized := make(map[string]core.Tag, len(tags))
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		byNormalized[tag.NormalizedName] = tag
		names = append(names, tag.Name)
	}

	if len(content) > 2000 {
		content = content[:2000]
	}
	prompt := fmt.Sprintf(refinePromptTemplate, content, strings.Join(names, ", "))

	reply, err := c.llmClient.Generate(ctx, prompt, llm.GenerateOptions{
		Model:       c.opts.GenerateModel,
		System:      proposal.SystemInstruction,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("refine tags: %w", err)
	}

	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end < start {
		return nil, fmt.Errorf("refine tags: no JSON object in reply")
	}

	var parsed struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("refine tags: malformed JSON: %w", err)
	}

	var chosen []string
	for _, name := range parsed.Tags {
		if tag, ok := byNormalized[taxonomy.Normalize(name)]; ok {
			chosen = append(chosen, tag.ID)
		}
	}

	return chosen, nil
}

// mergeRefined adds refinement-chosen tags at the fixed refinement
// confidence, keeping the higher confidence for tags both sources chose.
func mergeRefined(assignments []core.ArticleTagAssignment, refined []string, articleID string, confidence float64) []core.ArticleTagAssignment {
	seen := make(map[string]int, len(assignments))
	for i, assignment := range assignments {
		seen[assignment.TagID] = i
	}

	for _, tagID := range refined {
		if i, ok := seen[tagID]; ok {
			if confidence > assignments[i].Confidence {
				assignments[i].Confidence = confidence
			}
			continue
		}
		assignments = append(assignments, core.ArticleTagAssignment{
			ArticleID:  articleID,
			TagID:      tagID,
			Confidence: confidence,
		})
	}

	return assignments
}
