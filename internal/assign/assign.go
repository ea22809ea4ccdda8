// Package assign produces confidence-scored per-article tag sets by merging
// two sources: the tags proposed for the article's cluster and the nearest
// neighbors of the article's embedding in the tag-embedding index.
package assign

import (
	"context"
	"errors"
	"sort"

	"taxogen/internal/core"
	"taxogen/internal/logger"
	"taxogen/internal/vectorstore"
)

// Options configures the confidence model.
type Options struct {
	// ProposalConfidence is assigned to every tag the cluster's proposal
	// named (default 0.75).
	ProposalConfidence float64

	// MinConfidence drops embedding matches below this floor.
	MinConfidence float64

	// TopN bounds how many tags are kept per article.
	TopN int
}

// DefaultOptions returns the default confidence model.
func DefaultOptions() Options {
	return Options{
		ProposalConfidence: 0.75,
		MinConfidence:      0.3,
		TopN:               10,
	}
}

// Engine scores and ranks tag candidates for articles.
type Engine struct {
	index          vectorstore.Index
	tagsCollection string
	opts           Options
}

// NewEngine creates an assignment engine querying the given tag-embedding
// collection.
func NewEngine(index vectorstore.Index, tagsCollection string, opts Options) *Engine {
	if opts.TopN <= 0 {
		opts.TopN = DefaultOptions().TopN
	}
	if opts.ProposalConfidence <= 0 || opts.ProposalConfidence > 1 {
		opts.ProposalConfidence = DefaultOptions().ProposalConfidence
	}
	return &Engine{index: index, tagsCollection: tagsCollection, opts: opts}
}

// Assign merges proposal tags with embedding-similarity matches for one
// article, keeping the maximum confidence per tag, and returns the top N
// assignments by confidence (ties broken by tag id ascending).
//
// proposalTagIDs are the ids of the normalized tags of the article's
// cluster proposal; pass nil for unclustered articles. An uninitialized
// tag-embedding collection is not an error; it just contributes zero
// candidates.
func (e *Engine) Assign(ctx context.Context, article core.Article, proposalTagIDs []string) []core.ArticleTagAssignment {
	confidences := make(map[string]float64)

	for _, tagID := range proposalTagIDs {
		confidences[tagID] = e.opts.ProposalConfidence
	}

	for _, match := range e.embeddingMatches(ctx, article) {
		confidence := 1 / (1 + match.Distance)
		if confidence < e.opts.MinConfidence {
			continue
		}
		if confidence > confidences[match.ID] {
			confidences[match.ID] = confidence
		}
	}

	assignments := make([]core.ArticleTagAssignment, 0, len(confidences))
	for tagID, confidence := range confidences {
		assignments = append(assignments, core.ArticleTagAssignment{
			ArticleID:  article.ID,
			TagID:      tagID,
			Confidence: confidence,
		})
	}

	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].Confidence != assignments[j].Confidence {
			return assignments[i].Confidence > assignments[j].Confidence
		}
		return assignments[i].TagID < assignments[j].TagID
	})

	if len(assignments) > e.opts.TopN {
		assignments = assignments[:e.opts.TopN]
	}

	return assignments
}

// embeddingMatches queries the tag-embedding collection; a collection that
// does not exist yet (embed-tags has not run) yields zero candidates.
func (e *Engine) embeddingMatches(ctx context.Context, article core.Article) []vectorstore.Match {
	if len(article.Embedding) == 0 {
		return nil
	}

	matches, err := e.index.Query(ctx, e.tagsCollection, article.Embedding, e.opts.TopN)
	if err != nil {
		if !errors.Is(err, vectorstore.ErrCollectionNotFound) {
			logger.Warn("tag embedding lookup failed, proceeding with proposal tags only",
				"article", article.ID, "error", err.Error())
		}
		return nil
	}

	return matches
}
