// Package aggregate builds one embedding per article by averaging the
// per-chunk embeddings stored in the externally-owned chunk collection of
// the vector index. The chunk collection is created by the ingestion
// tooling and must be configured for cosine distance, matching the
// collections this pipeline creates itself.
package aggregate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"taxogen/internal/core"
	"taxogen/internal/logger"
	"taxogen/internal/similarity"
	"taxogen/internal/vectorstore"
)

const (
	// SourceKey is the chunk metadata key carrying the source-article path.
	SourceKey = "source-file"

	pageSize = 500
	// maxExcerptChars bounds the content excerpt kept for LLM sampling.
	maxExcerptChars = 4000
)

// Aggregator groups chunk embeddings by source article.
type Aggregator struct {
	index      vectorstore.Index
	collection string
}

// NewAggregator creates an aggregator reading the given chunk collection.
func NewAggregator(index vectorstore.Index, collection string) *Aggregator {
	return &Aggregator{index: index, collection: collection}
}

// Aggregate pages through the chunk collection, averages each article's
// chunk vectors and recovers title, url and a content excerpt. maxArticles
// caps the output deterministically (first N by sorted source key); zero
// means no cap. A source file that cannot be read yields an article with
// empty content but a still-valid embedding.
func (a *Aggregator) Aggregate(ctx context.Context, maxArticles int) ([]core.Article, error) {
	log := logger.Get()

	grouped := make(map[string][][]float64)
	meta := make(map[string]map[string]string)

	offset := 0
	for {
		records, err := a.index.Page(ctx, a.collection, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("read chunk collection %s: %w", a.collection, err)
		}
		if len(records) == 0 {
			break
		}

		for _, record := range records {
			source := record.Metadata[SourceKey]
			if source == "" || len(record.Embedding) == 0 {
				continue
			}
			grouped[source] = append(grouped[source], record.Embedding)
			if _, ok := meta[source]; !ok {
				meta[source] = record.Metadata
			}
		}

		offset += len(records)
		if len(records) < pageSize {
			break
		}
	}

	if len(grouped) == 0 {
		return nil, fmt.Errorf("chunk collection %s contains no chunks with a %s key", a.collection, SourceKey)
	}

	sources := make([]string, 0, len(grouped))
	for source := range grouped {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	if maxArticles > 0 && len(sources) > maxArticles {
		sources = sources[:maxArticles]
	}

	articles := make([]core.Article, 0, len(sources))
	for _, source := range sources {
		embedding := similarity.Mean(grouped[source])
		if embedding == nil {
			continue
		}

		article := core.Article{
			ID:        source,
			Title:     titleFor(source, meta[source]),
			URL:       meta[source]["url"],
			Embedding: embedding,
		}

		content, err := readExcerpt(source)
		if err != nil {
			// Clustering tolerates empty content; LLM sampling skips it.
			log.Warn("could not read article source, keeping embedding only", "source", source, "error", err.Error())
		}
		article.Content = content

		articles = append(articles, article)
	}

	log.Info("aggregated articles from chunk embeddings", "articles", len(articles), "collection", a.collection)
	return articles, nil
}

// titleFor recovers the article title from chunk metadata, falling back to
// the file stem of the source path.
func titleFor(source string, metadata map[string]string) string {
	if title := metadata["title"]; title != "" {
		return title
	}
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func readExcerpt(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(raw)
	if len(content) > maxExcerptChars {
		content = content[:maxExcerptChars]
	}
	return content, nil
}
