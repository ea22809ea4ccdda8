// Package proposal asks the generation service to name a cluster: one
// category, an optional subcategory and 5-15 tags, returned as a single
// JSON object. Parsing is deliberately strict: a malformed proposal would
// corrupt the global taxonomy, so it fails loudly instead of degrading.
package proposal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"taxogen/internal/core"
	"taxogen/internal/llm"
)

// SystemInstruction demands machine-readable output from the model.
const SystemInstruction = "You are a taxonomy assistant. Respond with a single JSON object and nothing else: no prose, no markdown fences."

const promptTemplate = `These articles form one topical cluster. Derive a category for the cluster.

%s
Return a JSON object with exactly this shape:
{
  "category": {"name": "...", "description": "..."},
  "subcategory": {"name": "...", "description": "..."},
  "tags": [{"name": "...", "description": "..."}]
}

Rules:
- "category" is required; pick a short, broad name.
- "subcategory" is optional; include it only when a narrower grouping is obvious.
- "tags" must contain 5 to 15 entries, each with a one-sentence description.`

// Generator turns clusters into raw taxonomy proposals.
type Generator struct {
	client *llm.Client
	model  string

	// SampleSize bounds how many member articles are rendered per cluster.
	SampleSize int
	// SampleChars bounds the characters rendered per article.
	SampleChars int
}

// NewGenerator creates a proposal generator using the given model.
func NewGenerator(client *llm.Client, model string, sampleSize, sampleChars int) *Generator {
	if sampleSize <= 0 {
		sampleSize = 5
	}
	if sampleChars <= 0 {
		sampleChars = 1500
	}
	return &Generator{client: client, model: model, SampleSize: sampleSize, SampleChars: sampleChars}
}

// Propose samples the cluster's members, calls the generation service at
// temperature 0 and parses the reply into a ClusterProposal.
func (g *Generator) Propose(ctx context.Context, cluster core.Cluster, articles map[string]core.Article) (core.ClusterProposal, error) {
	prompt, err := g.buildPrompt(cluster, articles)
	if err != nil {
		return core.ClusterProposal{}, err
	}

	reply, err := g.client.Generate(ctx, prompt, llm.GenerateOptions{
		Model:       g.model,
		System:      SystemInstruction,
		Temperature: 0,
	})
	if err != nil {
		return core.ClusterProposal{}, fmt.Errorf("propose for cluster %s: %w", cluster.ID, err)
	}

	proposal, err := Parse(reply)
	if err != nil {
		return core.ClusterProposal{}, fmt.Errorf("propose for cluster %s: %w", cluster.ID, err)
	}

	proposal.ClusterID = cluster.ID
	return proposal, nil
}

// buildPrompt renders up to SampleSize member articles, sorted by id for
// determinism. Articles with empty content are skipped.
func (g *Generator) buildPrompt(cluster core.Cluster, articles map[string]core.Article) (string, error) {
	ids := make([]string, len(cluster.ArticleIDs))
	copy(ids, cluster.ArticleIDs)
	sort.Strings(ids)

	var sb strings.Builder
	sampled := 0
	for _, id := range ids {
		if sampled >= g.SampleSize {
			break
		}
		article, ok := articles[id]
		if !ok {
			continue
		}

		text := article.Summary
		if text == "" {
			text = article.Content
		}
		if text == "" {
			continue
		}
		if len(text) > g.SampleChars {
			text = text[:g.SampleChars]
		}

		sb.WriteString(fmt.Sprintf("Article: %s\n%s\n\n", article.Title, text))
		sampled++
	}

	if sampled == 0 {
		return "", fmt.Errorf("cluster %s has no articles with content to sample", cluster.ID)
	}

	return fmt.Sprintf(promptTemplate, sb.String()), nil
}

// Parse extracts the proposal from a free-text reply by locating the first
// '{' and the last '}' and parsing only that substring as JSON. A reply
// without braces, malformed JSON or a missing category name is an error.
func Parse(reply string) (core.ClusterProposal, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end == -1 || end < start {
		return core.ClusterProposal{}, fmt.Errorf("no JSON object found in reply: %s", snippet(reply))
	}

	var proposal core.ClusterProposal
	if err := json.Unmarshal([]byte(reply[start:end+1]), &proposal); err != nil {
		return core.ClusterProposal{}, fmt.Errorf("malformed proposal JSON: %w", err)
	}

	if strings.TrimSpace(proposal.Category.Name) == "" {
		return core.ClusterProposal{}, fmt.Errorf("proposal is missing a category name: %s", snippet(reply))
	}

	if proposal.Subcategory != nil && strings.TrimSpace(proposal.Subcategory.Name) == "" {
		proposal.Subcategory = nil
	}

	return proposal, nil
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
