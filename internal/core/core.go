package core

import "time"

// Article represents one source document of the corpus, reduced to a single
// embedding by averaging the embeddings of all of its chunks.
type Article struct {
	ID        string    `json:"id"`        // Stable path/key of the source document
	Title     string    `json:"title"`     // Title recovered from chunk metadata (or the file stem)
	URL       string    `json:"url"`       // Optional source URL
	Content   string    `json:"content"`   // Content excerpt read from the source file (may be empty)
	Summary   string    `json:"summary"`   // Optional short summary
	Embedding []float64 `json:"embedding"` // Mean vector of the article's chunk embeddings
}

// Cluster groups articles whose embeddings sit close together. Its ID is a
// pure function of the sorted member ids plus the algorithm name, so
// re-clustering identical membership yields the identical id.
type Cluster struct {
	ID            string            `json:"id"`             // Derived stable identifier
	ArticleIDs    []string          `json:"article_ids"`    // Member article ids (sorted)
	Centroid      []float64         `json:"centroid"`       // Mean vector of member embeddings
	CategoryID    string            `json:"category_id"`    // Mapped category (empty until normalize has run)
	SubcategoryID string            `json:"subcategory_id"` // Mapped subcategory (may stay empty)
	Metadata      map[string]string `json:"metadata"`       // algorithm, k, label, size
}

// CategoryProposal is the raw category (or subcategory) suggestion for one
// cluster, exactly as returned by the generation service.
type CategoryProposal struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TagProposal is one raw tag suggestion for a cluster.
type TagProposal struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ClusterProposal is the verbatim LLM output for one cluster, persisted
// before normalization consumes it so runs can be replayed and audited.
type ClusterProposal struct {
	ClusterID   string            `json:"cluster_id"`
	Category    CategoryProposal  `json:"category"`
	Subcategory *CategoryProposal `json:"subcategory,omitempty"`
	Tags        []TagProposal     `json:"tags"`
}

// TaxonomyCategory is one node of the two-level category tree. Level 0 is a
// top-level category, level 1 a subcategory namespaced under its parent.
type TaxonomyCategory struct {
	ID          string `json:"id"`          // Slug of the normalized name; "<parent>/<slug>" for subcategories
	Name        string `json:"name"`        // Canonical human-readable name (first proposal wins)
	Description string `json:"description"` // Canonical description
	ParentID    string `json:"parent_id"`   // Empty for top-level categories
	Level       int    `json:"level"`       // 0 = top, 1 = sub
}

// Tag is a global, deduplicated label. The same logical tag proposed by
// multiple clusters collapses to one row keyed by the normalized name.
type Tag struct {
	ID             string `json:"id"`              // Derived from the normalized name
	Name           string `json:"name"`            // Human-readable name as first proposed
	NormalizedName string `json:"normalized_name"` // Slugified, synonym-canonicalized name (unique)
	Description    string `json:"description"`     // Richest description seen across proposals
	CategoryID     string `json:"category_id"`     // Category of the proposing cluster (best effort)
}

// ArticleTagAssignment links an article to a tag with a confidence in (0, 1].
type ArticleTagAssignment struct {
	ArticleID  string    `json:"article_id"`
	TagID      string    `json:"tag_id"`
	Confidence float64   `json:"confidence"`
	AssignedAt time.Time `json:"assigned_at"`
}

// ClusterCategory maps a cluster to its resolved category/subcategory.
type ClusterCategory struct {
	ClusterID     string `json:"cluster_id"`
	CategoryID    string `json:"category_id"`
	SubcategoryID string `json:"subcategory_id"` // Empty when the proposal had no resolvable subcategory
}

// Taxonomy is the immutable output of one normalization run: the category
// tree, the global tag list, and the cluster to category map.
type Taxonomy struct {
	Categories        []TaxonomyCategory `json:"categories"`
	Tags              []Tag              `json:"tags"`
	ClusterCategories []ClusterCategory  `json:"cluster_categories"`
}

// ManualOverride is a human correction for one article. The pipeline only
// ever reads these; they are written by external tooling.
type ManualOverride struct {
	ArticleID    string    `json:"article_id"`
	OverrideJSON string    `json:"override_json"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Classification is the result of classifying one new document against the
// existing taxonomy without re-clustering.
type Classification struct {
	ArticleID     string                 `json:"article_id"`     // The document path used as article id
	ClusterID     string                 `json:"cluster_id"`     // Nearest cluster, empty when outside the distance threshold
	CategoryID    string                 `json:"category_id"`    // Resolved via the cluster category map
	SubcategoryID string                 `json:"subcategory_id"`
	Distance      float64                `json:"distance"`       // Cosine distance to the nearest centroid; -1 when none
	Assignments   []ArticleTagAssignment `json:"assignments"`    // Persisted tag assignments
}

// StageSummary is the small result record every pipeline stage returns.
type StageSummary struct {
	RunID       string    `json:"run_id"`      // Unique id for this stage invocation
	Stage       string    `json:"stage"`       // cluster, propose, normalize, embed-tags, assign, tag
	Articles    int       `json:"articles"`    // Articles touched by the stage
	Clusters    int       `json:"clusters"`    // Clusters touched by the stage
	Categories  int       `json:"categories"`  // Categories written (normalize only)
	Tags        int       `json:"tags"`        // Tags written or embedded
	Assignments int       `json:"assignments"` // Tag assignments persisted
	StorePath   string    `json:"store_path"`  // Location of the snapshot store
	CompletedAt time.Time `json:"completed_at"`
}
