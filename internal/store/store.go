// Package store is the SQLite-backed snapshot store: the source of truth
// for articles, clusters, proposals and the normalized taxonomy. Every
// write path is an upsert keyed by the entity's natural or derived id, so
// every pipeline stage is safely re-runnable.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"taxogen/internal/core"
)

// Store represents the SQLite-based snapshot store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new store instance with a SQLite database under
// dataDir. WAL journaling tolerates one writer and concurrent readers; the
// pipeline itself must not be invoked twice concurrently against the same
// store.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "taxogen.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, path: dbPath}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables.
func (s *Store) initialize() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id TEXT PRIMARY KEY,
			title TEXT,
			url TEXT,
			content TEXT,
			summary TEXT,
			embedding TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS clusters (
			id TEXT PRIMARY KEY,
			centroid TEXT,
			metadata TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS cluster_articles (
			cluster_id TEXT NOT NULL,
			article_id TEXT NOT NULL,
			PRIMARY KEY (cluster_id, article_id)
		);`,
		`CREATE TABLE IF NOT EXISTS cluster_proposals (
			cluster_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			created_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT,
			description TEXT,
			parent_id TEXT,
			level INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			name TEXT,
			normalized_name TEXT UNIQUE,
			description TEXT,
			category_id TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS cluster_category_map (
			cluster_id TEXT PRIMARY KEY,
			category_id TEXT,
			subcategory_id TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS article_tag_assignments (
			article_id TEXT NOT NULL,
			tag_id TEXT NOT NULL,
			confidence REAL NOT NULL,
			assigned_at DATETIME,
			PRIMARY KEY (article_id, tag_id)
		);`,
		`CREATE TABLE IF NOT EXISTS manual_overrides (
			article_id TEXT PRIMARY KEY,
			override_json TEXT,
			updated_at DATETIME
		);`,
	}

	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the location of the database file.
func (s *Store) Path() string {
	return s.path
}

// UpsertArticles writes article snapshots, replacing existing rows in full.
func (s *Store) UpsertArticles(articles []core.Article) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert articles: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO articles (id, title, url, content, summary, embedding)
	          VALUES (?, ?, ?, ?, ?, ?)
	          ON CONFLICT (id) DO UPDATE
	          SET title = excluded.title,
	              url = excluded.url,
	              content = excluded.content,
	              summary = excluded.summary,
	              embedding = excluded.embedding`

	for _, article := range articles {
		embedding, err := json.Marshal(article.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding for %s: %w", article.ID, err)
		}
		if _, err := tx.Exec(query, article.ID, article.Title, article.URL, article.Content, article.Summary, string(embedding)); err != nil {
			return fmt.Errorf("upsert article %s: %w", article.ID, err)
		}
	}

	return tx.Commit()
}

// ListArticles returns all article snapshots ordered by id.
func (s *Store) ListArticles() ([]core.Article, error) {
	query, args, err := sq.Select("id", "title", "url", "content", "summary", "embedding").
		From("articles").
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list articles query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		var article core.Article
		var embedding string
		if err := rows.Scan(&article.ID, &article.Title, &article.URL, &article.Content, &article.Summary, &embedding); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		if err := json.Unmarshal([]byte(embedding), &article.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", article.ID, err)
		}
		articles = append(articles, article)
	}

	return articles, rows.Err()
}

// ReplaceClusters upserts cluster headers, replaces each cluster's
// membership with delete-then-insert, and prunes clusters from earlier runs
// that no longer exist. All in one transaction.
func (s *Store) ReplaceClusters(clusters []core.Cluster) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace clusters: %w", err)
	}
	defer tx.Rollback()

	keep := make([]string, 0, len(clusters))

	headerQuery := `INSERT INTO clusters (id, centroid, metadata)
	                VALUES (?, ?, ?)
	                ON CONFLICT (id) DO UPDATE
	                SET centroid = excluded.centroid,
	                    metadata = excluded.metadata`

	for _, cluster := range clusters {
		centroid, err := json.Marshal(cluster.Centroid)
		if err != nil {
			return fmt.Errorf("encode centroid for %s: %w", cluster.ID, err)
		}
		metadata, err := json.Marshal(cluster.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", cluster.ID, err)
		}

		if _, err := tx.Exec(headerQuery, cluster.ID, string(centroid), string(metadata)); err != nil {
			return fmt.Errorf("upsert cluster %s: %w", cluster.ID, err)
		}

		if _, err := tx.Exec(`DELETE FROM cluster_articles WHERE cluster_id = ?`, cluster.ID); err != nil {
			return fmt.Errorf("clear membership for %s: %w", cluster.ID, err)
		}
		for _, articleID := range cluster.ArticleIDs {
			if _, err := tx.Exec(`INSERT INTO cluster_articles (cluster_id, article_id) VALUES (?, ?)`, cluster.ID, articleID); err != nil {
				return fmt.Errorf("insert membership %s/%s: %w", cluster.ID, articleID, err)
			}
		}

		keep = append(keep, cluster.ID)
	}

	if err := pruneStaleClusters(tx, keep); err != nil {
		return err
	}

	return tx.Commit()
}

// pruneStaleClusters removes cluster rows and membership for clusters not
// present in the latest run.
func pruneStaleClusters(tx *sql.Tx, keep []string) error {
	rows, err := tx.Query(`SELECT id FROM clusters`)
	if err != nil {
		return fmt.Errorf("list existing clusters: %w", err)
	}

	existing := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan cluster id: %w", err)
		}
		existing = append(existing, id)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close cluster rows: %w", err)
	}

	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}

	for _, id := range existing {
		if keepSet[id] {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM cluster_articles WHERE cluster_id = ?`, id); err != nil {
			return fmt.Errorf("prune membership for %s: %w", id, err)
		}
		if _, err := tx.Exec(`DELETE FROM clusters WHERE id = ?`, id); err != nil {
			return fmt.Errorf("prune cluster %s: %w", id, err)
		}
	}

	return nil
}

// ListClusters returns all clusters with their membership, ordered by id.
func (s *Store) ListClusters() ([]core.Cluster, error) {
	query, args, err := sq.Select("id", "centroid", "metadata").
		From("clusters").
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list clusters query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}

	var clusters []core.Cluster
	for rows.Next() {
		var cluster core.Cluster
		var centroid, metadata string
		if err := rows.Scan(&cluster.ID, &centroid, &metadata); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		if err := json.Unmarshal([]byte(centroid), &cluster.Centroid); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode centroid for %s: %w", cluster.ID, err)
		}
		if err := json.Unmarshal([]byte(metadata), &cluster.Metadata); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode metadata for %s: %w", cluster.ID, err)
		}
		clusters = append(clusters, cluster)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("cluster rows: %w", err)
	}
	rows.Close()

	for i := range clusters {
		memberQuery, memberArgs, err := sq.Select("article_id").
			From("cluster_articles").
			Where(sq.Eq{"cluster_id": clusters[i].ID}).
			OrderBy("article_id ASC").
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build membership query: %w", err)
		}

		memberRows, err := s.db.Query(memberQuery, memberArgs...)
		if err != nil {
			return nil, fmt.Errorf("list membership for %s: %w", clusters[i].ID, err)
		}
		for memberRows.Next() {
			var articleID string
			if err := memberRows.Scan(&articleID); err != nil {
				memberRows.Close()
				return nil, fmt.Errorf("scan membership: %w", err)
			}
			clusters[i].ArticleIDs = append(clusters[i].ArticleIDs, articleID)
		}
		if err := memberRows.Err(); err != nil {
			memberRows.Close()
			return nil, fmt.Errorf("membership rows: %w", err)
		}
		memberRows.Close()

		if cc, ok, err := s.GetClusterCategory(clusters[i].ID); err != nil {
			return nil, err
		} else if ok {
			clusters[i].CategoryID = cc.CategoryID
			clusters[i].SubcategoryID = cc.SubcategoryID
		}
	}

	return clusters, nil
}

// UpsertProposal persists one raw cluster proposal verbatim, as the unit of
// replay and audit.
func (s *Store) UpsertProposal(proposal core.ClusterProposal) error {
	payload, err := json.Marshal(proposal)
	if err != nil {
		return fmt.Errorf("encode proposal for %s: %w", proposal.ClusterID, err)
	}

	query := `INSERT INTO cluster_proposals (cluster_id, payload, created_at)
	          VALUES (?, ?, ?)
	          ON CONFLICT (cluster_id) DO UPDATE
	          SET payload = excluded.payload,
	              created_at = excluded.created_at`

	if _, err := s.db.Exec(query, proposal.ClusterID, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert proposal for %s: %w", proposal.ClusterID, err)
	}

	return nil
}

// ListProposals returns all persisted proposals ordered by cluster id.
func (s *Store) ListProposals() ([]core.ClusterProposal, error) {
	query, args, err := sq.Select("cluster_id", "payload").
		From("cluster_proposals").
		OrderBy("cluster_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list proposals query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []core.ClusterProposal
	for rows.Next() {
		var clusterID, payload string
		if err := rows.Scan(&clusterID, &payload); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}

		var proposal core.ClusterProposal
		if err := json.Unmarshal([]byte(payload), &proposal); err != nil {
			return nil, fmt.Errorf("decode proposal for %s: %w", clusterID, err)
		}
		proposal.ClusterID = clusterID
		proposals = append(proposals, proposal)
	}

	return proposals, rows.Err()
}

// SaveTaxonomy writes the categories, global tags and cluster category map
// produced by one normalization run, in a single transaction.
func (s *Store) SaveTaxonomy(taxonomy core.Taxonomy) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save taxonomy: %w", err)
	}
	defer tx.Rollback()

	categoryQuery := `INSERT INTO categories (id, name, description, parent_id, level)
	                  VALUES (?, ?, ?, ?, ?)
	                  ON CONFLICT (id) DO UPDATE
	                  SET name = excluded.name,
	                      description = excluded.description,
	                      parent_id = excluded.parent_id,
	                      level = excluded.level`
	for _, category := range taxonomy.Categories {
		if _, err := tx.Exec(categoryQuery, category.ID, category.Name, category.Description, category.ParentID, category.Level); err != nil {
			return fmt.Errorf("upsert category %s: %w", category.ID, err)
		}
	}

	tagQuery := `INSERT INTO tags (id, name, normalized_name, description, category_id)
	             VALUES (?, ?, ?, ?, ?)
	             ON CONFLICT (id) DO UPDATE
	             SET name = excluded.name,
	                 normalized_name = excluded.normalized_name,
	                 description = excluded.description,
	                 category_id = excluded.category_id`
	for _, tag := range taxonomy.Tags {
		if _, err := tx.Exec(tagQuery, tag.ID, tag.Name, tag.NormalizedName, tag.Description, tag.CategoryID); err != nil {
			return fmt.Errorf("upsert tag %s: %w", tag.ID, err)
		}
	}

	mapQuery := `INSERT INTO cluster_category_map (cluster_id, category_id, subcategory_id)
	             VALUES (?, ?, ?)
	             ON CONFLICT (cluster_id) DO UPDATE
	             SET category_id = excluded.category_id,
	                 subcategory_id = excluded.subcategory_id`
	for _, cc := range taxonomy.ClusterCategories {
		if _, err := tx.Exec(mapQuery, cc.ClusterID, cc.CategoryID, cc.SubcategoryID); err != nil {
			return fmt.Errorf("upsert cluster category %s: %w", cc.ClusterID, err)
		}
	}

	return tx.Commit()
}

// ListCategories returns all categories ordered by level then id.
func (s *Store) ListCategories() ([]core.TaxonomyCategory, error) {
	query, args, err := sq.Select("id", "name", "description", "parent_id", "level").
		From("categories").
		OrderBy("level ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list categories query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.TaxonomyCategory
	for rows.Next() {
		var category core.TaxonomyCategory
		if err := rows.Scan(&category.ID, &category.Name, &category.Description, &category.ParentID, &category.Level); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}

	return categories, rows.Err()
}

// ListTags returns all tags ordered by id.
func (s *Store) ListTags() ([]core.Tag, error) {
	query, args, err := sq.Select("id", "name", "normalized_name", "description", "category_id").
		From("tags").
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list tags query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []core.Tag
	for rows.Next() {
		var tag core.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.NormalizedName, &tag.Description, &tag.CategoryID); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	return tags, rows.Err()
}

// GetClusterCategory resolves one cluster's category mapping. The second
// return value reports whether a mapping exists.
func (s *Store) GetClusterCategory(clusterID string) (core.ClusterCategory, bool, error) {
	query, args, err := sq.Select("cluster_id", "category_id", "subcategory_id").
		From("cluster_category_map").
		Where(sq.Eq{"cluster_id": clusterID}).
		ToSql()
	if err != nil {
		return core.ClusterCategory{}, false, fmt.Errorf("build cluster category query: %w", err)
	}

	var cc core.ClusterCategory
	err = s.db.QueryRow(query, args...).Scan(&cc.ClusterID, &cc.CategoryID, &cc.SubcategoryID)
	if err == sql.ErrNoRows {
		return core.ClusterCategory{}, false, nil
	}
	if err != nil {
		return core.ClusterCategory{}, false, fmt.Errorf("get cluster category for %s: %w", clusterID, err)
	}

	return cc, true, nil
}

// UpsertAssignments writes per-article tag assignments, replacing the
// confidence and bumping the timestamp on conflict.
func (s *Store) UpsertAssignments(assignments []core.ArticleTagAssignment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert assignments: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO article_tag_assignments (article_id, tag_id, confidence, assigned_at)
	          VALUES (?, ?, ?, ?)
	          ON CONFLICT (article_id, tag_id) DO UPDATE
	          SET confidence = excluded.confidence,
	              assigned_at = excluded.assigned_at`

	now := time.Now().UTC()
	for _, assignment := range assignments {
		at := assignment.AssignedAt
		if at.IsZero() {
			at = now
		}
		if _, err := tx.Exec(query, assignment.ArticleID, assignment.TagID, assignment.Confidence, at); err != nil {
			return fmt.Errorf("upsert assignment %s/%s: %w", assignment.ArticleID, assignment.TagID, err)
		}
	}

	return tx.Commit()
}

// ListAssignments returns the tag assignments for one article, highest
// confidence first with ties broken by tag id.
func (s *Store) ListAssignments(articleID string) ([]core.ArticleTagAssignment, error) {
	query, args, err := sq.Select("article_id", "tag_id", "confidence", "assigned_at").
		From("article_tag_assignments").
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("confidence DESC", "tag_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list assignments query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments for %s: %w", articleID, err)
	}
	defer rows.Close()

	var assignments []core.ArticleTagAssignment
	for rows.Next() {
		var assignment core.ArticleTagAssignment
		if err := rows.Scan(&assignment.ArticleID, &assignment.TagID, &assignment.Confidence, &assignment.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, assignment)
	}

	return assignments, rows.Err()
}

// GetManualOverride returns the manual override for an article, or nil when
// none exists. The pipeline honors overrides but never writes them.
func (s *Store) GetManualOverride(articleID string) (*core.ManualOverride, error) {
	query, args, err := sq.Select("article_id", "override_json", "updated_at").
		From("manual_overrides").
		Where(sq.Eq{"article_id": articleID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build manual override query: %w", err)
	}

	var override core.ManualOverride
	err = s.db.QueryRow(query, args...).Scan(&override.ArticleID, &override.OverrideJSON, &override.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get manual override for %s: %w", articleID, err)
	}

	return &override, nil
}

// Stats summarizes the snapshot store contents.
type Stats struct {
	Articles    int
	Clusters    int
	Proposals   int
	Categories  int
	Tags        int
	Assignments int
	Overrides   int
	FileSize    int64
	LastUpdated time.Time
}

// GetStats returns row counts and the database file size.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	counts := map[string]*int{
		"articles":                &stats.Articles,
		"clusters":                &stats.Clusters,
		"cluster_proposals":       &stats.Proposals,
		"categories":              &stats.Categories,
		"tags":                    &stats.Tags,
		"article_tag_assignments": &stats.Assignments,
		"manual_overrides":        &stats.Overrides,
	}

	for table, target := range counts {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(target); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
	}

	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.FileSize = fileInfo.Size()
		stats.LastUpdated = fileInfo.ModTime()
	}

	return stats, nil
}
