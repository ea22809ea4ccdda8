// Package taxonomy turns raw per-cluster proposals into a deduplicated,
// hierarchical taxonomy with stable, name-derived identifiers.
package taxonomy

import "strings"

// synonyms collapses known label variants to one canonical slug. The table
// is hand-maintained, not inferred.
var synonyms = map[string]string{
	"k8s":      "kubernetes",
	"js":       "javascript",
	"ts":       "typescript",
	"golang":   "go",
	"ml":       "machine-learning",
	"ai":       "artificial-intelligence",
	"postgres": "postgresql",
	"db":       "database",
}

// Normalize slugifies a human-readable label: lower-case, trim, collapse
// every non-alphanumeric run to a single hyphen, strip edge hyphens, then
// canonicalize through the synonym table.
func Normalize(name string) string {
	var sb strings.Builder
	lastHyphen := true // suppress a leading hyphen

	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			sb.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			sb.WriteByte('-')
			lastHyphen = true
		}
	}

	slug := strings.TrimSuffix(sb.String(), "-")
	if canonical, ok := synonyms[slug]; ok {
		return canonical
	}
	return slug
}

// TagID derives the stable tag identifier from the canonical normalized
// name.
func TagID(normalizedName string) string {
	return "tag-" + normalizedName
}

// SubcategoryID namespaces a subcategory slug under its parent category id.
func SubcategoryID(parentID, slug string) string {
	return parentID + "/" + slug
}
