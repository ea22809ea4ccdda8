package taxonomy

import (
	"fmt"
	"strings"

	"taxogen/internal/core"
)

// Build merges all cluster proposals into one global taxonomy. For each
// normalized category slug the first proposal seen (in input order)
// establishes the canonical name and description; later proposals for the
// same slug merge silently. Subcategories attach only under a resolved
// parent. Tags dedupe globally by canonical normalized name, preferring
// whichever occurrence carries a non-trivial description.
func Build(proposals []core.ClusterProposal) (core.Taxonomy, error) {
	if len(proposals) == 0 {
		return core.Taxonomy{}, fmt.Errorf("no proposals to build a taxonomy from")
	}

	var taxonomy core.Taxonomy
	categories := make(map[string]*core.TaxonomyCategory)
	categoryOrder := []string{}
	tags := make(map[string]*core.Tag)
	tagOrder := []string{}

	for _, proposal := range proposals {
		slug := Normalize(proposal.Category.Name)
		if slug == "" {
			return core.Taxonomy{}, fmt.Errorf("proposal for cluster %s normalizes to an empty category", proposal.ClusterID)
		}

		if _, ok := categories[slug]; !ok {
			categories[slug] = &core.TaxonomyCategory{
				ID:          slug,
				Name:        strings.TrimSpace(proposal.Category.Name),
				Description: strings.TrimSpace(proposal.Category.Description),
				Level:       0,
			}
			categoryOrder = append(categoryOrder, slug)
		}
		categoryID := categories[slug].ID

		subcategoryID := ""
		if proposal.Subcategory != nil {
			subSlug := Normalize(proposal.Subcategory.Name)
			if subSlug != "" {
				subcategoryID = SubcategoryID(categoryID, subSlug)
				if _, ok := categories[subcategoryID]; !ok {
					categories[subcategoryID] = &core.TaxonomyCategory{
						ID:          subcategoryID,
						Name:        strings.TrimSpace(proposal.Subcategory.Name),
						Description: strings.TrimSpace(proposal.Subcategory.Description),
						ParentID:    categoryID,
						Level:       1,
					}
					categoryOrder = append(categoryOrder, subcategoryID)
				}
			}
		}

		for _, tagProposal := range proposal.Tags {
			normalized := Normalize(tagProposal.Name)
			if normalized == "" {
				continue
			}

			existing, ok := tags[normalized]
			if !ok {
				tags[normalized] = &core.Tag{
					ID:             TagID(normalized),
					Name:           strings.TrimSpace(tagProposal.Name),
					NormalizedName: normalized,
					Description:    strings.TrimSpace(tagProposal.Description),
					CategoryID:     categoryID,
				}
				tagOrder = append(tagOrder, normalized)
				continue
			}

			// Keep the richer description: a description equal to the bare
			// name counts as trivial.
			if trivialDescription(existing) && !trivialTagDescription(tagProposal) {
				existing.Description = strings.TrimSpace(tagProposal.Description)
			}
		}

		taxonomy.ClusterCategories = append(taxonomy.ClusterCategories, core.ClusterCategory{
			ClusterID:     proposal.ClusterID,
			CategoryID:    categoryID,
			SubcategoryID: subcategoryID,
		})
	}

	for _, slug := range categoryOrder {
		taxonomy.Categories = append(taxonomy.Categories, *categories[slug])
	}
	for _, normalized := range tagOrder {
		taxonomy.Tags = append(taxonomy.Tags, *tags[normalized])
	}

	return taxonomy, nil
}

func trivialDescription(tag *core.Tag) bool {
	desc := strings.TrimSpace(tag.Description)
	return desc == "" || strings.EqualFold(desc, tag.Name)
}

func trivialTagDescription(proposal core.TagProposal) bool {
	desc := strings.TrimSpace(proposal.Description)
	return desc == "" || strings.EqualFold(desc, strings.TrimSpace(proposal.Name))
}
