package taxonomy

import (
	"testing"

	"taxogen/internal/core"
)

func TestBuildMergesSynonymTags(t *testing.T) {
	proposals := []core.ClusterProposal{
		{
			ClusterID: "c1",
			Category:  core.CategoryProposal{Name: "Cloud Infrastructure"},
			Tags: []core.TagProposal{
				{Name: "Kubernetes", Description: "Container orchestration platform"},
			},
		},
		{
			ClusterID: "c2",
			Category:  core.CategoryProposal{Name: "DevOps"},
			Tags: []core.TagProposal{
				{Name: "K8s"},
			},
		},
	}

	taxonomy, err := Build(proposals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(taxonomy.Tags) != 1 {
		t.Fatalf("expected Kubernetes and K8s to merge into one tag, got %d", len(taxonomy.Tags))
	}
	tag := taxonomy.Tags[0]
	if tag.NormalizedName != "kubernetes" {
		t.Errorf("normalized name = %q", tag.NormalizedName)
	}
	if tag.ID != "tag-kubernetes" {
		t.Errorf("tag id = %q", tag.ID)
	}
	if tag.Description != "Container orchestration platform" {
		t.Errorf("expected the non-trivial description to win, got %q", tag.Description)
	}
}

func TestBuildFirstProposalWins(t *testing.T) {
	proposals := []core.ClusterProposal{
		{
			ClusterID: "c1",
			Category:  core.CategoryProposal{Name: "Machine Learning", Description: "Learning from data"},
		},
		{
			ClusterID: "c2",
			Category:  core.CategoryProposal{Name: "machine   learning", Description: "A different description"},
		},
	}

	taxonomy, err := Build(proposals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(taxonomy.Categories) != 1 {
		t.Fatalf("expected one merged category, got %d", len(taxonomy.Categories))
	}
	category := taxonomy.Categories[0]
	if category.Name != "Machine Learning" || category.Description != "Learning from data" {
		t.Errorf("first proposal should establish the canonical record, got %+v", category)
	}

	if len(taxonomy.ClusterCategories) != 2 {
		t.Fatalf("expected both clusters mapped, got %d", len(taxonomy.ClusterCategories))
	}
	for _, cc := range taxonomy.ClusterCategories {
		if cc.CategoryID != "machine-learning" {
			t.Errorf("cluster %s mapped to %q", cc.ClusterID, cc.CategoryID)
		}
	}
}

func TestBuildNamespacesSubcategories(t *testing.T) {
	proposals := []core.ClusterProposal{
		{
			ClusterID:   "c1",
			Category:    core.CategoryProposal{Name: "Databases"},
			Subcategory: &core.CategoryProposal{Name: "Postgres", Description: "Relational store"},
		},
	}

	taxonomy, err := Build(proposals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(taxonomy.Categories) != 2 {
		t.Fatalf("expected category plus subcategory, got %d", len(taxonomy.Categories))
	}

	sub := taxonomy.Categories[1]
	if sub.ID != "databases/postgresql" {
		t.Errorf("subcategory id = %q", sub.ID)
	}
	if sub.ParentID != "databases" || sub.Level != 1 {
		t.Errorf("subcategory parent = %q level = %d", sub.ParentID, sub.Level)
	}

	if taxonomy.ClusterCategories[0].SubcategoryID != "databases/postgresql" {
		t.Errorf("cluster mapping subcategory = %q", taxonomy.ClusterCategories[0].SubcategoryID)
	}
}

func TestBuildEmptyProposals(t *testing.T) {
	if _, err := Build(nil); err == nil {
		t.Fatal("expected an error for empty proposals")
	}
}

func TestBuildEmptyNormalizedCategory(t *testing.T) {
	_, err := Build([]core.ClusterProposal{
		{ClusterID: "c1", Category: core.CategoryProposal{Name: "???"}},
	})
	if err == nil {
		t.Fatal("expected an error for a category that normalizes to nothing")
	}
}

func TestBuildSkipsUnnormalizableTags(t *testing.T) {
	taxonomy, err := Build([]core.ClusterProposal{
		{
			ClusterID: "c1",
			Category:  core.CategoryProposal{Name: "Security"},
			Tags: []core.TagProposal{
				{Name: "!!!"},
				{Name: "OAuth"},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(taxonomy.Tags) != 1 || taxonomy.Tags[0].NormalizedName != "oauth" {
		t.Errorf("tags = %+v", taxonomy.Tags)
	}
}
