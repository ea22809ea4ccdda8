package taxonomy

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Machine Learning", "machine-learning"},
		{"  C++ & Systems  ", "c-systems"},
		{"Web   Development!!", "web-development"},
		{"Kubernetes", "kubernetes"},
		{"K8s", "kubernetes"},
		{"JS", "javascript"},
		{"Golang", "go"},
		{"Postgres", "postgresql"},
		{"ML", "machine-learning"},
		{"---", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTagID(t *testing.T) {
	if got := TagID("kubernetes"); got != "tag-kubernetes" {
		t.Errorf("TagID = %q", got)
	}
}

func TestSubcategoryID(t *testing.T) {
	if got := SubcategoryID("cloud-infrastructure", "kubernetes"); got != "cloud-infrastructure/kubernetes" {
		t.Errorf("SubcategoryID = %q", got)
	}
}
