package ui

import (
	"reflect"
	"testing"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1, s2   string
		expected int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"title", "titel", 2},
		{"tags", "tag", 1},
	}

	for _, tt := range tests {
		t.Run(tt.s1+"_"+tt.s2, func(t *testing.T) {
			if got := LevenshteinDistance(tt.s1, tt.s2); got != tt.expected {
				t.Errorf("LevenshteinDistance(%q, %q) = %d; want %d", tt.s1, tt.s2, got, tt.expected)
			}
		})
	}
}

func TestFindSimilar(t *testing.T) {
	candidates := []string{"title", "body", "tags", "title", "Author"}

	tests := []struct {
		name     string
		target   string
		opts     *FuzzyMatchOptions
		expected []string
	}{
		{"duplicates collapse", "titel", nil, []string{"title"}},
		{"case insensitive", "author", nil, []string{"Author"}},
		{"case sensitive", "AUTHOR", &FuzzyMatchOptions{CaseSensitive: true}, []string{}},
		{"nothing close", "quick_column", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindSimilar(tt.target, candidates, tt.opts)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("FindSimilar(%q) = %v; want %v", tt.target, got, tt.expected)
			}
		})
	}
}

func TestFindSimilar_NearestFirst(t *testing.T) {
	candidates := []string{"tagset", "tag", "tags"}

	got := FindSimilar("tags", candidates, nil)
	if !reflect.DeepEqual(got, []string{"tags", "tag", "tagset"}) {
		t.Errorf("unexpected order %v", got)
	}

	got = FindSimilar("tags", candidates, &FuzzyMatchOptions{MaxSuggestions: 1})
	if !reflect.DeepEqual(got, []string{"tags"}) {
		t.Errorf("expected a single suggestion, got %v", got)
	}
}
