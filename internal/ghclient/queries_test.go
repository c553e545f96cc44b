package ghclient

import (
	"strings"
	"testing"
)

func TestBuildPRDetailBatchQuery(t *testing.T) {
	items := []BatchItem{
		{Alias: "pr0", Owner: "owner1", Repo: "repo1", Number: 123},
		{Alias: "pr1", Owner: "owner2", Repo: "repo2", Number: 456, Nested: 10},
	}

	query, err := BuildPRDetailBatchQuery(items)
	if err != nil {
		t.Fatalf("BuildPRDetailBatchQuery failed: %v", err)
	}

	// Verify query structure
	if !strings.HasPrefix(query, "query {") {
		t.Error("query should start with 'query {'")
	}
	if !strings.HasSuffix(strings.TrimSpace(query), "}") {
		t.Error("query should end with '}'")
	}
	if strings.Count(query, "{") != strings.Count(query, "}") {
		t.Error("query braces should balance")
	}

	// Verify aliases and values
	for _, want := range []string{
		"pr0: repository(",
		"pr1: repository(",
		`"owner1"`,
		`"repo2"`,
		"number: 123",
		"number: 456",
		"commits(first: 100)",
		"commits(first: 10)",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query should contain %q", want)
		}
	}

	// Verify required detail fields
	requiredFields := []string{
		"pullRequest(",
		"additions",
		"deletions",
		"changedFiles",
		"oid",
		"committedDate",
		"login",
		"reviews(",
		"submittedAt",
		"totalCount",
	}

	for _, field := range requiredFields {
		if !strings.Contains(query, field) {
			t.Errorf("query should contain %q", field)
		}
	}
}

func TestBuildPRDetailBatchQueryEmpty(t *testing.T) {
	query, err := BuildPRDetailBatchQuery([]BatchItem{})
	if err != nil {
		t.Fatalf("BuildPRDetailBatchQuery failed: %v", err)
	}

	// Empty batch should still be valid query structure
	if !strings.Contains(query, "query {") {
		t.Error("empty batch should produce valid query structure")
	}
}

func TestEnterpriseGraphQLURL(t *testing.T) {
	tests := map[string]string{
		"https://github.example.com/api/v3": "https://github.example.com/api/graphql",
		"https://github.example.com":        "https://github.example.com/api/graphql",
	}
	for in, want := range tests {
		if got := enterpriseGraphQLURL(in); got != want {
			t.Errorf("enterpriseGraphQLURL(%q) = %q, want %q", in, got, want)
		}
	}
}
