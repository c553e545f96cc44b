package ghclient

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/spiffcs/devexport/internal/constants"
)

//go:embed queries/*.graphql
var queryFiles embed.FS

// Query templates parsed at init time
var prDetailBatchItemTemplate *template.Template

func init() {
	data, err := queryFiles.ReadFile("queries/pr_detail_batch_item.graphql")
	if err != nil {
		panic(fmt.Sprintf("failed to load pr_detail_batch_item.graphql: %v", err))
	}
	prDetailBatchItemTemplate = template.Must(template.New("pr_detail_batch_item").Parse(string(data)))
}

// BatchItem represents the parameters for a single item in a batch query.
type BatchItem struct {
	Alias  string
	Owner  string
	Repo   string
	Number int
	// Nested bounds commits and reviews per pull request. Zero means
	// constants.MaxNestedNodes.
	Nested int
}

// BuildPRDetailBatchQuery builds a GraphQL query for multiple pull request
// details using one alias per pull request.
func BuildPRDetailBatchQuery(items []BatchItem) (string, error) {
	var sb strings.Builder
	sb.WriteString("query {\n")

	for _, item := range items {
		if item.Nested <= 0 {
			item.Nested = constants.MaxNestedNodes
		}
		var buf bytes.Buffer
		if err := prDetailBatchItemTemplate.Execute(&buf, item); err != nil {
			return "", fmt.Errorf("failed to execute PR detail template for %s: %w", item.Alias, err)
		}
		sb.WriteString("  ")
		sb.WriteString(strings.ReplaceAll(strings.TrimRight(buf.String(), "\n"), "\n", "\n  "))
		sb.WriteString("\n")
	}

	sb.WriteString("}")
	return sb.String(), nil
}

func prAlias(i int) string {
	return fmt.Sprintf("pr%d", i)
}
