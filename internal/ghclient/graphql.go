package ghclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/log"
	"github.com/spiffcs/devexport/internal/source"
)

// graphqlRequest represents a GraphQL request payload.
type graphqlRequest struct {
	Query string `json:"query"`
}

// graphqlResponse represents a generic GraphQL response.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

type graphqlError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Path    []any  `json:"path"`
}

// BatchPullRequestDetails fetches details for many pull requests of one
// repository in a single aliased query. When some aliases come back empty
// the resolved entries are returned together with apierr.ErrPartialBatch.
func (c *Client) BatchPullRequestDetails(ctx context.Context, repo source.Repository, numbers []int) (map[int]source.PullRequestDetail, error) {
	if len(numbers) == 0 {
		return map[int]source.PullRequestDetail{}, nil
	}

	items := make([]BatchItem, len(numbers))
	for i, n := range numbers {
		items[i] = BatchItem{Alias: prAlias(i), Owner: repo.Owner, Repo: repo.Name, Number: n}
	}
	query, err := BuildPRDetailBatchQuery(items)
	if err != nil {
		return nil, err
	}

	data, gqlErrs, err := c.executeGraphQL(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("batch pull request details for %s: %w", repo.FullName(), err)
	}
	if rlErr := rateLimitFromGraphQL(gqlErrs); rlErr != nil {
		return nil, rlErr
	}

	results, err := parsePRDetailResponse(data, items)
	if err != nil {
		return nil, err
	}

	if missing := len(items) - len(results); missing > 0 {
		return results, fmt.Errorf("%s: %d of %d pull requests unresolved: %w", repo.FullName(), missing, len(items), apierr.ErrPartialBatch)
	}
	return results, nil
}

// executeGraphQL executes a GraphQL query against GitHub's API. GraphQL
// errors do not fail the call; they are returned so the caller can decide
// which aliases are usable.
func (c *Client) executeGraphQL(ctx context.Context, query string) (json.RawMessage, []graphqlError, error) {
	reqBody := graphqlRequest{Query: query}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal GraphQL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GraphQL request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("GraphQL request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read GraphQL response: %w", err)
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, nil, fmt.Errorf("failed to parse GraphQL response: %w", err)
	}

	for _, e := range gqlResp.Errors {
		log.Debug("GraphQL error", "message", e.Message, "type", e.Type, "path", e.Path)
	}

	return gqlResp.Data, gqlResp.Errors, nil
}

func rateLimitFromGraphQL(errs []graphqlError) error {
	for _, e := range errs {
		if e.Type == "RATE_LIMITED" || strings.Contains(strings.ToLower(e.Message), "rate limit") {
			return &apierr.RateLimitError{}
		}
	}
	return nil
}

// mapGraphQLError converts githubv4 errors into apierr values. Transport
// failures already carry apierr types and pass through.
func mapGraphQLError(err error) error {
	if err == nil {
		return nil
	}
	var statusErr *apierr.StatusError
	var rateLimitErr *apierr.RateLimitError
	if errors.As(err, &statusErr) || errors.As(err, &rateLimitErr) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return &apierr.RateLimitError{}
	case strings.Contains(msg, "could not resolve to a"):
		return fmt.Errorf("%w: %v", apierr.ErrNotFound, err)
	}
	return err
}

// parsePRDetailResponse parses the aliased response. Aliases that are
// missing, null, or malformed are left out of the result, as are pull
// requests with more commits or reviews than one query returns; the
// paginated REST lookup fetches those.
func parsePRDetailResponse(data json.RawMessage, items []BatchItem) (map[int]source.PullRequestDetail, error) {
	results := make(map[int]source.PullRequestDetail, len(items))
	if len(data) == 0 || string(data) == "null" {
		return results, nil
	}

	var rawData map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawData); err != nil {
		return nil, fmt.Errorf("failed to parse PR detail response data: %w", err)
	}

	log.Trace("parsing PR detail response", "aliases", len(rawData), "items", len(items))

	for _, item := range items {
		repoData, ok := rawData[item.Alias]
		if !ok || repoData == nil || string(repoData) == "null" {
			log.Debug("no data for PR alias", "alias", item.Alias, "repo", item.Owner+"/"+item.Repo, "number", item.Number)
			continue
		}

		var repo struct {
			PullRequest *prDetailData `json:"pullRequest"`
		}
		if err := json.Unmarshal(repoData, &repo); err != nil {
			log.Debug("failed to parse PR data", "alias", item.Alias, "error", err)
			continue
		}
		if repo.PullRequest == nil {
			continue
		}
		if repo.PullRequest.truncated() {
			log.Debug("pull request too large for batch query", "repo", item.Owner+"/"+item.Repo, "number", item.Number,
				"commits", repo.PullRequest.Commits.TotalCount, "reviews", repo.PullRequest.Reviews.TotalCount)
			continue
		}

		results[item.Number] = repo.PullRequest.toDetail(item.Number)
	}

	return results, nil
}

type gqlActor struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

func (a *gqlActor) toActor(email string) *source.Actor {
	if a == nil || a.Login == "" {
		return nil
	}
	return &source.Actor{Login: a.Login, ID: a.ID, Name: a.Name, Email: email, AvatarURL: a.AvatarURL}
}

// prDetailData represents the PR detail data from GraphQL response.
type prDetailData struct {
	Number       int  `json:"number"`
	Additions    *int `json:"additions"`
	Deletions    *int `json:"deletions"`
	ChangedFiles *int `json:"changedFiles"`
	Commits      struct {
		TotalCount int `json:"totalCount"`
		Nodes      []struct {
			Commit struct {
				Oid           string    `json:"oid"`
				Message       string    `json:"message"`
				URL           string    `json:"url"`
				Additions     *int      `json:"additions"`
				Deletions     *int      `json:"deletions"`
				CommittedDate time.Time `json:"committedDate"`
				Author        *struct {
					Name  string    `json:"name"`
					Email string    `json:"email"`
					User  *gqlActor `json:"user"`
				} `json:"author"`
			} `json:"commit"`
		} `json:"nodes"`
	} `json:"commits"`
	Reviews struct {
		TotalCount int `json:"totalCount"`
		Nodes      []struct {
			ID          string     `json:"id"`
			State       string     `json:"state"`
			SubmittedAt *time.Time `json:"submittedAt"`
			URL         string     `json:"url"`
			Author      *gqlActor  `json:"author"`
		} `json:"nodes"`
	} `json:"reviews"`
}

func (pr *prDetailData) truncated() bool {
	return pr.Commits.TotalCount > len(pr.Commits.Nodes) || pr.Reviews.TotalCount > len(pr.Reviews.Nodes)
}

func (pr *prDetailData) toDetail(number int) source.PullRequestDetail {
	d := source.PullRequestDetail{
		Number:       number,
		Additions:    pr.Additions,
		Deletions:    pr.Deletions,
		ChangedFiles: pr.ChangedFiles,
		Commits:      make([]source.Commit, 0, len(pr.Commits.Nodes)),
		Reviews:      make([]source.Review, 0, len(pr.Reviews.Nodes)),
	}

	for _, n := range pr.Commits.Nodes {
		cm := n.Commit
		c := source.Commit{
			SHA:         cm.Oid,
			Message:     cm.Message,
			URL:         cm.URL,
			CommittedAt: cm.CommittedDate.UTC(),
			Additions:   cm.Additions,
			Deletions:   cm.Deletions,
		}
		if cm.Author != nil {
			c.AuthorName = cm.Author.Name
			c.AuthorEmail = cm.Author.Email
			c.Author = cm.Author.User.toActor("")
		}
		d.Commits = append(d.Commits, c)
	}

	for _, n := range pr.Reviews.Nodes {
		r := source.Review{
			ID:     n.ID,
			State:  n.State,
			Author: n.Author.toActor(""),
			URL:    n.URL,
		}
		if n.SubmittedAt != nil && !n.SubmittedAt.IsZero() {
			t := n.SubmittedAt.UTC()
			r.SubmittedAt = &t
		}
		d.Reviews = append(d.Reviews, r)
	}

	return d
}
