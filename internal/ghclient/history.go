package ghclient

import (
	"context"
	"fmt"
	"time"

	"github.com/shurcooL/githubv4"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/fetch"
	"github.com/spiffcs/devexport/internal/source"
)

type historyNode struct {
	Oid           githubv4.GitObjectID
	Message       githubv4.String
	URL           githubv4.URI
	Additions     githubv4.Int
	Deletions     githubv4.Int
	CommittedDate githubv4.DateTime
	Author        struct {
		Name  githubv4.String
		Email githubv4.String
		User  *struct {
			ID        githubv4.ID
			Login     githubv4.String
			Name      githubv4.String
			AvatarURL githubv4.URI `graphql:"avatarUrl"`
		}
	}
}

type historyQuery struct {
	Repository *struct {
		DefaultBranchRef *struct {
			Target struct {
				Commit struct {
					History struct {
						Nodes    []historyNode
						PageInfo struct {
							EndCursor   githubv4.String
							HasNextPage bool
						}
					} `graphql:"history(first: $first, after: $cursor, since: $since)"`
				} `graphql:"... on Commit"`
			}
		}
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// ListCommitHistory lists one cursor page of the default branch history.
// A repository without a default branch (empty repository) has no history.
func (c *Client) ListCommitHistory(ctx context.Context, repo source.Repository, since time.Time, req fetch.PageRequest) (fetch.Page[source.Commit], error) {
	first := req.PerPage
	if first <= 0 || first > constants.MaxNestedNodes {
		first = constants.MaxNestedNodes
	}

	variables := map[string]any{
		"owner":  githubv4.String(repo.Owner),
		"name":   githubv4.String(repo.Name),
		"first":  githubv4.Int(first),
		"cursor": (*githubv4.String)(nil),
		"since":  (*githubv4.GitTimestamp)(nil),
	}
	if req.Cursor != "" {
		variables["cursor"] = githubv4.NewString(githubv4.String(req.Cursor))
	}
	if !since.IsZero() {
		variables["since"] = githubv4.NewGitTimestamp(githubv4.GitTimestamp{Time: since.UTC()})
	}

	var q historyQuery
	if err := c.gql.Query(ctx, &q, variables); err != nil {
		return fetch.Page[source.Commit]{}, fmt.Errorf("commit history for %s: %w", repo.FullName(), mapGraphQLError(err))
	}

	if q.Repository == nil {
		return fetch.Page[source.Commit]{}, fmt.Errorf("commit history for %s: %w", repo.FullName(), apierr.ErrNotFound)
	}
	if q.Repository.DefaultBranchRef == nil {
		return fetch.Page[source.Commit]{Items: []source.Commit{}}, nil
	}

	history := q.Repository.DefaultBranchRef.Target.Commit.History
	items := make([]source.Commit, 0, len(history.Nodes))
	for _, n := range history.Nodes {
		items = append(items, n.toCommit())
	}

	return fetch.Page[source.Commit]{
		Items:      items,
		HasMore:    history.PageInfo.HasNextPage,
		NextCursor: string(history.PageInfo.EndCursor),
	}, nil
}

func (n historyNode) toCommit() source.Commit {
	additions, deletions := int(n.Additions), int(n.Deletions)
	c := source.Commit{
		SHA:         string(n.Oid),
		Message:     string(n.Message),
		AuthorName:  string(n.Author.Name),
		AuthorEmail: string(n.Author.Email),
		CommittedAt: n.CommittedDate.UTC(),
		Additions:   &additions,
		Deletions:   &deletions,
	}
	if n.URL.URL != nil {
		c.URL = n.URL.String()
	}
	if u := n.Author.User; u != nil && u.Login != "" {
		a := &source.Actor{
			Login: string(u.Login),
			Name:  string(u.Name),
		}
		if id, ok := u.ID.(string); ok {
			a.ID = id
		}
		if u.AvatarURL.URL != nil {
			a.AvatarURL = u.AvatarURL.String()
		}
		c.Author = a
	}
	return c
}
