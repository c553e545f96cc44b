package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/fetch"
	"github.com/spiffcs/devexport/internal/source"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.URL = srv.URL
	if cfg.Email == "" {
		cfg.Email = "me@example.com"
		cfg.APIToken = "secret"
	}
	if cfg.Project == "" && cfg.JQL == "" {
		cfg.Project = "ENG"
	}
	c, err := NewClient(cfg, append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	require.NoError(t, err)
	return c
}

func issueJSON(n int) string {
	return fmt.Sprintf(`{"id": "%d", "key": "ENG-%d", "fields": {
		"summary": "issue %d",
		"project": {"key": "ENG"},
		"status": {"name": "Done", "statusCategory": {"key": "done"}},
		"issuetype": {"name": "Bug"},
		"priority": {"name": "High"},
		"labels": ["backend"],
		"reporter": {"accountId": "acc-1", "displayName": "Erin", "emailAddress": "erin@example.com", "avatarUrls": {"48x48": "https://avatar/erin"}},
		"assignee": null,
		"created": "2026-01-01T09:00:00.000+0000",
		"updated": "2026-01-02T09:00:00.000+0000",
		"resolutiondate": "2026-01-01T21:30:00.000+0000"
	}}`, n, n, n)
}

func TestSearchIssuesPaging(t *testing.T) {
	const total = 3
	handler := func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "me@example.com", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/rest/api/2/search", r.URL.Path)
		assert.Equal(t, `project = "ENG" ORDER BY created ASC, key ASC`, r.URL.Query().Get("jql"))

		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		var issues []string
		for i := startAt; i < min(startAt+maxResults, total); i++ {
			issues = append(issues, issueJSON(i+1))
		}
		body := "["
		for i, is := range issues {
			if i > 0 {
				body += ","
			}
			body += is
		}
		body += "]"
		fmt.Fprintf(w, `{"startAt": %d, "maxResults": %d, "total": %d, "issues": %s}`, startAt, maxResults, total, body)
	}
	c := newTestClient(t, handler, Config{})

	var pages []fetch.Page[source.Issue]
	for page, err := range fetch.NewOffset("jira", c.SearchIssues, fetch.WithPageSize[source.Issue](2)).Pages(context.Background()) {
		require.NoError(t, err)
		pages = append(pages, page)
	}

	require.Len(t, pages, 2)
	assert.True(t, pages[0].HasMore)
	assert.Equal(t, 3, pages[0].Total)
	assert.Len(t, pages[1].Items, 1)
	assert.False(t, pages[1].HasMore)

	is := pages[0].Items[0]
	assert.Equal(t, "ENG-1", is.Key)
	assert.Equal(t, "ENG", is.Project)
	assert.Equal(t, "done", is.StatusCategory)
	assert.Equal(t, "Bug", is.Type)
	assert.Equal(t, "High", is.Priority)
	assert.Equal(t, c.base+"/browse/ENG-1", is.URL)
	require.NotNil(t, is.Author)
	assert.Equal(t, "acc-1", is.Author.Login)
	assert.Equal(t, "https://avatar/erin", is.Author.AvatarURL)
	assert.Nil(t, is.Assignee)
	require.NotNil(t, is.ResolvedAt)
	assert.Equal(t, time.Date(2026, 1, 1, 21, 30, 0, 0, time.UTC), *is.ResolvedAt)
	assert.Equal(t, "jira:ENG", c.Name())
}

func TestSearchIssuesZeroRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"startAt": 0, "maxResults": 100, "total": 0, "issues": []}`)
	}, Config{})

	page, err := c.SearchIssues(context.Background(), fetch.PageRequest{PerPage: 100})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
}

func TestSearchIssuesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		check  func(error) bool
	}{
		{name: "unauthorized", status: 401, check: apierr.IsAuth},
		{name: "rate limited", status: 429, header: map[string]string{"Retry-After": "7"}, check: apierr.IsRateLimited},
		{name: "server", status: 503, check: apierr.IsServerError},
		{name: "bad jql", status: 400, check: func(err error) bool { return err != nil && !apierr.IsAuth(err) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}, Config{})

			_, err := c.SearchIssues(context.Background(), fetch.PageRequest{PerPage: 10})
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected classification for %v", err)
		})
	}
}

func TestRateLimitRetryAfter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}, Config{})

	_, err := c.SearchIssues(context.Background(), fetch.PageRequest{PerPage: 10})
	assert.Equal(t, 7*time.Second, apierr.RetryAfter(err, time.Now()))
}

func TestCheckAuth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/myself", r.URL.Path)
		fmt.Fprint(w, `{"accountId": "acc-1", "displayName": "Me"}`)
	}, Config{})
	assert.NoError(t, c.CheckAuth(context.Background()))
}

func TestBuildJQL(t *testing.T) {
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, `project = "ENG" AND updated >= "2026-02-01 00:00" ORDER BY created ASC, key ASC`, BuildJQL("ENG", "", since))
	assert.Equal(t, `(assignee = currentUser()) ORDER BY created ASC, key ASC`, BuildJQL("ENG", "assignee = currentUser()", time.Time{}))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
	_, err = NewClient(Config{URL: "https://jira.example.com", Project: "ENG"})
	assert.Error(t, err)
	_, err = NewClient(Config{URL: "https://jira.example.com", Email: "a", APIToken: "b"})
	assert.Error(t, err)

	c, err := NewClient(Config{URL: "https://jira.example.com/", Email: "a", APIToken: "b", JQL: "labels = x"})
	require.NoError(t, err)
	assert.Equal(t, "jira:jql", c.Name())
	assert.Equal(t, fetch.StyleOffset, c.Paging())
	assert.Contains(t, c.Scope(), "https://jira.example.com offset (labels = x)")

	cloud, err := NewClient(Config{URL: "https://acme.atlassian.net", Email: "a", APIToken: "b", Project: "ENG"})
	require.NoError(t, err)
	assert.Equal(t, fetch.StyleCursor, cloud.Paging())
	assert.Contains(t, cloud.Scope(), "https://acme.atlassian.net cursor ")
}

func TestIsCloudURL(t *testing.T) {
	assert.True(t, IsCloudURL("https://acme.atlassian.net"))
	assert.True(t, IsCloudURL("https://ACME.Atlassian.net/"))
	assert.False(t, IsCloudURL("https://jira.example.com"))
	assert.False(t, IsCloudURL("https://atlassian.net.example.com"))
}

func TestCloudSearchFollowsPageToken(t *testing.T) {
	var tokens []string
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/search/jql", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("maxResults"))
		token := r.URL.Query().Get("nextPageToken")
		tokens = append(tokens, token)
		switch token {
		case "":
			fmt.Fprintf(w, `{"issues": [%s, %s], "nextPageToken": "tok-2", "isLast": false}`, issueJSON(1), issueJSON(2))
		case "tok-2":
			fmt.Fprintf(w, `{"issues": [%s], "isLast": true}`, issueJSON(3))
		default:
			t.Errorf("unexpected token %q", token)
		}
	}
	c := newTestClient(t, handler, Config{}, WithCloud(true))

	var pages []fetch.Page[source.Issue]
	for page, err := range fetch.NewCursor("jira", c.SearchIssues, fetch.WithPageSize[source.Issue](2)).Pages(context.Background()) {
		require.NoError(t, err)
		pages = append(pages, page)
	}

	require.Len(t, pages, 2)
	assert.Equal(t, []string{"", "tok-2"}, tokens)
	assert.Equal(t, "tok-2", pages[0].NextCursor)
	assert.True(t, pages[0].HasMore)
	assert.False(t, pages[1].HasMore)
	assert.Empty(t, pages[1].NextCursor)
	assert.Equal(t, "ENG-3", pages[1].Items[0].Key)
}

func TestCloudCheckAuthUsesV3(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/myself", r.URL.Path)
		fmt.Fprint(w, `{"accountId": "acc-1", "displayName": "Me"}`)
	}, Config{}, WithCloud(true))
	assert.NoError(t, c.CheckAuth(context.Background()))
}

func TestUnparseableTimestampIsNull(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"startAt": 0, "maxResults": 10, "total": 2, "issues": [
			{"id": "1", "key": "ENG-1", "fields": {"summary": "odd", "created": "2026-01-01T09:00:00.000+0000", "updated": "2026-01-02T09:00:00.000+0000", "resolutiondate": "2025-01-02"}},
			`+issueJSON(2)+`
		]}`)
	}, Config{})

	page, err := c.SearchIssues(context.Background(), fetch.PageRequest{PerPage: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Nil(t, page.Items[0].ResolvedAt)
	assert.Equal(t, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), page.Items[0].CreatedAt)
	assert.NotNil(t, page.Items[1].ResolvedAt)
}
