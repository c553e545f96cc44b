// Package jira reads issues from a Jira instance. Server and Data Center
// are searched through the REST v2 offset API; Cloud sites through the
// v3 enhanced search, which pages by continuation token.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/fetch"
	"github.com/spiffcs/devexport/internal/log"
	"github.com/spiffcs/devexport/internal/source"
)

const searchFields = "summary,project,status,issuetype,priority,labels,reporter,creator,assignee,created,updated,resolutiondate"

// Ensure Client implements the tracker capability.
var _ source.Tracker = (*Client)(nil)

// Config holds the connection and query settings for a Jira instance.
type Config struct {
	URL      string
	Email    string
	APIToken string
	Project  string
	// JQL replaces the project query when set.
	JQL   string
	Since time.Time
}

// Client searches issues on a Jira instance.
type Client struct {
	cfg   Config
	base  string
	http  *http.Client
	jql   string
	cloud bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithCloud overrides Cloud detection, which otherwise goes by the
// atlassian.net host suffix.
func WithCloud(cloud bool) Option {
	return func(cl *Client) {
		cl.cloud = cloud
	}
}

// IsCloudURL reports whether base points at a Jira Cloud site.
func IsCloudURL(base string) bool {
	u, err := url.Parse(base)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), ".atlassian.net")
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		return nil, fmt.Errorf("jira URL not provided. Set jira.url or the JIRA_URL environment variable")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid jira URL %q: %w", cfg.URL, err)
	}
	if cfg.Email == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("jira credentials not provided. Set JIRA_EMAIL and JIRA_API_TOKEN")
	}
	if cfg.Project == "" && cfg.JQL == "" {
		return nil, fmt.Errorf("jira project or jql must be configured")
	}

	c := &Client{
		cfg:   cfg,
		base:  base,
		http:  &http.Client{Timeout: constants.DefaultHTTPTimeout},
		jql:   BuildJQL(cfg.Project, cfg.JQL, cfg.Since),
		cloud: IsCloudURL(base),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BuildJQL composes the search query. Results are ordered by creation so
// offset pages stay stable between runs.
func BuildJQL(project, jql string, since time.Time) string {
	var clauses []string
	if jql != "" {
		clauses = append(clauses, "("+jql+")")
	} else {
		clauses = append(clauses, fmt.Sprintf("project = %q", project))
	}
	if !since.IsZero() {
		clauses = append(clauses, fmt.Sprintf("updated >= %q", since.UTC().Format("2006-01-02 15:04")))
	}
	return strings.Join(clauses, " AND ") + " ORDER BY created ASC, key ASC"
}

// Name identifies the tracker scope in unit ids.
func (c *Client) Name() string {
	if c.cfg.Project != "" && c.cfg.JQL == "" {
		return "jira:" + c.cfg.Project
	}
	return "jira:jql"
}

// Paging reports how SearchIssues advances: by token on Cloud, by offset
// elsewhere.
func (c *Client) Paging() fetch.Style {
	if c.cloud {
		return fetch.StyleCursor
	}
	return fetch.StyleOffset
}

// Scope describes the instance and query for checkpoint fingerprints.
// Saved pages from one search API cannot resume the other.
func (c *Client) Scope() string {
	return c.base + " " + c.Paging().String() + " " + c.jql
}

func (c *Client) apiPath(rest string) string {
	if c.cloud {
		return "/rest/api/3/" + rest
	}
	return "/rest/api/2/" + rest
}

// CheckAuth verifies the credentials against the current-user endpoint.
func (c *Client) CheckAuth(ctx context.Context) error {
	var me user
	if err := c.get(ctx, c.apiPath("myself"), nil, &me); err != nil {
		return fmt.Errorf("jira authentication check: %w", err)
	}
	log.Debug("jira authenticated", "user", me.DisplayName)
	return nil
}

// SearchIssues fetches one page of issues. Cloud pages follow req.Cursor;
// other instances use req.Page as the offset.
func (c *Client) SearchIssues(ctx context.Context, req fetch.PageRequest) (fetch.Page[source.Issue], error) {
	perPage := req.PerPage
	if perPage <= 0 {
		perPage = constants.DefaultPageSize
	}
	if c.cloud {
		return c.searchJQL(ctx, req, perPage)
	}
	startAt := req.Page * perPage

	params := url.Values{}
	params.Set("jql", c.jql)
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(perPage))
	params.Set("fields", searchFields)

	var resp searchResponse
	if err := c.get(ctx, "/rest/api/2/search", params, &resp); err != nil {
		return fetch.Page[source.Issue]{}, fmt.Errorf("search %s page %d: %w", c.Name(), req.Page, err)
	}

	items := make([]source.Issue, 0, len(resp.Issues))
	for _, is := range resp.Issues {
		items = append(items, c.toIssue(is))
	}

	return fetch.Page[source.Issue]{
		Items:   items,
		HasMore: resp.StartAt+len(resp.Issues) < resp.Total,
		Total:   resp.Total,
	}, nil
}

func (c *Client) searchJQL(ctx context.Context, req fetch.PageRequest, perPage int) (fetch.Page[source.Issue], error) {
	params := url.Values{}
	params.Set("jql", c.jql)
	params.Set("maxResults", strconv.Itoa(perPage))
	params.Set("fields", searchFields)
	if req.Cursor != "" {
		params.Set("nextPageToken", req.Cursor)
	}

	var resp jqlSearchResponse
	if err := c.get(ctx, "/rest/api/3/search/jql", params, &resp); err != nil {
		return fetch.Page[source.Issue]{}, fmt.Errorf("search %s page %d: %w", c.Name(), req.Page, err)
	}

	items := make([]source.Issue, 0, len(resp.Issues))
	for _, is := range resp.Issues {
		items = append(items, c.toIssue(is))
	}

	last := resp.NextPageToken == "" || (resp.IsLast != nil && *resp.IsLast)
	page := fetch.Page[source.Issue]{Items: items, HasMore: !last}
	if !last {
		page.NextCursor = resp.NextPageToken
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &apierr.RateLimitError{RetryAfter: retryAfter(resp)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxErrorBodyBytes))
		return apierr.FromResponse(resp, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func (c *Client) toIssue(is issue) source.Issue {
	f := is.Fields
	out := source.Issue{
		Key:       is.Key,
		Title:     f.Summary,
		URL:       c.base + "/browse/" + is.Key,
		Labels:    f.Labels,
		CreatedAt: f.Created.Time,
		UpdatedAt: f.Updated.Time,
	}
	if out.Labels == nil {
		out.Labels = []string{}
	}
	if f.Project != nil {
		out.Project = f.Project.Key
	}
	if f.Status != nil {
		out.State = f.Status.Name
		if f.Status.StatusCategory != nil {
			out.StatusCategory = f.Status.StatusCategory.Key
		}
	}
	if f.IssueType != nil {
		out.Type = f.IssueType.Name
	}
	if f.Priority != nil {
		out.Priority = f.Priority.Name
	}
	if f.ResolutionDate != nil && !f.ResolutionDate.IsZero() {
		t := f.ResolutionDate.Time
		out.ResolvedAt = &t
	}

	author := f.Reporter
	if author == nil {
		author = f.Creator
	}
	out.Author = toActor(author)
	out.Assignee = toActor(f.Assignee)
	return out
}

func toActor(u *user) *source.Actor {
	if u.username() == "" {
		return nil
	}
	a := &source.Actor{
		Login: u.username(),
		ID:    u.id(),
		Name:  u.DisplayName,
		Email: u.EmailAddress,
	}
	if avatar, ok := u.AvatarURLs["48x48"]; ok {
		a.AvatarURL = avatar
	}
	return a
}
