package ghclient

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	gh "github.com/google/go-github/v57/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/source"
)

const (
	defaultGraphQLEndpoint = "https://api.github.com/graphql"
	githubDotCom           = "https://api.github.com"
)

// Ensure Client implements the code host capabilities.
var _ source.Host = (*Client)(nil)

// Client talks to GitHub over REST (go-github), raw aliased GraphQL for
// batched detail queries, and githubv4 for cursor-paged commit history.
// All three share one authenticated HTTP client whose transport converts
// failures into apierr values.
type Client struct {
	rest       *gh.Client
	gql        *githubv4.Client
	httpClient *http.Client
	graphqlURL string
	limits     *RateLimitState

	mu         sync.Mutex
	ownerKinds map[string]ownerKind
}

type clientOptions struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*clientOptions)

// WithBaseURL points the client at a GitHub Enterprise Server API root,
// e.g. https://github.example.com/api/v3.
func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithHTTPClient sets the underlying HTTP client whose transport carries
// authenticated requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// NewClient creates a new GitHub client using a personal access token.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("GitHub token not provided. Set the GITHUB_TOKEN environment variable")
	}

	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	}

	// The token only lives inside the token source. NEVER copy it onto the
	// Client or into anything that is logged or serialized.
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = constants.DefaultHTTPTimeout

	limits := newRateLimitState()
	tc.Transport = &statusTransport{
		base:  tc.Transport,
		state: limits,
	}

	c := &Client{
		rest:       gh.NewClient(tc),
		httpClient: tc,
		graphqlURL: defaultGraphQLEndpoint,
		limits:     limits,
		ownerKinds: make(map[string]ownerKind),
	}

	base := strings.TrimRight(o.baseURL, "/")
	if base != "" && base != githubDotCom {
		rest, err := c.rest.WithEnterpriseURLs(base+"/", base+"/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", o.baseURL, err)
		}
		c.rest = rest
		c.graphqlURL = enterpriseGraphQLURL(base)
		c.gql = githubv4.NewEnterpriseClient(c.graphqlURL, tc)
	} else {
		c.gql = githubv4.NewClient(tc)
	}

	return c, nil
}

// enterpriseGraphQLURL maps https://host/api/v3 (or https://host) to the
// server's GraphQL endpoint https://host/api/graphql.
func enterpriseGraphQLURL(base string) string {
	host := strings.TrimSuffix(base, "/api/v3")
	return host + "/api/graphql"
}

// AuthenticatedUser returns the authenticated user's login
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	user, _, err := c.rest.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to get authenticated user: %w", err)
	}
	return user.GetLogin(), nil
}

// RateLimits fetches the current GitHub API rate limit status.
func (c *Client) RateLimits(ctx context.Context) (*gh.RateLimits, error) {
	limits, _, err := c.rest.RateLimit.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limits: %w", err)
	}
	return limits, nil
}

// RateLimitState returns the rate limit state observed from responses.
func (c *Client) RateLimitState() *RateLimitState {
	return c.limits
}
