package jira

import (
	"strings"
	"time"

	"github.com/spiffcs/devexport/internal/log"
)

// jiraTimeLayout is the timestamp format of the REST v2 API, e.g.
// 2026-01-02T10:00:00.000+0000.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// Time decodes Jira timestamps, which are not RFC 3339. A value in neither
// format decodes as the zero time.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, err := time.Parse(jiraTimeLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			log.Debug("ignoring unparseable jira timestamp", "value", s)
			return nil
		}
	}
	t.Time = parsed.UTC()
	return nil
}

type searchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []issue `json:"issues"`
}

// jqlSearchResponse is the Cloud /rest/api/3/search/jql page. It carries
// no total; isLast or a missing token ends the walk.
type jqlSearchResponse struct {
	Issues        []issue `json:"issues"`
	NextPageToken string  `json:"nextPageToken"`
	IsLast        *bool   `json:"isLast"`
}

type issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields issueFields `json:"fields"`
}

type issueFields struct {
	Summary string `json:"summary"`
	Project *struct {
		Key string `json:"key"`
	} `json:"project"`
	Status *struct {
		Name           string `json:"name"`
		StatusCategory *struct {
			Key string `json:"key"`
		} `json:"statusCategory"`
	} `json:"status"`
	IssueType *struct {
		Name string `json:"name"`
	} `json:"issuetype"`
	Priority *struct {
		Name string `json:"name"`
	} `json:"priority"`
	Labels         []string `json:"labels"`
	Reporter       *user    `json:"reporter"`
	Creator        *user    `json:"creator"`
	Assignee       *user    `json:"assignee"`
	Created        Time     `json:"created"`
	Updated        Time     `json:"updated"`
	ResolutionDate *Time    `json:"resolutiondate"`
}

// user covers Jira Cloud (accountId) and Server/Data Center (name).
type user struct {
	AccountID    string            `json:"accountId"`
	Name         string            `json:"name"`
	Key          string            `json:"key"`
	DisplayName  string            `json:"displayName"`
	EmailAddress string            `json:"emailAddress"`
	AvatarURLs   map[string]string `json:"avatarUrls"`
	Active       *bool             `json:"active"`
}

// username returns the source-native username: the Server login name, or
// the Cloud account id where logins do not exist.
func (u *user) username() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.AccountID
}

func (u *user) id() string {
	if u.AccountID != "" {
		return u.AccountID
	}
	return u.Key
}
