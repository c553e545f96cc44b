// Package classify derives flags and normalized states from source records.
package classify

import "strings"

// MatchKind is how a BotRule compares a login.
type MatchKind int

const (
	MatchSuffix MatchKind = iota
	MatchPrefix
	MatchContains
	MatchExact
)

// BotRule is one entry of the ordered bot pattern table.
type BotRule struct {
	Kind    MatchKind
	Pattern string
}

func (r BotRule) matches(login string) bool {
	switch r.Kind {
	case MatchSuffix:
		return strings.HasSuffix(login, r.Pattern)
	case MatchPrefix:
		return strings.HasPrefix(login, r.Pattern)
	case MatchContains:
		return strings.Contains(login, r.Pattern)
	case MatchExact:
		return login == r.Pattern
	}
	return false
}

// DefaultBotRules is the built-in table, checked in order. Patterns are
// lower case; logins are compared case-insensitively.
var DefaultBotRules = []BotRule{
	{MatchSuffix, "[bot]"},
	{MatchSuffix, "-bot"},
	{MatchSuffix, "_bot"},
	{MatchSuffix, "-robot"},
	{MatchPrefix, "dependabot"},
	{MatchPrefix, "renovate"},
	{MatchPrefix, "github-actions"},
	{MatchPrefix, "greenkeeper"},
	{MatchPrefix, "snyk-"},
	{MatchPrefix, "bot-"},
	{MatchContains, "[bot]"},
	{MatchContains, "-ci-"},
	{MatchExact, "web-flow"},
	{MatchExact, "codecov"},
	{MatchExact, "mergify"},
	{MatchExact, "allcontributors"},
	{MatchExact, "imgbot"},
	{MatchExact, "pre-commit-ci"},
	{MatchExact, "copilot"},
	{MatchExact, "automation"},
	{MatchExact, "jenkins"},
}

// BotDetector reports whether a login belongs to an automated account.
type BotDetector struct {
	rules []BotRule
}

// NewBotDetector builds a detector from the default table plus exact-match
// rules for each extra login (for example from exclude_authors).
func NewBotDetector(extra ...string) *BotDetector {
	rules := make([]BotRule, 0, len(DefaultBotRules)+len(extra))
	rules = append(rules, DefaultBotRules...)
	for _, login := range extra {
		login = strings.ToLower(strings.TrimSpace(login))
		if login != "" {
			rules = append(rules, BotRule{MatchExact, login})
		}
	}
	return &BotDetector{rules: rules}
}

// IsBot reports whether login matches any rule. Empty logins are not bots.
func (d *BotDetector) IsBot(login string) bool {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return false
	}
	for _, r := range d.rules {
		if r.matches(login) {
			return true
		}
	}
	return false
}

// IsBotPtr is IsBot for nullable usernames.
func (d *BotDetector) IsBotPtr(login *string) bool {
	return login != nil && d.IsBot(*login)
}
