package classify

import (
	"regexp"
	"strings"
)

// Assistance is the result of scanning a commit message for AI tooling.
type Assistance struct {
	Assisted bool
	Tool     string
	Model    string
}

// AssistRule maps a trigger pattern to a tool label. Model, when set,
// extracts a model identifier from the first capture group.
type AssistRule struct {
	Tool    string
	Trigger *regexp.Regexp
	Model   *regexp.Regexp
}

// DefaultAssistRules is checked in order; the first matching rule wins.
var DefaultAssistRules = []AssistRule{
	{
		Tool:    "claude-code",
		Trigger: regexp.MustCompile(`(?i)generated with \[?claude code|co-authored-by:\s*claude\b|noreply@anthropic\.com`),
		Model:   regexp.MustCompile(`(?i)co-authored-by:\s*claude\s+((?:opus|sonnet|haiku)(?:\s+[\d.]+)?)`),
	},
	{
		Tool:    "github-copilot",
		Trigger: regexp.MustCompile(`(?i)co-authored-by:\s*copilot\b|copilot-swe-agent|generated (?:by|with) (?:github )?copilot`),
	},
	{
		Tool:    "cursor",
		Trigger: regexp.MustCompile(`(?i)co-authored-by:\s*cursor\b|cursoragent@cursor\.com|generated (?:by|with) cursor`),
	},
	{
		Tool:    "aider",
		Trigger: regexp.MustCompile(`(?im)^aider:|co-authored-by:\s*aider\b`),
		Model:   regexp.MustCompile(`(?i)co-authored-by:\s*aider\s*\(([^)]+)\)`),
	},
	{
		Tool:    "openai-codex",
		Trigger: regexp.MustCompile(`(?i)co-authored-by:\s*(?:openai\s*)?codex\b|generated (?:by|with) (?:openai )?codex`),
		Model:   regexp.MustCompile(`(?i)\b(gpt-[\w.\-]+|o[134](?:-mini)?)\b`),
	},
	{
		Tool:    "windsurf",
		Trigger: regexp.MustCompile(`(?i)co-authored-by:\s*(?:windsurf|codeium)\b|generated (?:by|with) (?:windsurf|codeium)`),
	},
	{
		Tool:    "gemini-cli",
		Trigger: regexp.MustCompile(`(?i)co-authored-by:\s*gemini\b|generated (?:by|with) gemini`),
		Model:   regexp.MustCompile(`(?i)\b(gemini[\s-][\d.]+[\w\-]*)`),
	},
	{
		Tool:    "devin",
		Trigger: regexp.MustCompile(`(?i)devin-ai-integration|co-authored-by:\s*devin\b`),
	},
	{
		Tool:    "amazon-q",
		Trigger: regexp.MustCompile(`(?i)co-authored-by:\s*amazon q\b|generated (?:by|with) amazon q`),
	},
}

// DetectAssistance scans message against DefaultAssistRules.
func DetectAssistance(message string) Assistance {
	return DetectAssistanceWith(DefaultAssistRules, message)
}

// DetectAssistanceWith scans message against rules in order.
func DetectAssistanceWith(rules []AssistRule, message string) Assistance {
	if strings.TrimSpace(message) == "" {
		return Assistance{}
	}
	for _, r := range rules {
		if !r.Trigger.MatchString(message) {
			continue
		}
		a := Assistance{Assisted: true, Tool: r.Tool}
		if r.Model != nil {
			if m := r.Model.FindStringSubmatch(message); len(m) > 1 {
				a.Model = normalizeModel(m[1])
			}
		}
		return a
	}
	return Assistance{}
}

func normalizeModel(s string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	return strings.Join(fields, "-")
}
