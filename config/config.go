// Package config loads devexport settings from the global and local
// config files. Secrets are only read from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/spiffcs/devexport/internal/constants"
)

// Config represents the application configuration
type Config struct {
	DefaultFormat   string   `yaml:"default_format,omitempty" toml:"default_format,omitempty"`
	Owners          []string `yaml:"owners,omitempty" toml:"owners,omitempty"`
	Repos           []string `yaml:"repos,omitempty" toml:"repos,omitempty"`
	ExcludeRepos    []string `yaml:"exclude_repos,omitempty" toml:"exclude_repos,omitempty"`
	ExcludeAuthors  []string `yaml:"exclude_authors,omitempty" toml:"exclude_authors,omitempty"`
	Since           string   `yaml:"since,omitempty" toml:"since,omitempty"`
	Output          string   `yaml:"output,omitempty" toml:"output,omitempty"`
	Checkpoint      string   `yaml:"checkpoint,omitempty" toml:"checkpoint,omitempty"`
	IncludeForks    *bool    `yaml:"include_forks,omitempty" toml:"include_forks,omitempty"`
	IncludeArchived *bool    `yaml:"include_archived,omitempty" toml:"include_archived,omitempty"`
	IncludeIssues   *bool    `yaml:"include_issues,omitempty" toml:"include_issues,omitempty"`

	Fetch  *FetchOverrides `yaml:"fetch,omitempty" toml:"fetch,omitempty"`
	Retry  *RetryOverrides `yaml:"retry,omitempty" toml:"retry,omitempty"`
	GitHub *GitHubConfig   `yaml:"github,omitempty" toml:"github,omitempty"`
	Jira   *JiraConfig     `yaml:"jira,omitempty" toml:"jira,omitempty"`
}

// FetchOverrides tunes paging and batching
type FetchOverrides struct {
	PageSize      *int `yaml:"page_size,omitempty" toml:"page_size,omitempty"`
	MaxPages      *int `yaml:"max_pages,omitempty" toml:"max_pages,omitempty"`
	BatchSize     *int `yaml:"batch_size,omitempty" toml:"batch_size,omitempty"`
	BatchPauseMs  *int `yaml:"batch_pause_ms,omitempty" toml:"batch_pause_ms,omitempty"`
	ProgressEvery *int `yaml:"progress_every,omitempty" toml:"progress_every,omitempty"`
}

// RetryOverrides tunes the retry policy
type RetryOverrides struct {
	MaxRetries      *int `yaml:"max_retries,omitempty" toml:"max_retries,omitempty"`
	NetworkBaseMs   *int `yaml:"network_base_ms,omitempty" toml:"network_base_ms,omitempty"`
	RateLimitBaseMs *int `yaml:"rate_limit_base_ms,omitempty" toml:"rate_limit_base_ms,omitempty"`
	MaxDelaySeconds *int `yaml:"max_delay_seconds,omitempty" toml:"max_delay_seconds,omitempty"`
}

// GitHubConfig points at a GitHub Enterprise instance when APIURL is set
type GitHubConfig struct {
	APIURL string `yaml:"api_url,omitempty" toml:"api_url,omitempty"`
}

// JiraConfig selects the tracker query. Credentials come from JIRA_EMAIL
// and JIRA_API_TOKEN.
type JiraConfig struct {
	URL      string `yaml:"url,omitempty" toml:"url,omitempty"`
	Project  string `yaml:"project,omitempty" toml:"project,omitempty"`
	JQL      string `yaml:"jql,omitempty" toml:"jql,omitempty"`
	PageSize *int   `yaml:"page_size,omitempty" toml:"page_size,omitempty"`
}

// FetchSettings are the resolved paging and batching values
type FetchSettings struct {
	PageSize      int
	MaxPages      int
	BatchSize     int
	BatchPause    time.Duration
	ProgressEvery int
}

// RetrySettings are the resolved retry values
type RetrySettings struct {
	MaxRetries    int
	NetworkBase   time.Duration
	RateLimitBase time.Duration
	MaxDelay      time.Duration
}

// DefaultFetchSettings returns the default paging and batching values
func DefaultFetchSettings() FetchSettings {
	return FetchSettings{
		PageSize:      constants.DefaultPageSize,
		MaxPages:      constants.DefaultMaxPages,
		BatchSize:     constants.DefaultBatchSize,
		BatchPause:    constants.DefaultBatchPause,
		ProgressEvery: constants.DefaultProgressEvery,
	}
}

// DefaultRetrySettings returns the default retry values
func DefaultRetrySettings() RetrySettings {
	return RetrySettings{
		MaxRetries:    constants.DefaultMaxRetries,
		NetworkBase:   constants.DefaultNetworkBase,
		RateLimitBase: constants.DefaultRateLimitBase,
		MaxDelay:      constants.DefaultMaxDelay,
	}
}

// GetFetchSettings returns fetch settings with user overrides merged with defaults
func (c *Config) GetFetchSettings() FetchSettings {
	s := DefaultFetchSettings()
	if f := c.Fetch; f != nil {
		setInt(&s.PageSize, f.PageSize)
		setInt(&s.MaxPages, f.MaxPages)
		setInt(&s.BatchSize, f.BatchSize)
		setInt(&s.ProgressEvery, f.ProgressEvery)
		if f.BatchPauseMs != nil {
			s.BatchPause = time.Duration(*f.BatchPauseMs) * time.Millisecond
		}
	}
	return s
}

// GetRetrySettings returns retry settings with user overrides merged with defaults
func (c *Config) GetRetrySettings() RetrySettings {
	s := DefaultRetrySettings()
	if r := c.Retry; r != nil {
		setInt(&s.MaxRetries, r.MaxRetries)
		if r.NetworkBaseMs != nil {
			s.NetworkBase = time.Duration(*r.NetworkBaseMs) * time.Millisecond
		}
		if r.RateLimitBaseMs != nil {
			s.RateLimitBase = time.Duration(*r.RateLimitBaseMs) * time.Millisecond
		}
		if r.MaxDelaySeconds != nil {
			s.MaxDelay = time.Duration(*r.MaxDelaySeconds) * time.Second
		}
	}
	return s
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// GetBool returns *b, or def when unset
func GetBool(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// DefaultConfigDir returns the default config directory
func DefaultConfigDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ".devexport"
	}
	return filepath.Join(configDir, "devexport")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// LocalConfigPaths returns the local config files in the current directory,
// in lookup order. The first one found is used.
func LocalConfigPaths() []string {
	return []string{".devexport.yaml", ".devexport.toml"}
}

// ConfigFileExists returns true if the config file exists on disk
func ConfigFileExists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// Load loads the configuration from disk.
// It loads a .env file if present, then the global config from the XDG
// config directory, then merges a local .devexport.yaml or .devexport.toml
// on top (local values take precedence).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{DefaultFormat: "table"}

	global, err := readFile(ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load global config file: %w", err)
	}
	if global != nil {
		cfg = mergeConfig(cfg, global)
	}

	for _, path := range LocalConfigPaths() {
		local, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load local config file: %w", err)
		}
		if local != nil {
			cfg = mergeConfig(cfg, local)
			break
		}
	}

	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = "table"
	}
	return cfg, nil
}

// readFile parses a YAML or TOML config file. A missing file returns nil.
func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// mergeConfig merges local config on top of global config.
// Local values take precedence; unset local values preserve global values.
func mergeConfig(global, local *Config) *Config {
	result := &Config{
		DefaultFormat:   pick(local.DefaultFormat, global.DefaultFormat),
		Owners:          pickSlice(local.Owners, global.Owners),
		Repos:           pickSlice(local.Repos, global.Repos),
		ExcludeRepos:    pickSlice(local.ExcludeRepos, global.ExcludeRepos),
		ExcludeAuthors:  pickSlice(local.ExcludeAuthors, global.ExcludeAuthors),
		Since:           pick(local.Since, global.Since),
		Output:          pick(local.Output, global.Output),
		Checkpoint:      pick(local.Checkpoint, global.Checkpoint),
		IncludeForks:    pickPtr(local.IncludeForks, global.IncludeForks),
		IncludeArchived: pickPtr(local.IncludeArchived, global.IncludeArchived),
		IncludeIssues:   pickPtr(local.IncludeIssues, global.IncludeIssues),
	}

	if global.Fetch != nil || local.Fetch != nil {
		g, l := deref(global.Fetch), deref(local.Fetch)
		result.Fetch = &FetchOverrides{
			PageSize:      pickPtr(l.PageSize, g.PageSize),
			MaxPages:      pickPtr(l.MaxPages, g.MaxPages),
			BatchSize:     pickPtr(l.BatchSize, g.BatchSize),
			BatchPauseMs:  pickPtr(l.BatchPauseMs, g.BatchPauseMs),
			ProgressEvery: pickPtr(l.ProgressEvery, g.ProgressEvery),
		}
	}

	if global.Retry != nil || local.Retry != nil {
		g, l := deref(global.Retry), deref(local.Retry)
		result.Retry = &RetryOverrides{
			MaxRetries:      pickPtr(l.MaxRetries, g.MaxRetries),
			NetworkBaseMs:   pickPtr(l.NetworkBaseMs, g.NetworkBaseMs),
			RateLimitBaseMs: pickPtr(l.RateLimitBaseMs, g.RateLimitBaseMs),
			MaxDelaySeconds: pickPtr(l.MaxDelaySeconds, g.MaxDelaySeconds),
		}
	}

	if global.GitHub != nil || local.GitHub != nil {
		g, l := deref(global.GitHub), deref(local.GitHub)
		result.GitHub = &GitHubConfig{APIURL: pick(l.APIURL, g.APIURL)}
	}

	if global.Jira != nil || local.Jira != nil {
		g, l := deref(global.Jira), deref(local.Jira)
		result.Jira = &JiraConfig{
			URL:      pick(l.URL, g.URL),
			Project:  pick(l.Project, g.Project),
			JQL:      pick(l.JQL, g.JQL),
			PageSize: pickPtr(l.PageSize, g.PageSize),
		}
	}

	return result
}

func pick(local, global string) string {
	if local != "" {
		return local
	}
	return global
}

// pickSlice replaces the global list when the local one is non-empty.
func pickSlice(local, global []string) []string {
	if len(local) > 0 {
		return local
	}
	return global
}

func pickPtr[T any](local, global *T) *T {
	if local != nil {
		return local
	}
	return global
}

func deref[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return SaveTo(ConfigPath(), string(data))
}

// GetGitHubToken returns the GitHub token from the GITHUB_TOKEN environment variable.
// Tokens are only read from the environment.
func (c *Config) GetGitHubToken() string {
	return os.Getenv("GITHUB_TOKEN")
}

// GetGitHubAPIURL returns the GitHub Enterprise API URL, or "" for github.com.
func (c *Config) GetGitHubAPIURL() string {
	if c.GitHub != nil && c.GitHub.APIURL != "" {
		return c.GitHub.APIURL
	}
	return os.Getenv("GITHUB_API_URL")
}

// JiraEnabled reports whether a tracker query is configured.
func (c *Config) JiraEnabled() bool {
	return c.Jira != nil && (c.Jira.Project != "" || c.Jira.JQL != "")
}

// GetJiraURL returns the tracker base URL, falling back to JIRA_URL.
func (c *Config) GetJiraURL() string {
	if c.Jira != nil && c.Jira.URL != "" {
		return c.Jira.URL
	}
	return os.Getenv("JIRA_URL")
}

// GetJiraCredentials returns JIRA_EMAIL and JIRA_API_TOKEN.
func (c *Config) GetJiraCredentials() (email, token string) {
	return os.Getenv("JIRA_EMAIL"), os.Getenv("JIRA_API_TOKEN")
}

// DefaultConfig returns a fully populated config with all default values.
// This is useful for generating a complete config file template.
func DefaultConfig() *Config {
	fetch := DefaultFetchSettings()
	retry := DefaultRetrySettings()
	pauseMs := int(fetch.BatchPause / time.Millisecond)
	networkMs := int(retry.NetworkBase / time.Millisecond)
	rateLimitMs := int(retry.RateLimitBase / time.Millisecond)
	maxDelay := int(retry.MaxDelay / time.Second)
	forks, archived, issues := false, false, true
	jiraPage := constants.DefaultPageSize

	return &Config{
		DefaultFormat:   "table",
		Owners:          []string{},
		Repos:           []string{},
		ExcludeRepos:    []string{},
		ExcludeAuthors:  []string{},
		Since:           "90d",
		Output:          constants.DefaultOutputFile,
		Checkpoint:      constants.DefaultCheckpointFile,
		IncludeForks:    &forks,
		IncludeArchived: &archived,
		IncludeIssues:   &issues,
		Fetch: &FetchOverrides{
			PageSize:      &fetch.PageSize,
			MaxPages:      &fetch.MaxPages,
			BatchSize:     &fetch.BatchSize,
			BatchPauseMs:  &pauseMs,
			ProgressEvery: &fetch.ProgressEvery,
		},
		Retry: &RetryOverrides{
			MaxRetries:      &retry.MaxRetries,
			NetworkBaseMs:   &networkMs,
			RateLimitBaseMs: &rateLimitMs,
			MaxDelaySeconds: &maxDelay,
		},
		GitHub: &GitHubConfig{},
		Jira:   &JiraConfig{PageSize: &jiraPage},
	}
}

// ToYAML returns the config as a YAML string
func (c *Config) ToYAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

// ConfigPathInfo contains information about config file paths
type ConfigPathInfo struct {
	GlobalPath   string
	GlobalExists bool
	LocalPath    string
	LocalExists  bool
}

// GetConfigPaths returns path info for both global and local configs. The
// local path is the first local file found, or the YAML name when none is.
func GetConfigPaths() ConfigPathInfo {
	globalPath := ConfigPath()
	_, globalErr := os.Stat(globalPath)

	info := ConfigPathInfo{GlobalPath: globalPath, GlobalExists: globalErr == nil}

	localPath := LocalConfigPaths()[0]
	for _, p := range LocalConfigPaths() {
		if _, err := os.Stat(p); err == nil {
			localPath = p
			info.LocalExists = true
			break
		}
	}
	absLocalPath, err := filepath.Abs(localPath)
	if err != nil {
		absLocalPath = localPath
	}
	info.LocalPath = absLocalPath
	return info
}

// MinimalConfig returns a minimal config template with comments
func MinimalConfig() string {
	return `# devexport configuration file
# See: devexport config defaults  (for all available options)

# Owners (organizations or users) whose repositories are exported
owners:
  - my-org

# Only export activity updated within this window (e.g. 30d, 2w, 2025-01-01)
since: 90d

# Snapshot and checkpoint locations
output: devexport-snapshot.json
# checkpoint: .devexport-checkpoint.json

# Skip repositories (owner/name or name)
# exclude_repos:
#   - my-org/sandbox

# Extra bot accounts to exclude
# exclude_authors:
#   - deploy-robot

# Issue tracker (credentials come from JIRA_EMAIL and JIRA_API_TOKEN)
# jira:
#   url: https://example.atlassian.net
#   project: ENG
`
}

// SaveTo writes content to a specific path, creating directories as needed
func SaveTo(path string, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}
