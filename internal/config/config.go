package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenEnvVar is the only place the GitHub credential is read from
const TokenEnvVar = "GITHUB_TOKEN"

// MergeMethod selects how auto-merged pull requests are merged
type MergeMethod string

const (
	MergeMerge  MergeMethod = "merge"
	MergeSquash MergeMethod = "squash"
	MergeRebase MergeMethod = "rebase"
)

const (
	DefaultMaxWorkers         = 4
	DefaultTimeout            = 30 * time.Second
	DefaultMutationsPerSecond = 1.0
	DefaultListenAddr         = "127.0.0.1:8787"
)

// Config represents the complete workflowsync run configuration
type Config struct {
	Org         string        `yaml:"org"`
	Topic       string        `yaml:"topic"`
	SourceRepo  string        `yaml:"source_repo"`
	Files       []string      `yaml:"files"`
	DryRun      bool          `yaml:"dry_run"`
	Parallel    bool          `yaml:"parallel"`
	MaxWorkers  int           `yaml:"max_workers"`
	Timeout     time.Duration `yaml:"timeout"`
	Prune       bool          `yaml:"prune"`
	MetricsFile string        `yaml:"metrics_file"`
	Merge       MergeConfig   `yaml:"merge"`
	API         APIConfig     `yaml:"api"`
	Serve       ServeConfig   `yaml:"serve"`

	// Token is never read from the config file
	Token string `yaml:"-"`
}

// MergeConfig configures auto-merge of created pull requests
type MergeConfig struct {
	Auto   bool        `yaml:"auto"`
	Method MergeMethod `yaml:"method"`
}

// APIConfig configures the GitHub API client
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// MutationsPerSecond is nil when unset; an explicit 0 disables pacing
	MutationsPerSecond *float64 `yaml:"mutations_per_second"`
}

// MutationRate returns the configured mutation pace
func (a APIConfig) MutationRate() float64 {
	if a.MutationsPerSecond == nil {
		return DefaultMutationsPerSecond
	}
	return *a.MutationsPerSecond
}

// ServeConfig configures the webhook server
type ServeConfig struct {
	ListenAddr              string   `yaml:"listen_addr"`
	GitHubWebhookSecretFile string   `yaml:"github_webhook_secret_file"`
	AllowedRefs             []string `yaml:"allowed_refs"`
	AllowedEventTypes       []string `yaml:"allowed_event_types"`
}

// Load reads and parses the configuration file. Validation is left to the
// caller so command-line overrides can be applied first.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.ApplyDefaults()

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Org = os.ExpandEnv(c.Org)
	c.Topic = os.ExpandEnv(c.Topic)
	c.SourceRepo = os.ExpandEnv(c.SourceRepo)
	c.MetricsFile = os.ExpandEnv(c.MetricsFile)
	c.API.BaseURL = os.ExpandEnv(c.API.BaseURL)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.GitHubWebhookSecretFile = os.ExpandEnv(c.Serve.GitHubWebhookSecretFile)
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxWorkers == 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Merge.Method == "" {
		c.Merge.Method = MergeSquash
	}
	if c.API.MutationsPerSecond == nil {
		rate := DefaultMutationsPerSecond
		c.API.MutationsPerSecond = &rate
	}
	if c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = DefaultListenAddr
	}
	if len(c.Serve.AllowedEventTypes) == 0 {
		c.Serve.AllowedEventTypes = []string{"push"}
	}
}

// LoadToken reads the GitHub token from the environment
func (c *Config) LoadToken() {
	c.Token = strings.TrimSpace(os.Getenv(TokenEnvVar))
}

// Validate checks the configuration for errors. The topic is normalized to
// lower case as part of validation.
func (c *Config) Validate() error {
	if err := validateToken(c.Token); err != nil {
		return err
	}
	if err := orgPattern.check(c.Org); err != nil {
		return err
	}
	if err := repoPattern.check(c.SourceRepo); err != nil {
		return err
	}

	c.Topic = strings.ToLower(c.Topic)
	if err := topicPattern.check(c.Topic); err != nil {
		return err
	}

	for _, f := range c.Files {
		if err := ValidateWorkflowFile(f); err != nil {
			return err
		}
	}

	if c.MaxWorkers < 1 {
		return &ValidationError{Field: "max workers", Value: fmt.Sprint(c.MaxWorkers), Reason: "must be at least 1"}
	}
	if c.Timeout <= 0 {
		return &ValidationError{Field: "timeout", Value: c.Timeout.String(), Reason: "must be positive"}
	}
	if rate := c.API.MutationRate(); rate < 0 {
		return &ValidationError{Field: "api.mutations_per_second", Value: fmt.Sprint(rate), Reason: "must not be negative"}
	}

	switch c.Merge.Method {
	case MergeMerge, MergeSquash, MergeRebase:
		// valid
	default:
		return &ValidationError{Field: "merge method", Value: string(c.Merge.Method), Reason: "must be merge, squash, or rebase"}
	}

	return nil
}

// ValidateServe checks the settings only the webhook server needs
func (c *Config) ValidateServe() error {
	if c.Serve.GitHubWebhookSecretFile == "" {
		return &ValidationError{Field: "serve.github_webhook_secret_file", Reason: "is required"}
	}
	if c.Serve.ListenAddr == "" {
		return &ValidationError{Field: "serve.listen_addr", Reason: "is required"}
	}
	for _, ref := range c.Serve.AllowedRefs {
		if !strings.HasPrefix(ref, "refs/") {
			return &ValidationError{Field: "serve.allowed_refs", Value: ref, Reason: "must be a full ref such as refs/heads/main"}
		}
	}
	return nil
}

// SourceFullName returns the owner/name of the source repository
func (c *Config) SourceFullName() string {
	return c.Org + "/" + c.SourceRepo
}

// PruneEnabled reports whether stale workflow files are removed from targets.
// Pruning is disabled while a file filter is active, since the desired set
// is then deliberately partial.
func (c *Config) PruneEnabled() bool {
	return c.Prune && len(c.Files) == 0
}
