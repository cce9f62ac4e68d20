package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	keepself "github.com/axondata/go-keepself"
)

// Config is the optional YAML configuration of the run command. Flags set on
// the command line override it.
type Config struct {
	// RestartDelay is the pause between a worker exit and the next start
	RestartDelay *time.Duration `yaml:"restart_delay,omitempty"`

	// StartFailRetryDelay is the pause after a failed start
	StartFailRetryDelay *time.Duration `yaml:"start_fail_retry_delay,omitempty"`

	// StartFailRetryMaxDelay enables doubling of the retry delay up to this value
	StartFailRetryMaxDelay *time.Duration `yaml:"start_fail_retry_max_delay,omitempty"`

	// MaxStartRetries ends supervision after this many consecutive start failures
	MaxStartRetries *int `yaml:"max_start_retries,omitempty"`

	// ExcludeExitCodes are exit codes that end supervision
	ExcludeExitCodes []int `yaml:"exclude_exit_codes,omitempty"`

	// Features are feature names, for example "force-gc-after-worker-exited"
	Features []string `yaml:"features,omitempty"`

	// TokenDir holds liveness token files
	TokenDir string `yaml:"token_dir,omitempty"`

	// KillPollInterval is how often the host looks for a liveness token
	KillPollInterval *time.Duration `yaml:"kill_poll_interval,omitempty"`

	// ShareProcessGroup keeps the command in keepself's process group
	ShareProcessGroup bool `yaml:"share_process_group,omitempty"`
}

// LoadConfig reads a Config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// Options converts the configuration to supervisor options.
func (c *Config) Options() ([]keepself.Option, error) {
	var opts []keepself.Option

	if c.RestartDelay != nil {
		opts = append(opts, keepself.WithRestartDelay(*c.RestartDelay))
	}
	if c.StartFailRetryDelay != nil {
		opts = append(opts, keepself.WithStartFailRetryDelay(*c.StartFailRetryDelay))
	}
	if c.StartFailRetryMaxDelay != nil {
		opts = append(opts, keepself.WithStartFailBackoff(*c.StartFailRetryMaxDelay))
	}
	if c.MaxStartRetries != nil {
		opts = append(opts, keepself.WithMaxStartRetries(*c.MaxStartRetries))
	}
	if len(c.ExcludeExitCodes) > 0 {
		opts = append(opts, keepself.WithExcludeRestartExitCodes(c.ExcludeExitCodes...))
	}
	if len(c.Features) > 0 {
		features, err := keepself.ParseFeatures(c.Features)
		if err != nil {
			return nil, fmt.Errorf("invalid features: %w", err)
		}
		opts = append(opts, keepself.WithFeatures(features))
	}
	if c.TokenDir != "" {
		opts = append(opts, keepself.WithTokenDir(c.TokenDir))
	}
	if c.KillPollInterval != nil {
		opts = append(opts, keepself.WithKillPollInterval(*c.KillPollInterval))
	}
	if c.ShareProcessGroup {
		opts = append(opts, keepself.WithShareProcessGroup())
	}

	return opts, nil
}
