// Package config loads coordinate.yml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dusk-indust/coordinate/internal/coordinator"
	"github.com/dusk-indust/coordinate/internal/logging"
	"github.com/dusk-indust/coordinate/internal/strategy"
	"gopkg.in/yaml.v3"
)

// FileNames are the config file names tried, in order.
var FileNames = []string{"coordinate.yml", "coordinate.yaml"}

// RemoteAgent is an agent hosted over the wire.
type RemoteAgent struct {
	URL string `yaml:"url"`
	// Capacity overrides DefaultAgentCapacity for this agent. Zero keeps
	// the default.
	Capacity int `yaml:"capacity,omitempty"`
}

// Config holds settings loaded from coordinate.yml. Zero values mean "use
// the default"; Apply only overrides what is set.
type Config struct {
	LogLevel  string `yaml:"logLevel,omitempty"`
	LogFormat string `yaml:"logFormat,omitempty"`

	AgentTimeout time.Duration `yaml:"agentTimeout,omitempty"`
	MaxParallel  int           `yaml:"maxParallel,omitempty"`

	ParallelOverhead    time.Duration `yaml:"parallelOverhead,omitempty"`
	SequentialOverhead  time.Duration `yaml:"sequentialOverhead,omitempty"`
	HierarchicalFactor  float64       `yaml:"hierarchicalFactor,omitempty"`
	CollaborativeFactor float64       `yaml:"collaborativeFactor,omitempty"`

	CommunicationOverheadRatio float64       `yaml:"communicationOverheadRatio,omitempty"`
	ConflictResolutionUnit     time.Duration `yaml:"conflictResolutionUnit,omitempty"`
	RebalanceThreshold         float64       `yaml:"rebalanceThreshold,omitempty"`
	DefaultAgentCapacity       int           `yaml:"defaultAgentCapacity,omitempty"`
	InboxSize                  int           `yaml:"inboxSize,omitempty"`

	ArchivePath string        `yaml:"archivePath,omitempty"`
	Agents      []RemoteAgent `yaml:"agents,omitempty"`
}

// Load attempts to read coordinate.yml or coordinate.yaml from the given
// directory. Returns a zero-value config (not an error) if no config file
// exists.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		return &cfg, nil
	}
	return &Config{}, nil
}

// Validate rejects negative quantities and unknown log settings.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logFormat %q", c.LogFormat)
	}
	for name, v := range map[string]float64{
		"agentTimeout":               float64(c.AgentTimeout),
		"maxParallel":                float64(c.MaxParallel),
		"parallelOverhead":           float64(c.ParallelOverhead),
		"sequentialOverhead":         float64(c.SequentialOverhead),
		"hierarchicalFactor":         c.HierarchicalFactor,
		"collaborativeFactor":        c.CollaborativeFactor,
		"communicationOverheadRatio": c.CommunicationOverheadRatio,
		"conflictResolutionUnit":     float64(c.ConflictResolutionUnit),
		"rebalanceThreshold":         c.RebalanceThreshold,
		"defaultAgentCapacity":       float64(c.DefaultAgentCapacity),
		"inboxSize":                  float64(c.InboxSize),
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	for i, a := range c.Agents {
		if a.URL == "" {
			return fmt.Errorf("agents[%d]: url is required", i)
		}
		if a.Capacity < 0 {
			return fmt.Errorf("agents[%d]: capacity must not be negative", i)
		}
	}
	return nil
}

// Logger builds the logger the config describes.
func (c *Config) Logger() (logging.Logger, error) {
	return logging.New(logging.Config{Level: c.LogLevel, Format: c.LogFormat})
}

// StrategyConfig returns the strategy constants with the configured values
// applied over the defaults.
func (c *Config) StrategyConfig() strategy.Config {
	s := strategy.DefaultConfig()
	if c.ParallelOverhead > 0 {
		s.ParallelOverhead = c.ParallelOverhead
	}
	if c.SequentialOverhead > 0 {
		s.SequentialOverhead = c.SequentialOverhead
	}
	if c.HierarchicalFactor > 0 {
		s.HierarchicalFactor = c.HierarchicalFactor
	}
	if c.CollaborativeFactor > 0 {
		s.CollaborativeFactor = c.CollaborativeFactor
	}
	s.MaxParallel = c.MaxParallel
	return s
}

// CoordinatorOptions converts the config to coordinator options. The logger
// and archive are wired by the caller.
func (c *Config) CoordinatorOptions() []coordinator.Option {
	opts := []coordinator.Option{coordinator.WithStrategyConfig(c.StrategyConfig())}
	if c.AgentTimeout > 0 {
		opts = append(opts, coordinator.WithAgentTimeout(c.AgentTimeout))
	}
	if c.CommunicationOverheadRatio > 0 || c.ConflictResolutionUnit > 0 {
		d := coordinator.DefaultOptions()
		ratio, unit := d.CommunicationOverheadRatio, d.ConflictResolutionUnit
		if c.CommunicationOverheadRatio > 0 {
			ratio = c.CommunicationOverheadRatio
		}
		if c.ConflictResolutionUnit > 0 {
			unit = c.ConflictResolutionUnit
		}
		opts = append(opts, coordinator.WithMetrics(ratio, unit))
	}
	if c.RebalanceThreshold > 0 {
		opts = append(opts, coordinator.WithRebalanceThreshold(c.RebalanceThreshold))
	}
	if c.DefaultAgentCapacity > 0 {
		opts = append(opts, coordinator.WithAgentCapacity(c.DefaultAgentCapacity))
	}
	if c.InboxSize > 0 {
		opts = append(opts, coordinator.WithInboxSize(c.InboxSize))
	}
	return opts
}
