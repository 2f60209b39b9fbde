package simulation

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/outage"
	"github.com/example/replica_sim/scheduler"
	"github.com/example/replica_sim/topology"
)

const (
	DefaultSeed        = 42
	DefaultMaxSimTime  = 4320000
	DefaultLatency     = 800
	DefaultAccessMean  = 1800
	DefaultAccessStd   = 512
	DefaultWriteProb   = 0.4
	DefaultSwitchProb  = 0.3
	DefaultOutageMean  = 5000
	DefaultOutageStd   = 1000
	DefaultOnlineMean  = 30000
	DefaultOnlineStd   = 8000
	DefaultFramePeriod = 1000
)

// Config holds the parameters of one run.
type Config struct {
	// Seed makes every random draw of the run reproducible.
	Seed int64 `yaml:"seed"`
	// MaxSimTime is the virtual-time horizon. Zero or less runs until no event is left.
	MaxSimTime float64 `yaml:"max_sim_time"`
	// SpeedFactor multiplies every connection latency.
	SpeedFactor float64 `yaml:"speed_factor"`
	// DefaultLatency applies to links without a latency.
	DefaultLatency float64 `yaml:"default_latency"`
	// DefaultConsistency applies to nodes without a policy.
	DefaultConsistency core.Consistency `yaml:"default_consistency"`
	// DefaultConnection applies to links without a kind.
	DefaultConnection core.ConnectionKind `yaml:"default_connection"`
	// TrackCompleteness enables replicatedAt bookkeeping.
	TrackCompleteness bool `yaml:"track_completeness"`
	// DrainPolicy decides what happens to messages in flight at the horizon.
	DrainPolicy scheduler.DrainPolicy `yaml:"drain_policy"`
	// QuorumFraction of direct peers whose acks commit a strong write.
	QuorumFraction float64 `yaml:"quorum_fraction"`

	// Users drives the random workload; zero disables it.
	Users        int     `yaml:"users"`
	Objects      int     `yaml:"objects"`
	AccessMean   float64 `yaml:"access_mean"`
	AccessStddev float64 `yaml:"access_stddev"`
	WriteProb    float64 `yaml:"write_prob"`
	SwitchProb   float64 `yaml:"switch_prob"`
	// Trace replays a scripted workload instead of the random one.
	Trace string `yaml:"trace"`

	// OutageProb is the chance that a connection group goes down each period; zero disables outages.
	OutageProb   float64          `yaml:"outage_prob"`
	OutageMean   float64          `yaml:"outage_mean"`
	OutageStddev float64          `yaml:"outage_stddev"`
	OnlineMean   float64          `yaml:"online_mean"`
	OnlineStddev float64          `yaml:"online_stddev"`
	Partition    outage.Partition `yaml:"partition"`

	// FramePeriod is the virtual time between published frames.
	FramePeriod float64 `yaml:"frame_period"`
	// Plugins names the hook plugins to load.
	Plugins []string `yaml:"plugins"`
	// LogLevel is one of error, warn, info, debug.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Seed:               DefaultSeed,
		MaxSimTime:         DefaultMaxSimTime,
		SpeedFactor:        1,
		DefaultLatency:     DefaultLatency,
		DefaultConsistency: core.DefaultConsistency,
		DefaultConnection:  core.ConnectionConstant,
		TrackCompleteness:  true,
		DrainPolicy:        scheduler.DrainInFlight,
		QuorumFraction:     0.5,
		Users:              1,
		Objects:            1,
		AccessMean:         DefaultAccessMean,
		AccessStddev:       DefaultAccessStd,
		WriteProb:          DefaultWriteProb,
		SwitchProb:         DefaultSwitchProb,
		OutageMean:         DefaultOutageMean,
		OutageStddev:       DefaultOutageStd,
		OnlineMean:         DefaultOnlineMean,
		OnlineStddev:       DefaultOnlineStd,
		Partition:          outage.PartitionWide,
		FramePeriod:        DefaultFramePeriod,
		Plugins:            []string{PluginMetrics},
		LogLevel:           "info",
	}
}

// LoadConfig reads a YAML config on top of DefaultConfig and validates it.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", filename, err)
	}
	if err := ValidateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Defaults returns the topology defaults implied by the config.
func (c Config) Defaults() topology.Defaults {
	return topology.Defaults{
		Consistency: c.DefaultConsistency,
		Connection:  c.DefaultConnection,
		Latency:     c.DefaultLatency,
	}
}

// Horizon is MaxSimTime, or +Inf when unbounded.
func (c Config) Horizon() float64 {
	if c.MaxSimTime <= 0 {
		return math.Inf(1)
	}
	return c.MaxSimTime
}

// ValidateConfig applies structural checks to Config and populates defaults where required.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if cfg.Users < 0 {
		return fmt.Errorf("Users must be non-negative, got %d", cfg.Users)
	}
	if cfg.WriteProb < 0 || cfg.WriteProb > 1 {
		return fmt.Errorf("WriteProb must be within [0,1], got %.3f", cfg.WriteProb)
	}
	if cfg.SwitchProb < 0 || cfg.SwitchProb > 1 {
		return fmt.Errorf("SwitchProb must be within [0,1], got %.3f", cfg.SwitchProb)
	}
	if cfg.OutageProb < 0 || cfg.OutageProb > 1 {
		return fmt.Errorf("OutageProb must be within [0,1], got %.3f", cfg.OutageProb)
	}
	if cfg.DefaultLatency < 0 {
		return fmt.Errorf("DefaultLatency must be non-negative, got %v", cfg.DefaultLatency)
	}
	if cfg.MaxSimTime <= 0 && ((cfg.Users > 0 && cfg.Trace == "") || cfg.OutageProb > 0) {
		return errors.New("random workloads and outages need a positive MaxSimTime")
	}

	level, err := core.ParseConsistency(string(cfg.DefaultConsistency))
	if err != nil {
		return err
	}
	cfg.DefaultConsistency = level
	kind, err := core.ParseConnectionKind(string(cfg.DefaultConnection))
	if err != nil {
		return err
	}
	cfg.DefaultConnection = kind
	policy, err := scheduler.ParseDrainPolicy(string(cfg.DrainPolicy))
	if err != nil {
		return err
	}
	cfg.DrainPolicy = policy
	part, err := outage.ParsePartition(string(cfg.Partition))
	if err != nil {
		return err
	}
	cfg.Partition = part

	if cfg.SpeedFactor <= 0 {
		cfg.SpeedFactor = 1
	}
	if cfg.QuorumFraction <= 0 || cfg.QuorumFraction > 1 {
		cfg.QuorumFraction = 0.5
	}
	if cfg.Objects <= 0 {
		cfg.Objects = 1
	}
	if cfg.AccessMean <= 0 {
		cfg.AccessMean = DefaultAccessMean
	}
	if cfg.AccessStddev < 0 {
		cfg.AccessStddev = 0
	}
	if cfg.OutageMean <= 0 {
		cfg.OutageMean = DefaultOutageMean
	}
	if cfg.OnlineMean <= 0 {
		cfg.OnlineMean = DefaultOnlineMean
	}
	if cfg.FramePeriod <= 0 {
		cfg.FramePeriod = DefaultFramePeriod
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return nil
}
