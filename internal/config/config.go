package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/null-engine/nullengine/internal/domain"
)

// GenerationConfig describes how to reach the content generation service.
type GenerationConfig struct {
	BaseURL     string `json:"base_url" toml:"base_url" env:"NULL_GENERATION_BASE_URL"`
	APIKey      string `json:"api_key" toml:"api_key" env:"NULL_GENERATION_API_KEY"`
	Model       string `json:"model" toml:"model" env:"NULL_GENERATION_MODEL"`
	TimeoutSec  int    `json:"timeout_sec" toml:"timeout_sec" env:"NULL_GENERATION_TIMEOUT_SEC"`
	MaxFailures int    `json:"max_failures" toml:"max_failures" env:"NULL_GENERATION_MAX_FAILURES"`
	CooldownSec int    `json:"cooldown_sec" toml:"cooldown_sec" env:"NULL_GENERATION_COOLDOWN_SEC"`
}

// AutoGenesisConfig controls the background world-creation job.
type AutoGenesisConfig struct {
	Enabled     bool   `json:"enabled" toml:"enabled" env:"NULL_AUTO_GENESIS_ENABLED"`
	IntervalSec int    `json:"interval_sec" toml:"interval_sec" env:"NULL_AUTO_GENESIS_INTERVAL_SEC"`
	MaxWorlds   int    `json:"max_worlds" toml:"max_worlds" env:"NULL_AUTO_GENESIS_MAX_WORLDS"`
	SeedsPath   string `json:"seeds_path" toml:"seeds_path" env:"NULL_AUTO_GENESIS_SEEDS_PATH"`

	// Seeds is filled from SeedsPath by Load.
	Seeds []string `json:"-" toml:"-"`
}

// Config holds the engine's runtime configuration.
type Config struct {
	DBPath     string `json:"db_path" toml:"db_path" env:"NULL_DB_PATH"`
	ListenAddr string `json:"listen_addr" toml:"listen_addr" env:"NULL_LISTEN_ADDR"`
	LogLevel   string `json:"log_level" toml:"log_level" env:"NULL_LOG_LEVEL"`
	LogFormat  string `json:"log_format" toml:"log_format" env:"NULL_LOG_FORMAT"`

	TickIntervalMs   int     `json:"tick_interval_ms" toml:"tick_interval_ms" env:"NULL_TICK_INTERVAL_MS"`
	TicksPerEpoch    int     `json:"ticks_per_epoch" toml:"ticks_per_epoch" env:"NULL_TICKS_PER_EPOCH"`
	EventProbability float64 `json:"event_probability" toml:"event_probability" env:"NULL_EVENT_PROBABILITY"`
	PostProbability  float64 `json:"post_probability" toml:"post_probability" env:"NULL_POST_PROBABILITY"`

	QuorumVotes    int `json:"quorum_votes" toml:"quorum_votes" env:"NULL_QUORUM_VOTES"`
	QuorumFactions int `json:"quorum_factions" toml:"quorum_factions" env:"NULL_QUORUM_FACTIONS"`

	LoopRestartBackoffMs int `json:"loop_restart_backoff_ms" toml:"loop_restart_backoff_ms" env:"NULL_LOOP_RESTART_BACKOFF_MS"`

	AlertMinTicks             int     `json:"alert_min_ticks" toml:"alert_min_ticks" env:"NULL_ALERT_MIN_TICKS"`
	AlertSuccessRateFloor     float64 `json:"alert_success_rate_floor" toml:"alert_success_rate_floor" env:"NULL_ALERT_SUCCESS_RATE_FLOOR"`
	GeneratingWorldsThreshold int     `json:"generating_worlds_threshold" toml:"generating_worlds_threshold" env:"NULL_GENERATING_WORLDS_THRESHOLD"`

	Generation  GenerationConfig  `json:"generation" toml:"generation"`
	AutoGenesis AutoGenesisConfig `json:"auto_genesis" toml:"auto_genesis"`
}

// defaultProbability applies to event_probability and post_probability when
// neither the file nor the environment sets them.
const defaultProbability = 0.15

// Load reads a JSON or TOML config file, overlays NULL_* environment
// variables, applies defaults, and validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	// Zero is a valid probability, so these are seeded before decoding
	// instead of being filled in by applyDefaults.
	cfg := Config{
		EventProbability: defaultProbability,
		PostProbability:  defaultProbability,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.AutoGenesis.SeedsPath != "" {
		seeds, err := LoadSeeds(cfg.AutoGenesis.SeedsPath)
		if err != nil {
			return nil, err
		}
		cfg.AutoGenesis.Seeds = seeds
	}

	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config TOML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config JSON: %w", err)
		}
	}
	return nil
}

type seedFile struct {
	Seeds []string `yaml:"seeds"`
}

// LoadSeeds reads the auto-genesis seed list from a YAML file of the form
// `seeds: [...]`. Blank entries are dropped.
func LoadSeeds(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seeds file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seeds YAML: %w", err)
	}
	seeds := make([]string, 0, len(f.Seeds))
	for _, s := range f.Seeds {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}
	return seeds, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":3301"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.TickIntervalMs == 0 {
		c.TickIntervalMs = 5000
	}
	if c.TicksPerEpoch == 0 {
		c.TicksPerEpoch = 10
	}
	if c.QuorumVotes == 0 {
		c.QuorumVotes = 3
	}
	if c.QuorumFactions == 0 {
		c.QuorumFactions = 2
	}
	if c.LoopRestartBackoffMs == 0 {
		c.LoopRestartBackoffMs = 5000
	}
	if c.AlertMinTicks == 0 {
		c.AlertMinTicks = 10
	}
	if c.AlertSuccessRateFloor == 0 {
		c.AlertSuccessRateFloor = 0.9
	}
	if c.GeneratingWorldsThreshold == 0 {
		c.GeneratingWorldsThreshold = 5
	}
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = "http://localhost:11434/v1"
	}
	if c.Generation.TimeoutSec == 0 {
		c.Generation.TimeoutSec = 60
	}
	if c.Generation.MaxFailures == 0 {
		c.Generation.MaxFailures = 5
	}
	if c.Generation.CooldownSec == 0 {
		c.Generation.CooldownSec = 30
	}
	if c.AutoGenesis.IntervalSec == 0 {
		c.AutoGenesis.IntervalSec = 300
	}
	if c.AutoGenesis.MaxWorlds == 0 {
		c.AutoGenesis.MaxWorlds = 3
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.TickIntervalMs < 0 {
		problems = append(problems, "tick_interval_ms must be positive")
	}
	if c.TicksPerEpoch < 1 {
		problems = append(problems, "ticks_per_epoch must be at least 1")
	}
	if c.EventProbability < 0 || c.EventProbability > 1 {
		problems = append(problems, "event_probability must be within [0, 1]")
	}
	if c.PostProbability < 0 || c.PostProbability > 1 {
		problems = append(problems, "post_probability must be within [0, 1]")
	}
	if c.QuorumVotes < 1 {
		problems = append(problems, "quorum_votes must be at least 1")
	}
	if c.QuorumFactions < 1 {
		problems = append(problems, "quorum_factions must be at least 1")
	}
	if c.QuorumFactions > c.QuorumVotes {
		problems = append(problems, "quorum_factions cannot exceed quorum_votes")
	}
	if c.AlertSuccessRateFloor < 0 || c.AlertSuccessRateFloor > 1 {
		problems = append(problems, "alert_success_rate_floor must be within [0, 1]")
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

// TickInterval is the runner cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// LoopRestartBackoff is the wait between supervised job restarts.
func (c *Config) LoopRestartBackoff() time.Duration {
	return time.Duration(c.LoopRestartBackoffMs) * time.Millisecond
}

// GenerationTimeout bounds a single generation call.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.Generation.TimeoutSec) * time.Second
}
